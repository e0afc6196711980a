// Package config loads and validates the prescriber configuration.
// Configuration errors are fatal at pipeline start: a run with bad weights,
// smoothing factor or list size must reject immediately rather than produce
// misleading scores.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is searched for in the current directory, then the user's
// home directory.
const ConfigFileName = "prescriber_config.yaml"

// ScoringWeights is the non-negative weight vector for the composite score.
type ScoringWeights struct {
	Fit       float64 `yaml:"fit" validate:"gte=0"`
	Adherence float64 `yaml:"adherence" validate:"gte=0"`
	Match     float64 `yaml:"match" validate:"gte=0"`
}

// FrequencyBand maps a minimum composite score to a weekly slot count.
type FrequencyBand struct {
	MinScore     float64 `yaml:"minScore" validate:"gte=0"`
	SlotsPerWeek int     `yaml:"slotsPerWeek" validate:"min=1,max=7"`
}

// ScaleMapping maps one assessment scale to the clinical dimensions it
// informs.
type ScaleMapping struct {
	Scale      string   `yaml:"scale" validate:"required"`
	Dimensions []string `yaml:"dimensions" validate:"min=1"`
}

// Config represents the application configuration.
type Config struct {
	// DatabaseURL is the clinical Postgres connection string
	DatabaseURL string `yaml:"databaseURL" validate:"required"`

	// Weights control the composite score; zero disables a component
	Weights ScoringWeights `yaml:"weights"`

	// Alpha is the EWMA smoothing factor in (0,1]
	Alpha float64 `yaml:"alpha" validate:"gt=0,lte=1"`

	// MaxRecommendations is the recommendation list bound K
	MaxRecommendations int `yaml:"maxRecommendations" validate:"min=1"`

	// BalanceTolerance is the maximum allowed deviation of any weekday's
	// load from the mean weekly load
	BalanceTolerance float64 `yaml:"balanceTolerance" validate:"gte=0"`

	// SimilarityThreshold and SimilarityPenalty govern near-duplicate
	// discounting; a penalty of 1 removes near-duplicates outright
	SimilarityThreshold float64 `yaml:"similarityThreshold" validate:"gte=0,lte=1"`
	SimilarityPenalty   float64 `yaml:"similarityPenalty" validate:"gte=0,lte=1"`

	// FrequencyBands map composite scores to weekly frequencies
	FrequencyBands []FrequencyBand `yaml:"frequencyBands" validate:"min=1,dive"`

	// HighUsageSessions grants one extra weekly slot to protocols at or
	// above this session count; 0 disables the bonus
	HighUsageSessions int `yaml:"highUsageSessions" validate:"gte=0"`

	// Dimensions is the fixed clinical dimension ordering; contribution
	// vectors are indexed by it
	Dimensions []string `yaml:"dimensions" validate:"min=1"`

	// ScaleMappings assign assessment scales to dimensions
	ScaleMappings []ScaleMapping `yaml:"scaleMappings" validate:"dive"`

	// AggregateRule fixes how dimensions fed by multiple scales combine:
	// "sum" or "mean"
	AggregateRule string `yaml:"aggregateRule" validate:"oneof=sum mean"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Default returns the documented default configuration (no database URL).
// Weights of 1 give every component equal influence, matching the clinical
// stakeholders' starting point.
func Default() *Config {
	return &Config{
		Weights:             ScoringWeights{Fit: 1, Adherence: 1, Match: 1},
		Alpha:               0.5,
		MaxRecommendations:  6,
		BalanceTolerance:    1,
		SimilarityThreshold: 0.8,
		SimilarityPenalty:   0.5,
		FrequencyBands: []FrequencyBand{
			{MinScore: 2.0, SlotsPerWeek: 3},
			{MinScore: 1.0, SlotsPerWeek: 2},
			{MinScore: 0, SlotsPerWeek: 1},
		},
		HighUsageSessions: 0,
		AggregateRule:     "mean",
	}
}

// Load loads and validates the configuration, looking for the config file in
// the current directory first, then in the user's home directory.
func Load() (*Config, error) {
	configPath, err := findConfigFile()
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate runs struct validation plus the cross-field checks the tags
// cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Frequency bands must be monotonic and must cover score 0 so every
	// selected protocol receives a frequency
	coversZero := false
	for _, band := range cfg.FrequencyBands {
		if band.MinScore == 0 {
			coversZero = true
		}
	}
	if !coversZero {
		return fmt.Errorf("config validation failed: frequencyBands must include a band with minScore 0")
	}

	for i, m := range cfg.ScaleMappings {
		for _, dim := range m.Dimensions {
			if !slices.Contains(cfg.Dimensions, dim) {
				return fmt.Errorf("config validation failed: scaleMappings[%d] references unknown dimension %q", i, dim)
			}
		}
	}

	return nil
}

// findConfigFile searches for the config file in the current directory and
// home directory.
func findConfigFile() (string, error) {
	if _, err := os.Stat(ConfigFileName); err == nil {
		return ConfigFileName, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homeConfigPath := filepath.Join(homeDir, ConfigFileName)
	if _, err := os.Stat(homeConfigPath); err == nil {
		return homeConfigPath, nil
	}

	return "", fmt.Errorf("config file not found in current directory or home directory")
}
