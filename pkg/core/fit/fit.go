// Package fit computes the protocol-patient-fit score (PPF) and its
// per-dimension contribution vector from the static protocol dimension
// weight table and a patient's normalized assessment values.
package fit

import (
	"fmt"

	"github.com/rgs-cdss/prescriber/pkg/core/model"
)

// AggregateRule fixes how a dimension fed by multiple assessment scales
// combines their values.
type AggregateRule string

const (
	AggregateSum  AggregateRule = "sum"
	AggregateMean AggregateRule = "mean"
)

// DimensionIndex resolves clinical dimension names to fixed slice positions.
// It is built once at configuration load so contribution vectors stay
// fixed-size arrays instead of dynamically keyed maps.
type DimensionIndex struct {
	names  []string
	byName map[string]int
}

// NewDimensionIndex builds an index over the configured dimension ordering.
func NewDimensionIndex(names []string) (*DimensionIndex, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("no clinical dimensions configured")
	}

	byName := make(map[string]int, len(names))
	for i, name := range names {
		if _, exists := byName[name]; exists {
			return nil, fmt.Errorf("duplicate clinical dimension %q", name)
		}
		byName[name] = i
	}

	return &DimensionIndex{names: append([]string(nil), names...), byName: byName}, nil
}

// Count returns the number of clinical dimensions.
func (d *DimensionIndex) Count() int {
	return len(d.names)
}

// Names returns the dimension names in index order.
func (d *DimensionIndex) Names() []string {
	return append([]string(nil), d.names...)
}

// Resolve returns the slice position of a dimension name.
func (d *DimensionIndex) Resolve(name string) (int, bool) {
	i, ok := d.byName[name]
	return i, ok
}

// ScaleMapping maps one assessment scale to the dimensions it informs.
// A scale mapping to multiple dimensions splits its value equally across
// them.
type ScaleMapping struct {
	Scale      string
	Dimensions []string
}

// Evaluator computes PPF and contribution vectors. The weight table and
// scale mapping are read-only after construction, so a single Evaluator is
// shared across all patient pipelines without locking.
type Evaluator struct {
	dims *DimensionIndex

	// protocolWeights[protocolID][d] is the protocol's weight on dimension d
	protocolWeights map[int64][]float64

	// scaleDims[scale] lists the resolved dimension indices the scale feeds
	scaleDims map[string][]int

	rule AggregateRule
}

// NewEvaluator validates and indexes the protocol dimension weight table and
// scale-to-dimension mapping. Unknown dimension names are configuration
// errors and reject the run immediately.
func NewEvaluator(
	dims *DimensionIndex,
	weightTable map[int64]map[string]float64,
	mappings []ScaleMapping,
	rule AggregateRule,
) (*Evaluator, error) {
	if rule != AggregateSum && rule != AggregateMean {
		return nil, fmt.Errorf("unknown aggregate rule %q", rule)
	}

	protocolWeights := make(map[int64][]float64, len(weightTable))
	for protocolID, weights := range weightTable {
		row := make([]float64, dims.Count())
		for name, w := range weights {
			i, ok := dims.Resolve(name)
			if !ok {
				return nil, fmt.Errorf("protocol %d references unknown dimension %q", protocolID, name)
			}
			if w < 0 {
				return nil, fmt.Errorf("protocol %d has negative weight on dimension %q", protocolID, name)
			}
			row[i] = w
		}
		protocolWeights[protocolID] = row
	}

	scaleDims := make(map[string][]int, len(mappings))
	for _, m := range mappings {
		if _, exists := scaleDims[m.Scale]; exists {
			return nil, fmt.Errorf("assessment scale %q mapped twice", m.Scale)
		}
		indices := make([]int, 0, len(m.Dimensions))
		for _, name := range m.Dimensions {
			i, ok := dims.Resolve(name)
			if !ok {
				return nil, fmt.Errorf("scale %q references unknown dimension %q", m.Scale, name)
			}
			indices = append(indices, i)
		}
		scaleDims[m.Scale] = indices
	}

	return &Evaluator{
		dims:            dims,
		protocolWeights: protocolWeights,
		scaleDims:       scaleDims,
		rule:            rule,
	}, nil
}

// Dimensions returns the evaluator's dimension index.
func (e *Evaluator) Dimensions() *DimensionIndex {
	return e.dims
}

// Protocols returns the IDs of all protocols in the weight table, in no
// particular order.
func (e *Evaluator) Protocols() []int64 {
	ids := make([]int64, 0, len(e.protocolWeights))
	for id := range e.protocolWeights {
		ids = append(ids, id)
	}
	return ids
}

// PatientValues projects a patient's assessment values onto the dimension
// space: each scale splits its value equally across its mapped dimensions,
// and dimensions fed by multiple scales combine per the aggregate rule.
// Unmapped scales are ignored.
func (e *Evaluator) PatientValues(assessments map[string]float64) []float64 {
	sums := make([]float64, e.dims.Count())
	counts := make([]int, e.dims.Count())

	for scale, value := range assessments {
		indices, ok := e.scaleDims[scale]
		if !ok || len(indices) == 0 {
			continue
		}
		split := model.Clamp01(value) / float64(len(indices))
		for _, i := range indices {
			sums[i] += split
			counts[i]++
		}
	}

	if e.rule == AggregateMean {
		for i := range sums {
			if counts[i] > 1 {
				sums[i] /= float64(counts[i])
			}
		}
	}

	for i := range sums {
		sums[i] = model.Clamp01(sums[i])
	}
	return sums
}

// Evaluate computes PPF and the contribution vector for one protocol against
// precomputed patient dimension values. A protocol with no overlapping
// dimensions yields PPF 0 and an all-zero vector, which is a valid, scorable
// outcome.
func (e *Evaluator) Evaluate(protocolID int64, patientValues []float64) (float64, []float64) {
	contrib := make([]float64, e.dims.Count())

	weights, ok := e.protocolWeights[protocolID]
	if !ok {
		return 0, contrib
	}

	total := 0.0
	for d := range contrib {
		contrib[d] = weights[d] * patientValues[d]
		total += contrib[d]
	}

	return model.Clamp01(total), contrib
}
