package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rgs-cdss/prescriber/internal/config"
	"github.com/rgs-cdss/prescriber/pkg/core/model"
	"github.com/rgs-cdss/prescriber/pkg/db"
)

type mockClinicalStore struct {
	patients    []int64
	sessions    map[int64][]model.SessionRecord
	samples     map[int64][]model.TimeseriesSample
	assessments map[int64]map[string]float64
	weights     map[int64]map[string]float64
	similarity  model.SimilarityMatrix

	listPatientsErr error
	sessionsErr     error
}

func (m *mockClinicalStore) ListPatients(ctx context.Context) ([]int64, error) {
	return m.patients, m.listPatientsErr
}

func (m *mockClinicalStore) GetSessionRecords(ctx context.Context, patientID int64) ([]model.SessionRecord, error) {
	if m.sessionsErr != nil {
		return nil, m.sessionsErr
	}
	return m.sessions[patientID], nil
}

func (m *mockClinicalStore) GetTimeseriesSamples(ctx context.Context, patientID int64) ([]model.TimeseriesSample, error) {
	return m.samples[patientID], nil
}

func (m *mockClinicalStore) GetAssessmentValues(ctx context.Context, patientID int64) (map[string]float64, error) {
	return m.assessments[patientID], nil
}

func (m *mockClinicalStore) GetProtocolDimensionWeights(ctx context.Context) (map[int64]map[string]float64, error) {
	return m.weights, nil
}

func (m *mockClinicalStore) GetProtocolSimilarity(ctx context.Context) (model.SimilarityMatrix, error) {
	return m.similarity, nil
}

type mockPrescriptionStore struct {
	inserted  []db.Prescription
	insertErr error
}

func (m *mockPrescriptionStore) InsertPrescriptions(ctx context.Context, prescriptions []db.Prescription) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserted = append(m.inserted, prescriptions...)
	return nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.DatabaseURL = "postgres://test"
	cfg.Dimensions = []string{"motor", "cognitive"}
	cfg.ScaleMappings = []config.ScaleMapping{
		{Scale: "FM", Dimensions: []string{"motor"}},
		{Scale: "MOCA", Dimensions: []string{"cognitive"}},
	}
	return cfg
}

func session(protocolID, sessionID int64, adherence float64) model.SessionRecord {
	return model.SessionRecord{
		PatientID:      775,
		ProtocolID:     protocolID,
		SessionID:      sessionID,
		StartedAt:      time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(sessionID) * time.Hour),
		AdherenceRatio: adherence,
		Completed:      true,
	}
}

func sample(protocolID, sessionID int64, dm, pe float64) model.TimeseriesSample {
	return model.TimeseriesSample{
		PatientID:  775,
		ProtocolID: protocolID,
		SessionID:  sessionID,
		RecordedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		DMValue:    dm,
		PEValue:    pe,
	}
}

// scenarioStore builds a patient with six candidate protocols. Protocol 222
// has mid fit, strong adherence and perfect match values; protocol 227 has
// near-zero fit and perfect adherence but an empty timeseries. 222 must
// outrank 227: behavioural engagement dominates raw compliance.
func scenarioStore() *mockClinicalStore {
	return &mockClinicalStore{
		patients: []int64{775},
		sessions: map[int64][]model.SessionRecord{
			775: {
				session(222, 1, 0.95),
				session(222, 2, 1.0),
				session(227, 3, 1.0),
				session(227, 4, 1.0),
			},
		},
		samples: map[int64][]model.TimeseriesSample{
			775: {
				sample(222, 1, 1.0, 1.0),
				sample(222, 1, 1.0, 1.0),
				sample(222, 2, 1.0, 1.0),
			},
		},
		assessments: map[int64]map[string]float64{
			775: {"FM": 0.8, "MOCA": 0.6},
		},
		weights: map[int64]map[string]float64{
			222: {"motor": 0.5, "cognitive": 0.4},
			224: {"motor": 1.0, "cognitive": 1.0},
			227: {"motor": 0.1, "cognitive": 0.03},
			230: {"motor": 0.5, "cognitive": 0.5},
			231: {"motor": 0.25},
			233: {"cognitive": 0.5},
		},
		similarity: model.SimilarityMatrix{},
	}
}

func selectedIDs(recs []model.ScoredRecommendation) []int64 {
	ids := make([]int64, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ProtocolID
	}
	return ids
}

func TestScorePatient_OrdersByCompositeScore(t *testing.T) {
	store := scenarioStore()

	recs, err := ScorePatient(context.Background(), store, testConfig(), zap.NewNop(), 775)
	require.NoError(t, err)

	require.Len(t, recs, 6)
	assert.Equal(t, []int64{222, 227, 224, 230, 233, 231}, selectedIDs(recs))

	// 222: ppf 0.64 + adherence ewma(0.95, 1.0) + mean(1.0, 1.0)
	assert.InDelta(t, 2.615, recs[0].Score, 1e-9)
	assert.InDelta(t, 0.64, recs[0].PPF, 1e-9)
	assert.InDelta(t, 0.975, recs[0].Adherence, 1e-9)
	assert.InDelta(t, 1.0, recs[0].DMValue, 1e-9)
	assert.InDelta(t, 1.0, recs[0].PEValue, 1e-9)
	assert.Equal(t, 2, recs[0].Usage)

	// 227: ppf 0.098 + adherence 1.0, no timeseries signal
	assert.InDelta(t, 1.098, recs[1].Score, 1e-9)
	assert.Zero(t, recs[1].DMValue)
	assert.Zero(t, recs[1].PEValue)
}

func TestScorePatient_ProtocolsWithoutHistoryStillScored(t *testing.T) {
	store := scenarioStore()

	recs, err := ScorePatient(context.Background(), store, testConfig(), zap.NewNop(), 775)
	require.NoError(t, err)

	// 224 has no sessions at all; its composite is fit only, clamped at 1
	var found *model.ScoredRecommendation
	for i := range recs {
		if recs[i].ProtocolID == 224 {
			found = &recs[i]
		}
	}
	require.NotNil(t, found)
	assert.InDelta(t, 1.0, found.Score, 1e-9)
	assert.Zero(t, found.Adherence)
	assert.Zero(t, found.Usage)
}

func TestScorePatient_SimilarityDiscountDemotesNearDuplicate(t *testing.T) {
	store := scenarioStore()
	store.similarity = model.SimilarityMatrix{
		model.NewProtocolPair(222, 224): 0.9,
	}

	recs, err := ScorePatient(context.Background(), store, testConfig(), zap.NewNop(), 775)
	require.NoError(t, err)

	// 224's composite 1.0 halves to 0.5 against 222, dropping it below 230
	assert.Equal(t, []int64{222, 227, 230, 224, 233, 231}, selectedIDs(recs))
}

func TestScorePatient_TruncatesToConfiguredLimit(t *testing.T) {
	store := scenarioStore()
	cfg := testConfig()
	cfg.MaxRecommendations = 3

	recs, err := ScorePatient(context.Background(), store, cfg, zap.NewNop(), 775)
	require.NoError(t, err)

	assert.Equal(t, []int64{222, 227, 224}, selectedIDs(recs))
}

func TestScorePatient_StoreErrorPropagates(t *testing.T) {
	store := scenarioStore()
	store.sessionsErr = errors.New("connection reset")

	_, err := ScorePatient(context.Background(), store, testConfig(), zap.NewNop(), 775)
	assert.ErrorContains(t, err, "failed to fetch session records")
}

func TestNewEngine_RejectsNegativeWeight(t *testing.T) {
	cfg := testConfig()
	cfg.Weights.Adherence = -0.1

	_, err := NewEngine(context.Background(), scenarioStore(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "validation failed")
}

func TestNewEngine_RejectsInvalidPipelineParameters(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"negative alpha", func(cfg *config.Config) { cfg.Alpha = -0.5 }},
		{"alpha above one", func(cfg *config.Config) { cfg.Alpha = 1.5 }},
		{"zero max recommendations", func(cfg *config.Config) { cfg.MaxRecommendations = 0 }},
		{"negative balance tolerance", func(cfg *config.Config) { cfg.BalanceTolerance = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(cfg)

			_, err := NewEngine(context.Background(), scenarioStore(), cfg, zap.NewNop())
			assert.ErrorContains(t, err, "validation failed")
		})
	}
}

func TestNewEngine_RejectsUnknownDimensionInWeightTable(t *testing.T) {
	store := scenarioStore()
	store.weights[222]["proprioception"] = 0.3

	_, err := NewEngine(context.Background(), store, testConfig(), zap.NewNop())
	assert.ErrorContains(t, err, "unknown dimension")
}

func TestSchedulePatient_AssignsBalancedWeek(t *testing.T) {
	store := scenarioStore()
	weekStart := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC) // Monday

	result, err := SchedulePatient(context.Background(), store, &mockPrescriptionStore{},
		testConfig(), zap.NewNop(), 775, weekStart, true)
	require.NoError(t, err)

	assert.True(t, result.Balanced)
	assert.Empty(t, result.Violations)

	// Default bands: 222 (2.615) gets 3 days, 227 and 224 get 2, rest 1
	wantDays := map[int64]int{222: 3, 227: 2, 224: 2, 230: 1, 233: 1, 231: 1}
	for _, rec := range result.Recommendations {
		assert.Len(t, rec.Days, wantDays[rec.ProtocolID], "protocol %d", rec.ProtocolID)
	}

	assert.Equal(t, 10, result.Allocation.TotalSlots())
	assert.LessOrEqual(t, result.Allocation.MaxLoad()-result.Allocation.MinLoad(), 1)
}

func TestSchedulePatient_PersistsDatedPrescriptions(t *testing.T) {
	store := scenarioStore()
	prescriptions := &mockPrescriptionStore{}
	weekStart := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	result, err := SchedulePatient(context.Background(), store, prescriptions,
		testConfig(), zap.NewNop(), 775, weekStart, false)
	require.NoError(t, err)

	require.Len(t, prescriptions.inserted, len(result.Recommendations))
	for i, row := range prescriptions.inserted {
		rec := result.Recommendations[i]
		assert.NotEmpty(t, row.ID)
		assert.Equal(t, int64(775), row.PatientID)
		assert.Equal(t, rec.ProtocolID, row.ProtocolID)
		assert.Equal(t, rec.Days, row.Days)

		require.Len(t, row.SessionDates, len(rec.Days))
		for j, d := range rec.Days {
			assert.Equal(t, weekStart.AddDate(0, 0, d), row.SessionDates[j],
				"protocol %d occurrence %d", rec.ProtocolID, j)
		}
	}
}

func TestSchedulePatient_DryRunSkipsInsert(t *testing.T) {
	prescriptions := &mockPrescriptionStore{}
	weekStart := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	_, err := SchedulePatient(context.Background(), scenarioStore(), prescriptions,
		testConfig(), zap.NewNop(), 775, weekStart, true)
	require.NoError(t, err)

	assert.Empty(t, prescriptions.inserted)
}

func TestSchedulePatient_InsertErrorPropagates(t *testing.T) {
	prescriptions := &mockPrescriptionStore{insertErr: errors.New("deadlock detected")}
	weekStart := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	_, err := SchedulePatient(context.Background(), scenarioStore(), prescriptions,
		testConfig(), zap.NewNop(), 775, weekStart, false)
	assert.ErrorContains(t, err, "failed to persist prescriptions")
}

func TestScheduleAllPatients_ProcessesEveryPatient(t *testing.T) {
	store := scenarioStore()
	store.patients = []int64{775, 801}
	store.sessions[801] = []model.SessionRecord{session(230, 9, 0.8)}
	store.assessments[801] = map[string]float64{"FM": 0.4}
	weekStart := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	results, err := ScheduleAllPatients(context.Background(), store, &mockPrescriptionStore{},
		testConfig(), zap.NewNop(), weekStart, true)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, int64(775), results[0].PatientID)
	assert.Equal(t, int64(801), results[1].PatientID)
	for _, result := range results {
		assert.True(t, result.Balanced)
	}
}

func TestScheduleAllPatients_PatientFailureAbortsRun(t *testing.T) {
	store := scenarioStore()
	store.sessionsErr = errors.New("timeout")
	weekStart := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	_, err := ScheduleAllPatients(context.Background(), store, &mockPrescriptionStore{},
		testConfig(), zap.NewNop(), weekStart, true)
	assert.ErrorContains(t, err, "failed to schedule patient 775")
}
