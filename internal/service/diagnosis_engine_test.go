package service

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neurodx-mcp-server/internal/domain"
	"github.com/neurodx-mcp-server/internal/knowledge"
)

// staticKB is an in-memory knowledge base for synthetic scenarios.
type staticKB []domain.Disease

func (s staticKB) Diseases() []domain.Disease {
	out := make([]domain.Disease, len(s))
	for i, d := range s {
		out[i] = d.Clone()
	}
	return out
}

func (s staticKB) Disease(id string) (domain.Disease, bool) {
	for _, d := range s {
		if d.ID == id {
			return d.Clone(), true
		}
	}
	return domain.Disease{}, false
}

func (s staticKB) Len() int { return len(s) }

func disease(id string, lesion []string, flags []string, evidence map[string]float64) domain.Disease {
	d := domain.Disease{ID: id, Name: id, LesionSite: lesion, RedFlags: flags}
	for fid, lr := range evidence {
		d.Evidence = append(d.Evidence, domain.Evidence{
			FindingID:       fid,
			LikelihoodRatio: domain.LikelihoodRatio{Positive: lr, Negative: 0.5},
		})
	}
	return d
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress logs during testing
	return logger
}

func newDefaultEngine(t *testing.T, opts ...EngineOption) *DiagnosisEngine {
	t.Helper()
	k, err := knowledge.Default()
	require.NoError(t, err)
	return NewDiagnosisEngine(newTestLogger(), k.Base, opts...)
}

func finding(id string, typ domain.FindingType, side domain.Laterality) domain.Finding {
	return domain.Finding{ID: id, Name: id, Type: typ, Laterality: side}
}

func TestComputeDiagnosis_EmptyInput(t *testing.T) {
	engine := newDefaultEngine(t)

	result := engine.ComputeDiagnosis(nil)

	require.NotNil(t, result)
	assert.Empty(t, result.Diseases)
	assert.Empty(t, result.LesionSite)
	assert.Empty(t, result.RedFlags)
	assert.Equal(t, 0.0, result.Confidence)
}

func TestComputeDiagnosis_MyastheniaSingleFinding(t *testing.T) {
	engine := newDefaultEngine(t)

	result := engine.ComputeDiagnosis([]domain.Finding{{ID: "fatigable_weakness"}})

	require.Len(t, result.Diseases, 1)
	top := result.Diseases[0]
	assert.Equal(t, "myasthenia_gravis", top.ID)
	assert.InDelta(t, (0.01*12.5)/(0.01*12.5+0.99), top.PosteriorProbability, 1e-12)
	assert.InDelta(t, 0.125/1.115, result.Confidence, 1e-12)
	assert.Equal(t, []string{"neuromuscular junction"}, result.LesionSite)
	assert.Equal(t, []string{"respiratory weakness", "bulbar symptoms"}, result.RedFlags)
	assert.Equal(t, domain.LOW, result.ConfidenceLevel())
}

func TestComputeDiagnosis_BilateralMotorMultiplier(t *testing.T) {
	engine := newDefaultEngine(t)

	bilateral := engine.ComputeDiagnosis([]domain.Finding{
		finding("motor_arm_left", domain.MOTOR, domain.LEFT),
		finding("motor_arm_right", domain.MOTOR, domain.RIGHT),
	})
	unlateralized := engine.ComputeDiagnosis([]domain.Finding{
		finding("motor_arm_left", domain.MOTOR, domain.NO_LATERALITY),
		finding("motor_arm_right", domain.MOTOR, domain.NO_LATERALITY),
	})

	assert.Equal(t, []string{PatternBilateral}, bilateral.Patterns)
	assert.Empty(t, unlateralized.Patterns)

	require.NotEmpty(t, bilateral.Diseases)
	assert.Equal(t, "guillain_barre", bilateral.Diseases[0].ID)
	assert.InDelta(t, 100.0/199.0, bilateral.Diseases[0].PosteriorProbability, 1e-12)

	assert.InDelta(t, unlateralized.Confidence*1.1, bilateral.Confidence, 1e-12)
	assert.Equal(t, len(unlateralized.Diseases), len(bilateral.Diseases))
}

func TestComputeDiagnosis_ClearLeaderMultiplierIsClamped(t *testing.T) {
	// LR 891 lifts 0.01 to 0.9 and LR 99 lifts it to 0.5.
	kb := staticKB{
		disease("leader", []string{"cortex"}, nil, map[string]float64{"x": 891}),
		disease("runner_up", []string{"brainstem"}, nil, map[string]float64{"x": 99}),
	}
	engine := NewDiagnosisEngine(newTestLogger(), kb)

	result := engine.ComputeDiagnosis([]domain.Finding{{ID: "x"}})

	require.Len(t, result.Diseases, 2)
	assert.InDelta(t, 0.9, result.Diseases[0].PosteriorProbability, 1e-9)
	assert.InDelta(t, 0.5, result.Diseases[1].PosteriorProbability, 1e-9)
	assert.Equal(t, 1.0, result.Confidence)
}

func TestComputeDiagnosis_ClearLeaderMultiplier(t *testing.T) {
	// LR 231 lifts 0.01 to 0.7; LR 10 lifts it to ~0.092.
	kb := staticKB{
		disease("leader", nil, nil, map[string]float64{"x": 231}),
		disease("runner_up", nil, nil, map[string]float64{"x": 10}),
	}
	engine := NewDiagnosisEngine(newTestLogger(), kb)

	result := engine.ComputeDiagnosis([]domain.Finding{{ID: "x"}})

	require.Len(t, result.Diseases, 2)
	assert.InDelta(t, 0.7*1.2, result.Confidence, 1e-9)
	assert.Equal(t, domain.HIGH, result.ConfidenceLevel())
}

func TestComputeDiagnosis_NoGapMultiplierWithinThreshold(t *testing.T) {
	kb := staticKB{
		disease("a", nil, nil, map[string]float64{"x": 231}),
		disease("b", nil, nil, map[string]float64{"x": 99}),
	}
	engine := NewDiagnosisEngine(newTestLogger(), kb)

	result := engine.ComputeDiagnosis([]domain.Finding{{ID: "x"}})

	// 0.7 - 0.5 is not a clear lead.
	assert.InDelta(t, 0.7, result.Confidence, 1e-9)
}

func TestComputeDiagnosis_StableTieOrder(t *testing.T) {
	kb := staticKB{
		disease("first", nil, nil, map[string]float64{"x": 5}),
		disease("second", nil, nil, map[string]float64{"x": 5}),
		disease("third", nil, nil, map[string]float64{"x": 5}),
	}
	engine := NewDiagnosisEngine(newTestLogger(), kb)

	result := engine.ComputeDiagnosis([]domain.Finding{{ID: "x"}})

	require.Len(t, result.Diseases, 3)
	assert.Equal(t, "first", result.Diseases[0].ID)
	assert.Equal(t, "second", result.Diseases[1].ID)
	assert.Equal(t, "third", result.Diseases[2].ID)
}

func TestComputeDiagnosis_AggregatesTopThreeOnly(t *testing.T) {
	kb := staticKB{
		disease("d1", []string{"cortex"}, []string{"sudden_onset"}, map[string]float64{"x": 20}),
		disease("d2", []string{"brainstem", "cortex"}, []string{"vertigo", "sudden_onset"}, map[string]float64{"x": 15}),
		disease("d3", []string{"cerebellum"}, []string{}, map[string]float64{"x": 10}),
		disease("d4", []string{"muscle"}, []string{"dysphagia"}, map[string]float64{"x": 5}),
	}
	engine := NewDiagnosisEngine(newTestLogger(), kb)

	result := engine.ComputeDiagnosis([]domain.Finding{{ID: "x"}})

	require.Len(t, result.Diseases, 4)
	assert.Equal(t, []string{"cortex", "brainstem", "cerebellum"}, result.LesionSite)
	assert.Equal(t, []string{"sudden_onset", "vertigo"}, result.RedFlags)
}

func TestComputeDiagnosis_RepeatedFindingAppliesTwice(t *testing.T) {
	kb := staticKB{disease("d", nil, nil, map[string]float64{"x": 10})}
	engine := NewDiagnosisEngine(newTestLogger(), kb)

	result := engine.ComputeDiagnosis([]domain.Finding{{ID: "x"}, {ID: "x"}})

	require.Len(t, result.Diseases, 1)
	assert.InDelta(t, UpdatePosterior(UpdatePosterior(0.01, 10), 10), result.Diseases[0].PosteriorProbability, 1e-15)
}

func TestComputeDiagnosis_LikelihoodRatioBelowOneIsFilteredOut(t *testing.T) {
	kb := staticKB{disease("d", nil, nil, map[string]float64{"x": 0.5})}
	engine := NewDiagnosisEngine(newTestLogger(), kb)

	result := engine.ComputeDiagnosis([]domain.Finding{{ID: "x"}})

	assert.Empty(t, result.Diseases)
	assert.Equal(t, 0.0, result.Confidence)
}

func TestComputeDiagnosis_UnmatchedDiseasesKeepPrior(t *testing.T) {
	engine := newDefaultEngine(t)

	posteriors := engine.posteriors([]domain.Finding{{ID: "fatigable_weakness"}})

	for i, p := range posteriors {
		if engine.templates[i].ID == "myasthenia_gravis" {
			assert.Greater(t, p, PriorProbability)
			continue
		}
		assert.Equal(t, PriorProbability, p, "disease %s", engine.templates[i].ID)
	}
}

func TestComputeDiagnosis_RedFlagNamespaceDoesNotMatch(t *testing.T) {
	engine := newDefaultEngine(t)

	result := engine.ComputeDiagnosis([]domain.Finding{
		finding("redFlag_sudden_onset", domain.RED_FLAG, domain.NO_LATERALITY),
		finding("redFlag_seizure", domain.RED_FLAG, domain.NO_LATERALITY),
		finding("plantar_left", domain.REFLEX, domain.LEFT),
	})

	assert.Empty(t, result.Diseases)
	assert.Equal(t, 0.0, result.Confidence)
}

func TestComputeDiagnosis_Properties(t *testing.T) {
	engine := newDefaultEngine(t)

	findings := []domain.Finding{
		finding("motor_arm_left", domain.MOTOR, domain.LEFT),
		finding("motor_leg_left", domain.MOTOR, domain.LEFT),
		finding("cn_VII_left", domain.CRANIAL_NERVE, domain.LEFT),
		finding("pattern_hemiparesis", domain.MOTOR, domain.NO_LATERALITY),
		finding("tone_spastic", domain.MOTOR, domain.NO_LATERALITY),
		finding("reflex_knee_left", domain.REFLEX, domain.LEFT),
		finding("aphasia", domain.COGNITIVE, domain.NO_LATERALITY),
	}

	result := engine.ComputeDiagnosis(findings)
	require.NotEmpty(t, result.Diseases)

	t.Run("bounds and ordering", func(t *testing.T) {
		for i, d := range result.Diseases {
			assert.Greater(t, d.PosteriorProbability, PriorProbability)
			assert.LessOrEqual(t, d.PosteriorProbability, 1.0)
			if i > 0 {
				assert.GreaterOrEqual(t, result.Diseases[i-1].PosteriorProbability, d.PosteriorProbability)
			}
		}
		assert.GreaterOrEqual(t, result.Confidence, 0.0)
		assert.LessOrEqual(t, result.Confidence, 1.0)
	})

	t.Run("stroke leads", func(t *testing.T) {
		assert.Equal(t, "mca_stroke", result.Diseases[0].ID)
		assert.Contains(t, result.LesionSite, "cortex")
	})

	t.Run("permutation invariance", func(t *testing.T) {
		reversed := make([]domain.Finding, len(findings))
		for i, f := range findings {
			reversed[len(findings)-1-i] = f
		}
		other := engine.ComputeDiagnosis(reversed)

		require.Len(t, other.Diseases, len(result.Diseases))
		want := make(map[string]float64)
		for _, d := range result.Diseases {
			want[d.ID] = d.PosteriorProbability
		}
		for _, d := range other.Diseases {
			assert.InDelta(t, want[d.ID], d.PosteriorProbability, 1e-12, d.ID)
		}
	})

	t.Run("idempotence", func(t *testing.T) {
		assert.Equal(t, result, engine.ComputeDiagnosis(findings))
	})
}

func TestComputeDiagnosis_ResultsDoNotShareState(t *testing.T) {
	k := knowledge.MustDefault()
	engine := NewDiagnosisEngine(newTestLogger(), k.Base)
	input := []domain.Finding{{ID: "fatigable_weakness"}}

	first := engine.ComputeDiagnosis(input)
	require.Len(t, first.Diseases, 1)
	first.Diseases[0].Evidence[0].Positive = 1
	first.Diseases[0].LesionSite[0] = "mutated"
	first.LesionSite[0] = "mutated"

	second := engine.ComputeDiagnosis(input)
	assert.Equal(t, "neuromuscular junction", second.LesionSite[0])
	assert.InDelta(t, 0.125/1.115, second.Diseases[0].PosteriorProbability, 1e-12)

	mg, _ := k.Base.Disease("myasthenia_gravis")
	assert.Equal(t, 12.5, mg.Evidence[0].Positive)
}

func TestComputeDiagnosis_ParallelMatchesSequential(t *testing.T) {
	sequential := newDefaultEngine(t)
	parallel := newDefaultEngine(t, WithParallelism(4), WithParallelThreshold(1))
	defaults := newDefaultEngine(t, WithParallelism(4), WithParallelThreshold(0))
	assert.Equal(t, defaultParallelThreshold, defaults.parallelThreshold)
	assert.GreaterOrEqual(t, len(defaults.templates), defaults.parallelThreshold)

	inputs := [][]domain.Finding{
		nil,
		{{ID: "fatigable_weakness"}, {ID: "ptosis"}},
		{
			finding("motor_arm_left", domain.MOTOR, domain.LEFT),
			finding("motor_arm_right", domain.MOTOR, domain.RIGHT),
			finding("reflex_ankle_left", domain.REFLEX, domain.LEFT),
			finding("tone_flaccid", domain.MOTOR, domain.NO_LATERALITY),
		},
	}

	for _, in := range inputs {
		assert.Equal(t, sequential.ComputeDiagnosis(in), parallel.ComputeDiagnosis(in))
		assert.Equal(t, sequential.ComputeDiagnosis(in), defaults.ComputeDiagnosis(in))
	}
}

func TestComputeDiagnosis_ConcurrentCallers(t *testing.T) {
	engine := newDefaultEngine(t)
	input := []domain.Finding{
		finding("motor_arm_left", domain.MOTOR, domain.LEFT),
		finding("motor_arm_right", domain.MOTOR, domain.RIGHT),
	}
	want := engine.ComputeDiagnosis(input)

	var wg sync.WaitGroup
	results := make([]*domain.DiagnosisResult, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = engine.ComputeDiagnosis(input)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, want, r)
	}
}

func TestDetectPatterns(t *testing.T) {
	tests := []struct {
		name     string
		findings []domain.Finding
		want     []string
	}{
		{"empty", nil, []string{}},
		{"left motor only", []domain.Finding{finding("motor_arm_left", domain.MOTOR, domain.LEFT)}, []string{}},
		{
			"left and right motor",
			[]domain.Finding{
				finding("motor_arm_left", domain.MOTOR, domain.LEFT),
				finding("motor_leg_right", domain.MOTOR, domain.RIGHT),
			},
			[]string{PatternBilateral},
		},
		{
			"right side not motor",
			[]domain.Finding{
				finding("motor_arm_left", domain.MOTOR, domain.LEFT),
				finding("reflex_knee_right", domain.REFLEX, domain.RIGHT),
			},
			[]string{},
		},
		{
			"bilateral laterality does not count",
			[]domain.Finding{
				finding("motor_arm_left", domain.MOTOR, domain.LEFT),
				finding("weakness", domain.MOTOR, domain.BILATERAL),
			},
			[]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectPatterns(tt.findings))
		})
	}
}

func TestUpdatePosterior(t *testing.T) {
	assert.InDelta(t, 0.125/1.115, UpdatePosterior(0.01, 12.5), 1e-15)
	assert.InDelta(t, 0.01, UpdatePosterior(0.01, 1), 1e-18)
	assert.InDelta(t, 0.5, UpdatePosterior(0.01, 99), 1e-12)
}
