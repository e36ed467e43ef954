package service

import (
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/neurodx-mcp-server/internal/domain"
)

const (
	// PriorProbability is the prior assigned to every disease before any
	// evidence is applied. It is also the inclusion threshold of the ranking.
	PriorProbability = 0.01

	// TopDiseaseCount is how many leading diseases feed the lesion-site and
	// red-flag aggregates.
	TopDiseaseCount = 3

	clearLeaderGap        = 0.3
	clearLeaderMultiplier = 1.2
	patternMultiplier     = 1.1

	defaultParallelThreshold = 32
)

// PatternBilateral is emitted when motor findings are present on both sides.
const PatternBilateral = "bilateral"

// DiagnosisEngine ranks diseases by sequential Bayesian updating of a fixed
// prior with the positive likelihood ratio of every matching observed finding.
//
// The engine owns a private snapshot of the disease templates and never
// mutates it, so one engine may serve concurrent callers.
type DiagnosisEngine struct {
	logger            *logrus.Logger
	templates         []domain.Disease
	parallelism       int
	parallelThreshold int
}

// EngineOption configures a DiagnosisEngine.
type EngineOption func(*DiagnosisEngine)

// WithParallelism evaluates diseases on up to n goroutines once the knowledge
// base reaches the parallel threshold. n <= 1 keeps evaluation sequential.
func WithParallelism(n int) EngineOption {
	return func(e *DiagnosisEngine) {
		e.parallelism = n
	}
}

// WithParallelThreshold sets the minimum knowledge base size at which the
// parallel path is used. n <= 0 keeps the default.
func WithParallelThreshold(n int) EngineOption {
	return func(e *DiagnosisEngine) {
		if n > 0 {
			e.parallelThreshold = n
		}
	}
}

// NewDiagnosisEngine creates an engine over a snapshot of kb.
func NewDiagnosisEngine(logger *logrus.Logger, kb domain.KnowledgeBase, opts ...EngineOption) *DiagnosisEngine {
	e := &DiagnosisEngine{
		logger:            logger,
		templates:         kb.Diseases(),
		parallelism:       1,
		parallelThreshold: defaultParallelThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ComputeDiagnosis returns the ranked differential for the observed findings.
// Findings are applied in order; a repeated id is applied once per occurrence.
func (e *DiagnosisEngine) ComputeDiagnosis(findings []domain.Finding) *domain.DiagnosisResult {
	posteriors := e.posteriors(findings)

	ranked := make([]domain.RankedDisease, 0)
	for i, p := range posteriors {
		if p > PriorProbability {
			ranked = append(ranked, domain.RankedDisease{
				Disease:              e.templates[i].Clone(),
				PosteriorProbability: p,
			})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].PosteriorProbability > ranked[j].PosteriorProbability
	})

	top := ranked
	if len(top) > TopDiseaseCount {
		top = top[:TopDiseaseCount]
	}

	result := &domain.DiagnosisResult{
		Diseases:   ranked,
		LesionSite: uniqueUnion(top, func(d domain.RankedDisease) []string { return d.LesionSite }),
		RedFlags:   uniqueUnion(top, func(d domain.RankedDisease) []string { return d.RedFlags }),
		Patterns:   e.DetectPatterns(findings),
	}

	if len(ranked) > 0 {
		result.Confidence = confidence(ranked, len(result.Patterns) > 0)
	}

	e.logger.WithFields(logrus.Fields{
		"finding_count": len(findings),
		"result_count":  len(ranked),
		"confidence":    result.Confidence,
		"patterns":      result.Patterns,
	}).Debug("Computed diagnosis")

	return result
}

// DetectPatterns returns ["bilateral"] when there is at least one
// left-lateralized and one right-lateralized finding and each side has a motor
// finding. Otherwise it returns an empty slice.
func (e *DiagnosisEngine) DetectPatterns(findings []domain.Finding) []string {
	return DetectPatterns(findings)
}

// DetectPatterns is the engine-independent form of DiagnosisEngine.DetectPatterns.
func DetectPatterns(findings []domain.Finding) []string {
	var leftMotor, rightMotor bool
	for _, f := range findings {
		if f.Type != domain.MOTOR {
			continue
		}
		switch f.Laterality {
		case domain.LEFT:
			leftMotor = true
		case domain.RIGHT:
			rightMotor = true
		}
	}

	patterns := []string{}
	if leftMotor && rightMotor {
		patterns = append(patterns, PatternBilateral)
	}
	return patterns
}

// UpdatePosterior applies one positive likelihood ratio to prior p.
func UpdatePosterior(p, lr float64) float64 {
	return (p * lr) / (p*lr + (1 - p))
}

func (e *DiagnosisEngine) posteriors(findings []domain.Finding) []float64 {
	out := make([]float64, len(e.templates))

	if e.parallelism <= 1 || len(e.templates) < e.parallelThreshold {
		for i := range e.templates {
			out[i] = posteriorFor(&e.templates[i], findings)
		}
		return out
	}

	var g errgroup.Group
	g.SetLimit(e.parallelism)
	for i := range e.templates {
		g.Go(func() error {
			out[i] = posteriorFor(&e.templates[i], findings)
			return nil
		})
	}
	g.Wait()

	return out
}

func posteriorFor(d *domain.Disease, findings []domain.Finding) float64 {
	p := PriorProbability
	for _, f := range findings {
		if lr, ok := d.EvidenceFor(f.ID); ok {
			p = UpdatePosterior(p, lr.Positive)
		}
	}
	return p
}

func confidence(ranked []domain.RankedDisease, patternDetected bool) float64 {
	c := ranked[0].PosteriorProbability
	if len(ranked) > 1 && ranked[0].PosteriorProbability-ranked[1].PosteriorProbability > clearLeaderGap {
		c *= clearLeaderMultiplier
	}
	if patternDetected {
		c *= patternMultiplier
	}
	if c > 1 {
		c = 1
	}
	return c
}

func uniqueUnion(diseases []domain.RankedDisease, values func(domain.RankedDisease) []string) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, d := range diseases {
		for _, v := range values(d) {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}
