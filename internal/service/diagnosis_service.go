package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/neurodx-mcp-server/internal/cache"
	"github.com/neurodx-mcp-server/internal/domain"
	"github.com/neurodx-mcp-server/internal/knowledge"
)

// DiagnosisReport is the outcome of DiagnosisService.Diagnose.
type DiagnosisReport struct {
	Result          *domain.DiagnosisResult `json:"result"`
	ConfidenceLevel domain.ConfidenceLevel  `json:"confidence_level"`
	Findings        []domain.Finding        `json:"findings"`
	Signature       string                  `json:"signature"`
	CacheHit        bool                    `json:"cache_hit"`
	ProcessingTime  time.Duration           `json:"processing_time"`
}

// DiagnosisService validates caller input, consults the result cache and runs
// the diagnosis engine.
type DiagnosisService struct {
	logger      *logrus.Logger
	knowledge   *knowledge.Knowledge
	inputParser *InputParserService
	engine      *DiagnosisEngine
	cache       domain.ResultCache
}

// NewDiagnosisService creates a new diagnosis service. A nil resultCache
// disables caching.
func NewDiagnosisService(
	logger *logrus.Logger,
	k *knowledge.Knowledge,
	engine *DiagnosisEngine,
	resultCache domain.ResultCache,
) *DiagnosisService {
	if resultCache == nil {
		resultCache = cache.NoopCache{}
	}
	return &DiagnosisService{
		logger:      logger,
		knowledge:   k,
		inputParser: NewInputParserService(k.Catalog),
		engine:      engine,
		cache:       resultCache,
	}
}

// AuditKnowledge logs evidence ids that no catalog finding can produce.
func (s *DiagnosisService) AuditKnowledge() {
	unmatched := s.knowledge.Base.UnmatchedEvidence(s.knowledge.Catalog)
	ids := make([]string, 0, len(unmatched))
	for id := range unmatched {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		s.logger.WithFields(logrus.Fields{
			"disease_id":  id,
			"finding_ids": unmatched[id],
		}).Debug("Disease evidence references findings outside the catalog")
	}
	s.logger.WithFields(logrus.Fields{
		"diseases":           s.knowledge.Base.Len(),
		"findings":           s.knowledge.Catalog.Len(),
		"unmatched_diseases": len(unmatched),
	}).Info("Knowledge base loaded")
}

// Diagnose parses inputs and returns the ranked differential.
func (s *DiagnosisService) Diagnose(ctx context.Context, inputs []FindingInput) (*DiagnosisReport, error) {
	findings, err := s.inputParser.ParseFindings(inputs)
	if err != nil {
		return nil, fmt.Errorf("invalid findings: %w", err)
	}
	return s.DiagnoseFindings(ctx, findings), nil
}

// DiagnoseFindings runs the engine on already validated findings.
func (s *DiagnosisService) DiagnoseFindings(ctx context.Context, findings []domain.Finding) *DiagnosisReport {
	startTime := time.Now()
	signature := Signature(findings)
	key := s.cacheKey(signature)

	result, hit := s.cache.Get(ctx, key)
	if !hit {
		result = s.engine.ComputeDiagnosis(findings)
		s.cache.Set(ctx, key, result)
	}

	report := &DiagnosisReport{
		Result:          result,
		ConfidenceLevel: result.ConfidenceLevel(),
		Findings:        findings,
		Signature:       signature,
		CacheHit:        hit,
		ProcessingTime:  time.Since(startTime),
	}

	fields := logrus.Fields{
		"finding_count":   len(findings),
		"result_count":    len(result.Diseases),
		"confidence":      result.Confidence,
		"cache_hit":       hit,
		"processing_time": report.ProcessingTime,
	}
	if top, ok := result.Top(); ok {
		fields["top_disease"] = top.ID
	}
	s.logger.WithFields(fields).Info("Diagnosis completed")

	return report
}

// CacheStats reports the result cache counters when the cache keeps them.
func (s *DiagnosisService) CacheStats() (cache.Stats, bool) {
	reporter, ok := s.cache.(interface{ Stats() cache.Stats })
	if !ok {
		return cache.Stats{}, false
	}
	return reporter.Stats(), true
}

// cacheKey scopes signature to the loaded knowledge base, so a shared cache
// never serves results computed from other likelihood ratios.
func (s *DiagnosisService) cacheKey(signature string) string {
	return s.knowledge.Digest + ":" + signature
}

// ParseFindingIDs resolves catalog ids into findings.
func (s *DiagnosisService) ParseFindingIDs(ids []string) ([]domain.Finding, error) {
	return s.inputParser.ParseFindingIDs(ids)
}

// Findings lists catalog findings, optionally filtered by type and region.
func (s *DiagnosisService) Findings(findingType, region string) ([]domain.Finding, error) {
	var findings []domain.Finding
	switch {
	case region != "":
		findings = s.knowledge.Catalog.ByRegion(region)
	default:
		findings = s.knowledge.Catalog.All()
	}

	if findingType == "" {
		return findings, nil
	}

	t, err := domain.ParseFindingType(findingType)
	if err != nil {
		return nil, domain.NewValidationError("type", err.Error(), findingType)
	}
	out := []domain.Finding{}
	for _, f := range findings {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out, nil
}

// Finding returns the catalog finding with the given id.
func (s *DiagnosisService) Finding(id string) (domain.Finding, error) {
	f, ok := s.knowledge.Catalog.Get(id)
	if !ok {
		return domain.Finding{}, fmt.Errorf("finding %q: %w", id, domain.ErrNotFound)
	}
	return f, nil
}

// Diseases lists the knowledge base in catalog order.
func (s *DiagnosisService) Diseases() []domain.Disease {
	return s.knowledge.Base.Diseases()
}

// Disease returns the disease with the given id.
func (s *DiagnosisService) Disease(id string) (domain.Disease, error) {
	d, ok := s.knowledge.Base.Disease(id)
	if !ok {
		return domain.Disease{}, fmt.Errorf("disease %q: %w", id, domain.ErrNotFound)
	}
	return d, nil
}

// Signature identifies an ordered finding list by the fields the engine
// reads. Order is part of the signature since findings are applied in order.
func Signature(findings []domain.Finding) string {
	h := sha256.New()
	for _, f := range findings {
		fmt.Fprintf(h, "%s\x1f%s\x1f%s\x1e", f.ID, f.Type, f.Laterality)
	}
	return hex.EncodeToString(h.Sum(nil))
}
