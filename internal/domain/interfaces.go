package domain

import (
	"context"
)

// FindingCatalog is read-only access to the known examination findings.
type FindingCatalog interface {
	All() []Finding
	Get(id string) (Finding, bool)
	ByType(t FindingType) []Finding
	ByRegion(region string) []Finding
}

// KnowledgeBase is read-only access to the disease catalog. Implementations
// return copies; callers may mutate what they receive.
type KnowledgeBase interface {
	Diseases() []Disease
	Disease(id string) (Disease, bool)
	Len() int
}

// DiagnosisEngine turns observed findings into a ranked differential.
type DiagnosisEngine interface {
	ComputeDiagnosis(findings []Finding) *DiagnosisResult
	DetectPatterns(findings []Finding) []string
}

// ResultCache stores diagnosis results by finding-set signature.
type ResultCache interface {
	Get(ctx context.Context, key string) (*DiagnosisResult, bool)
	Set(ctx context.Context, key string, result *DiagnosisResult)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	Validate() error
	IsProduction() bool
}
