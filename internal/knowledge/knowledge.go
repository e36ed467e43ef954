// Package knowledge loads the finding catalog and the disease knowledge base.
//
// Both are defined as YAML documents embedded in the binary and decoded once.
// Loading validates structure only: evidence ids are not required to exist in
// the finding catalog, since observed findings are matched by id alone.
package knowledge

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/neurodx-mcp-server/internal/domain"
)

//go:embed data/findings.yaml
var findingsYAML []byte

//go:embed data/diseases.yaml
var diseasesYAML []byte

// Knowledge bundles the finding catalog with the disease knowledge base.
type Knowledge struct {
	Catalog *FindingCatalog
	Base    *Base

	// Digest identifies the source documents. Results computed from one
	// knowledge base are only valid for the same digest.
	Digest string
}

type findingsDocument struct {
	Findings []domain.Finding `yaml:"findings"`
}

type diseasesDocument struct {
	Diseases []domain.Disease `yaml:"diseases"`
}

var (
	defaultOnce      sync.Once
	defaultKnowledge *Knowledge
	defaultErr       error
)

// Default returns the embedded knowledge, decoding it on first use.
func Default() (*Knowledge, error) {
	defaultOnce.Do(func() {
		defaultKnowledge, defaultErr = Load(findingsYAML, diseasesYAML)
	})
	return defaultKnowledge, defaultErr
}

// MustDefault is like Default but panics if the embedded data is invalid.
func MustDefault() *Knowledge {
	k, err := Default()
	if err != nil {
		panic(err)
	}
	return k
}

// Load decodes and validates a finding catalog and a disease knowledge base.
func Load(findingsData, diseasesData []byte) (*Knowledge, error) {
	var fd findingsDocument
	if err := yaml.Unmarshal(findingsData, &fd); err != nil {
		return nil, fmt.Errorf("decoding finding catalog: %w", err)
	}
	if err := validateFindings(fd.Findings); err != nil {
		return nil, err
	}

	var dd diseasesDocument
	if err := yaml.Unmarshal(diseasesData, &dd); err != nil {
		return nil, fmt.Errorf("decoding knowledge base: %w", err)
	}
	if err := validateDiseases(dd.Diseases); err != nil {
		return nil, err
	}

	return &Knowledge{
		Catalog: newFindingCatalog(fd.Findings),
		Base:    newBase(dd.Diseases),
		Digest:  digest(findingsData, diseasesData),
	}, nil
}

// digest hashes both documents with a separator so that bytes cannot shift
// from one document to the other without changing the result.
func digest(findingsData, diseasesData []byte) string {
	h := sha256.New()
	h.Write(findingsData)
	h.Write([]byte{0})
	h.Write(diseasesData)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func validateFindings(findings []domain.Finding) error {
	seen := make(map[string]bool, len(findings))
	for i, f := range findings {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("finding catalog entry %d: %w", i, err)
		}
		if seen[f.ID] {
			return fmt.Errorf("finding catalog: duplicate id %q", f.ID)
		}
		seen[f.ID] = true
	}
	return nil
}

func validateDiseases(diseases []domain.Disease) error {
	seen := make(map[string]bool, len(diseases))
	for i, d := range diseases {
		if d.ID == "" {
			return fmt.Errorf("knowledge base entry %d: %w", i, domain.NewValidationError("id", "disease id is required", d.ID))
		}
		if seen[d.ID] {
			return fmt.Errorf("knowledge base: duplicate disease id %q", d.ID)
		}
		seen[d.ID] = true

		for j, e := range d.Evidence {
			if e.FindingID == "" {
				return fmt.Errorf("disease %s evidence %d: %w", d.ID, j,
					domain.NewValidationError("id", "evidence finding id is required", e.FindingID))
			}
			if e.Positive <= 0 || e.Negative <= 0 {
				return fmt.Errorf("disease %s evidence %s: %w", d.ID, e.FindingID, domain.ErrInvalidLikelihoodRate)
			}
		}
	}
	return nil
}
