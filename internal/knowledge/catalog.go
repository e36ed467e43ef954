package knowledge

import (
	"github.com/neurodx-mcp-server/internal/domain"
)

// regionTypes maps an anatomical region to the finding types examined for it.
var regionTypes = map[string][]domain.FindingType{
	"brain":                  {domain.COGNITIVE, domain.CRANIAL_NERVE},
	"spinal_cord":            {domain.MOTOR, domain.SENSORY, domain.REFLEX},
	"peripheral_nerve":       {domain.MOTOR, domain.SENSORY, domain.REFLEX},
	"neuromuscular_junction": {domain.MOTOR, domain.SPECIAL_TEST},
	"muscle":                 {domain.MOTOR, domain.SPECIAL_TEST},
}

// Regions returns the anatomical regions understood by ByRegion.
func Regions() []string {
	return []string{"brain", "spinal_cord", "peripheral_nerve", "neuromuscular_junction", "muscle"}
}

// FindingCatalog is the immutable set of findings the examination flow can
// produce. Findings are value types, so every accessor returns copies.
type FindingCatalog struct {
	findings []domain.Finding
	byID     map[string]int
}

func newFindingCatalog(findings []domain.Finding) *FindingCatalog {
	c := &FindingCatalog{
		findings: findings,
		byID:     make(map[string]int, len(findings)),
	}
	for i, f := range findings {
		c.byID[f.ID] = i
	}
	return c
}

// All returns every finding in catalog order.
func (c *FindingCatalog) All() []domain.Finding {
	return append([]domain.Finding(nil), c.findings...)
}

// Get looks a finding up by id.
func (c *FindingCatalog) Get(id string) (domain.Finding, bool) {
	i, ok := c.byID[id]
	if !ok {
		return domain.Finding{}, false
	}
	return c.findings[i], true
}

// Len returns the number of findings.
func (c *FindingCatalog) Len() int {
	return len(c.findings)
}

// ByType returns the findings of type t in catalog order.
func (c *FindingCatalog) ByType(t domain.FindingType) []domain.Finding {
	return c.filter(func(f domain.Finding) bool { return f.Type == t })
}

// ByRegion returns the findings whose type is examined for region. Unknown
// regions yield an empty slice.
func (c *FindingCatalog) ByRegion(region string) []domain.Finding {
	types, ok := regionTypes[region]
	if !ok {
		return []domain.Finding{}
	}
	return c.filter(func(f domain.Finding) bool {
		for _, t := range types {
			if f.Type == t {
				return true
			}
		}
		return false
	})
}

func (c *FindingCatalog) filter(keep func(domain.Finding) bool) []domain.Finding {
	out := []domain.Finding{}
	for _, f := range c.findings {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}
