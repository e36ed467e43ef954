package knowledge

import (
	"github.com/neurodx-mcp-server/internal/domain"
)

// Base is the immutable disease catalog. It hands out deep copies so that no
// caller can alter the templates shared by concurrent diagnoses.
type Base struct {
	diseases []domain.Disease
	byID     map[string]int
}

func newBase(diseases []domain.Disease) *Base {
	b := &Base{
		diseases: diseases,
		byID:     make(map[string]int, len(diseases)),
	}
	for i, d := range diseases {
		b.byID[d.ID] = i
	}
	return b
}

// Diseases returns a copy of every disease in catalog order.
func (b *Base) Diseases() []domain.Disease {
	out := make([]domain.Disease, len(b.diseases))
	for i, d := range b.diseases {
		out[i] = d.Clone()
	}
	return out
}

// Disease returns a copy of the disease with the given id.
func (b *Base) Disease(id string) (domain.Disease, bool) {
	i, ok := b.byID[id]
	if !ok {
		return domain.Disease{}, false
	}
	return b.diseases[i].Clone(), true
}

// Len returns the number of diseases.
func (b *Base) Len() int {
	return len(b.diseases)
}

// UnmatchedEvidence reports, per disease id, the evidence finding ids that
// have no entry in catalog. Such evidence can only fire for callers that send
// ids outside the catalog.
func (b *Base) UnmatchedEvidence(catalog *FindingCatalog) map[string][]string {
	out := make(map[string][]string)
	for _, d := range b.diseases {
		for _, e := range d.Evidence {
			if _, ok := catalog.Get(e.FindingID); !ok {
				out[d.ID] = append(out[d.ID], e.FindingID)
			}
		}
	}
	return out
}
