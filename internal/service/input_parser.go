package service

import (
	"fmt"
	"strings"

	"github.com/neurodx-mcp-server/internal/domain"
)

// FindingInput is a finding as received from an API, MCP or CLI caller.
// Only ID is required when it names a catalog entry.
type FindingInput struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	Type       string `json:"type,omitempty"`
	Laterality string `json:"laterality,omitempty"`
	Location   string `json:"location,omitempty"`
}

// InputParserService validates finding inputs and resolves bare ids against
// the finding catalog. Surrounding whitespace is trimmed from ids; otherwise
// they are matched exactly and no prefix is added or removed.
type InputParserService struct {
	catalog domain.FindingCatalog
}

// NewInputParserService creates a new input parser service
func NewInputParserService(catalog domain.FindingCatalog) *InputParserService {
	return &InputParserService{catalog: catalog}
}

// ParseFindings converts inputs into findings in the same order. The first
// invalid input aborts parsing with a ValidationError naming its index.
func (ips *InputParserService) ParseFindings(inputs []FindingInput) ([]domain.Finding, error) {
	findings := make([]domain.Finding, 0, len(inputs))
	for i, in := range inputs {
		f, err := ips.ParseFinding(in)
		if err != nil {
			if vErr, ok := err.(*domain.ValidationError); ok {
				return nil, vErr.WithFieldPrefix(fmt.Sprintf("findings[%d]", i))
			}
			return nil, fmt.Errorf("parsing finding %d: %w", i, err)
		}
		findings = append(findings, f)
	}
	return findings, nil
}

// ParseFinding converts a single input. A catalog entry supplies any field the
// caller left empty; explicit fields override it.
func (ips *InputParserService) ParseFinding(in FindingInput) (domain.Finding, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return domain.Finding{}, domain.NewValidationError("id", "finding id is required", in.ID)
	}

	f, known := ips.catalog.Get(id)
	if !known {
		f = domain.Finding{ID: id, Name: id}
	}

	if in.Type != "" {
		t, err := domain.ParseFindingType(in.Type)
		if err != nil {
			return domain.Finding{}, domain.NewValidationError("type", err.Error(), in.Type)
		}
		f.Type = t
	} else if !known {
		return domain.Finding{}, domain.NewValidationError("type", "finding type is required for findings outside the catalog", in.Type)
	}

	if in.Laterality != "" {
		l, err := domain.ParseLaterality(in.Laterality)
		if err != nil {
			return domain.Finding{}, domain.NewValidationError("laterality", err.Error(), in.Laterality)
		}
		f.Laterality = l
	}

	if in.Name != "" {
		f.Name = in.Name
	}
	if in.Location != "" {
		f.Location = in.Location
	}

	return f, nil
}

// ParseFindingIDs is a convenience for callers that only have ids, such as
// the command line. Unknown ids are rejected since they carry no type.
func (ips *InputParserService) ParseFindingIDs(ids []string) ([]domain.Finding, error) {
	inputs := make([]FindingInput, len(ids))
	for i, id := range ids {
		inputs[i] = FindingInput{ID: id}
	}
	return ips.ParseFindings(inputs)
}
