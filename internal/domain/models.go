package domain

import (
	"fmt"
	"slices"
)

// Finding is a single examination observation. ID is the only key used when
// matching against disease evidence tables.
type Finding struct {
	ID         string      `json:"id" yaml:"id"`
	Name       string      `json:"name" yaml:"name"`
	Type       FindingType `json:"type" yaml:"type"`
	Laterality Laterality  `json:"laterality,omitempty" yaml:"laterality,omitempty"`
	Location   string      `json:"location,omitempty" yaml:"location,omitempty"`
}

// Validate checks the structural fields of a finding.
func (f Finding) Validate() error {
	if f.ID == "" {
		return NewValidationError("id", "finding id is required", f.ID)
	}
	if !f.Type.IsValid() {
		return NewValidationError("type", fmt.Sprintf("unknown finding type %q", f.Type), f.Type)
	}
	if !f.Laterality.IsValid() {
		return NewValidationError("laterality", fmt.Sprintf("unknown laterality %q", f.Laterality), f.Laterality)
	}
	return nil
}

// LikelihoodRatio holds the diagnostic weight of one finding for one disease.
// Negative is carried with the data but the engine only applies Positive.
type LikelihoodRatio struct {
	Positive float64 `json:"lr_positive" yaml:"lr_positive"`
	Negative float64 `json:"lr_negative" yaml:"lr_negative"`
}

// Evidence binds a finding id to its likelihood ratio within a disease.
type Evidence struct {
	FindingID       string `json:"finding_id" yaml:"id"`
	LikelihoodRatio `yaml:",inline"`
}

// Disease is a catalog entry. Instances owned by the knowledge base are never
// mutated; posteriors live on RankedDisease.
type Disease struct {
	ID         string     `json:"id" yaml:"id"`
	Name       string     `json:"name" yaml:"name"`
	ICD10      string     `json:"icd10" yaml:"icd10"`
	LesionSite []string   `json:"lesion_site" yaml:"lesion_site"`
	RedFlags   []string   `json:"red_flags" yaml:"red_flags"`
	Evidence   []Evidence `json:"findings" yaml:"findings"`
}

// EvidenceFor returns the likelihood ratio of the first evidence entry whose
// id equals findingID.
func (d *Disease) EvidenceFor(findingID string) (LikelihoodRatio, bool) {
	for _, e := range d.Evidence {
		if e.FindingID == findingID {
			return e.LikelihoodRatio, true
		}
	}
	return LikelihoodRatio{}, false
}

// Clone returns a deep copy of d.
func (d Disease) Clone() Disease {
	out := d
	out.LesionSite = slices.Clone(d.LesionSite)
	out.RedFlags = slices.Clone(d.RedFlags)
	out.Evidence = slices.Clone(d.Evidence)
	return out
}

// RankedDisease is the per-computation working record of a disease and its
// posterior probability.
type RankedDisease struct {
	Disease
	PosteriorProbability float64 `json:"posterior_probability"`
}

// DiagnosisResult is the output of one diagnosis computation.
type DiagnosisResult struct {
	Diseases   []RankedDisease `json:"diseases"`
	LesionSite []string        `json:"lesion_site"`
	RedFlags   []string        `json:"red_flags"`
	Patterns   []string        `json:"patterns"`
	Confidence float64         `json:"confidence"`
}

// ConfidenceLevel bands the numeric confidence of the result.
func (r *DiagnosisResult) ConfidenceLevel() ConfidenceLevel {
	return ConfidenceLevelFor(r.Confidence)
}

// Top returns the highest ranked disease, if any passed the filter.
func (r *DiagnosisResult) Top() (RankedDisease, bool) {
	if len(r.Diseases) == 0 {
		return RankedDisease{}, false
	}
	return r.Diseases[0], true
}

// Clone returns a deep copy of r.
func (r *DiagnosisResult) Clone() *DiagnosisResult {
	if r == nil {
		return nil
	}
	out := &DiagnosisResult{
		Diseases:   make([]RankedDisease, len(r.Diseases)),
		LesionSite: append([]string{}, r.LesionSite...),
		RedFlags:   append([]string{}, r.RedFlags...),
		Patterns:   append([]string{}, r.Patterns...),
		Confidence: r.Confidence,
	}
	for i, d := range r.Diseases {
		out.Diseases[i] = RankedDisease{Disease: d.Disease.Clone(), PosteriorProbability: d.PosteriorProbability}
	}
	return out
}
