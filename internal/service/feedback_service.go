package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/neurodx-mcp-server/internal/domain"
	"github.com/neurodx-mcp-server/internal/feedback"
)

// ErrFeedbackDisabled is returned when no feedback store is configured.
var ErrFeedbackDisabled = errors.New("feedback store disabled")

// Feedback listing bounds.
const (
	DefaultFeedbackLimit = 50
	MaxFeedbackLimit     = 500
)

// FeedbackInput is a clinician's verdict on a diagnosis computed from
// Findings.
type FeedbackInput struct {
	Findings           []FindingInput `json:"findings"`
	SuggestedDiseaseID string         `json:"suggested_disease_id"`
	ConfirmedDiseaseID string         `json:"confirmed_disease_id,omitempty"`
	Agreed             bool           `json:"agreed"`
	Notes              string         `json:"notes,omitempty"`
}

// FeedbackService validates and records clinician feedback. Stored entries
// are keyed by the same signature DiagnosisService reports.
type FeedbackService struct {
	logger    *logrus.Logger
	diagnosis *DiagnosisService
	store     feedback.Store
}

// NewFeedbackService creates a feedback service. A nil store makes every
// operation return ErrFeedbackDisabled.
func NewFeedbackService(logger *logrus.Logger, diagnosis *DiagnosisService, store feedback.Store) *FeedbackService {
	return &FeedbackService{
		logger:    logger,
		diagnosis: diagnosis,
		store:     store,
	}
}

// Enabled reports whether a store is configured.
func (s *FeedbackService) Enabled() bool {
	return s.store != nil
}

// Submit validates in and upserts it.
func (s *FeedbackService) Submit(ctx context.Context, in FeedbackInput) (*feedback.Feedback, error) {
	if s.store == nil {
		return nil, ErrFeedbackDisabled
	}

	findings, err := s.diagnosis.inputParser.ParseFindings(in.Findings)
	if err != nil {
		return nil, fmt.Errorf("invalid findings: %w", err)
	}
	if len(findings) == 0 {
		return nil, domain.NewValidationError("findings", "at least one finding is required", nil)
	}

	if _, err := s.diagnosis.Disease(in.SuggestedDiseaseID); err != nil {
		return nil, domain.NewValidationError("suggested_disease_id", err.Error(), in.SuggestedDiseaseID)
	}
	if in.ConfirmedDiseaseID != "" {
		if _, err := s.diagnosis.Disease(in.ConfirmedDiseaseID); err != nil {
			return nil, domain.NewValidationError("confirmed_disease_id", err.Error(), in.ConfirmedDiseaseID)
		}
	}

	ids := make([]string, len(findings))
	for i, f := range findings {
		ids[i] = f.ID
	}

	fb := &feedback.Feedback{
		Signature:          Signature(findings),
		FindingIDs:         ids,
		SuggestedDiseaseID: in.SuggestedDiseaseID,
		ConfirmedDiseaseID: in.ConfirmedDiseaseID,
		Agreed:             in.Agreed,
		Notes:              in.Notes,
	}
	if err := s.store.Save(ctx, fb); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"feedback_id":       fb.ID,
		"suggested_disease": fb.SuggestedDiseaseID,
		"agreed":            fb.Agreed,
	}).Info("Feedback recorded")

	return fb, nil
}

// List returns stored feedback newest first. limit is clamped to
// [1, MaxFeedbackLimit], defaulting to DefaultFeedbackLimit.
func (s *FeedbackService) List(ctx context.Context, limit, offset int) ([]*feedback.Feedback, int64, error) {
	if s.store == nil {
		return nil, 0, ErrFeedbackDisabled
	}
	if limit <= 0 {
		limit = DefaultFeedbackLimit
	}
	if limit > MaxFeedbackLimit {
		limit = MaxFeedbackLimit
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.store.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Export writes every stored entry as a FeedbackExport document.
func (s *FeedbackService) Export(ctx context.Context, w io.Writer) error {
	if s.store == nil {
		return ErrFeedbackDisabled
	}
	return s.store.ExportJSON(ctx, w)
}

// Import loads a FeedbackExport document, skipping entries already stored.
func (s *FeedbackService) Import(ctx context.Context, r io.Reader) (imported, skipped int, err error) {
	if s.store == nil {
		return 0, 0, ErrFeedbackDisabled
	}
	imported, skipped, err = s.store.ImportJSON(ctx, r)
	if err != nil {
		return imported, skipped, err
	}
	s.logger.WithFields(logrus.Fields{
		"imported": imported,
		"skipped":  skipped,
	}).Info("Feedback imported")
	return imported, skipped, nil
}
