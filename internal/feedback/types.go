// Package feedback stores clinician verdicts on suggested diagnoses.
// Only the finding-set signature and finding ids are kept, never the exam
// itself. Stored feedback is not read back by the diagnosis engine.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/neurodx-mcp-server/internal/database"
	"github.com/neurodx-mcp-server/internal/domain"
)

// Feedback represents a clinician's verdict on a suggested diagnosis.
type Feedback struct {
	ID                 int64     `json:"id,omitempty"`
	Signature          string    `json:"signature"`                      // Finding-set signature
	FindingIDs         []string  `json:"finding_ids"`                    // Ids the suggestion was based on
	SuggestedDiseaseID string    `json:"suggested_disease_id"`           // Engine's top disease
	ConfirmedDiseaseID string    `json:"confirmed_disease_id,omitempty"` // Clinician's diagnosis
	Agreed             bool      `json:"agreed"`
	Notes              string    `json:"notes,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Validate checks required fields.
func (f *Feedback) Validate() error {
	if f.Signature == "" {
		return domain.NewValidationError("signature", "signature is required", f.Signature)
	}
	if f.SuggestedDiseaseID == "" {
		return domain.NewValidationError("suggested_disease_id", "suggested disease is required", f.SuggestedDiseaseID)
	}
	if !f.Agreed && f.ConfirmedDiseaseID == "" {
		return domain.NewValidationError("confirmed_disease_id", "confirmed disease is required when disagreeing", f.ConfirmedDiseaseID)
	}
	return nil
}

// Store defines the interface for feedback storage operations.
type Store interface {
	// Save stores or updates feedback. Entries are keyed by
	// signature + suggested disease.
	Save(ctx context.Context, feedback *Feedback) error

	// Get returns the feedback for a signature and suggested disease, or nil.
	Get(ctx context.Context, signature string, suggestedDiseaseID string) (*Feedback, error)

	// List returns feedback entries newest first.
	List(ctx context.Context, limit, offset int) ([]*Feedback, error)

	// Count returns the total number of feedback entries.
	Count(ctx context.Context) (int64, error)

	// Delete removes a feedback entry by ID.
	Delete(ctx context.Context, id int64) error

	// ExportJSON exports all feedback to a JSON writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON imports feedback from a JSON reader, skipping entries
	// that already exist.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// FeedbackExport represents the JSON export format.
type FeedbackExport struct {
	Version    string      `json:"version"`
	ExportedAt time.Time   `json:"exported_at"`
	Count      int         `json:"count"`
	Feedback   []*Feedback `json:"feedback"`
}

const (
	exportVersion = "1.0"

	// maxExportLimit is the maximum number of entries to export at once.
	maxExportLimit = 1000000
)

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

const selectColumns = `id, signature, finding_ids, suggested_disease_id, confirmed_disease_id,
	agreed, notes, created_at, updated_at`

// scanFeedback scans a row into a Feedback struct.
func scanFeedback(s scanner) (*Feedback, error) {
	fb := &Feedback{}
	var findingIDs string

	err := s.Scan(
		&fb.ID, &fb.Signature, &findingIDs, &fb.SuggestedDiseaseID, &fb.ConfirmedDiseaseID,
		&fb.Agreed, &fb.Notes, &fb.CreatedAt, &fb.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if findingIDs != "" {
		if err := json.Unmarshal([]byte(findingIDs), &fb.FindingIDs); err != nil {
			return nil, fmt.Errorf("decoding finding ids: %w", err)
		}
	}
	return fb, nil
}

// insertTimes returns the timestamps for a new row. Timestamps the entry
// already carries, as imported entries do, are kept.
func insertTimes(fb *Feedback, now time.Time) (created, updated time.Time) {
	created, updated = now, now
	if !fb.CreatedAt.IsZero() {
		created = fb.CreatedAt.UTC()
	}
	if !fb.UpdatedAt.IsZero() {
		updated = fb.UpdatedAt.UTC()
	}
	return created, updated
}

func encodeFindingIDs(ids []string) string {
	if ids == nil {
		ids = []string{}
	}
	b, _ := json.Marshal(ids)
	return string(b)
}

// exportJSON writes every entry returned by list.
func exportJSON(ctx context.Context, s Store, writer io.Writer) error {
	all, err := s.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list feedback: %w", err)
	}

	export := &FeedbackExport{
		Version:    exportVersion,
		ExportedAt: time.Now(),
		Count:      len(all),
		Feedback:   all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// importJSON saves every entry not already present in s.
func importJSON(ctx context.Context, s Store, reader io.Reader) (imported int, skipped int, err error) {
	var export FeedbackExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, fb := range export.Feedback {
		existing, err := s.Get(ctx, fb.Signature, fb.SuggestedDiseaseID)
		if err != nil {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}

		if existing != nil {
			skipped++
			continue
		}

		if err := s.Save(ctx, fb); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}

// Open creates the store selected by config.Driver. The postgres driver
// applies pending migrations before opening the pool.
func Open(ctx context.Context, config domain.FeedbackConfig, logger *logrus.Logger) (Store, error) {
	switch config.Driver {
	case "", "sqlite":
		return NewSQLiteStore(config.SQLitePath)
	case "postgres":
		if config.PostgresURL == "" {
			return nil, fmt.Errorf("postgres url is required")
		}
		if err := database.Migrate(ctx, config.PostgresURL, config.Migrations, logger); err != nil {
			return nil, err
		}
		db, err := database.NewConnection(ctx, database.DefaultConfig(config.PostgresURL), logger)
		if err != nil {
			return nil, err
		}
		store, err := NewPostgresStore(db.DB)
		if err != nil {
			db.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported feedback driver %q", config.Driver)
	}
}
