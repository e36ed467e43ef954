package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/neurodx-mcp-server/internal/config"
	"github.com/neurodx-mcp-server/internal/domain"
	"github.com/neurodx-mcp-server/internal/feedback"
	"github.com/neurodx-mcp-server/internal/logging"
	"github.com/neurodx-mcp-server/internal/service"
)

// Tool names
const (
	ToolComputeDiagnosis = "compute_diagnosis"
	ToolListFindings     = "list_findings"
	ToolGetDisease       = "get_disease"
	ToolSubmitFeedback   = "submit_feedback"
	ToolListFeedback     = "list_feedback"
	ToolExportFeedback   = "export_feedback"
)

// ComputeDiagnosisParams defines parameters for compute_diagnosis tool
type ComputeDiagnosisParams struct {
	Findings []service.FindingInput `json:"findings" jsonschema:"examination findings in the order they were observed"`
}

// ListFindingsParams defines parameters for list_findings tool
type ListFindingsParams struct {
	Type   string `json:"type,omitempty" jsonschema:"restrict to one finding type such as motor or reflex"`
	Region string `json:"region,omitempty" jsonschema:"restrict to one anatomical region"`
}

// GetDiseaseParams defines parameters for get_disease tool
type GetDiseaseParams struct {
	DiseaseID string `json:"disease_id" jsonschema:"knowledge base disease id"`
}

// ListFeedbackParams defines parameters for list_feedback tool
type ListFeedbackParams struct {
	Limit  int `json:"limit,omitempty" jsonschema:"maximum entries to return"`
	Offset int `json:"offset,omitempty" jsonschema:"entries to skip"`
}

// ExportFeedbackParams defines parameters for export_feedback tool
type ExportFeedbackParams struct {
	Filename string `json:"filename,omitempty" jsonschema:"export file name inside the data directory"`
}

// FindingsResult is returned by list_findings.
type FindingsResult struct {
	Findings []domain.Finding `json:"findings"`
	Count    int              `json:"count"`
}

// FeedbackListResult is returned by list_feedback.
type FeedbackListResult struct {
	Feedback []*feedback.Feedback `json:"feedback"`
	Count    int                  `json:"count"`
	Total    int64                `json:"total"`
}

// ExportResult is returned by export_feedback.
type ExportResult struct {
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolComputeDiagnosis,
		Description: "Rank neurological diseases by posterior probability given examination findings",
	}, s.handleComputeDiagnosis)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolListFindings,
		Description: "List catalog findings, optionally filtered by type and region",
	}, s.handleListFindings)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolGetDisease,
		Description: "Show a disease with its lesion sites, red flags and likelihood ratios",
	}, s.handleGetDisease)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolSubmitFeedback,
		Description: "Record whether a clinician agreed with a suggested diagnosis",
	}, s.handleSubmitFeedback)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolListFeedback,
		Description: "List recorded clinician feedback, newest first",
	}, s.handleListFeedback)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolExportFeedback,
		Description: "Write all recorded feedback to a JSON file in the data directory",
	}, s.handleExportFeedback)
}

func (s *Server) handleComputeDiagnosis(ctx context.Context, req *mcp.CallToolRequest, params ComputeDiagnosisParams) (*mcp.CallToolResult, any, error) {
	ctx, op := logging.StartOperation(ctx, s.logger, logging.OperationToolCall, ToolComputeDiagnosis,
		logrus.Fields{"finding_count": len(params.Findings)})

	report, err := s.diagnosis.Diagnose(ctx, params.Findings)
	if err != nil {
		return s.finish(op, nil, err)
	}
	return s.finish(op, report, nil)
}

func (s *Server) handleListFindings(ctx context.Context, req *mcp.CallToolRequest, params ListFindingsParams) (*mcp.CallToolResult, any, error) {
	_, op := logging.StartOperation(ctx, s.logger, logging.OperationToolCall, ToolListFindings,
		logrus.Fields{"type": params.Type, "region": params.Region})

	findings, err := s.diagnosis.Findings(params.Type, params.Region)
	if err != nil {
		return s.finish(op, nil, err)
	}
	return s.finish(op, FindingsResult{Findings: findings, Count: len(findings)}, nil)
}

func (s *Server) handleGetDisease(ctx context.Context, req *mcp.CallToolRequest, params GetDiseaseParams) (*mcp.CallToolResult, any, error) {
	_, op := logging.StartOperation(ctx, s.logger, logging.OperationToolCall, ToolGetDisease,
		logrus.Fields{"disease_id": params.DiseaseID})

	if params.DiseaseID == "" {
		return s.finish(op, nil, domain.NewValidationError("disease_id", "disease_id is required", ""))
	}
	disease, err := s.diagnosis.Disease(params.DiseaseID)
	if err != nil {
		return s.finish(op, nil, err)
	}
	return s.finish(op, disease, nil)
}

func (s *Server) handleSubmitFeedback(ctx context.Context, req *mcp.CallToolRequest, params service.FeedbackInput) (*mcp.CallToolResult, any, error) {
	ctx, op := logging.StartOperation(ctx, s.logger, logging.OperationToolCall, ToolSubmitFeedback,
		logrus.Fields{"suggested_disease_id": params.SuggestedDiseaseID})

	fb, err := s.feedback.Submit(ctx, params)
	if err != nil {
		return s.finish(op, nil, err)
	}
	return s.finish(op, fb, nil)
}

func (s *Server) handleListFeedback(ctx context.Context, req *mcp.CallToolRequest, params ListFeedbackParams) (*mcp.CallToolResult, any, error) {
	ctx, op := logging.StartOperation(ctx, s.logger, logging.OperationToolCall, ToolListFeedback,
		logrus.Fields{"limit": params.Limit, "offset": params.Offset})

	entries, total, err := s.feedback.List(ctx, params.Limit, params.Offset)
	if err != nil {
		return s.finish(op, nil, err)
	}
	return s.finish(op, FeedbackListResult{Feedback: entries, Count: len(entries), Total: total}, nil)
}

func (s *Server) handleExportFeedback(ctx context.Context, req *mcp.CallToolRequest, params ExportFeedbackParams) (*mcp.CallToolResult, any, error) {
	ctx, op := logging.StartOperation(ctx, s.logger, logging.OperationToolCall, ToolExportFeedback, nil)

	result, err := s.exportFeedback(ctx, params.Filename)
	if err != nil {
		return s.finish(op, nil, err)
	}
	return s.finish(op, result, nil)
}

func (s *Server) exportFeedback(ctx context.Context, filename string) (*ExportResult, error) {
	if !s.feedback.Enabled() {
		return nil, service.ErrFeedbackDisabled
	}

	dataDir := config.DataDir(s.config.DataDir)
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}
	if err := dataDir.Ensure(); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}

	if filename == "" {
		filename = fmt.Sprintf("feedback-%s.json", time.Now().UTC().Format("20060102-150405"))
	}
	path := filepath.Join(dataDir.ExportDir(), filepath.Base(filename))

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating export file: %w", err)
	}
	if err := s.feedback.Export(ctx, f); err != nil {
		f.Close()
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return &ExportResult{Path: path, Bytes: info.Size()}, nil
}

// finish ends op and renders v, or err as a tool error result. Tool failures
// are reported in the result so the client can show them to the model.
func (s *Server) finish(op *logging.Operation, v any, err error) (*mcp.CallToolResult, any, error) {
	if err != nil {
		op.End(err, nil)
		return s.createErrorResult(op.CorrelationID, err), nil, nil
	}
	op.End(nil, nil)

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return s.createErrorResult(op.CorrelationID, err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, v, nil
}

// createErrorResult renders err as an MCPError document.
func (s *Server) createErrorResult(requestID string, err error) *mcp.CallToolResult {
	code, details := errorCode(err)
	mcpErr := domain.NewMCPError(code, err.Error(), details, requestID)
	data, _ := json.Marshal(mcpErr)
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		IsError: true,
	}
}

func errorCode(err error) (code, details string) {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		return domain.ErrValidation, vErr.Field
	case errors.Is(err, domain.ErrNotFound):
		return domain.ErrNotFoundCode, ""
	case errors.Is(err, service.ErrFeedbackDisabled):
		return domain.ErrUnavailable, ""
	default:
		return domain.ErrInternalServer, ""
	}
}
