package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/neurodx-mcp-server/internal/domain"
)

// PromptDifferentialReview asks the model to critique a computed differential.
const PromptDifferentialReview = "differential_review"

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(&mcp.Prompt{
		Name:        PromptDifferentialReview,
		Description: "Review the ranked differential for a comma separated list of finding ids",
		Arguments: []*mcp.PromptArgument{
			{Name: "finding_ids", Description: "comma separated catalog finding ids", Required: true},
			{Name: "clinical_context", Description: "history or presentation notes"},
		},
	}, s.handleDifferentialReview)
}

func (s *Server) handleDifferentialReview(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return s.differentialReview(ctx, req.Params.Arguments)
}

func (s *Server) differentialReview(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
	ids := splitIDs(args["finding_ids"])
	if len(ids) == 0 {
		return nil, domain.NewValidationError("finding_ids", "at least one finding id is required", args["finding_ids"])
	}
	findings, err := s.diagnosis.ParseFindingIDs(ids)
	if err != nil {
		return nil, err
	}
	report := s.diagnosis.DiagnoseFindings(ctx, findings)

	return &mcp.GetPromptResult{
		Description: "Differential diagnosis review",
		Messages: []*mcp.PromptMessage{{
			Role:    "user",
			Content: &mcp.TextContent{Text: renderReview(findings, report.Result, args["clinical_context"])},
		}},
	}, nil
}

func renderReview(findings []domain.Finding, result *domain.DiagnosisResult, clinicalContext string) string {
	var b strings.Builder
	b.WriteString("Review this neurological differential diagnosis.\n\nFindings:\n")
	for _, f := range findings {
		fmt.Fprintf(&b, "- %s (%s", f.Name, f.Type)
		if f.Laterality != "" {
			fmt.Fprintf(&b, ", %s", f.Laterality)
		}
		b.WriteString(")\n")
	}
	if clinicalContext != "" {
		fmt.Fprintf(&b, "\nClinical context: %s\n", clinicalContext)
	}

	b.WriteString("\nRanked differential:\n")
	if len(result.Diseases) == 0 {
		b.WriteString("- no disease passed the probability threshold\n")
	}
	for i, d := range result.Diseases {
		fmt.Fprintf(&b, "%d. %s (%s) %.1f%%\n", i+1, d.Name, d.ICD10, d.PosteriorProbability*100)
	}
	if len(result.LesionSite) > 0 {
		fmt.Fprintf(&b, "\nLikely lesion sites: %s\n", strings.Join(result.LesionSite, ", "))
	}
	if len(result.RedFlags) > 0 {
		fmt.Fprintf(&b, "Red flags: %s\n", strings.Join(result.RedFlags, ", "))
	}
	fmt.Fprintf(&b, "Confidence: %.2f (%s)\n", result.Confidence, result.ConfidenceLevel())

	b.WriteString("\nIdentify findings that argue against the leading diagnosis, missing tests that would separate the top candidates, and any red flag that needs urgent work-up.")
	return b.String()
}

func splitIDs(raw string) []string {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
