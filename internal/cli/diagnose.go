package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/neurodx-mcp-server/internal/app"
	"github.com/neurodx-mcp-server/internal/logging"
	"github.com/neurodx-mcp-server/internal/service"
)

func newDiagnoseCmd(r *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose <finding-id>...",
		Short: "Rank diseases for a list of catalog finding ids",
		Example: `  neurodx diagnose motor_arm_left motor_arm_right
  neurodx diagnose fatigable_weakness --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := r.load(cmd, app.WithoutFeedback())
			if err != nil {
				return err
			}

			ctx, op := logging.StartOperation(cmd.Context(), a.Logger, logging.OperationCLICommand, "diagnose", nil)
			findings, err := a.Diagnosis.ParseFindingIDs(args)
			if err != nil {
				op.End(err, nil)
				return err
			}
			report := a.Diagnosis.DiagnoseFindings(ctx, findings)
			op.End(nil, nil)

			if r.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}
}

func printReport(out io.Writer, report *service.DiagnosisReport) error {
	result := report.Result
	if len(result.Diseases) == 0 {
		fmt.Fprintln(out, "No disease passed the probability threshold.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tDISEASE\tICD-10\tPOSTERIOR")
	for i, d := range result.Diseases {
		fmt.Fprintf(w, "%d\t%s\t%s\t%.1f%%\n", i+1, d.Name, d.ICD10, d.PosteriorProbability*100)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	printList(out, "Lesion sites", result.LesionSite)
	printList(out, "Red flags", result.RedFlags)
	printList(out, "Patterns", result.Patterns)
	fmt.Fprintf(out, "Confidence: %.2f (%s)\n", result.Confidence, report.ConfidenceLevel)
	return nil
}

func printList(out io.Writer, label string, values []string) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(out, "%s: %s\n", label, strings.Join(values, ", "))
}
