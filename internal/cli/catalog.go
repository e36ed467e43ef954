package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/neurodx-mcp-server/internal/app"
	"github.com/neurodx-mcp-server/internal/knowledge"
)

func newFindingsCmd(r *runtime) *cobra.Command {
	var findingType, region string

	cmd := &cobra.Command{
		Use:   "findings",
		Short: "List catalog findings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := r.load(cmd, app.WithoutFeedback(), app.WithoutCache())
			if err != nil {
				return err
			}
			findings, err := a.Diagnosis.Findings(findingType, region)
			if err != nil {
				return err
			}
			if r.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), findings)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tSIDE\tNAME")
			for _, f := range findings {
				side := string(f.Laterality)
				if side == "" {
					side = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.ID, f.Type, side, f.Name)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&findingType, "type", "", "finding type (motor, sensory, reflex, ...)")
	cmd.Flags().StringVar(&region, "region", "", fmt.Sprintf("anatomical region %v", knowledge.Regions()))
	return cmd
}

func newDiseasesCmd(r *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "diseases",
		Short: "List the disease knowledge base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := r.load(cmd, app.WithoutFeedback(), app.WithoutCache())
			if err != nil {
				return err
			}
			diseases := a.Diagnosis.Diseases()
			if r.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), diseases)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tICD-10\tFINDINGS\tNAME")
			for _, d := range diseases {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", d.ID, d.ICD10, len(d.Evidence), d.Name)
			}
			return w.Flush()
		},
	}
}

func newDiseaseCmd(r *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "disease <id>",
		Short: "Show one disease and its likelihood ratios",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := r.load(cmd, app.WithoutFeedback(), app.WithoutCache())
			if err != nil {
				return err
			}
			d, err := a.Diagnosis.Disease(args[0])
			if err != nil {
				return err
			}
			if r.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), d)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", d.Name, d.ICD10)
			printList(out, "Lesion sites", d.LesionSite)
			printList(out, "Red flags", d.RedFlags)
			fmt.Fprintln(out)

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FINDING\tLR+\tLR-")
			for _, e := range d.Evidence {
				fmt.Fprintf(w, "%s\t%g\t%g\n", e.FindingID, e.Positive, e.Negative)
			}
			return w.Flush()
		},
	}
}
