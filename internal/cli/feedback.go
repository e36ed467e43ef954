package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/neurodx-mcp-server/internal/app"
)

func newFeedbackCmd(r *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Export or import clinician feedback",
	}
	cmd.AddCommand(newFeedbackExportCmd(r), newFeedbackImportCmd(r))
	return cmd
}

func newFeedbackExportCmd(r *runtime) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all feedback as JSON to stdout or a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := r.load(cmd, app.WithoutCache())
			if err != nil {
				return err
			}

			if output == "" {
				return a.Feedback.Export(cmd.Context(), cmd.OutOrStdout())
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating %s: %w", output, err)
			}
			if err := a.Feedback.Export(cmd.Context(), f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Feedback exported to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newFeedbackImportCmd(r *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Load a feedback export, skipping entries already stored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := r.load(cmd, app.WithoutCache())
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			imported, skipped, err := a.Feedback.Import(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entries, skipped %d existing\n", imported, skipped)
			return nil
		},
	}
}
