// Package cli implements the neurodx command line.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/neurodx-mcp-server/internal/app"
	"github.com/neurodx-mcp-server/internal/config"
	"github.com/neurodx-mcp-server/internal/logging"
)

// runtime carries global flags and the lazily built application.
type runtime struct {
	configFile string
	verbose    bool
	jsonOutput bool

	app       *app.App
	logCloser io.Closer
}

// NewRootCommand builds the neurodx command tree.
func NewRootCommand() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *runtime) {
	r := &runtime{}

	root := &cobra.Command{
		Use:   "neurodx",
		Short: "Rank neurological diagnoses from examination findings",
		Long: `neurodx ranks candidate neurological diseases by posterior probability
given a list of examination findings, using likelihood ratios from an
embedded knowledge base.

Configuration is read from config.yaml (., ./config, /etc/neurodx/) and
NEURODX_* environment variables.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return r.close()
		},
	}

	root.PersistentFlags().StringVar(&r.configFile, "config", "", "config file (default: search ., ./config, /etc/neurodx/)")
	root.PersistentFlags().BoolVarP(&r.verbose, "verbose", "v", false, "log debug output to stderr")
	root.PersistentFlags().BoolVar(&r.jsonOutput, "json", false, "print JSON instead of text")

	root.AddCommand(
		newDiagnoseCmd(r),
		newFindingsCmd(r),
		newDiseasesCmd(r),
		newDiseaseCmd(r),
		newFeedbackCmd(r),
		newSetupCmd(r),
		newVersionCmd(),
	)
	return root, r
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	root, r := newRootCommand()
	return execute(ctx, root, r)
}

// execute runs root and releases whatever the command opened. Cobra skips
// post-run hooks when RunE fails, so closing cannot be left to them alone.
func execute(ctx context.Context, root *cobra.Command, r *runtime) error {
	err := root.ExecuteContext(ctx)
	return errors.Join(err, r.close())
}

// load reads configuration and wires the application once per invocation.
func (r *runtime) load(cmd *cobra.Command, opts ...app.Option) (*app.App, error) {
	if r.app != nil {
		return r.app, nil
	}

	manager, err := config.NewManagerWithFile(r.configFile)
	if err != nil {
		return nil, err
	}
	if err := manager.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg := manager.GetConfig()

	logConfig := cfg.Logging
	logConfig.Output = "stderr"
	logConfig.Level = "warn"
	if r.verbose {
		logConfig.Level = "debug"
	}
	logger, closer, err := logging.NewLogger(logConfig)
	if err != nil {
		return nil, err
	}
	logger.SetOutput(cmd.ErrOrStderr())
	r.logCloser = closer

	a, err := app.New(cmd.Context(), cfg, logger, opts...)
	if err != nil {
		return nil, err
	}
	r.app = a
	return a, nil
}

func (r *runtime) close() error {
	var errs []error
	if r.app != nil {
		errs = append(errs, r.app.Close())
		r.app = nil
	}
	if r.logCloser != nil {
		errs = append(errs, r.logCloser.Close())
		r.logCloser = nil
	}
	return errors.Join(errs...)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "neurodx %s\n", app.Version)
		},
	}
}
