package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/neurodx-mcp-server/internal/setup"
)

func newSetupCmd(r *runtime) *cobra.Command {
	var clientConfig string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register the MCP server with the desktop client",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if clientConfig != "" {
				return nil
			}
			path, err := setup.DesktopConfigPath()
			if err != nil {
				return err
			}
			clientConfig = path
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&clientConfig, "client-config", "", "desktop client config file (default: platform location)")

	var opts setup.Options
	register := &cobra.Command{
		Use:   "register",
		Short: "Add or update the neurodx entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.ConfigFile == "" && r.configFile != "" {
				abs, err := filepath.Abs(r.configFile)
				if err != nil {
					return err
				}
				opts.ConfigFile = abs
			}
			entry, err := setup.Register(clientConfig, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s in %s\n", entry.Command, clientConfig)
			return nil
		},
	}
	register.Flags().StringVar(&opts.BinaryPath, "binary", "", "path to neurodx-mcp-server (default: search PATH)")
	register.Flags().StringVar(&opts.DataDir, "data-dir", "", "data directory passed to the server")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show whether neurodx is registered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := setup.Check(clientConfig)
			if err != nil {
				return err
			}
			if r.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Client config: %s\n", st.ConfigPath)
			fmt.Fprintf(out, "Registered: %t\n", st.Registered)
			if st.Entry != nil {
				fmt.Fprintf(out, "Command: %s\n", st.Entry.Command)
			}
			for _, issue := range st.Issues {
				fmt.Fprintf(out, "  ! %s\n", issue)
			}
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove",
		Short: "Remove the neurodx entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := setup.Unregister(clientConfig)
			if err != nil {
				return err
			}
			if removed {
				fmt.Fprintln(cmd.OutOrStdout(), "Removed neurodx")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "neurodx was not registered")
			}
			return nil
		},
	}

	cmd.AddCommand(register, status, remove)
	return cmd
}
