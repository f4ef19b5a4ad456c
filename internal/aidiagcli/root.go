// Package aidiagcli implements the aidiag command line: one-shot checks,
// a watch mode driven by file saves, and history inspection.
package aidiagcli

import (
	"fmt"

	"github.com/spf13/cobra"

	"aidiagnos/internal/core/transport"
	"aidiagnos/internal/version"
)

func NewRootCommand() *cobra.Command {
	return newRootCommand(nil)
}

// newRootCommand builds the command tree. A non-nil tr replaces the
// configured transport.
func newRootCommand(tr transport.Transport) *cobra.Command {
	opts := &Options{transport: tr}
	cmd := &cobra.Command{
		Use:          "aidiag",
		Short:        "AI assisted diagnostics for source files",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.Version = version.String()
	cmd.InitDefaultVersionFlag()
	if f := cmd.Flags().Lookup("version"); f != nil {
		f.Shorthand = "v"
	}

	withOptionsContext(cmd, opts)
	bindFlags(cmd, opts)

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		opts := optionsFrom(cmd)
		if opts == nil {
			return fmt.Errorf("options missing")
		}
		recordChanged(cmd, opts)
		return opts.Prepare()
	}

	cmd.AddCommand(newCheckCommand())
	cmd.AddCommand(newWatchCommand())
	cmd.AddCommand(newHistoryCommand())
	cmd.AddCommand(newStatusCommand())
	return cmd
}
