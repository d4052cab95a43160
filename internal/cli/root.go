// Package cli implements the auditctl command line.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the auditctl command tree.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "auditctl",
		Short:         "Run compliance analyses from the terminal",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newKeygenCmd(),
	)
	return rootCmd
}
