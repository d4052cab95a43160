package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/auditfront/internal/model"
)

func newValidateCmd() *cobra.Command {
	var flags requestFlags
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a run request without submitting it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := flags.build(cmd)
			if err != nil {
				return err
			}
			if err := model.ValidateRunRequest(req); err != nil {
				return fmt.Errorf("invalid request:\n%w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Request for %s is valid (%s, %s pipeline)\n",
				req.EntityID, req.Mode, req.Pipeline().Name)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
