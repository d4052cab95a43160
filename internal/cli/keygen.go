package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/auditfront/internal/auth"
)

func newKeygenCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the Ed25519 key that signs web session cookies",
		Long: `Generate a persistent session signing key for the web server.

Point AUDITFRONT_SESSION_KEY_PATH at the written file. Without it the server
signs with a key generated at startup, and every browser session is lost on
restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := auth.WriteKeyFile(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\nexport AUDITFRONT_SESSION_KEY_PATH=%s\n", out, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "data/session_key.pem", "where to write the PEM private key")
	return cmd
}
