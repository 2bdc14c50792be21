package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored API key",
		Long: `Removes the API key from ~/.config/casa/config.yaml. The server URL is kept.
The key stays valid on the server until you delete it under Settings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogout(cmd.OutOrStdout())
		},
	}
}

func runLogout(w io.Writer) error {
	changed, err := updateConfig(func(cfg *CLIConfig) { cfg.APIKey = "" })
	if err != nil {
		return fmt.Errorf("updating config: %w", err)
	}
	if !changed {
		fmt.Fprintln(w, "Not logged in.")
	} else {
		fmt.Fprintln(w, "✓ Logged out. API key removed.")
	}

	if os.Getenv(envAPIKey) != "" {
		fmt.Fprintf(w, "Note: %s is still set in your environment.\n", envAPIKey)
	}
	return nil
}
