package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/evcraddock/checklist-casa/internal/client"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check connection and auth status",
		Long:  "Tests the connection to the server and checks if the stored API key is valid.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func runStatus(ctx context.Context, w io.Writer) error {
	s, err := resolveSettings()
	if err != nil {
		fmt.Fprintf(w, "Config:  ✗ %v\n", err)
	}

	fmt.Fprintf(w, "Server:  %s (%s)\n", s.ServerURL, s.ServerSource)

	if s.APIKey == "" {
		fmt.Fprintln(w, "API Key: not configured")
		fmt.Fprintln(w, "\nRun 'casa login' to authenticate.")
		return nil
	}
	fmt.Fprintf(w, "API Key: %s… (%s)\n", keyPrefix(s.APIKey), s.KeySource)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	projects, err := client.New(s.ServerURL, s.APIKey).ListProjects(ctx)
	switch {
	case err == nil:
		fmt.Fprintf(w, "Status:  ✓ connected and authenticated (%d projects)\n", len(projects))
	case client.IsUnauthorized(err):
		fmt.Fprintln(w, "Status:  ✗ invalid API key")
		fmt.Fprintln(w, "\nRun 'casa login' to re-authenticate.")
	default:
		fmt.Fprintf(w, "Status:  ✗ cannot reach server (%v)\n", err)
	}

	return nil
}

// keyPrefix returns enough of a key to recognize it without revealing it.
func keyPrefix(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}
