package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/evcraddock/checklist-casa/internal/client"
)

const apiKeyPrefix = "casa_"

func newLoginCmd() *cobra.Command {
	var (
		server    string
		noBrowser bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store an API key",
		Long: `Opens the server's CLI sign-in page, where you sign in and receive an API
key. Paste the key at the prompt; it is checked against the server and saved
to ~/.config/casa/config.yaml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l := login{in: cmd.InOrStdin(), out: cmd.OutOrStdout(), server: server}
			if !noBrowser {
				l.open = openBrowser
			}
			return l.run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "server URL to log in to and remember (default: current server)")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "print the sign-in URL without opening a browser")

	return cmd
}

// login is the interactive key exchange with the server's /cli/auth page.
type login struct {
	in     io.Reader
	out    io.Writer
	server string
	// open launches a browser; nil only prints the URL.
	open func(url string) error
}

func (l login) run(ctx context.Context) error {
	serverURL := l.server
	if serverURL == "" {
		serverURL = getServerURL()
	}
	serverURL = strings.TrimRight(serverURL, "/")
	authURL := serverURL + "/cli/auth"

	fmt.Fprintf(l.out, "Sign in at: %s\n\n", authURL)
	if l.open != nil {
		if err := l.open(authURL); err != nil {
			fmt.Fprintf(os.Stderr, "Could not open browser: %v\n", err)
		}
	}

	fmt.Fprint(l.out, "Paste your API key: ")
	key, err := bufio.NewReader(l.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading input: %w", err)
	}
	key = strings.TrimSpace(key)
	if err := validateAPIKey(key); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := client.New(serverURL, key).ListProjects(ctx); err != nil {
		if client.IsUnauthorized(err) {
			return errors.New("the server rejected this API key")
		}
		return fmt.Errorf("checking API key: %w", err)
	}

	if _, err := updateConfig(func(cfg *CLIConfig) {
		cfg.APIKey = key
		if l.server != "" {
			cfg.ServerURL = serverURL
		}
	}); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Fprintln(l.out, "✓ API key saved. You're logged in!")
	return nil
}

// validateAPIKey checks that the key is non-empty and has the expected prefix.
func validateAPIKey(key string) error {
	if key == "" {
		return errors.New("no API key provided")
	}
	if !strings.HasPrefix(key, apiKeyPrefix) {
		return fmt.Errorf("invalid API key format (should start with %s)", apiKeyPrefix)
	}
	return nil
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}
