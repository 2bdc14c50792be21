// Package cli defines the cobra command tree for casa.
package cli

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/evcraddock/checklist-casa/internal/client"
	"github.com/evcraddock/checklist-casa/internal/db"
)

var (
	flagFormat string
	flagDB     string
)

// NewRootCmd creates the root cobra command with global flags.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "casa",
		Short:         "Compare houses you visit against your own checklist",
		Long:          "Casa keeps a shared house-hunting project: define the criteria that matter, log each visit with photos and assessments, and compare the houses side by side from the web UI or the command line.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format (text|json)")
	root.PersistentFlags().StringVar(&flagDB, "db", "", "SQLite database path for serve (default: ~/.config/casa/casa.db)")

	root.AddCommand(
		newServeCmd(),
		newProjectsCmd(),
		newCriteriaCmd(),
		newVisitsCmd(),
		newCompareCmd(),
		newExportCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)

	return root
}

// openDB opens the SQLite database using the --db flag, CASA_DB_PATH, or the
// default path, in that order.
func openDB(configured string) (*sql.DB, error) {
	path := flagDB
	if path == "" {
		path = configured
	}
	if path == "" {
		var err error
		path, err = db.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return db.Open(path)
}

// newAPIClient creates an HTTP client for the casa API.
func newAPIClient() *client.Client {
	return client.New(getServerURL(), getAPIKey())
}

// isJSON returns true if the --format flag is set to json.
func isJSON() bool {
	return flagFormat == "json"
}

// closeDB closes the database, logging any error to stderr.
func closeDB(database *sql.DB) {
	if err := database.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing database: %v\n", err)
	}
}

func parseID(kind, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s ID: %s", kind, s)
	}
	return id, nil
}
