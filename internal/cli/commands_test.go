package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/evcraddock/checklist-casa/internal/auth"
	"github.com/evcraddock/checklist-casa/internal/criteria"
	"github.com/evcraddock/checklist-casa/internal/db"
	"github.com/evcraddock/checklist-casa/internal/logging"
	"github.com/evcraddock/checklist-casa/internal/media"
	"github.com/evcraddock/checklist-casa/internal/project"
	"github.com/evcraddock/checklist-casa/internal/web"
)

func TestProjectWorkflow(t *testing.T) {
	startServer(t)

	out := run(t, "projects", "create", "Spring search")
	if !strings.Contains(out, "created: Spring search") {
		t.Fatalf("create output = %q", out)
	}

	var list []*project.Project
	decodeOutput(t, run(t, "projects", "--format", "json"), &list)
	if len(list) != 1 {
		t.Fatalf("projects = %d, want 1", len(list))
	}
	pid := fmt.Sprint(list[0].ID)

	run(t, "criteria", "add", pid, "Kitchen", "--type", "rating", "--weight", "2")
	run(t, "criteria", "add", pid, "Price", "--type", "numeric")

	var crit []*criteria.Criteria
	decodeOutput(t, run(t, "criteria", "list", pid, "--format", "json"), &crit)
	if len(crit) != 2 || crit[0].Name != "Kitchen" || crit[0].Weight == nil || *crit[0].Weight != 2 {
		t.Fatalf("criteria = %+v", crit)
	}
	kitchen := fmt.Sprint(crit[0].ID)
	price := fmt.Sprint(crit[1].ID)

	out = run(t, "visits", "add", pid, "Maple", "--address", "12 Maple St", "--date", "2026-04-01", "--set", kitchen+"=5", "--set", price+"=$350,000")
	if !strings.Contains(out, "Visit recorded:") {
		t.Fatalf("visit output = %q", out)
	}
	run(t, "visits", "add", pid, "Oak", "--address", "4 Oak Ave", "--date", "2026-04-02", "--set", kitchen+"=2")

	out = run(t, "visits", "list", pid, "--query", "maple")
	if !strings.Contains(out, "Maple") || strings.Contains(out, "Oak") {
		t.Errorf("filtered list = %q", out)
	}

	out = run(t, "compare", pid)
	for _, want := range []string{"KITCHEN", "5/5 (+)", "2/5 (-)", "350000"} {
		if !strings.Contains(out, want) {
			t.Errorf("compare output missing %q:\n%s", want, out)
		}
	}

	records, err := csv.NewReader(strings.NewReader(run(t, "export", pid))).ReadAll()
	if err != nil {
		t.Fatalf("parsing export: %v", err)
	}
	if len(records) != 3 || records[1][0] != "Oak" || records[2][0] != "Maple" {
		t.Errorf("export rows = %v, want Oak then Maple by visit date", records)
	}
	if _, err := executeCommand("export", pid, "--sort", kitchen); err == nil {
		t.Error("export should not accept --sort")
	}

	out = run(t, "projects", "finish", pid)
	if !strings.Contains(out, "marked finished") {
		t.Errorf("finish output = %q", out)
	}
	if _, err := executeCommand("visits", "add", pid, "Birch", "--address", "7 Birch Rd"); err == nil || err.Error() != project.ErrFinished.Error() {
		t.Errorf("add to finished project err = %v, want %v", err, project.ErrFinished)
	}
}

func TestVisitShow(t *testing.T) {
	startServer(t)

	run(t, "projects", "create", "Spring search")
	out := run(t, "visits", "add", "1", "Maple", "--address", "12 Maple St", "--notes", "big yard", "--format", "json")
	var created struct {
		Visit struct {
			ID int64 `json:"id"`
		} `json:"visit"`
	}
	decodeOutput(t, out, &created)

	out = run(t, "visits", "show", "1", fmt.Sprint(created.Visit.ID))
	for _, want := range []string{"Name:     Maple", "Notes:    big yard", "Photos: 0"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}

	if _, err := executeCommand("visits", "show", "1", "999"); err == nil {
		t.Error("expected error for missing visit")
	}
}

func TestVisitAddRequiresAddress(t *testing.T) {
	startServer(t)
	run(t, "projects", "create", "Spring search")

	_, err := executeCommand("visits", "add", "1", "Maple")
	if err == nil || !strings.Contains(err.Error(), `"address"`) {
		t.Fatalf("err = %v, want missing address flag", err)
	}

	out := run(t, "visits", "list", "1")
	if strings.Contains(out, "Maple") {
		t.Errorf("visit without address was saved: %q", out)
	}
}

func TestExportToFile(t *testing.T) {
	startServer(t)
	run(t, "projects", "create", "Spring search")

	path := filepath.Join(t.TempDir(), "out.csv")
	run(t, "export", "1", "-o", path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	if !strings.HasPrefix(string(data), "Visit Name,") {
		t.Errorf("export = %q", data)
	}
}

func TestRemoteCommandsRequireValidKey(t *testing.T) {
	startServer(t)
	t.Setenv("CASA_API_KEY", "casa_notarealkey")

	_, err := executeCommand("projects")
	if err == nil {
		t.Fatal("expected error with invalid key")
	}
}

// startServer runs the web server over a fresh database and points the CLI at
// it with an API key for a new user.
func startServer(t *testing.T) {
	t.Helper()

	d, err := db.Open(filepath.Join(t.TempDir(), "casa.db"))
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	store, err := media.NewStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("media store: %v", err)
	}

	srv, err := web.NewServer(d, web.Options{
		Auth:        auth.Config{BaseURL: "http://localhost:8080", SessionTTL: time.Hour},
		Media:       store,
		DraftSecret: "test-secret",
		Logger:      logging.New(io.Discard, false),
	})
	if err != nil {
		t.Fatalf("creating server: %v", err)
	}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	user, err := auth.NewUserStore(d).EnsureByEmail(t.Context(), "ana@example.com")
	if err != nil {
		t.Fatalf("creating user: %v", err)
	}
	key, _, err := auth.NewAPIKeyStore(d).Create(t.Context(), "cli", user.Email)
	if err != nil {
		t.Fatalf("creating api key: %v", err)
	}

	t.Setenv("HOME", t.TempDir())
	t.Setenv("CASA_SERVER_URL", ts.URL)
	t.Setenv("CASA_API_KEY", key)
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	out, err := executeCommand(args...)
	if err != nil {
		t.Fatalf("casa %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func decodeOutput(t *testing.T, out string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
}
