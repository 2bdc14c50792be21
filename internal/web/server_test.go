package web

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/evcraddock/checklist-casa/internal/assessment"
	"github.com/evcraddock/checklist-casa/internal/auth"
	"github.com/evcraddock/checklist-casa/internal/criteria"
	"github.com/evcraddock/checklist-casa/internal/db"
	"github.com/evcraddock/checklist-casa/internal/logging"
	"github.com/evcraddock/checklist-casa/internal/media"
	"github.com/evcraddock/checklist-casa/internal/metrics"
	"github.com/evcraddock/checklist-casa/internal/project"
	"github.com/evcraddock/checklist-casa/internal/visit"
)

func TestNewServerRequiresMediaAndSecret(t *testing.T) {
	store, err := media.NewStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("media store: %v", err)
	}

	if _, err := NewServer(nil, Options{DraftSecret: "x"}); err == nil {
		t.Error("expected error without media store")
	}
	if _, err := NewServer(nil, Options{Media: store}); err == nil {
		t.Error("expected error without draft secret")
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"db":"ok"`) {
		t.Errorf("body = %s, want db ok", w.Body.String())
	}
}

func TestRequestLogUsesServerLogger(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, "GET", "/login", nil)
	if !strings.Contains(env.logs.String(), `"path":"/login"`) {
		t.Errorf("request log = %q, want /login line", env.logs.String())
	}

	env.logs.Reset()
	env.do(t, "GET", "/health", nil)
	if env.logs.Len() > 0 {
		t.Errorf("health check should not be logged, got %q", env.logs.String())
	}
}

func TestStaticAssets(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/static/style.css", "/static/app.js"} {
		w := env.do(t, "GET", path, nil)
		if w.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, w.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, "GET", "/health", nil)

	w := env.do(t, "GET", "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "casa_http_requests_total") {
		t.Error("metrics output missing casa_http_requests_total")
	}
	if !strings.Contains(body, `route="GET /health"`) {
		t.Error("request metrics should be labelled by route pattern")
	}
}

func TestProtectedPagesRedirectToLogin(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		path string
		want string
	}{
		{"/", "/login"},
		{"/projects", "/login?next=%2Fprojects"},
		{"/projects/1/compare?sort=2", "/login?next=%2Fprojects%2F1%2Fcompare%3Fsort%3D2"},
		{"/settings", "/login?next=%2Fsettings"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := env.do(t, "GET", tt.path, nil)
			if w.Code != http.StatusSeeOther {
				t.Fatalf("status = %d, want 303", w.Code)
			}
			if loc := w.Header().Get("Location"); loc != tt.want {
				t.Errorf("Location = %q, want %q", loc, tt.want)
			}
		})
	}
}

func TestMediaServesStoredPhotos(t *testing.T) {
	env := newTestEnv(t)
	_, cookie := env.signIn(t, "ana@example.com")

	key, err := env.srv.media.Save("kitchen.png", strings.NewReader(pngHeader))
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	w := env.do(t, "GET", "/media/"+key, nil, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	for _, bad := range []string{"/media/notes.txt", "/media/.upload-1.png"} {
		w = env.do(t, "GET", bad, nil, cookie)
		if w.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", bad, w.Code)
		}
	}
}

// Test helpers

const pngHeader = "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00"

type sentMail struct {
	To      []string
	Subject string
	Body    string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) Send(to []string, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *recordingMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no email was sent")
	}
	return m.sent[len(m.sent)-1]
}

type testEnv struct {
	srv    *Server
	mailer *recordingMailer
	// logs collects request log lines instead of stderr.
	logs *bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	store, err := media.NewStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("media store: %v", err)
	}

	mailer := &recordingMailer{}
	logs := &bytes.Buffer{}
	srv, err := NewServer(d, Options{
		Auth:        auth.Config{BaseURL: "http://localhost:8080", SessionTTL: time.Hour},
		Mailer:      mailer,
		Media:       store,
		DraftSecret: "test-secret",
		Metrics:     metrics.New(),
		Logger:      logging.New(logs, false),
	})
	if err != nil {
		t.Fatalf("creating server: %v", err)
	}
	return &testEnv{srv: srv, mailer: mailer, logs: logs}
}

// signIn creates the user and a session, returning the session cookie.
func (e *testEnv) signIn(t *testing.T, addr string) (*auth.User, *http.Cookie) {
	t.Helper()

	user, err := e.srv.users.EnsureByEmail(context.Background(), addr)
	if err != nil {
		t.Fatalf("creating user: %v", err)
	}
	w := httptest.NewRecorder()
	if err := e.srv.sessions.Create(context.Background(), w, addr); err != nil {
		t.Fatalf("creating session: %v", err)
	}
	return user, findCookie(t, w, auth.CookieName)
}

// do serves a request. A non-nil form is sent url-encoded.
func (e *testEnv) do(t *testing.T, method, target string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	r := httptest.NewRequest(method, target, body)
	if form != nil {
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, c := range cookies {
		r.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, r)
	return w
}

func (e *testEnv) newProject(t *testing.T, owner *auth.User, name string) *project.Project {
	t.Helper()
	p, err := e.srv.projects.Create(context.Background(), owner.ID, name)
	if err != nil {
		t.Fatalf("creating project: %v", err)
	}
	return p
}

func (e *testEnv) addCriteria(t *testing.T, projectID int64, name string, typ criteria.Type) *criteria.Criteria {
	t.Helper()
	c, err := e.srv.criteria.Create(context.Background(), projectID, criteria.Input{Name: name, Type: typ})
	if err != nil {
		t.Fatalf("creating criteria: %v", err)
	}
	return c
}

// addVisit saves a visit with raw assessment values keyed by criteria ID.
func (e *testEnv) addVisit(t *testing.T, p *project.Project, by *auth.User, name string, raw map[int64]string) *visit.Visit {
	t.Helper()
	ctx := context.Background()

	list, err := e.srv.criteria.ListByProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("listing criteria: %v", err)
	}
	values := make(map[int64]assessment.Value)
	for _, c := range list {
		v, err := assessment.Parse(c.Type, raw[c.ID])
		if err != nil {
			t.Fatalf("parsing %s: %v", c.Name, err)
		}
		values[c.ID] = v
	}

	in := visit.Input{Name: name, Address: name + " Street", VisitDate: "2026-03-01"}
	v, err := e.srv.saveVisit(ctx, p, by.ID, 0, in, list, values)
	if err != nil {
		t.Fatalf("saving visit: %v", err)
	}
	return v
}

// addMember invites member and accepts on their behalf.
func (e *testEnv) addMember(t *testing.T, p *project.Project, owner, member *auth.User) {
	t.Helper()
	ctx := context.Background()

	noop := func(context.Context, *project.Project, *project.Invitation) error { return nil }
	inv, err := e.srv.projects.Invite(ctx, p.ID, owner.ID, member.Email, noop)
	if err != nil {
		t.Fatalf("inviting: %v", err)
	}
	if _, err := e.srv.projects.Accept(ctx, inv.Token, member.ID, member.Email); err != nil {
		t.Fatalf("accepting: %v", err)
	}
}

func findCookie(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", name)
	return nil
}

// flashOf decodes the flash message a response set.
func flashOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == flashCookie && c.MaxAge > 0 {
			msg, err := base64.RawURLEncoding.DecodeString(c.Value)
			if err != nil {
				t.Fatalf("decoding flash: %v", err)
			}
			return string(msg)
		}
	}
	return ""
}

func assertRedirect(t *testing.T, w *httptest.ResponseRecorder, want string) {
	t.Helper()
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303 (body: %s)", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != want {
		t.Errorf("Location = %q, want %q", loc, want)
	}
}

var errMailDown = errors.New("smtp unavailable")
