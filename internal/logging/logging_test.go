package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewDevMode(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, true)

	logger.Debug("test debug")
	logger.Info("test info")

	output := buf.String()
	if !strings.Contains(output, "test debug") {
		t.Error("expected debug message visible in dev mode")
	}
	if !strings.Contains(output, "test info") {
		t.Error("expected info message visible in dev mode")
	}
}

func TestNewProdMode(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, false)

	logger.Debug("hidden")
	logger.Info("prod test", "key", "value")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("debug message should be filtered in prod mode")
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "prod test" {
		t.Errorf("msg = %v, want %q", entry["msg"], "prod test")
	}
}

func TestRequestLogger(t *testing.T) {
	buf := captureDefault(t)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetUser(r.Context(), "alice@example.com")
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/projects/1/comparison", nil)
	rec := httptest.NewRecorder()
	RequestLogger(nil, inner).ServeHTTP(rec, req)

	output := buf.String()
	for _, want := range []string{"GET", "/projects/1/comparison", "alice@example.com", "status=200"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in log output %q", want, output)
		}
	}
}

func TestRequestLoggerAnonymous(t *testing.T) {
	buf := captureDefault(t)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	RequestLogger(nil, inner).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if !strings.Contains(buf.String(), "user=anonymous") {
		t.Errorf("expected anonymous user in %q", buf.String())
	}
}

func TestRequestLoggerSkips(t *testing.T) {
	tests := []string{
		"/static/style.css",
		"/media/abc.jpg",
		"/health",
		"/favicon.ico",
	}

	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			buf := captureDefault(t)

			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			RequestLogger(nil, inner).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))

			if buf.Len() > 0 {
				t.Errorf("expected no log for %s, got %q", path, buf.String())
			}
		})
	}
}

func TestRequestLoggerLevels(t *testing.T) {
	tests := []struct {
		name   string
		status int
		sleep  time.Duration
		level  string
	}{
		{"ok is info", http.StatusOK, 0, "level=INFO"},
		{"not found is warn", http.StatusNotFound, 0, "level=WARN"},
		{"server error is error", http.StatusInternalServerError, 0, "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureDefault(t)

			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(tt.sleep)
				w.WriteHeader(tt.status)
			})

			RequestLogger(nil, inner).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/missing", nil))

			if !strings.Contains(buf.String(), tt.level) {
				t.Errorf("expected %s in %q", tt.level, buf.String())
			}
		})
	}
}

func TestRequestLoggerExplicitLogger(t *testing.T) {
	def := captureDefault(t)

	var buf bytes.Buffer
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	RequestLogger(New(&buf, true), inner).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/projects", nil))

	if !strings.Contains(buf.String(), "path=/projects") {
		t.Errorf("expected request line in %q", buf.String())
	}
	if def.Len() > 0 {
		t.Errorf("default logger should stay quiet, got %q", def.String())
	}
}

func TestSetUserWithoutLogger(t *testing.T) {
	// Must not panic when the request never went through RequestLogger.
	SetUser(httptest.NewRequest("GET", "/", nil).Context(), "bob@example.com")
}

// captureDefault swaps the default logger for a buffer-backed one.
func captureDefault(t *testing.T) *bytes.Buffer {
	t.Helper()
	old := slog.Default()
	t.Cleanup(func() { slog.SetDefault(old) })

	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return &buf
}
