package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireAuthRedirectsUnauthenticated(t *testing.T) {
	d := testDB(t)
	handler := RequireAuth(NewSessionStore(d, Config{}), NewUserStore(d), okHandler())

	r := httptest.NewRequest("GET", "/projects/3/compare?sort=2", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	want := "/login?next=%2Fprojects%2F3%2Fcompare%3Fsort%3D2"
	if got := w.Header().Get("Location"); got != want {
		t.Errorf("location = %q, want %q", got, want)
	}
}

func TestRequireAuthPublicPaths(t *testing.T) {
	d := testDB(t)
	handler := RequireAuth(NewSessionStore(d, Config{}), NewUserStore(d), okHandler())

	for _, path := range []string{"/", "/login", "/auth/verify", "/health", "/static/style.css", "/api/projects"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, w.Code)
		}
	}
}

func TestRequireAuthAttachesUser(t *testing.T) {
	d := testDB(t)
	sessions := NewSessionStore(d, Config{})

	var seen *User
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserFromContext(r.Context())
	})
	handler := RequireAuth(sessions, NewUserStore(d), inner)

	sw := httptest.NewRecorder()
	if err := sessions.Create(context.Background(), sw, "ana@example.com"); err != nil {
		t.Fatalf("create session: %v", err)
	}

	r := httptest.NewRequest("GET", "/settings", nil)
	r.AddCookie(sessionCookie(t, sw))
	handler.ServeHTTP(httptest.NewRecorder(), r)

	if seen == nil || seen.Email != "ana@example.com" {
		t.Fatalf("context user = %+v, want ana", seen)
	}
}

func TestRequireAPIKey(t *testing.T) {
	d := testDB(t)
	keys := NewAPIKeyStore(d)
	raw, _, err := keys.Create(context.Background(), "cli", "ana@example.com")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}

	var seen *User
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireAPIKey(keys, NewUserStore(d), inner)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"non-api passes", "/projects", "", http.StatusOK},
		{"missing header", "/api/projects", "", http.StatusUnauthorized},
		{"wrong scheme", "/api/projects", "Basic " + raw, http.StatusUnauthorized},
		{"bad key", "/api/projects", "Bearer casa_nope", http.StatusUnauthorized},
		{"key management needs session", "/api/keys", "Bearer " + raw, http.StatusUnauthorized},
		{"valid key", "/api/projects", "Bearer " + raw, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.path, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	if seen == nil || seen.Email != "ana@example.com" {
		t.Errorf("context user = %+v, want ana", seen)
	}
}

func TestRequireAPIKeyRateLimit(t *testing.T) {
	d := testDB(t)
	handler := RequireAPIKey(NewAPIKeyStore(d), NewUserStore(d), okHandler())

	var last int
	for i := 0; i <= rateLimitMaxFail; i++ {
		r := httptest.NewRequest("GET", "/api/projects", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		r.Header.Set("Authorization", "Bearer casa_wrong")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		last = w.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("status after %d failures = %d, want 429", rateLimitMaxFail, last)
	}
}

func TestSafeNext(t *testing.T) {
	tests := map[string]string{
		"/projects/1":        "/projects/1",
		"":                   "/",
		"//evil.example.com": "/",
		"https://evil.com":   "/",
		"/\\evil.com":        "/",
	}
	for in, want := range tests {
		if got := SafeNext(in); got != want {
			t.Errorf("SafeNext(%q) = %q, want %q", in, got, want)
		}
	}
	if got := LoginURL("/"); got != "/login" {
		t.Errorf("LoginURL(/) = %q", got)
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}
