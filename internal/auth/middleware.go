package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/evcraddock/checklist-casa/internal/logging"
)

type userKey struct{}

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userKey{}).(*User)
	return u
}

// RequireAuth attaches the session user to the request context and
// redirects unauthenticated requests for non-public pages to the login
// page. API paths (/api/...) are handled separately by RequireAPIKey.
func RequireAuth(sessions *SessionStore, users *UserStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") && !isAPIKeyManagementPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if email, err := sessions.Validate(r); err == nil {
			user, err := users.EnsureByEmail(r.Context(), email)
			if err != nil {
				slog.Error("loading session user", "email", email, "err", err)
				http.Error(w, "Internal error", http.StatusInternalServerError)
				return
			}
			logging.SetUser(r.Context(), user.Email)
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
			return
		}

		if isPublicPath(r.URL.Path) || isAPIKeyManagementPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		http.Redirect(w, r, LoginURL(r.URL.RequestURI()), http.StatusSeeOther)
	})
}

// LoginURL returns the login page that returns to next after sign-in.
func LoginURL(next string) string {
	if next == "" || next == "/" {
		return "/login"
	}
	return "/login?next=" + url.QueryEscape(next)
}

// SafeNext returns next if it is a local path, otherwise "/".
func SafeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

// rateLimiter tracks failed API key attempts per IP.
type rateLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{attempts: make(map[string][]time.Time)}
}

const (
	rateLimitWindow  = 1 * time.Minute
	rateLimitMaxFail = 10
)

// limited reports whether ip has exceeded the failure budget.
func (rl *rateLimiter) limited(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.prune(ip)) >= rateLimitMaxFail
}

// recordFailure records a failed attempt.
func (rl *rateLimiter) recordFailure(ip string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.attempts[ip] = append(rl.prune(ip), time.Now())
}

func (rl *rateLimiter) prune(ip string) []time.Time {
	cutoff := time.Now().Add(-rateLimitWindow)
	valid := rl.attempts[ip][:0]
	for _, t := range rl.attempts[ip] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		delete(rl.attempts, ip)
		return nil
	}
	rl.attempts[ip] = valid
	return valid
}

// RequireAPIKey validates Bearer token auth for /api/ routes and attaches
// the key owner to the context. Non-API routes pass through untouched. API
// key management paths (/api/keys) use session auth via RequireAuth.
// Returns 401 for missing/invalid keys, 429 for rate-limited IPs.
func RequireAPIKey(apiKeys *APIKeyStore, users *UserStore, next http.Handler) http.Handler {
	limiter := newRateLimiter()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		if isAPIKeyManagementPath(r.URL.Path) {
			if UserFromContext(r.Context()) == nil {
				jsonError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		if limiter.limited(ip) {
			jsonError(w, "Too many requests", http.StatusTooManyRequests)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			jsonError(w, "Authorization required", http.StatusUnauthorized)
			return
		}

		email, err := apiKeys.Validate(r.Context(), strings.TrimPrefix(authHeader, "Bearer "))
		if errors.Is(err, ErrInvalidAPIKey) {
			limiter.recordFailure(ip)
			jsonError(w, "Invalid API key", http.StatusUnauthorized)
			return
		}
		if err != nil {
			slog.Error("validating api key", "err", err)
			jsonError(w, "Internal error", http.StatusInternalServerError)
			return
		}

		user, err := users.EnsureByEmail(r.Context(), email)
		if err != nil {
			slog.Error("loading api key user", "email", email, "err", err)
			jsonError(w, "Internal error", http.StatusInternalServerError)
			return
		}

		logging.SetUser(r.Context(), user.Email)
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": msg}); err != nil {
		slog.Error("encoding error response", "err", err)
	}
}

func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return host
}

func isPublicPath(path string) bool {
	switch path {
	case "/", "/login", "/auth/login", "/auth/verify", "/auth/logout", "/health",
		"/passkey/login/begin", "/passkey/login/finish",
		"/cli/auth", "/cli/auth/verify":
		return true
	}
	return strings.HasPrefix(path, "/static/")
}

func isAPIKeyManagementPath(path string) bool {
	return path == "/api/keys" || strings.HasPrefix(path, "/api/keys/")
}
