package logging

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// SlowRequestThreshold is the duration above which a request is logged at warn.
const SlowRequestThreshold = time.Second

// skipPrefixes are paths that never produce a request log line.
var skipPrefixes = []string{"/static/", "/media/"}

var skipPaths = map[string]bool{
	"/health":      true,
	"/favicon.ico": true,
}

type requestInfoKey struct{}

// requestInfo is filled in by handlers further down the chain.
type requestInfo struct {
	user string
}

// SetUser records the authenticated user's email for the request log line.
// It is a no-op when the request did not pass through RequestLogger.
func SetUser(ctx context.Context, email string) {
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		info.user = email
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func skip(path string) bool {
	if skipPaths[path] {
		return true
	}
	for _, p := range skipPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// RequestLogger is middleware that logs HTTP requests to logger, or to the
// default logger when logger is nil.
func RequestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if skip(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		info := &requestInfo{}

		next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info)))

		duration := time.Since(start)

		level := slog.LevelInfo
		msg := "request"
		switch {
		case rw.status >= 500:
			level = slog.LevelError
		case rw.status >= 400:
			level = slog.LevelWarn
		case duration > SlowRequestThreshold:
			level = slog.LevelWarn
			msg = "slow request"
		}

		user := info.user
		if user == "" {
			user = "anonymous"
		}

		l := logger
		if l == nil {
			l = slog.Default()
		}
		l.Log(r.Context(), level, msg,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration", duration.String(),
			"ip", r.RemoteAddr,
			"user", user,
		)
	})
}
