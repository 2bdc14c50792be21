package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSessionCreateAndValidate(t *testing.T) {
	store := NewSessionStore(testDB(t), Config{BaseURL: "https://casa.example.com", SessionTTL: time.Hour})

	w := httptest.NewRecorder()
	if err := store.Create(context.Background(), w, "ana@example.com"); err != nil {
		t.Fatalf("create: %v", err)
	}

	cookie := sessionCookie(t, w)
	if !cookie.HttpOnly || !cookie.Secure {
		t.Errorf("cookie HttpOnly=%v Secure=%v, want both", cookie.HttpOnly, cookie.Secure)
	}

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(cookie)
	email, err := store.Validate(r)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if email != "ana@example.com" {
		t.Errorf("email = %q, want ana@example.com", email)
	}
}

func TestSessionValidateErrors(t *testing.T) {
	store := NewSessionStore(testDB(t), Config{})

	r := httptest.NewRequest("GET", "/", nil)
	if _, err := store.Validate(r); !errors.Is(err, ErrNoSession) {
		t.Errorf("no cookie err = %v, want ErrNoSession", err)
	}

	r.AddCookie(&http.Cookie{Name: CookieName, Value: "bogus"})
	if _, err := store.Validate(r); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("bogus cookie err = %v, want ErrInvalidSession", err)
	}
}

func TestSessionExpired(t *testing.T) {
	d := testDB(t)
	store := NewSessionStore(d, Config{SessionTTL: time.Hour})

	created := time.Now()
	store.now = func() time.Time { return created }
	w := httptest.NewRecorder()
	if err := store.Create(context.Background(), w, "ana@example.com"); err != nil {
		t.Fatalf("create: %v", err)
	}

	store.now = func() time.Time { return created.Add(2 * time.Hour) }
	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(sessionCookie(t, w))
	if _, err := store.Validate(r); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("err = %v, want ErrInvalidSession", err)
	}

	var count int
	if err := d.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("sessions = %d, want expired session removed", count)
	}
}

func TestSessionDestroy(t *testing.T) {
	store := NewSessionStore(testDB(t), Config{})

	w := httptest.NewRecorder()
	if err := store.Create(context.Background(), w, "ana@example.com"); err != nil {
		t.Fatalf("create: %v", err)
	}
	cookie := sessionCookie(t, w)

	r := httptest.NewRequest("POST", "/auth/logout", nil)
	r.AddCookie(cookie)
	dw := httptest.NewRecorder()
	if err := store.Destroy(dw, r); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if cleared := sessionCookie(t, dw); cleared.MaxAge != -1 {
		t.Errorf("MaxAge = %d, want -1", cleared.MaxAge)
	}

	if _, err := store.Validate(r); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("err after destroy = %v, want ErrInvalidSession", err)
	}

	if err := store.Destroy(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil)); err != nil {
		t.Errorf("destroy without cookie: %v", err)
	}
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}
