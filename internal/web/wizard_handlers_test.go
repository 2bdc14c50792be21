package web

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/evcraddock/checklist-casa/internal/criteria"
	"github.com/evcraddock/checklist-casa/internal/draft"
	"github.com/evcraddock/checklist-casa/internal/visit"
)

func TestWizardFlow(t *testing.T) {
	env := newTestEnv(t)
	user, cookie := env.signIn(t, "ana@example.com")
	if err := env.srv.users.SetConfirmationEmails(t.Context(), user.ID, true); err != nil {
		t.Fatalf("opting in: %v", err)
	}
	p := env.newProject(t, user, "Spring search")
	kitchen := env.addCriteria(t, p.ID, "Kitchen", criteria.Rating)
	price := env.addCriteria(t, p.ID, "Price", criteria.Numeric)
	yard := env.addCriteria(t, p.ID, "Yard", criteria.Boolean)

	// Step one: details.
	w := env.do(t, "GET", wizardURL(p.ID, "", ""), nil, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("details status = %d, want 200", w.Code)
	}

	w = env.do(t, "POST", wizardURL(p.ID, "", ""), url.Values{
		"name":       {"Maple"},
		"address":    {"12 Maple Ave"},
		"visit_date": {"2026-03-14"},
		"notes":      {"Big windows"},
	}, cookie)
	assessURL := location(t, w)
	if !strings.HasPrefix(assessURL, wizardURL(p.ID, "assess", "")+"?draft=") {
		t.Fatalf("details redirect = %q, want assess step with draft", assessURL)
	}

	// Nothing is saved until the assessments are submitted.
	if n, _ := env.srv.visits.Count(t.Context(), p.ID); n != 0 {
		t.Fatalf("visits after step one = %d, want 0", n)
	}

	// Step two: assessments.
	w = env.do(t, "GET", assessURL, nil, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("assess status = %d, want 200", w.Code)
	}
	token := draftParam(t, assessURL)

	form := url.Values{"draft": {token}}
	form.Set(fmt.Sprintf("c_%d", kitchen.ID), "4")
	form.Set(fmt.Sprintf("c_%d", price.ID), "$350,000")
	form.Set(fmt.Sprintf("c_%d", yard.ID), "")
	w = env.do(t, "POST", wizardURL(p.ID, "assess", ""), form, cookie)
	photosURL := location(t, w)
	if !strings.HasPrefix(photosURL, wizardURL(p.ID, "photos", "")+"?draft=") {
		t.Fatalf("assess redirect = %q, want photos step", photosURL)
	}

	visits, err := env.srv.visits.ListByProject(t.Context(), p.ID, visit.Filter{})
	if err != nil || len(visits) != 1 {
		t.Fatalf("visits = %v (err %v), want 1", visits, err)
	}
	v := visits[0]
	if v.Name != "Maple" || v.Notes != "Big windows" {
		t.Errorf("visit = %+v", v)
	}

	values, err := env.srv.assessments.ListByVisit(t.Context(), v.ID)
	if err != nil {
		t.Fatalf("assessments: %v", err)
	}
	if got := values[kitchen.ID].String(); got != "4/5" {
		t.Errorf("kitchen = %q, want 4/5", got)
	}
	if got, _ := values[price.ID].Numeric(); got != 350000 {
		t.Errorf("price = %v, want 350000", got)
	}
	if values[yard.ID].IsSet() {
		t.Error("blank yard input should stay unset")
	}

	// Step three: photos.
	w = env.do(t, "GET", photosURL, nil, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("photos status = %d, want 200", w.Code)
	}

	w = uploadPhotos(t, env, wizardURL(p.ID, "photos", draftParam(t, photosURL)), cookie, "kitchen.png", "porch.jpg")
	if w.Code != http.StatusSeeOther {
		t.Fatalf("upload status = %d, want 303", w.Code)
	}
	photos, err := env.srv.visits.ListPhotos(t.Context(), v.ID)
	if err != nil || len(photos) != 2 {
		t.Fatalf("photos = %d (err %v), want 2", len(photos), err)
	}

	w = env.do(t, "POST", wizardURL(p.ID, "done", ""), url.Values{"draft": {draftParam(t, photosURL)}}, cookie)
	assertRedirect(t, w, visitURL(p.ID, v.ID))
	if got := flashOf(t, w); got != "Visit saved." {
		t.Errorf("flash = %q, want Visit saved.", got)
	}

	mail := env.mailer.last(t)
	if mail.To[0] != "ana@example.com" || !strings.Contains(mail.Subject, "Maple") {
		t.Errorf("confirmation = %+v", mail)
	}
	if !strings.Contains(mail.Body, "2 photos were uploaded") {
		t.Errorf("confirmation should count photos: %s", mail.Body)
	}
}

func TestWizardInvalidAssessmentRedisplays(t *testing.T) {
	env := newTestEnv(t)
	user, cookie := env.signIn(t, "ana@example.com")
	p := env.newProject(t, user, "Spring search")
	kitchen := env.addCriteria(t, p.ID, "Kitchen", criteria.Rating)
	token := signDraft(t, env.srv.drafts, draft.Draft{ProjectID: p.ID, UserID: user.ID, Visit: mapleInput()})

	form := url.Values{"draft": {token}}
	form.Set(fmt.Sprintf("c_%d", kitchen.ID), "7")
	w := env.do(t, "POST", wizardURL(p.ID, "assess", ""), form, cookie)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	if n, _ := env.srv.visits.Count(t.Context(), p.ID); n != 0 {
		t.Errorf("visits = %d, want nothing saved", n)
	}
}

func TestWizardDetailsValidation(t *testing.T) {
	env := newTestEnv(t)
	user, cookie := env.signIn(t, "ana@example.com")
	p := env.newProject(t, user, "Spring search")

	tests := []struct {
		name string
		form url.Values
	}{
		{"missing name", url.Values{"address": {"1 Elm"}, "visit_date": {"2026-03-14"}}},
		{"bad date", url.Values{"name": {"Elm"}, "address": {"1 Elm"}, "visit_date": {"03/14/2026"}}},
		{"foreign realtor", url.Values{"name": {"Elm"}, "address": {"1 Elm"}, "visit_date": {"2026-03-14"}, "realtor_id": {"999"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", wizardURL(p.ID, "", ""), tt.form, cookie)
			if w.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422", w.Code)
			}
		})
	}
}

func TestWizardDraftErrors(t *testing.T) {
	env := newTestEnv(t)
	user, cookie := env.signIn(t, "ana@example.com")
	other, _ := env.signIn(t, "ben@example.com")
	p := env.newProject(t, user, "Spring search")

	expired := signDraft(t, draft.NewSigner("test-secret", -time.Minute), draft.Draft{ProjectID: p.ID, UserID: user.ID, Visit: mapleInput()})
	foreign := signDraft(t, env.srv.drafts, draft.Draft{ProjectID: p.ID, UserID: other.ID, Visit: mapleInput()})
	forged := signDraft(t, draft.NewSigner("other-secret", time.Hour), draft.Draft{ProjectID: p.ID, UserID: user.ID, Visit: mapleInput()})

	tests := []struct {
		name  string
		token string
		flash string
	}{
		{"missing", "", "No visit in progress. Start by entering the visit details."},
		{"expired", expired, "Your visit draft expired. Please start again."},
		{"other user", foreign, "No visit in progress. Start by entering the visit details."},
		{"wrong key", forged, "No visit in progress. Start by entering the visit details."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "GET", wizardURL(p.ID, "assess", tt.token), nil, cookie)
			assertRedirect(t, w, wizardURL(p.ID, "", ""))
			if got := flashOf(t, w); got != tt.flash {
				t.Errorf("flash = %q, want %q", got, tt.flash)
			}
		})
	}
}

func TestWizardPhotoUploadRejectsNonImages(t *testing.T) {
	env := newTestEnv(t)
	user, cookie := env.signIn(t, "ana@example.com")
	p := env.newProject(t, user, "Spring search")
	v := env.addVisit(t, p, user, "Maple", nil)
	token := signDraft(t, env.srv.drafts, draft.Draft{ProjectID: p.ID, UserID: user.ID, VisitID: v.ID, Visit: mapleInput()})

	w := uploadPhotos(t, env, wizardURL(p.ID, "photos", token), cookie, "notes.txt")
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", w.Code)
	}
	if got := flashOf(t, w); !strings.Contains(got, "unsupported file type") {
		t.Errorf("flash = %q, want unsupported file type", got)
	}
	if photos, _ := env.srv.visits.ListPhotos(t.Context(), v.ID); len(photos) != 0 {
		t.Errorf("photos = %d, want 0", len(photos))
	}
}

func TestWizardDoneWithoutOptInSendsNothing(t *testing.T) {
	env := newTestEnv(t)
	user, cookie := env.signIn(t, "ana@example.com")
	p := env.newProject(t, user, "Spring search")
	v := env.addVisit(t, p, user, "Maple", nil)
	token := signDraft(t, env.srv.drafts, draft.Draft{ProjectID: p.ID, UserID: user.ID, VisitID: v.ID, Visit: mapleInput()})

	w := env.do(t, "POST", wizardURL(p.ID, "done", ""), url.Values{"draft": {token}}, cookie)
	assertRedirect(t, w, visitURL(p.ID, v.ID))
	if n := env.mailer.count(); n != 0 {
		t.Errorf("emails sent = %d, want 0", n)
	}
}

func TestWizardDoneMailFailureStillSaves(t *testing.T) {
	env := newTestEnv(t)
	user, cookie := env.signIn(t, "ana@example.com")
	if err := env.srv.users.SetConfirmationEmails(t.Context(), user.ID, true); err != nil {
		t.Fatalf("opting in: %v", err)
	}
	p := env.newProject(t, user, "Spring search")
	v := env.addVisit(t, p, user, "Maple", nil)
	token := signDraft(t, env.srv.drafts, draft.Draft{ProjectID: p.ID, UserID: user.ID, VisitID: v.ID, Visit: mapleInput()})
	env.mailer.err = errMailDown

	w := env.do(t, "POST", wizardURL(p.ID, "done", ""), url.Values{"draft": {token}}, cookie)
	assertRedirect(t, w, visitURL(p.ID, v.ID))
}

func TestWizardDoneConfirmsOnce(t *testing.T) {
	env := newTestEnv(t)
	user, cookie := env.signIn(t, "ana@example.com")
	if err := env.srv.users.SetConfirmationEmails(t.Context(), user.ID, true); err != nil {
		t.Fatalf("opting in: %v", err)
	}
	p := env.newProject(t, user, "Spring search")
	v := env.addVisit(t, p, user, "Maple", nil)
	token := signDraft(t, env.srv.drafts, draft.Draft{ProjectID: p.ID, UserID: user.ID, VisitID: v.ID, Visit: mapleInput()})

	for i := range 3 {
		w := env.do(t, "POST", wizardURL(p.ID, "done", ""), url.Values{"draft": {token}}, cookie)
		assertRedirect(t, w, visitURL(p.ID, v.ID))
		if n := env.mailer.count(); n != 1 {
			t.Fatalf("submit %d: emails sent = %d, want 1", i+1, n)
		}
	}
}

func TestWizardDoneRetriesAfterMailFailure(t *testing.T) {
	env := newTestEnv(t)
	user, cookie := env.signIn(t, "ana@example.com")
	if err := env.srv.users.SetConfirmationEmails(t.Context(), user.ID, true); err != nil {
		t.Fatalf("opting in: %v", err)
	}
	p := env.newProject(t, user, "Spring search")
	v := env.addVisit(t, p, user, "Maple", nil)
	token := signDraft(t, env.srv.drafts, draft.Draft{ProjectID: p.ID, UserID: user.ID, VisitID: v.ID, Visit: mapleInput()})

	env.mailer.err = errMailDown
	env.do(t, "POST", wizardURL(p.ID, "done", ""), url.Values{"draft": {token}}, cookie)

	env.mailer.err = nil
	env.do(t, "POST", wizardURL(p.ID, "done", ""), url.Values{"draft": {token}}, cookie)
	if n := env.mailer.count(); n != 1 {
		t.Errorf("emails sent = %d, want 1 after retry", n)
	}
}

func TestVisitEditAndDelete(t *testing.T) {
	env := newTestEnv(t)
	user, cookie := env.signIn(t, "ana@example.com")
	p := env.newProject(t, user, "Spring search")
	kitchen := env.addCriteria(t, p.ID, "Kitchen", criteria.Rating)
	v := env.addVisit(t, p, user, "Maple", map[int64]string{kitchen.ID: "3"})

	w := env.do(t, "GET", visitURL(p.ID, v.ID), nil, cookie)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "3/5") {
		t.Fatalf("visit page status = %d, want 200 showing 3/5", w.Code)
	}

	form := url.Values{"name": {"Maple"}, "address": {"12 Maple Ave"}, "visit_date": {"2026-03-15"}}
	form.Set(fmt.Sprintf("c_%d", kitchen.ID), "5")
	w = env.do(t, "POST", visitURL(p.ID, v.ID), form, cookie)
	assertRedirect(t, w, visitURL(p.ID, v.ID))

	got, err := env.srv.assessments.Get(t.Context(), v.ID, kitchen.ID)
	if err != nil {
		t.Fatalf("get assessment: %v", err)
	}
	if r, _ := got.Rating(); r != 5 {
		t.Errorf("kitchen = %d, want 5", r)
	}

	w = env.do(t, "POST", visitURL(p.ID, v.ID)+"/delete", url.Values{}, cookie)
	assertRedirect(t, w, projectURL(p.ID))
	if n, _ := env.srv.visits.Count(t.Context(), p.ID); n != 0 {
		t.Errorf("visits after delete = %d, want 0", n)
	}
}

func mapleInput() visit.Input {
	return visit.Input{Name: "Maple", Address: "12 Maple Ave", VisitDate: "2026-03-14"}
}

func signDraft(t *testing.T, s *draft.Signer, d draft.Draft) string {
	t.Helper()
	token, err := s.Sign(d)
	if err != nil {
		t.Fatalf("signing draft: %v", err)
	}
	return token
}

func location(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303 (body: %s)", w.Code, w.Body.String())
	}
	return w.Header().Get("Location")
}

func draftParam(t *testing.T, target string) string {
	t.Helper()
	u, err := url.Parse(target)
	if err != nil {
		t.Fatalf("parsing %q: %v", target, err)
	}
	token := u.Query().Get("draft")
	if token == "" {
		t.Fatalf("no draft in %q", target)
	}
	return token
}

// uploadPhotos posts files as a multipart "photos" upload. Files ending in
// an image extension get image content.
func uploadPhotos(t *testing.T, env *testEnv, target string, cookie *http.Cookie, filenames ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range filenames {
		fw, err := mw.CreateFormFile("photos", name)
		if err != nil {
			t.Fatalf("creating form file: %v", err)
		}
		content := "plain text"
		if !strings.HasSuffix(name, ".txt") {
			content = pngHeader
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("writing form file: %v", err)
		}
	}
	if err := mw.WriteField("caption", "Front"); err != nil {
		t.Fatalf("writing caption: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart: %v", err)
	}

	r := httptest.NewRequest("POST", target, &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	r.AddCookie(cookie)
	w := httptest.NewRecorder()
	env.srv.ServeHTTP(w, r)
	return w
}
