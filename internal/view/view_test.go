package view

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/loandesk/internal/auth"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := New(nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func TestNew_ParsesAllPages(t *testing.T) {
	r := newTestRenderer(t)

	pages := []string{
		"home", "login", "changepassword", "dashboard", "customers", "customer",
		"active_loans", "loan", "add_loan", "pay_installments", "overdue", "error",
	}
	for _, p := range pages {
		if !r.Has(p) {
			t.Errorf("page %q not parsed", p)
		}
	}
	if r.Has("layout") {
		t.Error("layout should not be a standalone page")
	}
}

func TestRender_LoginPage_EscapesAndEmbedsCSRF(t *testing.T) {
	r := newTestRenderer(t)
	w := httptest.NewRecorder()

	r.Render(w, http.StatusUnauthorized, "login", Page{
		Title:     "Sign in",
		CSRFToken: "tok-123",
		Data: struct {
			Username string
			Redirect string
			Error    string
		}{Username: "<alice>", Redirect: "/dashboard/overdue", Error: "Invalid credentials"},
	})

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	for _, want := range []string{`value="tok-123"`, "Invalid credentials", "&lt;alice&gt;", `value="/dashboard/overdue"`} {
		if !strings.Contains(body, want) {
			t.Errorf("body should contain %q", want)
		}
	}
	if strings.Contains(body, "<alice>") {
		t.Error("username must be escaped")
	}
}

func TestRender_LayoutReflectsAuthState(t *testing.T) {
	r := newTestRenderer(t)

	w := httptest.NewRecorder()
	r.Render(w, http.StatusOK, "home", Page{User: &auth.User{Username: "alice"}, CSRFToken: "t"})
	body := w.Body.String()
	if !strings.Contains(body, "alice") || !strings.Contains(body, `action="/logout"`) {
		t.Error("authenticated layout should show the user and logout form")
	}

	w = httptest.NewRecorder()
	r.Render(w, http.StatusOK, "home", Page{})
	body = w.Body.String()
	if strings.Contains(body, `action="/logout"`) {
		t.Error("anonymous layout should not show logout")
	}
	if !strings.Contains(body, `href="/login"`) {
		t.Error("anonymous layout should link to login")
	}
}

func TestRender_Flash(t *testing.T) {
	r := newTestRenderer(t)
	w := httptest.NewRecorder()

	r.Render(w, http.StatusOK, "home", Page{Flash: &Flash{Kind: FlashSuccess, Message: "Welcome back!"}})

	if !strings.Contains(w.Body.String(), `class="flash flash-success"`) {
		t.Error("expected success flash")
	}
	if !strings.Contains(w.Body.String(), "Welcome back!") {
		t.Error("expected flash message")
	}
}

func TestRender_UnknownPage_Returns500(t *testing.T) {
	r := newTestRenderer(t)
	w := httptest.NewRecorder()

	r.Render(w, http.StatusOK, "missing", Page{})

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestRender_ErrorPage(t *testing.T) {
	r := newTestRenderer(t)
	w := httptest.NewRecorder()

	r.Render(w, http.StatusNotFound, "error", Page{Data: struct {
		Status  int
		Message string
	}{http.StatusNotFound, "Customer not found"}})

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if !strings.Contains(w.Body.String(), "Customer not found") {
		t.Error("expected message in body")
	}
}
