package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/loandesk/internal/auth"
)

// newChainRouter はサーバーと同じ順序でミドルウェアを積んだchi.Routerを返す。
func newChainRouter(t *testing.T, api *fakeLoanAPI, logs *bytes.Buffer) *chi.Mux {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(logs, nil))
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate: 1, GeneralBurst: 100,
		LoginRate: 1, LoginBurst: 100,
		CleanupInterval: time.Minute,
	})
	t.Cleanup(rl.Stop)

	csrf := CSRFConfig{}
	r := chi.NewRouter()
	r.Use(NewRequestIDMiddleware())
	r.Use(NewLoggingMiddleware(logger))
	r.Use(NewRecoveryMiddleware())
	r.Use(NewSecurityHeadersMiddleware())
	r.Use(NewCSRFMiddleware(csrf))
	r.Use(newTestGuard(t, api).Middleware)
	r.Use(rl.GeneralMiddleware())

	r.Get("/api/csrf-token", NewCSRFTokenHandler(csrf).ServeHTTP)
	r.Get("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		s, _ := auth.FromContext(r.Context())
		w.Write([]byte("hello " + s.User().Username))
	})
	r.Post("/dashboard/pay-installments", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusSeeOther)
	})
	return r
}

func TestMiddlewareChain_AuthenticatedGET(t *testing.T) {
	api := newFakeLoanAPI(t, testCookieName, "good", "alice")
	var logs bytes.Buffer
	r := newChainRouter(t, api, &logs)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: testCookieName, Value: "good"})
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "hello alice" {
		t.Errorf("body = %q", w.Body.String())
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID header")
	}
	if !strings.Contains(logs.String(), `"username":"alice"`) {
		t.Errorf("request log should include username, got %s", logs.String())
	}
}

func TestMiddlewareChain_POSTWithoutCSRF_RejectedBeforeSessionCheck(t *testing.T) {
	api := newFakeLoanAPI(t, testCookieName, "good", "alice")
	var logs bytes.Buffer
	r := newChainRouter(t, api, &logs)

	req := httptest.NewRequest(http.MethodPost, "/dashboard/pay-installments", nil)
	req.AddCookie(&http.Cookie{Name: testCookieName, Value: "good"})
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if api.sessionChecks() != 0 {
		t.Errorf("session checks = %d, want 0", api.sessionChecks())
	}
}

func TestMiddlewareChain_POSTWithCSRF_Authenticated(t *testing.T) {
	api := newFakeLoanAPI(t, testCookieName, "good", "alice")
	var logs bytes.Buffer
	r := newChainRouter(t, api, &logs)

	// CSRFトークンを取得する
	tokenReq := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	tokenRes := httptest.NewRecorder()
	r.ServeHTTP(tokenRes, tokenReq)

	var csrfToken string
	for _, c := range tokenRes.Result().Cookies() {
		if c.Name == csrfCookieName {
			csrfToken = c.Value
		}
	}
	if csrfToken == "" {
		t.Fatal("expected CSRF cookie")
	}

	form := url.Values{CSRFFormField: {csrfToken}, "id_number": {"A1"}, "amount": {"100"}}
	req := httptest.NewRequest(http.MethodPost, "/dashboard/pay-installments", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: testCookieName, Value: "good"})
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: csrfToken})
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if api.sessionChecks() != 1 {
		t.Errorf("session checks = %d, want 1", api.sessionChecks())
	}
}

func TestMiddlewareChain_UnauthenticatedProtectedPage_RedirectsToLogin(t *testing.T) {
	api := newFakeLoanAPI(t, testCookieName, "good", "alice")
	var logs bytes.Buffer
	r := newChainRouter(t, api, &logs)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if !strings.HasPrefix(w.Header().Get("Location"), LoginPagePath+"?redirect=") {
		t.Errorf("Location = %q", w.Header().Get("Location"))
	}
}
