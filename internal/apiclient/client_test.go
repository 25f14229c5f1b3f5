package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func newTestClient(t *testing.T, serverURL string, opts ...Option) *Client {
	t.Helper()
	var buf bytes.Buffer
	opts = append([]Option{WithLogger(newTestLogger(&buf))}, opts...)
	c, err := New(Config{BaseURL: serverURL}, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []observedCall
}

type observedCall struct {
	method  string
	route   string
	status  int
	outcome string
}

func (o *recordingObserver) ObserveAPICall(method, route string, status int, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, observedCall{method: method, route: route, status: status, outcome: outcome})
}

func TestNew_InvalidBaseURL_ReturnsError(t *testing.T) {
	for _, raw := range []string{"", "localhost:8100", "ftp://example.com", "http://"} {
		if _, err := New(Config{BaseURL: raw}); err == nil {
			t.Errorf("New(%q) should return error", raw)
		}
	}
}

func TestNew_DefaultTimeout(t *testing.T) {
	c, err := New(Config{BaseURL: "http://localhost:8100/"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Timeout() != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", c.Timeout())
	}
	if c.BaseURL() != "http://localhost:8100" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", c.BaseURL())
	}
}

func TestClient_Get_DecodesJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/customers/7" {
			t.Errorf("path = %s, want /customers/7", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Write([]byte(`{"id":7,"name":"Wanjiru"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	var out struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	if err := c.Get(context.Background(), "/customers/7", &out); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if out.ID != 7 || out.Name != "Wanjiru" {
		t.Errorf("decoded = %+v, want id=7 name=Wanjiru", out)
	}
}

func TestClient_Post_SendsJSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		if body["amount"] != 1500.0 {
			t.Errorf("amount = %v, want 1500", body["amount"])
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	err := c.Post(context.Background(), "/arrears/3/installments", map[string]any{"amount": 1500.0}, nil)
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
}

func TestClient_QueryParameters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("only_active"); got != "true" {
			t.Errorf("only_active = %q, want true", got)
		}
		if got := r.URL.Query().Get("limit"); got != "100" {
			t.Errorf("limit = %q, want 100", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	var out []any
	err := c.Get(context.Background(), "/arrears?only_active=true", &out,
		WithQuery(url.Values{"limit": {"100"}}),
	)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
}

func TestClient_NonJSONResponse_LeavesOutUntouched(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	out := map[string]any{}
	if err := c.Post(context.Background(), "/auth/logout", nil, &out); err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if len(out) != 0 {
		t.Errorf("out = %v, want empty", out)
	}
}

func TestClient_EmptyJSONBody_IsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	var out map[string]any
	if err := c.Delete(context.Background(), "/loans/1", &out); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestClient_ErrorResponse_UsesDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"Customer already has an active loan"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	err := c.Post(context.Background(), "/loans", map[string]any{}, nil)
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if err.Error() != "Customer already has an active loan" {
		t.Errorf("message = %q, want server detail", err.Error())
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if apiErr.Kind != KindHTTP || apiErr.Status != http.StatusBadRequest {
		t.Errorf("kind/status = %s/%d, want http/400", apiErr.Kind, apiErr.Status)
	}
	if StatusCode(err) != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", StatusCode(err))
	}
}

func TestClient_ErrorResponse_WithoutDetail_UsesFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	err := c.Get(context.Background(), "/dashboard/metrics", nil)
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
	if err.Error() != "API error: 502" {
		t.Errorf("message = %q, want %q", err.Error(), "API error: 502")
	}
}

func TestClient_ErrorResponse_ValidationDetailList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":[{"loc":["body","amount"],"msg":"field required"},{"msg":"value is not a valid float"}]}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	err := c.Post(context.Background(), "/payments", map[string]any{}, nil)
	if err == nil {
		t.Fatal("expected error for 422 response")
	}
	want := "field required; value is not a valid float"
	if err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}
}

func TestClient_Timeout_ReportsRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	c := newTestClient(t, server.URL)
	c.timeout = 50 * time.Millisecond

	start := time.Now()
	err := c.Get(context.Background(), "/customers/active", nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if err.Error() != "Request timeout" {
		t.Errorf("message = %q, want %q", err.Error(), "Request timeout")
	}
	if !IsTimeout(err) {
		t.Errorf("IsTimeout = false, want true (err=%v)", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("request was not aborted promptly: %v", elapsed)
	}
}

func TestClient_NetworkError_IsNotTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	c := newTestClient(t, addr)

	err := c.Get(context.Background(), "/auth/me", nil)
	if err == nil {
		t.Fatal("expected network error")
	}
	if IsTimeout(err) {
		t.Error("connection refused should not be reported as timeout")
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Kind != KindNetwork {
		t.Errorf("error = %#v, want KindNetwork", err)
	}
}

func TestClient_InvalidJSON_ReturnsDecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	var out map[string]any
	err := c.Get(context.Background(), "/loans/1", &out)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Kind != KindDecode {
		t.Errorf("error = %v, want KindDecode", err)
	}
}

func TestClient_UnmarshalableBody_ReturnsUnknownError(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")

	err := c.Post(context.Background(), "/loans", map[string]any{"bad": make(chan int)}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "Unknown error occurred" {
		t.Errorf("message = %q, want %q", err.Error(), "Unknown error occurred")
	}
}

func TestClient_Stream_ReturnsRawResponse(t *testing.T) {
	pdf := []byte("%PDF-1.7 fake report")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(pdf)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	resp, err := c.Stream(context.Background(), http.MethodGet, "/reports/summary/pdf", nil)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("Content-Type") != "application/pdf" {
		t.Errorf("Content-Type = %q, want application/pdf", resp.Header.Get("Content-Type"))
	}
	got, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	if !bytes.Equal(got, pdf) {
		t.Errorf("body = %q, want %q", got, pdf)
	}
}

func TestClient_Stream_ErrorStatus_ReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Report not available"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	resp, err := c.Stream(context.Background(), http.MethodGet, "/reports/summary/pdf", nil)
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected error")
	}
	if err.Error() != "Report not available" {
		t.Errorf("message = %q, want %q", err.Error(), "Report not available")
	}
}

func TestClient_WithCookies_SendsSessionCookie(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("session_token")
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if ck.Value != "opaque-token" {
			t.Errorf("cookie = %q, want opaque-token", ck.Value)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":1,"username":"alice"}`))
	}))
	defer server.Close()

	base := newTestClient(t, server.URL)
	c := base.WithCookies(&http.Cookie{Name: "session_token", Value: "opaque-token"})

	if err := c.Get(context.Background(), "/auth/me", nil); err != nil {
		t.Fatalf("Get() with cookie error = %v", err)
	}

	// 元のクライアントのJarには影響しない
	if err := base.Get(context.Background(), "/auth/me", nil); StatusCode(err) != http.StatusUnauthorized {
		t.Errorf("base client should not carry cookie, got err=%v", err)
	}
}

func TestClient_Cookies_ExposesCookiesSetByAPI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session_token", Value: "issued", Path: "/", HttpOnly: true})
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL).WithCookies()

	if err := c.Post(context.Background(), "/auth/login", map[string]string{"username": "alice"}, nil); err != nil {
		t.Fatalf("Post() error = %v", err)
	}

	cookies := c.Cookies()
	if len(cookies) != 1 || cookies[0].Name != "session_token" || cookies[0].Value != "issued" {
		t.Errorf("Cookies = %v, want session_token=issued", cookies)
	}
}

func TestClient_ForwardsRequestID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Request-ID"); got != "req-123" {
			t.Errorf("X-Request-ID = %q, want req-123", got)
		}
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	ctx := ContextWithRequestID(context.Background(), "req-123")

	if err := c.Get(ctx, "/auth/me", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClient_HeaderOverride(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "application/pdf" {
			t.Errorf("Accept = %q, want application/pdf", got)
		}
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	resp, err := c.Stream(context.Background(), http.MethodGet, "/reports/summary/pdf", nil,
		WithHeader("Accept", "application/pdf"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
}

func TestClient_Observer_ReceivesOutcome(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/missing") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	obs := &recordingObserver{}
	c := newTestClient(t, server.URL, WithObserver(obs))

	c.Get(context.Background(), "/loans/42", nil)
	c.Get(context.Background(), "/loans/42/missing", nil, WithRoute("/loans/{id}/missing"))

	if len(obs.calls) != 2 {
		t.Fatalf("observed calls = %d, want 2", len(obs.calls))
	}
	if obs.calls[0].route != "/loans/:id" || obs.calls[0].outcome != "success" || obs.calls[0].status != 200 {
		t.Errorf("first call = %+v", obs.calls[0])
	}
	if obs.calls[1].route != "/loans/{id}/missing" || obs.calls[1].outcome != "http" || obs.calls[1].status != 404 {
		t.Errorf("second call = %+v", obs.calls[1])
	}
}

func TestNormalizeRoute(t *testing.T) {
	cases := map[string]string{
		"/loans/12":                  "/loans/:id",
		"/arrears/3/installments":    "/arrears/:id/installments",
		"/dashboard/trends?months=3": "/dashboard/trends",
		"customers":                  "/customers",
		"/loans/5/guarantor/9":       "/loans/:id/guarantor/:id",
	}
	for in, want := range cases {
		if got := normalizeRoute(in); got != want {
			t.Errorf("normalizeRoute(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMessage_Fallback(t *testing.T) {
	if got := Message(errors.New("boom"), "Failed"); got != "Failed" {
		t.Errorf("Message = %q, want Failed", got)
	}
	if got := Message(&Error{Kind: KindHTTP, Message: "Invalid credentials"}, "Failed"); got != "Invalid credentials" {
		t.Errorf("Message = %q, want Invalid credentials", got)
	}
}
