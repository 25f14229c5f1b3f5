package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/hitoshi/loandesk/internal/apiclient"
	"github.com/hitoshi/loandesk/internal/auth"
)

// --- モック定義 ---

// stubAPI はauth.APIのモック。
type stubAPI struct {
	getFn  func(ctx context.Context, path string, out any) error
	postFn func(ctx context.Context, path string, body, out any) error
}

func (s *stubAPI) Get(ctx context.Context, path string, out any, _ ...apiclient.RequestOption) error {
	if s.getFn != nil {
		return s.getFn(ctx, path, out)
	}
	return nil
}

func (s *stubAPI) Post(ctx context.Context, path string, body, out any, _ ...apiclient.RequestOption) error {
	if s.postFn != nil {
		return s.postFn(ctx, path, body, out)
	}
	return nil
}

// contextWithUser は指定ユーザーで認証済みのSessionを持つコンテキストを返す。
func contextWithUser(t *testing.T, ctx context.Context, username string) context.Context {
	t.Helper()
	api := &stubAPI{
		getFn: func(ctx context.Context, path string, out any) error {
			*out.(*auth.User) = auth.User{ID: 1, Username: username}
			return nil
		},
	}
	s := auth.NewSession(api, nil)
	if got := s.Resolve(ctx); got != auth.StateAuthenticated {
		t.Fatalf("Resolve() = %v, want authenticated", got)
	}
	return auth.ContextWithSession(ctx, s)
}

// fakeLoanAPI は /auth/me だけを実装するローンAPIのフェイク。
// validTokenのCookieを持つリクエストにのみユーザーを返す。
type fakeLoanAPI struct {
	server *httptest.Server

	mu       sync.Mutex
	meCalls  int
	otherHit []string
}

func newFakeLoanAPI(t *testing.T, cookieName, validToken, username string) *fakeLoanAPI {
	t.Helper()
	f := &fakeLoanAPI{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		if r.URL.Path == auth.MePath {
			f.meCalls++
		} else {
			f.otherHit = append(f.otherHit, r.URL.Path)
		}
		f.mu.Unlock()

		ck, err := r.Cookie(cookieName)
		if r.URL.Path != auth.MePath || err != nil || ck.Value != validToken {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"Not authenticated"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(auth.User{ID: 7, Username: username})
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeLoanAPI) client(t *testing.T) *apiclient.Client {
	t.Helper()
	c, err := apiclient.New(apiclient.Config{BaseURL: f.server.URL})
	if err != nil {
		t.Fatalf("apiclient.New() error = %v", err)
	}
	return c
}

func (f *fakeLoanAPI) sessionChecks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meCalls
}

func (f *fakeLoanAPI) protectedFetches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.otherHit...)
}
