package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/loandesk/internal/apiclient"
	"github.com/hitoshi/loandesk/internal/auth"
)

// LoginPagePath は未認証時のリダイレクト先。
const LoginPagePath = "/login"

// DefaultProtectedPrefixes は認証が必要なパスのプレフィックス。
var DefaultProtectedPrefixes = []string{"/dashboard", "/loans", "/changepassword", "/admin"}

// GuardConfig はGuardの設定。
type GuardConfig struct {
	Cookie            CookieConfig
	ProtectedPrefixes []string // 空の場合はDefaultProtectedPrefixes
}

// Guard はルーター単位の認証ガード。
// 全リクエストにリクエスト専用のAPIクライアントとauth.Sessionを注入し、
// 保護されたパスでは認証済みでなければログイン画面へリダイレクトする。
type Guard struct {
	api       *apiclient.Client
	cookie    CookieConfig
	protected []string
	logger    *slog.Logger
}

// NewGuard はGuardを生成する。apiはCookieを持たないベースのクライアント。
func NewGuard(api *apiclient.Client, cfg GuardConfig, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	prefixes := cfg.ProtectedPrefixes
	if len(prefixes) == 0 {
		prefixes = DefaultProtectedPrefixes
	}
	return &Guard{
		api:       api,
		cookie:    cfg.Cookie,
		protected: prefixes,
		logger:    logger,
	}
}

// IsProtected はpathが保護されたプレフィックスに一致するかを返す。
// プレフィックスと完全一致するか、プレフィックスの直後が "/" の場合に一致とみなす。
func (g *Guard) IsProtected(path string) bool {
	for _, p := range g.protected {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// Middleware はGuardをミドルウェアとして返す。
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		protected := g.IsProtected(r.URL.Path)

		cookie, hasCookie := g.cookie.SessionCookie(r)
		if !hasCookie {
			if protected {
				redirectToLogin(w, r)
				return
			}
			client := g.api.WithCookies()
			session := auth.NewUnauthenticated(client, g.logger)
			ctx = ContextWithClient(ctx, client)
			ctx = auth.ContextWithSession(ctx, session)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		client := g.api.WithCookies(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
		session := auth.NewSession(client, g.logger)

		if session.Resolve(ctx) != auth.StateAuthenticated {
			g.cookie.Clear(w)
			if protected {
				g.logger.InfoContext(ctx, "session rejected on protected path",
					slog.String("path", r.URL.Path),
				)
				redirectToLogin(w, r)
				return
			}
		} else {
			annotateUsername(ctx, session.User().Username)
		}

		ctx = ContextWithClient(ctx, client)
		ctx = auth.ContextWithSession(ctx, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// redirectToLogin はログイン画面へ303でリダイレクトする。元のパスはredirectパラメータで渡す。
func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	q := url.Values{"redirect": {target}}
	http.Redirect(w, r, LoginPagePath+"?"+q.Encode(), http.StatusSeeOther)
}

// SafeRedirectTarget はログイン後のリダイレクト先として安全なパスを返す。
// 同一オリジンの絶対パス以外はfallbackを返す。
func SafeRedirectTarget(target, fallback string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	if u.Path == LoginPagePath {
		return fallback
	}
	return target
}
