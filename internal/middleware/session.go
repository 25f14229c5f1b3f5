// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net/http"

	"github.com/hitoshi/loandesk/internal/apiclient"
	"github.com/hitoshi/loandesk/internal/auth"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	clientContextKey      = contextKey("api_client")
	csrfTokenContextKey   = contextKey("csrf_token")
	requestInfoContextKey = contextKey("request_info")
)

// CookieConfig はブラウザへ中継するセッションCookieの設定。
// Cookieの値はローンAPIが発行したものをそのまま扱い、中身は解釈しない。
type CookieConfig struct {
	Name   string
	Domain string
	Secure bool
	MaxAge int // 秒
}

// SessionCookie はリクエストからセッションCookieを取得する。値が空の場合はfalse。
func (c CookieConfig) SessionCookie(r *http.Request) (*http.Cookie, bool) {
	ck, err := r.Cookie(c.Name)
	if err != nil || ck.Value == "" {
		return nil, false
	}
	return ck, true
}

// Relay はローンAPIのCookie Jarに保存されたCookieをブラウザへ書き出す。
// 属性はコンソール側の設定で上書きする。
func (c CookieConfig) Relay(w http.ResponseWriter, cookies []*http.Cookie) int {
	n := 0
	for _, ck := range cookies {
		if ck == nil || ck.Name == "" {
			continue
		}
		http.SetCookie(w, &http.Cookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Path:     "/",
			Domain:   c.Domain,
			MaxAge:   c.MaxAge,
			HttpOnly: true,
			Secure:   c.Secure,
			SameSite: http.SameSiteLaxMode,
		})
		n++
	}
	return n
}

// Clear はブラウザのセッションCookieを削除する。
func (c CookieConfig) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ContextWithClient はリクエスト専用のAPIクライアントをコンテキストに注入する。
func ContextWithClient(ctx context.Context, c *apiclient.Client) context.Context {
	return context.WithValue(ctx, clientContextKey, c)
}

// ClientFromContext はGuardが注入したリクエスト専用のAPIクライアントを取得する。
func ClientFromContext(ctx context.Context) (*apiclient.Client, bool) {
	c, ok := ctx.Value(clientContextKey).(*apiclient.Client)
	return c, ok && c != nil
}

// UsernameFromContext は認証済みセッションのユーザー名を取得する。
func UsernameFromContext(ctx context.Context) (string, bool) {
	s, ok := auth.FromContext(ctx)
	if !ok {
		return "", false
	}
	u := s.User()
	if u == nil {
		return "", false
	}
	return u.Username, true
}
