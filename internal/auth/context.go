package auth

import "context"

type contextKey string

const sessionContextKey contextKey = "session"

// ContextWithSession はSessionをコンテキストに格納する。
func ContextWithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// FromContext はコンテキストからSessionを取得する。
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(*Session)
	return s, ok && s != nil
}
