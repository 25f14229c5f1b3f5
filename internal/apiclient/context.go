package apiclient

import "context"

type contextKey string

var requestIDContextKey = contextKey("request_id")

// ContextWithRequestID はAPI呼び出しに付与するリクエストIDをコンテキストへ格納する。
// 格納されたIDはX-Request-IDヘッダーとしてローンAPIへ転送される。
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// RequestIDFromContext はコンテキストからリクエストIDを取得する。無い場合は空文字列。
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}
