// Package model はコンソールが扱うドメインモデルとAPIペイロードを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, upstream, upload, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeValidation     = "VALIDATION_FAILED"
	ErrCodeUpstream       = "UPSTREAM_ERROR"
	ErrCodeTimeout        = "UPSTREAM_TIMEOUT"
	ErrCodeUnavailable    = "UPSTREAM_UNAVAILABLE"
	ErrCodeUploadRejected = "UPLOAD_REJECTED"
	ErrCodeCSRF           = "CSRF_TOKEN_INVALID"
	ErrCodeRateLimited    = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "セッションが無効です。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
// APIへは送信されない。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  reason,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUpstreamError はローンAPIがエラーを返した場合のエラーを生成する。
// messageにはAPIのdetailフィールドをそのまま使用する。
func NewUpstreamError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstream,
		Message:  message,
		Category: "upstream",
		Action:   "入力内容を確認し、再度お試しください。",
	}
}

// NewTimeoutError はローンAPIの応答がタイムアウトした場合のエラーを生成する。
func NewTimeoutError() *APIError {
	return &APIError{
		Code:     ErrCodeTimeout,
		Message:  "Request timeout",
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUnavailableError はローンAPIに接続できない場合のエラーを生成する。
func NewUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeUnavailable,
		Message:  "ローンAPIに接続できませんでした。",
		Category: "upstream",
		Action:   "ネットワーク接続を確認し、しばらく待ってから再度お試しください。",
	}
}

// NewUploadRejectedError は画像アップロードが拒否された場合のエラーを生成する。
func NewUploadRejectedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUploadRejected,
		Message:  reason,
		Category: "upload",
		Action:   "5MB未満のPNG、JPG、WEBP、GIF画像を選択してください。",
	}
}

// NewCSRFError はCSRFトークンの検証に失敗した場合のエラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRF,
		Message:  "CSRF token validation failed",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewRateLimitedError はレート制限を超えた場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Retry-Afterの秒数だけ待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
