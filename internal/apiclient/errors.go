package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind はAPI呼び出しエラーの分類。
type Kind string

const (
	// KindHTTP はAPIが2xx以外のステータスを返したことを示す。
	KindHTTP Kind = "http"
	// KindTimeout は設定されたタイムアウト内に応答ヘッダーが届かず中断したことを示す。
	KindTimeout Kind = "timeout"
	// KindNetwork は接続失敗などのトランスポートエラーを示す。
	KindNetwork Kind = "network"
	// KindDecode は2xxのJSONボディのデコードに失敗したことを示す。
	KindDecode Kind = "decode"
	// KindUnknown はそれ以外のエラーを示す。
	KindUnknown Kind = "unknown"
)

const (
	timeoutMessage = "Request timeout"
	unknownMessage = "Unknown error occurred"
)

// Error はAPI呼び出しの失敗を表す。
// Messageはそのままユーザーへの通知に使える文言になっている。
type Error struct {
	Kind    Kind
	Status  int    // KindHTTPの場合のみ設定される
	Message string
	Err     error
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	return e.Message
}

// Unwrap は原因エラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// IsTimeout はerrがタイムアウトによる中断かを返す。
func IsTimeout(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == KindTimeout
}

// StatusCode はerrがHTTPエラーの場合にそのステータスコードを返す。それ以外は0。
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Kind == KindHTTP {
		return apiErr.Status
	}
	return 0
}

// Message はerrからユーザー向けメッセージを取り出す。
// *Errorでない場合やメッセージが空の場合はfallbackを返す。
func Message(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

func newTimeoutError(err error) *Error {
	return &Error{Kind: KindTimeout, Message: timeoutMessage, Err: err}
}

func newUnknownError(err error) *Error {
	return &Error{Kind: KindUnknown, Message: unknownMessage, Err: err}
}

// newHTTPError はエラーレスポンスのボディからdetailを取り出してエラーを生成する。
// detailが無い、または解釈できない場合は "API error: <status>" を使う。
func newHTTPError(status int, body []byte) *Error {
	msg := detailMessage(body)
	if msg == "" {
		msg = fmt.Sprintf("API error: %d", status)
	}
	return &Error{Kind: KindHTTP, Status: status, Message: msg}
}

// detailMessage はエラーボディのdetailフィールドを文字列化する。
// detailは文字列のほか、{"msg": ...} の配列（入力検証エラー）の場合がある。
func detailMessage(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		return s
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(payload.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}

	return ""
}
