package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/loandesk/internal/apiclient"
	"github.com/hitoshi/loandesk/internal/model"
)

// ErrorResponseBody はJSONエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

// ClassifyClientError はローンAPIクライアントのエラーをHTTPステータスと統一エラーに変換する。
//
//	タイムアウト → 504 / 接続失敗 → 502 / APIの401・403 → 401
//	APIの4xx → 同じステータス（detailをそのまま表示） / それ以外 → 502
func ClassifyClientError(err error) (int, *model.APIError) {
	var apiErr *apiclient.Error
	if !errors.As(err, &apiErr) {
		return http.StatusInternalServerError, model.NewInternalError()
	}

	switch apiErr.Kind {
	case apiclient.KindTimeout:
		return http.StatusGatewayTimeout, model.NewTimeoutError()
	case apiclient.KindNetwork:
		return http.StatusBadGateway, model.NewUnavailableError()
	case apiclient.KindHTTP:
		switch {
		case apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden:
			return http.StatusUnauthorized, model.NewUnauthorizedError()
		case apiErr.Status >= 400 && apiErr.Status < 500:
			return apiErr.Status, model.NewUpstreamError(apiErr.Message)
		}
	}
	return http.StatusBadGateway, model.NewUpstreamError(apiErr.Message)
}

// WriteClientError はローンAPIクライアントのエラーを統一フォーマットで書き込む。
func WriteClientError(w http.ResponseWriter, err error) {
	status, apiErr := ClassifyClientError(err)
	WriteErrorResponse(w, status, apiErr)
}
