package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/loandesk/internal/auth"
	"github.com/hitoshi/loandesk/internal/middleware"
	"github.com/hitoshi/loandesk/internal/model"
	"github.com/hitoshi/loandesk/internal/view"
)

// 認証画面のメッセージ。
const (
	MsgPasswordChanged = "Password changed successfully"
	dashboardPath      = "/dashboard"
)

// LoginRecorder はログイン試行の結果を記録する。metrics.Collectorが実装する。
type LoginRecorder interface {
	RecordLogin(success bool)
}

// AuthHandler はログイン・ログアウト・パスワード変更とセッション状態のHTTPハンドラー。
type AuthHandler struct {
	pages
	metrics  LoginRecorder
	validate *formValidator
}

// NewAuthHandler はAuthHandlerを生成する。metricsはnilでもよい。
func NewAuthHandler(deps PageDeps, metrics LoginRecorder) *AuthHandler {
	return &AuthHandler{
		pages:    newPages(deps),
		metrics:  metrics,
		validate: newFormValidator(),
	}
}

type loginData struct {
	Error    string
	Redirect string
	Username string
}

// LoginPage はログイン画面を表示する。ログイン済みの場合はリダイレクト先へ送る。
// GET /login
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	redirect := r.URL.Query().Get("redirect")
	if s, ok := auth.FromContext(r.Context()); ok && s.IsAuthenticated() {
		http.Redirect(w, r, middleware.SafeRedirectTarget(redirect, dashboardPath), http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, "login", "Sign in", "", loginData{Redirect: redirect})
}

// Login は認証情報を送信し、成功時はAPIが発行したセッションCookieをブラウザへ中継する。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.FromContext(r.Context())
	client, hasClient := middleware.ClientFromContext(r.Context())
	if !ok || !hasClient {
		middleware.WriteInternalServerError(w)
		return
	}

	username := formValue(r, "username")
	redirect := r.FormValue("redirect")

	result := session.Login(r.Context(), username, r.FormValue("password"))
	h.recordLogin(result.Success)
	if !result.Success {
		h.render(w, r, http.StatusUnauthorized, "login", "Sign in", "", loginData{
			Error:    h.flash.sanitize(result.Message),
			Redirect: redirect,
			Username: username,
		})
		return
	}

	if n := h.cookie.Relay(w, client.Cookies()); n == 0 {
		h.logger.WarnContext(r.Context(), "login succeeded but the api set no cookies",
			slog.String("username", username),
		)
	}
	h.successRedirect(w, r, result.Message, middleware.SafeRedirectTarget(redirect, dashboardPath))
}

// Logout はAPIのセッションを破棄し、ログイン画面へリダイレクトする。
// APIの結果に関わらずブラウザのセッションCookieは削除する。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session, ok := auth.FromContext(r.Context()); ok {
		session.Logout(r.Context())
	}
	h.cookie.Clear(w)
	h.flash.Set(w, r, view.FlashSuccess, auth.MsgLoggedOut)
	http.Redirect(w, r, middleware.LoginPagePath, http.StatusSeeOther)
}

type changePasswordData struct {
	Error string
}

// ChangePasswordPage はパスワード変更画面を表示する。
// GET /changepassword
func (h *AuthHandler) ChangePasswordPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "changepassword", "Change password", "", changePasswordData{})
}

// ChangePassword はパスワードを変更する。確認用の入力が一致しない場合はAPIへ送信しない。
// POST /changepassword
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	in := model.PasswordChange{
		OldPassword: r.FormValue("old_password"),
		NewPassword: r.FormValue("new_password"),
	}
	if in.NewPassword != r.FormValue("confirm_password") {
		h.render(w, r, http.StatusBadRequest, "changepassword", "Change password", "",
			changePasswordData{Error: MsgPasswordMismatch})
		return
	}
	if err := h.validate.Validate(in); err != nil {
		h.render(w, r, http.StatusBadRequest, "changepassword", "Change password", "",
			changePasswordData{Error: err.Error()})
		return
	}

	api, err := h.api(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := api.ChangePassword(r.Context(), in); err != nil {
		status, apiErr := h.classify(r, err)
		if status == http.StatusUnauthorized {
			h.sessionExpired(w, r)
			return
		}
		h.render(w, r, status, "changepassword", "Change password", "",
			changePasswordData{Error: h.flash.sanitize(apiErr.Message)})
		return
	}

	h.successRedirect(w, r, MsgPasswordChanged, dashboardPath)
}

// Session は現在のセッション状態をJSONで返す。
// GET /api/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.FromContext(r.Context())
	if !ok {
		middleware.WriteInternalServerError(w)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

// RefreshSession はセッション確認をやり直し、結果の状態をJSONで返す。
// POST /api/session/refresh
func (h *AuthHandler) RefreshSession(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.FromContext(r.Context())
	if !ok {
		middleware.WriteInternalServerError(w)
		return
	}
	if _, hasCookie := h.cookie.SessionCookie(r); hasCookie {
		if session.Refresh(r.Context()) != auth.StateAuthenticated {
			h.cookie.Clear(w)
		}
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (h *AuthHandler) recordLogin(success bool) {
	if h.metrics != nil {
		h.metrics.RecordLogin(success)
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
