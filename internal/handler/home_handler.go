package handler

import (
	"net/http"
)

// HomeHandler はトップ画面と共通のエラー画面のHTTPハンドラー。
type HomeHandler struct {
	pages
}

// NewHomeHandler はHomeHandlerを生成する。
func NewHomeHandler(deps PageDeps) *HomeHandler {
	return &HomeHandler{pages: newPages(deps)}
}

// Home はトップ画面を表示する。ナビゲーションは認証状態に応じて変わる。
// GET /
func (h *HomeHandler) Home(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "home", "", "", nil)
}

// NotFound は存在しないパスに対してエラー画面を表示する。
func (h *HomeHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.renderStatus(w, r, http.StatusNotFound, "The page you requested does not exist.")
}

// MethodNotAllowed は許可されていないメソッドに対してエラー画面を表示する。
func (h *HomeHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.renderStatus(w, r, http.StatusMethodNotAllowed, "This action is not supported here.")
}

// Health はプロセスの生存確認に応答する。ローンAPIへは問い合わせない。
// GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// permanentRedirect は廃止された画面から移転先への301リダイレクトを返す。
func permanentRedirect(target string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	}
}
