package handler

import (
	"encoding/gob"
	"log/slog"
	"net/http"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/hitoshi/loandesk/internal/security"
	"github.com/hitoshi/loandesk/internal/view"
)

const (
	// flashCookieName は1回限りの通知を運ぶCookieの名前。
	flashCookieName = "loandesk_flash"
	flashMaxAge     = 60 // 秒
)

func init() {
	gob.Register(view.Flash{})
}

// FlashConfig はフラッシュCookieの設定。
type FlashConfig struct {
	// Secret はCookieの署名鍵（32バイト以上）。空の場合はプロセスごとのランダム鍵を使う。
	Secret []byte
	Secure bool
	Domain string
}

// FlashStore は署名付きCookieに1回限りの通知を格納する。
// メッセージはAPIのdetailを含み得るため、格納前と表示前にプレーンテキスト化する。
type FlashStore struct {
	store     *sessions.CookieStore
	sanitizer *security.TextSanitizer
}

// NewFlashStore はFlashStoreを生成する。
func NewFlashStore(cfg FlashConfig, sanitizer *security.TextSanitizer) *FlashStore {
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}
	secret := cfg.Secret
	if len(secret) == 0 {
		secret = securecookie.GenerateRandomKey(32)
	}

	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   flashMaxAge,
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	store.MaxAge(flashMaxAge)
	return &FlashStore{store: store, sanitizer: sanitizer}
}

// Set は次の画面で表示する通知を設定する。未表示の通知は置き換える。
func (f *FlashStore) Set(w http.ResponseWriter, r *http.Request, kind, message string) {
	message = f.sanitize(message)
	if message == "" {
		return
	}

	// 改ざん・期限切れのCookieは新しいセッションとして扱う
	sess, _ := f.store.Get(r, flashCookieName)
	sess.Flashes()
	sess.Options.MaxAge = flashMaxAge
	sess.AddFlash(view.Flash{Kind: kind, Message: message})
	if err := sess.Save(r, w); err != nil {
		slog.WarnContext(r.Context(), "failed to save flash", slog.String("error", err.Error()))
	}
}

// Pop は通知を取り出し、Cookieを削除する。通知が無い場合や検証できない場合はnil。
func (f *FlashStore) Pop(w http.ResponseWriter, r *http.Request) *view.Flash {
	if _, err := r.Cookie(flashCookieName); err != nil {
		return nil
	}

	sess, err := f.store.Get(r, flashCookieName)
	flashes := sess.Flashes()
	sess.Options.MaxAge = -1
	if saveErr := sess.Save(r, w); saveErr != nil {
		slog.WarnContext(r.Context(), "failed to clear flash", slog.String("error", saveErr.Error()))
	}
	if err != nil || len(flashes) == 0 {
		return nil
	}

	flash, ok := flashes[len(flashes)-1].(view.Flash)
	if !ok {
		return nil
	}
	switch flash.Kind {
	case view.FlashSuccess, view.FlashError, view.FlashInfo:
	default:
		flash.Kind = view.FlashInfo
	}
	flash.Message = f.sanitize(flash.Message)
	if flash.Message == "" {
		return nil
	}
	return &flash
}

func (f *FlashStore) sanitize(text string) string {
	if f == nil || f.sanitizer == nil {
		return text
	}
	return f.sanitizer.Sanitize(text)
}
