package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxNoticeLength は通知メッセージとして表示する最大文字数。
const MaxNoticeLength = 300

// TextSanitizer はローンAPIや外部サービスから受け取った文字列を画面表示用のプレーンテキストにする。
// APIのdetailはHTMLを含み得るため、通知Cookieへ格納する前に必ず通す。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はすべてのタグを除去するTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去し、空白を詰めてMaxNoticeLength文字に切り詰める。
// 結果はエスケープされていないプレーンテキストで、テンプレート側でエスケープされる。
func (s *TextSanitizer) Sanitize(text string) string {
	cleaned := html.UnescapeString(s.policy.Sanitize(text))
	cleaned = strings.Join(strings.Fields(cleaned), " ")

	if utf8.RuneCountInString(cleaned) <= MaxNoticeLength {
		return cleaned
	}
	runes := []rune(cleaned)
	return string(runes[:MaxNoticeLength-1]) + "…"
}
