// Package view はhtml/templateによる画面描画を提供する。
// テンプレートはバイナリに埋め込まれ、起動時に一度だけ解析される。
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/hitoshi/loandesk/internal/auth"
)

//go:embed templates/*.html
var templatesFS embed.FS

const layoutFile = "templates/layout.html"

// フラッシュ通知の種類。
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashInfo    = "info"
)

// Flash は1回だけ表示される通知。
type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Page は全画面に共通するテンプレートデータ。
type Page struct {
	Title     string
	Nav       string // ナビゲーションで強調する項目
	User      *auth.User
	Loading   bool
	CSRFToken string
	Flash     *Flash
	Data      any
}

// Renderer は名前付きの画面テンプレートを保持する。
type Renderer struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

// New は埋め込みテンプレートを解析してRendererを生成する。
func New(logger *slog.Logger) (*Renderer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	files, err := fs.Glob(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	pages := make(map[string]*template.Template, len(files))
	for _, f := range files {
		if f == layoutFile {
			continue
		}
		name := strings.TrimSuffix(path.Base(f), ".html")
		t, err := template.New(path.Base(layoutFile)).Funcs(Funcs()).ParseFS(templatesFS, layoutFile, f)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		pages[name] = t
	}

	return &Renderer{pages: pages, logger: logger}, nil
}

// Has は指定した名前の画面が存在するかを返す。
func (v *Renderer) Has(name string) bool {
	_, ok := v.pages[name]
	return ok
}

// Render は画面を描画してレスポンスに書き込む。
// 描画はバッファ上で行い、失敗した場合は途中までの出力を送らずに500を返す。
func (v *Renderer) Render(w http.ResponseWriter, status int, name string, page Page) {
	t, ok := v.pages[name]
	if !ok {
		v.logger.Error("unknown template", slog.String("template", name))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, page); err != nil {
		v.logger.Error("failed to render template",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
