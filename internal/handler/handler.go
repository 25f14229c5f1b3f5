// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/loandesk/internal/apiclient"
	"github.com/hitoshi/loandesk/internal/auth"
	"github.com/hitoshi/loandesk/internal/loanapi"
	"github.com/hitoshi/loandesk/internal/middleware"
	"github.com/hitoshi/loandesk/internal/model"
	"github.com/hitoshi/loandesk/internal/view"
)

// LoanAPI はページハンドラーが使用するローンAPIの操作。*loanapi.Clientが実装する。
type LoanAPI interface {
	DashboardMetrics(ctx context.Context) (*model.DashboardMetrics, error)
	DashboardTrends(ctx context.Context, months int) (model.Trends, error)
	DashboardSummary(ctx context.Context) (*model.DashboardSummary, error)

	ListCustomers(ctx context.Context, limit int) ([]model.Customer, error)
	SearchCustomers(ctx context.Context, q string) ([]model.Customer, error)
	GetCustomer(ctx context.Context, id int64) (*model.CustomerDetail, error)
	CustomerByIDNumber(ctx context.Context, idNumber string) (*model.CustomerDetail, error)
	CheckCustomer(ctx context.Context, idNumber string) (*model.CustomerCheck, error)
	CreateCustomer(ctx context.Context, in model.CustomerInput) (*model.Customer, error)

	ActiveLoans(ctx context.Context, q string) ([]model.Loan, error)
	GetLoan(ctx context.Context, id int64) (*model.Loan, error)
	CreateLoan(ctx context.Context, in model.LoanInput) (*model.Loan, error)
	UpdateLoan(ctx context.Context, id int64, upd model.LoanUpdate) error
	UpdateGuarantor(ctx context.Context, loanID, guarantorID int64, upd model.GuarantorUpdate) error
	RecordPayment(ctx context.Context, in model.PaymentInput) error

	ListOverdue(ctx context.Context, onlyActive bool, limit int) ([]model.Overdue, error)
	PayOverdueInstallment(ctx context.Context, id int64, amount float64) error
	ClearOverdue(ctx context.Context, id int64) error

	ChangePassword(ctx context.Context, in model.PasswordChange) error
	SummaryReport(ctx context.Context, months int) (*http.Response, error)
}

// APIFactory はリクエスト専用のAPIクライアントからLoanAPIを生成する。
type APIFactory func(c *apiclient.Client) LoanAPI

// DefaultAPIFactory はloanapi.Clientを返すAPIFactory。
func DefaultAPIFactory(c *apiclient.Client) LoanAPI {
	return loanapi.New(c)
}

// errNoClient はGuardを通らずにハンドラーが呼ばれた場合のエラー。
var errNoClient = errors.New("no api client in request context")

// pages は画面ハンドラーが共有する依存関係と描画ヘルパー。
type pages struct {
	view   *view.Renderer
	newAPI APIFactory
	flash  *FlashStore
	cookie middleware.CookieConfig
	logger *slog.Logger
}

// PageDeps は画面ハンドラーの共通依存関係。
type PageDeps struct {
	View   *view.Renderer
	NewAPI APIFactory // nilの場合はDefaultAPIFactory
	Flash  *FlashStore
	Cookie middleware.CookieConfig
	Logger *slog.Logger
}

func newPages(deps PageDeps) pages {
	p := pages{
		view:   deps.View,
		newAPI: deps.NewAPI,
		flash:  deps.Flash,
		cookie: deps.Cookie,
		logger: deps.Logger,
	}
	if p.newAPI == nil {
		p.newAPI = DefaultAPIFactory
	}
	if p.flash == nil {
		p.flash = NewFlashStore(FlashConfig{Secure: deps.Cookie.Secure, Domain: deps.Cookie.Domain}, nil)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// api はリクエストに紐づくLoanAPIを返す。
func (p *pages) api(r *http.Request) (LoanAPI, error) {
	c, ok := middleware.ClientFromContext(r.Context())
	if !ok {
		return nil, errNoClient
	}
	return p.newAPI(c), nil
}

// page は全画面に共通するテンプレートデータを組み立てる。フラッシュはここで消費される。
func (p *pages) page(w http.ResponseWriter, r *http.Request, title, nav string, data any) view.Page {
	pg := view.Page{
		Title:     title,
		Nav:       nav,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		Data:      data,
	}
	if s, ok := auth.FromContext(r.Context()); ok {
		pg.User = s.User()
		pg.Loading = s.Loading()
	}
	pg.Flash = p.flash.Pop(w, r)
	return pg
}

// render は画面を描画する。
func (p *pages) render(w http.ResponseWriter, r *http.Request, status int, name, title, nav string, data any) {
	p.view.Render(w, status, name, p.page(w, r, title, nav, data))
}

// renderWithError はAPIエラーを通知として表示しつつ画面を描画する。
// セッション切れの場合はログイン画面へリダイレクトする。
func (p *pages) renderWithError(w http.ResponseWriter, r *http.Request, err error, name, title, nav string, data any) {
	status, apiErr := p.classify(r, err)
	if status == http.StatusUnauthorized {
		p.sessionExpired(w, r)
		return
	}
	pg := p.page(w, r, title, nav, data)
	pg.Flash = &view.Flash{Kind: view.FlashError, Message: p.flash.sanitize(apiErr.Message)}
	p.view.Render(w, status, name, pg)
}

// renderError はエラー画面を描画する。
func (p *pages) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status, apiErr := p.classify(r, err)
	if status == http.StatusUnauthorized {
		p.sessionExpired(w, r)
		return
	}
	p.renderStatus(w, r, status, apiErr.Message)
}

// renderStatus はステータスとメッセージだけのエラー画面を描画する。
func (p *pages) renderStatus(w http.ResponseWriter, r *http.Request, status int, message string) {
	p.render(w, r, status, "error", http.StatusText(status), "", errorData{
		Status:  status,
		Message: p.flash.sanitize(message),
	})
}

// failRedirect はAPIエラーをフラッシュに格納してtargetへリダイレクトする（PRG）。
func (p *pages) failRedirect(w http.ResponseWriter, r *http.Request, err error, target string) {
	status, apiErr := p.classify(r, err)
	if status == http.StatusUnauthorized {
		p.sessionExpired(w, r)
		return
	}
	p.flash.Set(w, r, view.FlashError, apiErr.Message)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// invalidRedirect は入力検証エラーをフラッシュに格納してtargetへリダイレクトする。
func (p *pages) invalidRedirect(w http.ResponseWriter, r *http.Request, message, target string) {
	p.flash.Set(w, r, view.FlashError, message)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// successRedirect は成功通知をフラッシュに格納してtargetへリダイレクトする。
func (p *pages) successRedirect(w http.ResponseWriter, r *http.Request, message, target string) {
	p.flash.Set(w, r, view.FlashSuccess, message)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// classify はエラーを分類し、サーバー側の失敗をログに残す。
func (p *pages) classify(r *http.Request, err error) (int, *model.APIError) {
	status, apiErr := middleware.ClassifyClientError(err)
	if status >= http.StatusInternalServerError {
		p.logger.ErrorContext(r.Context(), "loan api call failed",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
	return status, apiErr
}

// sessionExpired はAPIがセッションを拒否した場合にCookieを消してログイン画面へ送る。
func (p *pages) sessionExpired(w http.ResponseWriter, r *http.Request) {
	p.cookie.Clear(w)
	p.flash.Set(w, r, view.FlashInfo, "Your session has expired. Please sign in again.")
	target := middleware.LoginPagePath
	if r.Method == http.MethodGet {
		target += "?" + url.Values{"redirect": {r.URL.RequestURI()}}.Encode()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// errorData はerror画面のデータ。
type errorData struct {
	Status  int
	Message string
}

// pathID はURLパラメータの正の整数IDを取得する。
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
