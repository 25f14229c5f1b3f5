package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/loandesk/internal/apiclient"
	"github.com/hitoshi/loandesk/internal/auth"
	"github.com/hitoshi/loandesk/internal/middleware"
	"github.com/hitoshi/loandesk/internal/model"
	"github.com/hitoshi/loandesk/internal/view"
)

// --- モック定義 ---

// mockLoanAPI はLoanAPIのモック。未設定のメソッドはゼロ値を返す。
type mockLoanAPI struct {
	dashboardMetricsFn   func(ctx context.Context) (*model.DashboardMetrics, error)
	dashboardTrendsFn    func(ctx context.Context, months int) (model.Trends, error)
	dashboardSummaryFn   func(ctx context.Context) (*model.DashboardSummary, error)
	listCustomersFn      func(ctx context.Context, limit int) ([]model.Customer, error)
	searchCustomersFn    func(ctx context.Context, q string) ([]model.Customer, error)
	getCustomerFn        func(ctx context.Context, id int64) (*model.CustomerDetail, error)
	customerByIDNumberFn func(ctx context.Context, idNumber string) (*model.CustomerDetail, error)
	checkCustomerFn      func(ctx context.Context, idNumber string) (*model.CustomerCheck, error)
	createCustomerFn     func(ctx context.Context, in model.CustomerInput) (*model.Customer, error)
	activeLoansFn        func(ctx context.Context, q string) ([]model.Loan, error)
	getLoanFn            func(ctx context.Context, id int64) (*model.Loan, error)
	createLoanFn         func(ctx context.Context, in model.LoanInput) (*model.Loan, error)
	updateLoanFn         func(ctx context.Context, id int64, upd model.LoanUpdate) error
	updateGuarantorFn    func(ctx context.Context, loanID, guarantorID int64, upd model.GuarantorUpdate) error
	recordPaymentFn      func(ctx context.Context, in model.PaymentInput) error
	listOverdueFn        func(ctx context.Context, onlyActive bool, limit int) ([]model.Overdue, error)
	payOverdueFn         func(ctx context.Context, id int64, amount float64) error
	clearOverdueFn       func(ctx context.Context, id int64) error
	changePasswordFn     func(ctx context.Context, in model.PasswordChange) error
	summaryReportFn      func(ctx context.Context, months int) (*http.Response, error)
}

func (m *mockLoanAPI) DashboardMetrics(ctx context.Context) (*model.DashboardMetrics, error) {
	if m.dashboardMetricsFn != nil {
		return m.dashboardMetricsFn(ctx)
	}
	return &model.DashboardMetrics{}, nil
}

func (m *mockLoanAPI) DashboardTrends(ctx context.Context, months int) (model.Trends, error) {
	if m.dashboardTrendsFn != nil {
		return m.dashboardTrendsFn(ctx, months)
	}
	return nil, nil
}

func (m *mockLoanAPI) DashboardSummary(ctx context.Context) (*model.DashboardSummary, error) {
	if m.dashboardSummaryFn != nil {
		return m.dashboardSummaryFn(ctx)
	}
	return &model.DashboardSummary{}, nil
}

func (m *mockLoanAPI) ListCustomers(ctx context.Context, limit int) ([]model.Customer, error) {
	if m.listCustomersFn != nil {
		return m.listCustomersFn(ctx, limit)
	}
	return nil, nil
}

func (m *mockLoanAPI) SearchCustomers(ctx context.Context, q string) ([]model.Customer, error) {
	if m.searchCustomersFn != nil {
		return m.searchCustomersFn(ctx, q)
	}
	return nil, nil
}

func (m *mockLoanAPI) GetCustomer(ctx context.Context, id int64) (*model.CustomerDetail, error) {
	if m.getCustomerFn != nil {
		return m.getCustomerFn(ctx, id)
	}
	return &model.CustomerDetail{}, nil
}

func (m *mockLoanAPI) CustomerByIDNumber(ctx context.Context, idNumber string) (*model.CustomerDetail, error) {
	if m.customerByIDNumberFn != nil {
		return m.customerByIDNumberFn(ctx, idNumber)
	}
	return &model.CustomerDetail{}, nil
}

func (m *mockLoanAPI) CheckCustomer(ctx context.Context, idNumber string) (*model.CustomerCheck, error) {
	if m.checkCustomerFn != nil {
		return m.checkCustomerFn(ctx, idNumber)
	}
	return &model.CustomerCheck{}, nil
}

func (m *mockLoanAPI) CreateCustomer(ctx context.Context, in model.CustomerInput) (*model.Customer, error) {
	if m.createCustomerFn != nil {
		return m.createCustomerFn(ctx, in)
	}
	return &model.Customer{}, nil
}

func (m *mockLoanAPI) ActiveLoans(ctx context.Context, q string) ([]model.Loan, error) {
	if m.activeLoansFn != nil {
		return m.activeLoansFn(ctx, q)
	}
	return nil, nil
}

func (m *mockLoanAPI) GetLoan(ctx context.Context, id int64) (*model.Loan, error) {
	if m.getLoanFn != nil {
		return m.getLoanFn(ctx, id)
	}
	return &model.Loan{ID: id}, nil
}

func (m *mockLoanAPI) CreateLoan(ctx context.Context, in model.LoanInput) (*model.Loan, error) {
	if m.createLoanFn != nil {
		return m.createLoanFn(ctx, in)
	}
	return &model.Loan{}, nil
}

func (m *mockLoanAPI) UpdateLoan(ctx context.Context, id int64, upd model.LoanUpdate) error {
	if m.updateLoanFn != nil {
		return m.updateLoanFn(ctx, id, upd)
	}
	return nil
}

func (m *mockLoanAPI) UpdateGuarantor(ctx context.Context, loanID, guarantorID int64, upd model.GuarantorUpdate) error {
	if m.updateGuarantorFn != nil {
		return m.updateGuarantorFn(ctx, loanID, guarantorID, upd)
	}
	return nil
}

func (m *mockLoanAPI) RecordPayment(ctx context.Context, in model.PaymentInput) error {
	if m.recordPaymentFn != nil {
		return m.recordPaymentFn(ctx, in)
	}
	return nil
}

func (m *mockLoanAPI) ListOverdue(ctx context.Context, onlyActive bool, limit int) ([]model.Overdue, error) {
	if m.listOverdueFn != nil {
		return m.listOverdueFn(ctx, onlyActive, limit)
	}
	return nil, nil
}

func (m *mockLoanAPI) PayOverdueInstallment(ctx context.Context, id int64, amount float64) error {
	if m.payOverdueFn != nil {
		return m.payOverdueFn(ctx, id, amount)
	}
	return nil
}

func (m *mockLoanAPI) ClearOverdue(ctx context.Context, id int64) error {
	if m.clearOverdueFn != nil {
		return m.clearOverdueFn(ctx, id)
	}
	return nil
}

func (m *mockLoanAPI) ChangePassword(ctx context.Context, in model.PasswordChange) error {
	if m.changePasswordFn != nil {
		return m.changePasswordFn(ctx, in)
	}
	return nil
}

func (m *mockLoanAPI) SummaryReport(ctx context.Context, months int) (*http.Response, error) {
	if m.summaryReportFn != nil {
		return m.summaryReportFn(ctx, months)
	}
	return &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: io.NopCloser(strings.NewReader(""))}, nil
}

// stubSessionAPI はauth.APIのモック。userがnilの場合は401を返す。
// ログインが成功するとloginUserがセッションのユーザーになる。
type stubSessionAPI struct {
	user      *auth.User
	loginUser *auth.User
	loginErr  error
	logouts   int
}

func (s *stubSessionAPI) Get(ctx context.Context, path string, out any, _ ...apiclient.RequestOption) error {
	if s.user == nil {
		return &apiclient.Error{Kind: apiclient.KindHTTP, Status: http.StatusUnauthorized, Message: "Not authenticated"}
	}
	*out.(*auth.User) = *s.user
	return nil
}

func (s *stubSessionAPI) Post(ctx context.Context, path string, body, out any, _ ...apiclient.RequestOption) error {
	switch path {
	case auth.LoginPath:
		if s.loginErr != nil {
			return s.loginErr
		}
		s.user = s.loginUser
	case auth.LogoutPath:
		s.logouts++
	}
	return nil
}

// --- ヘルパー ---

const testCookieName = "session_token"

// testFlashStore はテスト間で署名鍵を共有するFlashStore。
var testFlashStore = NewFlashStore(FlashConfig{Secret: []byte("loandesk-test-flash-secret-32byte")}, nil)

func testCookieConfig() middleware.CookieConfig {
	return middleware.CookieConfig{Name: testCookieName, MaxAge: 3600}
}

// newTestPageDeps はモックのLoanAPIを返すPageDepsを生成する。
func newTestPageDeps(t *testing.T, api LoanAPI) PageDeps {
	t.Helper()
	renderer, err := view.New(nil)
	if err != nil {
		t.Fatalf("view.New() error = %v", err)
	}
	return PageDeps{
		View:   renderer,
		NewAPI: func(*apiclient.Client) LoanAPI { return api },
		Flash:  testFlashStore,
		Cookie: testCookieConfig(),
	}
}

// newTestClient はリクエストに注入するAPIクライアントを生成する。モック使用時は通信しない。
func newTestClient(t *testing.T) *apiclient.Client {
	t.Helper()
	c, err := apiclient.New(apiclient.Config{BaseURL: "http://loan-api.test"})
	if err != nil {
		t.Fatalf("apiclient.New() error = %v", err)
	}
	return c
}

// newAuthedRequest はGuard通過後と同じコンテキスト（クライアント・認証済みセッション・CSRFトークン）を持つリクエストを生成する。
func newAuthedRequest(t *testing.T, method, target string, form url.Values) *http.Request {
	t.Helper()
	return newRequestAs(t, method, target, form, &auth.User{ID: 1, Username: "alice"})
}

// newRequestAs はuserで認証済み（nilの場合は未認証）のリクエストを生成する。
func newRequestAs(t *testing.T, method, target string, form url.Values, user *auth.User) *http.Request {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	return withSession(t, req, &stubSessionAPI{user: user})
}

// withSession はsessionAPIで解決したセッションとクライアントをリクエストに注入する。
func withSession(t *testing.T, req *http.Request, sessionAPI *stubSessionAPI) *http.Request {
	t.Helper()
	session := auth.NewSession(sessionAPI, nil)
	session.Resolve(req.Context())

	ctx := middleware.ContextWithClient(req.Context(), newTestClient(t))
	ctx = auth.ContextWithSession(ctx, session)
	ctx = middleware.ContextWithCSRFToken(ctx, "test-csrf-token")
	return req.WithContext(ctx)
}

// withURLParam はchiのURLパラメータを設定する。
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// flashFrom はレスポンスに設定されたフラッシュCookieを復元する。
func flashFrom(t *testing.T, resp *http.Response) *view.Flash {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name != flashCookieName || c.MaxAge < 0 {
			continue
		}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(c)
		return testFlashStore.Pop(httptest.NewRecorder(), req)
	}
	return nil
}

// httpError はローンAPIのHTTPエラーを生成する。
func httpError(status int, detail string) error {
	return &apiclient.Error{Kind: apiclient.KindHTTP, Status: status, Message: detail}
}

func timeoutError() error {
	return &apiclient.Error{Kind: apiclient.KindTimeout, Message: "Request timeout"}
}
