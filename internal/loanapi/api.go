// Package loanapi はローン管理APIの各エンドポイントを型付きのメソッドとして提供する。
//
// レスポンスは {"data": X} で包まれて返る場合があるため、デコード前に取り除く。
package loanapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hitoshi/loandesk/internal/apiclient"
	"github.com/hitoshi/loandesk/internal/model"
)

// DefaultListLimit は一覧取得時の件数上限。
const DefaultListLimit = 100

// Caller はローンAPIへの呼び出し口。*apiclient.Clientが実装する。
type Caller interface {
	Get(ctx context.Context, path string, out any, opts ...apiclient.RequestOption) error
	Post(ctx context.Context, path string, body, out any, opts ...apiclient.RequestOption) error
	Put(ctx context.Context, path string, body, out any, opts ...apiclient.RequestOption) error
	Patch(ctx context.Context, path string, body, out any, opts ...apiclient.RequestOption) error
	Stream(ctx context.Context, method, path string, body any, opts ...apiclient.RequestOption) (*http.Response, error)
}

// Client はローンAPIの型付きクライアント。
type Client struct {
	c Caller
}

// New はClientを生成する。
func New(c Caller) *Client {
	return &Client{c: c}
}

// --- ダッシュボード ---

// DashboardMetrics はダッシュボードの指標を取得する。
func (a *Client) DashboardMetrics(ctx context.Context) (*model.DashboardMetrics, error) {
	var m model.DashboardMetrics
	if err := a.get(ctx, endpointDashboardMetrics, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// DashboardTrends は直近months か月の回収額と利息の推移を取得する。
func (a *Client) DashboardTrends(ctx context.Context, months int) (model.Trends, error) {
	if months <= 0 {
		months = 3
	}
	var t model.Trends
	err := a.get(ctx, endpointDashboardTrends, &t,
		apiclient.WithQuery(url.Values{"months": {strconv.Itoa(months)}}),
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// DashboardSummary はダッシュボードのサマリーを取得する。
func (a *Client) DashboardSummary(ctx context.Context) (*model.DashboardSummary, error) {
	var s model.DashboardSummary
	if err := a.get(ctx, endpointDashboardSummary, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// --- 顧客 ---

// ListCustomers は顧客一覧を取得する。limitが0以下の場合はDefaultListLimit。
func (a *Client) ListCustomers(ctx context.Context, limit int) ([]model.Customer, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var customers []model.Customer
	err := a.get(ctx, endpointCustomers, &customers,
		apiclient.WithQuery(url.Values{"limit": {strconv.Itoa(limit)}}),
	)
	return customers, err
}

// SearchCustomers は名前・ID番号・電話番号で顧客を検索する。
func (a *Client) SearchCustomers(ctx context.Context, q string) ([]model.Customer, error) {
	var customers []model.Customer
	err := a.get(ctx, endpointCustomerSearch, &customers,
		apiclient.WithQuery(url.Values{"q": {q}}),
	)
	return customers, err
}

// GetCustomer は顧客詳細をローンと延滞レコード付きで取得する。
func (a *Client) GetCustomer(ctx context.Context, id int64) (*model.CustomerDetail, error) {
	var d model.CustomerDetail
	path := fmt.Sprintf(endpointCustomerByID, id)
	if err := a.get(ctx, path, &d, apiclient.WithRoute("/customers/:id")); err != nil {
		return nil, err
	}
	return &d, nil
}

// CustomerByIDNumber はID番号で顧客詳細を取得する。
func (a *Client) CustomerByIDNumber(ctx context.Context, idNumber string) (*model.CustomerDetail, error) {
	var d model.CustomerDetail
	path := fmt.Sprintf(endpointCustomerByIDNumber, url.PathEscape(idNumber))
	if err := a.get(ctx, path, &d, apiclient.WithRoute("/customers/by-id-number/:id_number")); err != nil {
		return nil, err
	}
	return &d, nil
}

// CheckCustomer はID番号の顧客が存在するか、アクティブなローンや延滞があるかを確認する。
func (a *Client) CheckCustomer(ctx context.Context, idNumber string) (*model.CustomerCheck, error) {
	var c model.CustomerCheck
	body := map[string]string{"id_number": idNumber}
	if err := a.post(ctx, endpointCustomerCheck, body, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCustomer は顧客を作成する。
func (a *Client) CreateCustomer(ctx context.Context, in model.CustomerInput) (*model.Customer, error) {
	var c model.Customer
	if err := a.post(ctx, endpointCustomers, in, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// --- ローン ---

// ActiveLoans はアクティブなローンを取得する。qが空でなければ絞り込む。
func (a *Client) ActiveLoans(ctx context.Context, q string) ([]model.Loan, error) {
	var opts []apiclient.RequestOption
	if q = strings.TrimSpace(q); q != "" {
		opts = append(opts, apiclient.WithQuery(url.Values{"q": {q}}))
	}
	var loans []model.Loan
	err := a.get(ctx, endpointLoansActive, &loans, opts...)
	return loans, err
}

// GetLoan はローン詳細を取得する。
func (a *Client) GetLoan(ctx context.Context, id int64) (*model.Loan, error) {
	var l model.Loan
	if err := a.get(ctx, fmt.Sprintf(endpointLoanByID, id), &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateLoan は保証人付きでローンを作成する。
func (a *Client) CreateLoan(ctx context.Context, in model.LoanInput) (*model.Loan, error) {
	var l model.Loan
	if err := a.post(ctx, endpointLoans, in, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// UpdateLoan はローンを部分更新する。変更が無い場合はリクエストを送信しない。
func (a *Client) UpdateLoan(ctx context.Context, id int64, upd model.LoanUpdate) error {
	if upd.IsEmpty() {
		return nil
	}
	return a.c.Patch(ctx, fmt.Sprintf(endpointLoanByID, id), upd, nil)
}

// UpdateGuarantor はローンの保証人を部分更新する。変更が無い場合はリクエストを送信しない。
func (a *Client) UpdateGuarantor(ctx context.Context, loanID, guarantorID int64, upd model.GuarantorUpdate) error {
	if upd.IsEmpty() {
		return nil
	}
	return a.c.Patch(ctx, fmt.Sprintf(endpointLoanGuarantor, loanID, guarantorID), upd, nil)
}

// RecordPayment は顧客ID番号に対する返済を登録する。
func (a *Client) RecordPayment(ctx context.Context, in model.PaymentInput) error {
	return a.c.Post(ctx, endpointPayments, in, nil)
}

// --- 延滞 ---

// ListOverdue は延滞一覧を取得する。
func (a *Client) ListOverdue(ctx context.Context, onlyActive bool, limit int) ([]model.Overdue, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var overdues []model.Overdue
	err := a.get(ctx, endpointOverdues, &overdues,
		apiclient.WithQuery(url.Values{
			"only_active": {strconv.FormatBool(onlyActive)},
			"limit":       {strconv.Itoa(limit)},
		}),
	)
	return overdues, err
}

// PayOverdueInstallment は延滞に対する分割入金を登録する。
func (a *Client) PayOverdueInstallment(ctx context.Context, id int64, amount float64) error {
	return a.c.Post(ctx, fmt.Sprintf(endpointOverdueInstallments, id), model.InstallmentInput{Amount: amount}, nil)
}

// ClearOverdue は延滞を消し込む。
func (a *Client) ClearOverdue(ctx context.Context, id int64) error {
	return a.c.Post(ctx, fmt.Sprintf(endpointOverdueClear, id), struct{}{}, nil)
}

// --- 認証 ---

// ChangePassword はログイン中ユーザーのパスワードを変更する。
func (a *Client) ChangePassword(ctx context.Context, in model.PasswordChange) error {
	return a.c.Put(ctx, endpointChangePassword, in, nil)
}

// --- レポート ---

// SummaryReport はサマリーレポートのPDFを取得する。呼び出し元はBodyを必ずCloseすること。
func (a *Client) SummaryReport(ctx context.Context, months int) (*http.Response, error) {
	if months <= 0 {
		months = 3
	}
	return a.c.Stream(ctx, http.MethodGet, endpointSummaryReport, nil,
		apiclient.WithQuery(url.Values{"months": {strconv.Itoa(months)}}),
		apiclient.WithHeader("Accept", "application/pdf"),
	)
}

func (a *Client) get(ctx context.Context, path string, out any, opts ...apiclient.RequestOption) error {
	var raw json.RawMessage
	if err := a.c.Get(ctx, path, &raw, opts...); err != nil {
		return err
	}
	return decodeEnvelope(raw, out)
}

func (a *Client) post(ctx context.Context, path string, body, out any, opts ...apiclient.RequestOption) error {
	var raw json.RawMessage
	if err := a.c.Post(ctx, path, body, &raw, opts...); err != nil {
		return err
	}
	return decodeEnvelope(raw, out)
}

// decodeEnvelope は {"data": X} を取り除いてからoutへデコードする。
// 空のボディは成功として扱い、outは変更しない。
func decodeEnvelope(raw json.RawMessage, out any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	if raw[0] == '{' {
		var env map[string]json.RawMessage
		if err := json.Unmarshal(raw, &env); err == nil && len(env) == 1 {
			if data, ok := env["data"]; ok {
				raw = data
			}
		}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &apiclient.Error{
			Kind:    apiclient.KindDecode,
			Message: "Invalid response from the loan API",
			Err:     fmt.Errorf("failed to decode response: %w", err),
		}
	}
	return nil
}
