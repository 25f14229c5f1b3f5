package handler

import (
	"net/http"
	"net/url"

	"github.com/hitoshi/loandesk/internal/model"
)

const (
	payInstallmentsPath = "/dashboard/pay-installments"

	MsgPaymentRecorded = "Payment recorded successfully"
)

// PaymentHandler は顧客ID番号による返済登録のHTTPハンドラー。
type PaymentHandler struct {
	pages
	validate *formValidator
}

// NewPaymentHandler はPaymentHandlerを生成する。
func NewPaymentHandler(deps PageDeps) *PaymentHandler {
	return &PaymentHandler{
		pages:    newPages(deps),
		validate: newFormValidator(),
	}
}

type payInstallmentsData struct {
	IDNumber string
	Customer *model.CustomerDetail
	Payable  bool
	Amount   string
}

// PayInstallmentsPage はID番号で顧客を検索し、ローンと返済フォームを表示する。
// 完了していないローンが無い場合は返済フォームを表示しない。
// GET /dashboard/pay-installments
func (h *PaymentHandler) PayInstallmentsPage(w http.ResponseWriter, r *http.Request) {
	data := payInstallmentsData{IDNumber: formValue(r, "id_number")}
	if data.IDNumber == "" {
		h.render(w, r, http.StatusOK, "pay_installments", "Pay Installment", "pay-installments", data)
		return
	}

	api, err := h.api(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	detail, err := api.CustomerByIDNumber(r.Context(), data.IDNumber)
	if err != nil {
		h.renderWithError(w, r, err, "pay_installments", "Pay Installment", "pay-installments", data)
		return
	}
	data.Customer = detail
	data.Payable = detail.HasPayableLoan()

	h.render(w, r, http.StatusOK, "pay_installments", "Pay Installment", "pay-installments", data)
}

// PayInstallment は返済を登録し、同じ顧客の画面へ戻る。
// POST /dashboard/pay-installments
func (h *PaymentHandler) PayInstallment(w http.ResponseWriter, r *http.Request) {
	idNumber := formValue(r, "id_number")
	back := payInstallmentsPath
	if idNumber != "" {
		back += "?" + url.Values{"id_number": {idNumber}}.Encode()
	}

	amount, ok := parseAmount(r.FormValue("amount"))
	if !ok {
		h.invalidRedirect(w, r, MsgInvalidAmount, back)
		return
	}
	in := model.PaymentInput{IDNumber: idNumber, Amount: amount}
	if err := h.validate.Validate(in); err != nil {
		h.invalidRedirect(w, r, err.Error(), back)
		return
	}

	api, err := h.api(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := api.RecordPayment(r.Context(), in); err != nil {
		h.failRedirect(w, r, err, back)
		return
	}

	h.successRedirect(w, r, MsgPaymentRecorded, back)
}
