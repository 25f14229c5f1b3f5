package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/loandesk/internal/model"
	"github.com/hitoshi/loandesk/internal/view"
)

const (
	MsgLoanCreated       = "Loan created successfully"
	MsgCustomerBlocked   = "Customer has an active loan or overdue balance that must be cleared first"
	MsgUploadUnavailable = "Photo upload is not available"
)

type addLoanData struct {
	IDNumber string
	Looked   bool
	Exists   bool
	Error    string

	Blocked          bool
	HasActiveLoan    bool
	HasActiveOverdue bool

	Customer      model.CustomerInput
	UploadEnabled bool
	Loans         []model.Loan
	Overdues      []model.Overdue

	Amount       string
	InterestRate string
	StartDate    string
	Guarantor    model.GuarantorInput
}

// AddLoanPage はID番号で顧客を確認し、ローン作成フォームを表示する。
// 既存顧客にアクティブなローンまたは延滞がある場合はフォームの代わりに警告を表示する。
// GET /dashboard/add-loan
func (h *LoanHandler) AddLoanPage(w http.ResponseWriter, r *http.Request) {
	data := h.newAddLoanData(formValue(r, "id_number"))
	if data.IDNumber == "" {
		h.render(w, r, http.StatusOK, "add_loan", "Add Loan", "add-loan", data)
		return
	}

	api, err := h.api(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := h.lookupCustomer(r.Context(), api, &data); err != nil {
		h.renderWithError(w, r, err, "add_loan", "Add Loan", "add-loan", data)
		return
	}

	h.render(w, r, http.StatusOK, "add_loan", "Add Loan", "add-loan", data)
}

// AddLoan は必要に応じて顧客（写真を含む）を作成し、保証人付きのローンを作成する。
// 顧客の状態は送信時に改めて確認し、ブロック対象であればAPIへは送信しない。
// POST /dashboard/add-loan
func (h *LoanHandler) AddLoan(w http.ResponseWriter, r *http.Request) {
	data := h.newAddLoanData(formValue(r, "id_number"))
	data.Amount = formValue(r, "amount")
	data.InterestRate = formValue(r, "interest_rate")
	if v := formValue(r, "start_date"); v != "" {
		data.StartDate = v
	}
	data.Guarantor = model.GuarantorInput{
		Name:         formValue(r, "guarantor_name"),
		IDNumber:     formValue(r, "guarantor_id_number"),
		Phone:        formValue(r, "guarantor_phone"),
		Location:     formValue(r, "guarantor_location"),
		Relationship: formValue(r, "guarantor_relationship"),
	}
	submitted := model.CustomerInput{
		Name:     formValue(r, "name"),
		IDNumber: data.IDNumber,
		Phone:    formValue(r, "phone"),
		Email:    formValue(r, "email"),
		Location: formValue(r, "location"),
	}

	if data.IDNumber == "" {
		data.Error = MsgIDNumberRequired
		h.render(w, r, http.StatusBadRequest, "add_loan", "Add Loan", "add-loan", data)
		return
	}

	api, err := h.api(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	ctx := r.Context()

	if err := h.lookupCustomer(ctx, api, &data); err != nil {
		data.Looked = false
		h.renderWithError(w, r, err, "add_loan", "Add Loan", "add-loan", data)
		return
	}
	if !data.Exists {
		data.Customer = submitted
	}
	if data.Blocked {
		data.Error = MsgCustomerBlocked
		h.render(w, r, http.StatusConflict, "add_loan", "Add Loan", "add-loan", data)
		return
	}

	in, err := h.loanInput(&data)
	if err == nil && !data.Exists {
		err = h.validate.Validate(data.Customer)
	}
	if err != nil {
		data.Error = err.Error()
		h.render(w, r, http.StatusBadRequest, "add_loan", "Add Loan", "add-loan", data)
		return
	}

	if !data.Exists {
		imageURL, err := h.uploadPhoto(r)
		if err != nil {
			data.Error = model.NewUploadRejectedError(err.Error()).Message
			h.render(w, r, http.StatusBadRequest, "add_loan", "Add Loan", "add-loan", data)
			return
		}
		data.Customer.ImageURL = imageURL

		if _, err := api.CreateCustomer(ctx, data.Customer); err != nil {
			h.renderWithError(w, r, err, "add_loan", "Add Loan", "add-loan", data)
			return
		}
		// 以降の再送信では作成済みの顧客として扱う
		data.Exists = true
	}

	loan, err := api.CreateLoan(ctx, in)
	if err != nil {
		h.renderWithError(w, r, err, "add_loan", "Add Loan", "add-loan", data)
		return
	}

	target := activeLoansPath
	if loan != nil && loan.ID > 0 {
		target = fmt.Sprintf("/dashboard/loans/%d", loan.ID)
	}
	h.successRedirect(w, r, MsgLoanCreated, target)
}

func (h *LoanHandler) newAddLoanData(idNumber string) addLoanData {
	return addLoanData{
		IDNumber:      idNumber,
		StartDate:     h.now().Format(view.DateInputLayout),
		UploadEnabled: h.uploader != nil && h.uploader.Enabled(),
	}
}

// lookupCustomer は顧客の存在とアクティブなローン・延滞の有無を確認する。
// 既存顧客の場合は詳細も取得し、ローンと延滞レコードを表示用に保持する。
func (h *LoanHandler) lookupCustomer(ctx context.Context, api LoanAPI, data *addLoanData) error {
	check, err := api.CheckCustomer(ctx, data.IDNumber)
	if err != nil {
		return err
	}
	data.Looked = true
	data.Exists = check.Exists
	data.HasActiveLoan = check.HasActiveLoan
	data.HasActiveOverdue = check.HasActiveOverdue
	data.Customer = model.CustomerInput{IDNumber: data.IDNumber}
	if check.Customer != nil {
		data.Customer = customerInput(*check.Customer)
	}

	if check.Exists {
		detail, err := api.CustomerByIDNumber(ctx, data.IDNumber)
		if err != nil {
			h.logger.WarnContext(ctx, "customer detail unavailable, using check result",
				slog.String("error", err.Error()),
			)
		} else {
			data.Customer = customerInput(detail.Customer)
			data.Loans = detail.Loans
			data.Overdues = detail.Overdues
			data.HasActiveLoan = data.HasActiveLoan || detail.HasPayableLoan()
			data.HasActiveOverdue = data.HasActiveOverdue || len(detail.ActiveOverdues()) > 0
		}
	}

	data.Blocked = data.HasActiveLoan || data.HasActiveOverdue
	return nil
}

// loanInput はフォームの値からローン作成のペイロードを組み立てて検証する。
func (h *LoanHandler) loanInput(data *addLoanData) (model.LoanInput, error) {
	amount, ok := parseAmount(data.Amount)
	if !ok {
		return model.LoanInput{}, errors.New(MsgInvalidAmount)
	}
	rate, ok := parseAmount(data.InterestRate)
	if !ok {
		return model.LoanInput{}, errors.New(MsgInvalidRate)
	}
	guarantor := data.Guarantor
	in := model.LoanInput{
		IDNumber:     data.Customer.IDNumber,
		Amount:       amount,
		InterestRate: rate,
		StartDate:    data.StartDate,
		Guarantor:    &guarantor,
	}
	if in.IDNumber == "" {
		in.IDNumber = data.IDNumber
	}
	if err := h.validate.Validate(in); err != nil {
		return model.LoanInput{}, err
	}
	return in, nil
}

// uploadPhoto は添付された顧客写真をアップロードしURLを返す。添付が無い場合は空文字列。
func (h *LoanHandler) uploadPhoto(r *http.Request) (string, error) {
	file, header, err := r.FormFile("photo")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read photo: %w", err)
	}
	defer file.Close()

	if header.Size == 0 && header.Filename == "" {
		return "", nil
	}
	if h.uploader == nil || !h.uploader.Enabled() {
		return "", errors.New(MsgUploadUnavailable)
	}
	return h.uploader.Upload(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
}

func customerInput(c model.Customer) model.CustomerInput {
	return model.CustomerInput{
		Name:     c.Name,
		IDNumber: c.IDNumber,
		Phone:    c.Phone,
		Email:    c.Email,
		Location: c.Location,
		ImageURL: c.ImageURL,
	}
}
