package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/loandesk/internal/model"
	"github.com/hitoshi/loandesk/internal/view"
)

const (
	activeLoansPath = "/dashboard/active-loans"

	MsgLoanUpdated    = "Loan updated successfully"
	MsgNoChanges      = "No changes to save"
	MsgInvalidRate    = "Enter a valid interest rate"
	MsgLoanNotFound   = "Loan not found"
	msgWrongGuarantor = "The guarantor does not belong to this loan"
)

// ImageUploader は顧客写真のアップロード先。cloudinary.Uploaderが実装する。
type ImageUploader interface {
	Enabled() bool
	Upload(ctx context.Context, filename, declaredType string, r io.Reader) (string, error)
}

// LoanHandler はローン一覧・詳細・編集・新規作成のHTTPハンドラー。
type LoanHandler struct {
	pages
	uploader ImageUploader
	validate *formValidator
	now      func() time.Time
}

// NewLoanHandler はLoanHandlerを生成する。uploaderがnilの場合は写真のアップロードを無効にする。
func NewLoanHandler(deps PageDeps, uploader ImageUploader) *LoanHandler {
	return &LoanHandler{
		pages:    newPages(deps),
		uploader: uploader,
		validate: newFormValidator(),
		now:      time.Now,
	}
}

type activeLoansData struct {
	Query  string
	Loans  []model.Loan
	EditID int64
}

// ActiveLoans はアクティブなローンを表示する。editが指定されたローンは編集フォームを開く。
// GET /dashboard/active-loans
func (h *LoanHandler) ActiveLoans(w http.ResponseWriter, r *http.Request) {
	api, err := h.api(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	q := r.URL.Query()
	data := activeLoansData{Query: strings.TrimSpace(q.Get("q"))}
	if id, err := strconv.ParseInt(q.Get("edit"), 10, 64); err == nil && id > 0 {
		data.EditID = id
	}

	data.Loans, err = api.ActiveLoans(r.Context(), data.Query)
	if err != nil {
		data.Loans = nil
		h.renderWithError(w, r, err, "active_loans", "Active Loans", "active-loans", data)
		return
	}

	h.render(w, r, http.StatusOK, "active_loans", "Active Loans", "active-loans", data)
}

// UpdateActiveLoan はローンと保証人を編集する。
// 現在の値と比較し、変更されたフィールドのみをAPIへ送信する。
// POST /dashboard/active-loans/{id}
func (h *LoanHandler) UpdateActiveLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		h.renderStatus(w, r, http.StatusNotFound, MsgLoanNotFound)
		return
	}
	api, err := h.api(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	editPath := fmt.Sprintf("%s?edit=%d", activeLoansPath, id)

	current, err := api.GetLoan(r.Context(), id)
	if err != nil {
		h.failRedirect(w, r, err, activeLoansPath)
		return
	}

	loanUpd, err := loanChanges(r, current)
	if err != nil {
		h.invalidRedirect(w, r, err.Error(), editPath)
		return
	}
	guarantorID, guarantorUpd, err := guarantorChanges(r, current.Guarantor)
	if err != nil {
		h.invalidRedirect(w, r, err.Error(), editPath)
		return
	}

	if loanUpd.IsEmpty() && guarantorUpd.IsEmpty() {
		h.flash.Set(w, r, view.FlashInfo, MsgNoChanges)
		http.Redirect(w, r, activeLoansPath, http.StatusSeeOther)
		return
	}

	if err := api.UpdateLoan(r.Context(), id, loanUpd); err != nil {
		h.failRedirect(w, r, err, editPath)
		return
	}
	if err := api.UpdateGuarantor(r.Context(), id, guarantorID, guarantorUpd); err != nil {
		h.failRedirect(w, r, err, editPath)
		return
	}

	h.successRedirect(w, r, MsgLoanUpdated, activeLoansPath)
}

// loanChanges はフォームの値のうち現在のローンと異なるものを抽出する。空欄は変更なしとみなす。
func loanChanges(r *http.Request, current *model.Loan) (model.LoanUpdate, error) {
	var upd model.LoanUpdate

	if raw := formValue(r, "amount"); raw != "" {
		amount, ok := parseAmount(raw)
		if !ok || amount <= 0 {
			return upd, errors.New(MsgInvalidAmount)
		}
		if amount != current.Amount {
			upd.Amount = &amount
		}
	}
	if raw := formValue(r, "interest_rate"); raw != "" {
		rate, ok := parseAmount(raw)
		if !ok {
			return upd, errors.New(MsgInvalidRate)
		}
		if rate < 0 {
			return upd, errors.New(MsgNegativeRate)
		}
		if rate != current.InterestRate {
			upd.InterestRate = &rate
		}
	}
	for _, f := range []struct {
		key     string
		current string
		dst     *string
	}{
		{"start_date", current.StartDate, &upd.StartDate},
		{"due_date", current.DueDate, &upd.DueDate},
	} {
		raw := formValue(r, f.key)
		if raw == "" {
			continue
		}
		if _, err := time.Parse(view.DateInputLayout, raw); err != nil {
			return upd, errors.New(MsgInvalidDate)
		}
		if raw != view.DateInput(f.current) {
			*f.dst = raw
		}
	}
	return upd, nil
}

// guarantorChanges はフォームの保証人の値のうち現在の値と異なるものを抽出する。
func guarantorChanges(r *http.Request, current *model.Guarantor) (int64, model.GuarantorUpdate, error) {
	var upd model.GuarantorUpdate
	if current == nil {
		return 0, upd, nil
	}
	if raw := formValue(r, "guarantor_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err != nil || id != current.ID {
			return 0, upd, errors.New(msgWrongGuarantor)
		}
	}

	changed := func(key, cur string) string {
		if v := formValue(r, key); v != "" && v != cur {
			return v
		}
		return ""
	}
	upd.Name = changed("guarantor_name", current.Name)
	upd.IDNumber = changed("guarantor_id_number", current.IDNumber)
	upd.Phone = changed("guarantor_phone", current.Phone)
	upd.Location = changed("guarantor_location", current.Location)
	upd.Relationship = changed("guarantor_relationship", current.Relationship)
	return current.ID, upd, nil
}

// GetLoan はローン詳細を表示する。
// GET /dashboard/loans/{id}
func (h *LoanHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		h.renderStatus(w, r, http.StatusNotFound, MsgLoanNotFound)
		return
	}
	api, err := h.api(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	loan, err := api.GetLoan(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, "loan", fmt.Sprintf("Loan #%d", loan.ID), "active-loans", loan)
}
