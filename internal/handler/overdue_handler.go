package handler

import (
	"net/http"

	"github.com/hitoshi/loandesk/internal/loanapi"
	"github.com/hitoshi/loandesk/internal/model"
)

const (
	overduePath = "/dashboard/overdue"

	MsgInstallmentRecorded = "Installment applied to the overdue balance"
	MsgOverdueCleared      = "Overdue balance cleared"
	MsgOverdueNotFound     = "Overdue record not found"
)

// OverdueHandler は延滞一覧と分割入金・消込のHTTPハンドラー。
type OverdueHandler struct {
	pages
	validate *formValidator
}

// NewOverdueHandler はOverdueHandlerを生成する。
func NewOverdueHandler(deps PageDeps) *OverdueHandler {
	return &OverdueHandler{
		pages:    newPages(deps),
		validate: newFormValidator(),
	}
}

type overdueData struct {
	Summary  model.OverdueSummary
	Overdues []model.Overdue
}

// ListOverdue は消込済みを含む延滞一覧と集計を表示する。
// GET /dashboard/overdue
func (h *OverdueHandler) ListOverdue(w http.ResponseWriter, r *http.Request) {
	api, err := h.api(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	overdues, err := api.ListOverdue(r.Context(), false, loanapi.DefaultListLimit)
	if err != nil {
		h.renderWithError(w, r, err, "overdue", "Overdue", "overdue", overdueData{})
		return
	}

	h.render(w, r, http.StatusOK, "overdue", "Overdue", "overdue", overdueData{
		Summary:  model.SummarizeOverdues(overdues),
		Overdues: overdues,
	})
}

// PayInstallment は延滞に分割入金を登録する。
// POST /dashboard/overdue/{id}/installments
func (h *OverdueHandler) PayInstallment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		h.renderStatus(w, r, http.StatusNotFound, MsgOverdueNotFound)
		return
	}

	amount, ok := parseAmount(r.FormValue("amount"))
	if !ok {
		h.invalidRedirect(w, r, MsgInvalidAmount, overduePath)
		return
	}
	in := model.InstallmentInput{Amount: amount}
	if err := h.validate.Validate(in); err != nil {
		h.invalidRedirect(w, r, err.Error(), overduePath)
		return
	}

	api, err := h.api(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := api.PayOverdueInstallment(r.Context(), id, in.Amount); err != nil {
		h.failRedirect(w, r, err, overduePath)
		return
	}

	h.successRedirect(w, r, MsgInstallmentRecorded, overduePath)
}

// Clear は延滞を消し込む。
// POST /dashboard/overdue/{id}/clear
func (h *OverdueHandler) Clear(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		h.renderStatus(w, r, http.StatusNotFound, MsgOverdueNotFound)
		return
	}
	api, err := h.api(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if err := api.ClearOverdue(r.Context(), id); err != nil {
		h.failRedirect(w, r, err, overduePath)
		return
	}

	h.successRedirect(w, r, MsgOverdueCleared, overduePath)
}
