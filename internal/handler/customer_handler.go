package handler

import (
	"net/http"
	"strings"

	"github.com/hitoshi/loandesk/internal/loanapi"
	"github.com/hitoshi/loandesk/internal/model"
)

// CustomerHandler は顧客一覧・詳細のHTTPハンドラー。
type CustomerHandler struct {
	pages
}

// NewCustomerHandler はCustomerHandlerを生成する。
func NewCustomerHandler(deps PageDeps) *CustomerHandler {
	return &CustomerHandler{pages: newPages(deps)}
}

type customersData struct {
	Query     string
	Customers []model.Customer
}

// ListCustomers は顧客一覧を表示する。qが指定された場合は検索結果を表示する。
// GET /dashboard/customers
func (h *CustomerHandler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	api, err := h.api(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	data := customersData{Query: strings.TrimSpace(r.URL.Query().Get("q"))}
	if data.Query != "" {
		data.Customers, err = api.SearchCustomers(r.Context(), data.Query)
	} else {
		data.Customers, err = api.ListCustomers(r.Context(), loanapi.DefaultListLimit)
	}
	if err != nil {
		data.Customers = nil
		h.renderWithError(w, r, err, "customers", "Customers", "customers", data)
		return
	}

	h.render(w, r, http.StatusOK, "customers", "Customers", "customers", data)
}

// GetCustomer は顧客詳細をローンと延滞レコードとともに表示する。
// GET /dashboard/customers/{id}
func (h *CustomerHandler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		h.renderStatus(w, r, http.StatusNotFound, "Customer not found")
		return
	}
	api, err := h.api(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	detail, err := api.GetCustomer(r.Context(), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, "customer", detail.Name, "customers", detail)
}
