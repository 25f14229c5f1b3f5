package model

import "strings"

// LoanStatusCompleted は返済が完了したローンのステータス。
const LoanStatusCompleted = "completed"

// Loan はローンを表す。
// 金額・利息・残高はすべてローンAPI側で計算される。
type Loan struct {
	ID              int64         `json:"id"`
	Amount          float64       `json:"amount"`
	InterestRate    float64       `json:"interest_rate"`
	TotalAmount     float64       `json:"total_amount"`
	RemainingAmount float64       `json:"remaining_amount"`
	StartDate       string        `json:"start_date"`
	DueDate         string        `json:"due_date"`
	Status          string        `json:"status"`
	Customer        *LoanCustomer `json:"customer,omitempty"`
	Guarantor       *Guarantor    `json:"guarantor,omitempty"`
}

// IsCompleted はローンが完了済みかを返す。大文字小文字は区別しない。
func (l *Loan) IsCompleted() bool {
	return strings.EqualFold(l.Status, LoanStatusCompleted)
}

// LoanCustomer はローン一覧に埋め込まれる顧客の要約。
type LoanCustomer struct {
	Name     string `json:"name"`
	IDNumber string `json:"id_number"`
	Phone    string `json:"phone"`
	Location string `json:"location"`
}

// Guarantor はローンの保証人を表す。
type Guarantor struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	IDNumber     string `json:"id_number"`
	Phone        string `json:"phone"`
	Location     string `json:"location,omitempty"`
	Relationship string `json:"relationship,omitempty"`
}

// LoanInput はローン作成リクエストのペイロード。
// 保証人はローン作成時に必須。
type LoanInput struct {
	IDNumber     string          `json:"id_number" validate:"required"`
	Amount       float64         `json:"amount" validate:"gt=0"`
	InterestRate float64         `json:"interest_rate" validate:"gte=0"`
	StartDate    string          `json:"start_date" validate:"required,datetime=2006-01-02"`
	Guarantor    *GuarantorInput `json:"guarantor" validate:"required"`
}

// GuarantorInput はローン作成時の保証人ペイロード。
type GuarantorInput struct {
	Name         string `json:"name" validate:"required"`
	IDNumber     string `json:"id_number" validate:"required"`
	Phone        string `json:"phone" validate:"required"`
	Location     string `json:"location,omitempty"`
	Relationship string `json:"relationship,omitempty"`
}

// LoanUpdate はローン部分更新のペイロード。
// 変更されたフィールドのみ送信する。
type LoanUpdate struct {
	Amount       *float64 `json:"amount,omitempty"`
	InterestRate *float64 `json:"interest_rate,omitempty"`
	StartDate    string   `json:"start_date,omitempty"`
	DueDate      string   `json:"due_date,omitempty"`
}

// IsEmpty は送信すべき変更が無いかを返す。
func (u LoanUpdate) IsEmpty() bool {
	return u.Amount == nil && u.InterestRate == nil && u.StartDate == "" && u.DueDate == ""
}

// GuarantorUpdate は保証人部分更新のペイロード。
type GuarantorUpdate struct {
	Name         string `json:"name,omitempty"`
	IDNumber     string `json:"id_number,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Location     string `json:"location,omitempty"`
	Relationship string `json:"relationship,omitempty"`
}

// IsEmpty は送信すべき変更が無いかを返す。
func (u GuarantorUpdate) IsEmpty() bool {
	return u == GuarantorUpdate{}
}

// PaymentInput は顧客ID番号による返済登録のペイロード。
type PaymentInput struct {
	IDNumber string  `json:"id_number" validate:"required"`
	Amount   float64 `json:"amount" validate:"gt=0"`
}
