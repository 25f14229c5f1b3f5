package model

// Customer は顧客レコードを表す。
type Customer struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	IDNumber  string `json:"id_number"`
	Phone     string `json:"phone"`
	Email     string `json:"email,omitempty"`
	Location  string `json:"location,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CustomerDetail は顧客詳細と、その顧客に紐づくローンと延滞レコードを表す。
// 延滞レコードのJSONフィールド名はAPIの最新版に合わせて "aliases" のまま受け取る。
type CustomerDetail struct {
	Customer
	Loans    []Loan    `json:"loans"`
	Overdues []Overdue `json:"aliases"`
}

// HasPayableLoan は完了していないローンが1件以上あるかを返す。
func (d *CustomerDetail) HasPayableLoan() bool {
	for _, l := range d.Loans {
		if !l.IsCompleted() {
			return true
		}
	}
	return false
}

// ActiveOverdues は未消込の延滞レコードのみを返す。
func (d *CustomerDetail) ActiveOverdues() []Overdue {
	var active []Overdue
	for _, o := range d.Overdues {
		if !o.IsCleared {
			active = append(active, o)
		}
	}
	return active
}

// CustomerCheck はID番号による顧客存在確認の結果を表す。
type CustomerCheck struct {
	Exists           bool      `json:"exists"`
	HasActiveLoan    bool      `json:"has_active_loan"`
	HasActiveOverdue bool      `json:"has_active_alias"`
	Customer         *Customer `json:"customer"`
}

// CustomerInput は顧客作成リクエストのペイロード。
type CustomerInput struct {
	Name     string `json:"name" validate:"required"`
	IDNumber string `json:"id_number" validate:"required"`
	Phone    string `json:"phone" validate:"required"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Location string `json:"location,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}
