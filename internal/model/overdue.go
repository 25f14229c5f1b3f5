package model

// Overdue は期日を過ぎたローン残高（延滞）を表す。
// 旧版では alias / arrears と呼ばれていた概念と同一。
type Overdue struct {
	ID              int64   `json:"id"`
	LoanID          int64   `json:"loan_id"`
	CustomerID      int64   `json:"customer_id"`
	RemainingAmount float64 `json:"remaining_amount"`
	ArrearsDate     string  `json:"arrears_date,omitempty"`
	IsCleared       bool    `json:"is_cleared"`
}

// InstallmentInput は延滞への分割入金のペイロード。
type InstallmentInput struct {
	Amount float64 `json:"amount" validate:"gt=0"`
}

// OverdueSummary は延滞一覧の集計値。
type OverdueSummary struct {
	ActiveCount      int
	ClearedCount     int
	TotalOutstanding float64
}

// SummarizeOverdues は延滞一覧からアクティブ件数・消込件数・未回収合計を集計する。
func SummarizeOverdues(overdues []Overdue) OverdueSummary {
	var s OverdueSummary
	for _, o := range overdues {
		if o.IsCleared {
			s.ClearedCount++
			continue
		}
		s.ActiveCount++
		s.TotalOutstanding += o.RemainingAmount
	}
	return s
}
