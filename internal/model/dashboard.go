package model

import (
	"bytes"
	"encoding/json"
)

// DashboardMetrics はダッシュボード上部の指標。
type DashboardMetrics struct {
	ActiveLoans               int     `json:"active_loans"`
	ActiveLoansOutstanding    float64 `json:"active_loans_outstanding"`
	ActiveOverdues            int     `json:"active_aliases"`
	ActiveOverduesOutstanding float64 `json:"active_aliases_outstanding"`
}

// TrendPoint は月次の回収額と利息の推移の1点。
type TrendPoint struct {
	Month    string  `json:"month"`
	Returns  float64 `json:"returns"`
	Interest float64 `json:"interest"`
}

// Trends は月次推移の一覧。
// APIは配列そのもの、または {"trends": [...]} のどちらかを返すため両方を受け付ける。
type Trends []TrendPoint

// UnmarshalJSON はjson.Unmarshalerを実装する。
func (t *Trends) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*t = nil
		return nil
	}

	if trimmed[0] == '[' {
		var points []TrendPoint
		if err := json.Unmarshal(trimmed, &points); err != nil {
			return err
		}
		*t = points
		return nil
	}

	var wrapped struct {
		Trends []TrendPoint `json:"trends"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return err
	}
	*t = wrapped.Trends
	return nil
}

// DashboardSummary はダッシュボード下部のサマリー。
type DashboardSummary struct {
	CompletedLoansAmountThisMonth float64 `json:"completed_loans_amount_this_month"`
	ActiveLoansCountThisMonth     int     `json:"active_loans_count_this_month"`
	InterestLastThreeMonths       float64 `json:"interest_last_three_months"`
	OverduesCountLastThreeMonths  int     `json:"aliases_count_last_three_months"`
}
