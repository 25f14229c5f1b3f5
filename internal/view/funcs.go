package view

import (
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/loandesk/internal/model"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// CurrencyPrefix は金額表示の通貨記号。
const CurrencyPrefix = "KSh "

// DateInputLayout は <input type="date"> の値の形式。
const DateInputLayout = "2006-01-02"

var printer = message.NewPrinter(language.English)

// Funcs はテンプレート関数を返す。
func Funcs() template.FuncMap {
	return template.FuncMap{
		"money":       Money,
		"number":      Number,
		"decimal":     Decimal,
		"percent":     Percent,
		"date":        Date,
		"dateInput":   DateInput,
		"statusClass": StatusClass,
		"isCompleted": func(status string) bool { return strings.EqualFold(status, model.LoanStatusCompleted) },
		"lower":       strings.ToLower,
	}
}

// Money は金額を "KSh 1,234.50" の形式で返す。端数が無い場合は小数部を省略する。
func Money(v float64) string {
	s := printer.Sprintf("%.2f", v)
	s = strings.TrimSuffix(s, ".00")
	return CurrencyPrefix + s
}

// Number は整数を桁区切り付きで返す。
func Number(n int) string {
	return printer.Sprintf("%d", n)
}

// Decimal は数値入力欄の初期値として指数表記を使わずに返す。
func Decimal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Percent は利率を "12.5%" の形式で返す。
func Percent(v float64) string {
	s := printer.Sprintf("%.2f", v)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return s + "%"
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Date は日付を "Jan 2, 2006" の形式で返す。解釈できない場合はそのまま返す。
func Date(s string) string {
	t, ok := parseDate(s)
	if !ok {
		return s
	}
	return t.Format("Jan 2, 2006")
}

// DateInput は日付を <input type="date"> 用の "2006-01-02" 形式で返す。
func DateInput(s string) string {
	t, ok := parseDate(s)
	if !ok {
		return s
	}
	return t.Format(DateInputLayout)
}

// StatusClass はローンのステータスに対応するバッジのCSSクラスを返す。
func StatusClass(status string) string {
	switch strings.ToLower(status) {
	case model.LoanStatusCompleted:
		return "badge badge-done"
	case "active":
		return "badge badge-active"
	default:
		return "badge badge-warn"
	}
}
