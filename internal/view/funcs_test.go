package view

import "testing"

func TestMoney(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "KSh 0"},
		{1500, "KSh 1,500"},
		{1234.5, "KSh 1,234.50"},
		{1000000.25, "KSh 1,000,000.25"},
	}
	for _, tt := range tests {
		if got := Money(tt.in); got != tt.want {
			t.Errorf("Money(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNumberAndPercent(t *testing.T) {
	if got := Number(12345); got != "12,345" {
		t.Errorf("Number() = %q, want %q", got, "12,345")
	}
	if got := Percent(12.5); got != "12.5%" {
		t.Errorf("Percent() = %q, want %q", got, "12.5%")
	}
	if got := Percent(10); got != "10%" {
		t.Errorf("Percent() = %q, want %q", got, "10%")
	}
	if got := Decimal(1000000); got != "1000000" {
		t.Errorf("Decimal() = %q, want %q", got, "1000000")
	}
}

func TestDate(t *testing.T) {
	tests := []struct {
		in        string
		wantDate  string
		wantInput string
	}{
		{"2024-03-05", "Mar 5, 2024", "2024-03-05"},
		{"2024-03-05T10:00:00", "Mar 5, 2024", "2024-03-05"},
		{"2024-03-05T10:00:00Z", "Mar 5, 2024", "2024-03-05"},
		{"soon", "soon", "soon"},
		{"", "", ""},
	}
	for _, tt := range tests {
		if got := Date(tt.in); got != tt.wantDate {
			t.Errorf("Date(%q) = %q, want %q", tt.in, got, tt.wantDate)
		}
		if got := DateInput(tt.in); got != tt.wantInput {
			t.Errorf("DateInput(%q) = %q, want %q", tt.in, got, tt.wantInput)
		}
	}
}

func TestStatusClass(t *testing.T) {
	if got := StatusClass("COMPLETED"); got != "badge badge-done" {
		t.Errorf("StatusClass(COMPLETED) = %q", got)
	}
	if got := StatusClass("active"); got != "badge badge-active" {
		t.Errorf("StatusClass(active) = %q", got)
	}
	if got := StatusClass("defaulted"); got != "badge badge-warn" {
		t.Errorf("StatusClass(defaulted) = %q", got)
	}
}
