package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseValid(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"5", "5.00"},
		{"5.5", "5.50"},
		{"12.50", "12.50"},
		{"0.01", "0.01"},
		{"2.505", "2.51"},
		{"2.504", "2.50"},
	}
	for _, tc := range cases {
		got, err := Parse(tc.raw)
		if err != nil {
			t.Errorf("Parse(%q): %v", tc.raw, err)
			continue
		}
		if Format(got) != tc.want {
			t.Errorf("Parse(%q) = %s, want %s", tc.raw, Format(got), tc.want)
		}
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	for _, raw := range []string{"", "abc", "1,50", "$5", "0", "0.00", "-1.00", "0.004"} {
		if _, err := Parse(raw); err == nil {
			t.Errorf("Parse(%q) accepted, want error", raw)
		}
	}
}

func TestFormat(t *testing.T) {
	d := decimal.RequireFromString("3")
	if got := Format(d); got != "3.00" {
		t.Errorf("Format(3) = %q, want 3.00", got)
	}
	if got := Format(decimal.Zero); got != "0.00" {
		t.Errorf("Format(0) = %q, want 0.00", got)
	}
}
