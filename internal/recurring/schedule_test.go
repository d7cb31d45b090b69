package recurring

import (
	"testing"
	"time"

	"github.com/dukerupert/pocketkid/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 0, 0, 0, time.UTC)
}

func TestNextRunDailyAndWeekly(t *testing.T) {
	anchor := date(2026, time.March, 2)

	got := NextRun(anchor, anchor, model.FreqDaily)
	if want := date(2026, time.March, 3); !got.Equal(want) {
		t.Errorf("daily: got %v, want %v", got, want)
	}

	got = NextRun(anchor, anchor, model.FreqWeekly)
	if want := date(2026, time.March, 9); !got.Equal(want) {
		t.Errorf("weekly: got %v, want %v", got, want)
	}

	got = NextRun(anchor, anchor, model.FreqBiweekly)
	if want := date(2026, time.March, 16); !got.Equal(want) {
		t.Errorf("biweekly: got %v, want %v", got, want)
	}
}

func TestNextRunMonthlyClampsToMonthEnd(t *testing.T) {
	anchor := date(2026, time.January, 31)

	feb := NextRun(anchor, anchor, model.FreqMonthly)
	if want := date(2026, time.February, 28); !feb.Equal(want) {
		t.Fatalf("feb: got %v, want %v", feb, want)
	}

	// The clamp is per-occurrence; March snaps back to the anchor day.
	mar := NextRun(feb, anchor, model.FreqMonthly)
	if want := date(2026, time.March, 31); !mar.Equal(want) {
		t.Errorf("mar: got %v, want %v", mar, want)
	}
}

func TestNextRunMonthlyLeapYear(t *testing.T) {
	anchor := date(2028, time.January, 30)

	feb := NextRun(anchor, anchor, model.FreqMonthly)
	if want := date(2028, time.February, 29); !feb.Equal(want) {
		t.Errorf("leap feb: got %v, want %v", feb, want)
	}
}

func TestNextRunMonthlyYearRollover(t *testing.T) {
	anchor := date(2026, time.December, 15)

	got := NextRun(anchor, anchor, model.FreqMonthly)
	if want := date(2027, time.January, 15); !got.Equal(want) {
		t.Errorf("rollover: got %v, want %v", got, want)
	}
}

func TestNextRunKeepsAnchorClock(t *testing.T) {
	anchor := time.Date(2026, time.January, 31, 7, 30, 0, 0, time.UTC)
	got := NextRun(anchor, anchor, model.FreqMonthly)
	h, m, _ := got.Clock()
	if h != 7 || m != 30 {
		t.Errorf("clock = %02d:%02d, want 07:30", h, m)
	}
}
