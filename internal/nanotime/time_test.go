package nanotime

import (
	"testing"
	"time"
)

func TestNowIsMonotonic(t *testing.T) {
	prev := Now()
	for i := 0; i < 1000; i++ {
		cur := Now()
		if cur < prev {
			t.Fatalf("time went backwards: %d < %d", cur, prev)
		}
		prev = cur
	}
}

func TestStrftimeRoundTrip(t *testing.T) {
	testCases := []struct {
		desc   string
		format string
	}{
		{"default", DefaultFormat},
		{"date only", "%Y%m%d"},
		{"compact", "%Y%m%d-%H%M%S.%N"},
		{"percent", "%F %% %T"},
	}

	ts := time.Date(2024, 3, 7, 9, 41, 5, 123456789, time.Local).UnixNano()
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			text := Strftime(ts, tc.format)
			got, err := Strptime(text, tc.format)
			if err != nil {
				t.Fatalf("parse %q: %v", text, err)
			}
			want := truncateTo(ts, tc.format)
			if got != want {
				t.Fatalf("round trip mismatch! should be %d but got %d (%s)", want, got, text)
			}
		})
	}
}

func truncateTo(ts int64, format string) int64 {
	tm := time.Unix(0, ts).In(time.Local)
	switch format {
	case "%Y%m%d":
		return time.Date(tm.Year(), tm.Month(), tm.Day(), 0, 0, 0, 0, time.Local).UnixNano()
	case "%F %% %T":
		return time.Date(tm.Year(), tm.Month(), tm.Day(), tm.Hour(), tm.Minute(), tm.Second(), 0, time.Local).UnixNano()
	default:
		return ts
	}
}

func TestStrftimeDefaultLayout(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 6, time.Local).UnixNano()
	if got := Strftime(ts, ""); got != "2024-01-02 03:04:05.000000006" {
		t.Fatalf("unexpected layout: %s", got)
	}
}

func TestStrptimeRejectsMismatch(t *testing.T) {
	if _, err := Strptime("2024/01/02", "%Y-%m-%d"); err == nil {
		t.Fatalf("expected error for mismatched literal")
	}
	if _, err := Strptime("2024-01-02 extra", "%Y-%m-%d"); err == nil {
		t.Fatalf("expected error for trailing input")
	}
}

func TestNextMinute(t *testing.T) {
	ts := 5*Minute + 17*Second
	if got := NextMinute(ts); got != 6*Minute {
		t.Fatalf("next minute mismatch: got %d", got)
	}
	if got := NextMinute(6 * Minute); got != 7*Minute {
		t.Fatalf("next minute on boundary mismatch: got %d", got)
	}
}

func TestNextTradingDay(t *testing.T) {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).UnixNano()
	morning := day + 3*Hour
	if got := NextTradingDay(morning, morning); got != day+tradingDayOffset {
		t.Fatalf("expected same-day boundary, got %d", got-day)
	}
	evening := day + 20*Hour
	if got := NextTradingDay(evening, evening); got != day+Day+tradingDayOffset {
		t.Fatalf("expected next-day boundary, got %d", got-day)
	}
}

func TestManualClock(t *testing.T) {
	c := NewManualClock(100)
	if c.Now() != 100 {
		t.Fatalf("unexpected start: %d", c.Now())
	}
	if got := c.Advance(time.Microsecond); got != 1100 {
		t.Fatalf("advance mismatch: %d", got)
	}
	c.Set(5)
	if c.Now() != 5 {
		t.Fatalf("set mismatch: %d", c.Now())
	}
}
