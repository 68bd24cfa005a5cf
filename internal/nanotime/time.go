package nanotime

import (
	"sync"
	"time"
)

const (
	Microsecond int64 = 1000
	Millisecond       = 1000 * Microsecond
	Second            = 1000 * Millisecond
	Minute            = 60 * Second
	Hour              = 60 * Minute
	Day               = 24 * Hour
)

// tradingDayOffset is the UTC time of day a new trading day starts at.
const tradingDayOffset = 7*Hour + 30*Minute

var base = time.Now()

// Now returns wall-clock nanoseconds advanced by the monotonic clock, so the
// value never moves backwards within a process.
func Now() int64 {
	return base.UnixNano() + int64(time.Since(base))
}

// Clock provides nanosecond timestamps.
type Clock interface {
	Now() int64
}

// SystemClock reads Now.
type SystemClock struct{}

func (SystemClock) Now() int64 { return Now() }

// ManualClock is a settable clock for replay and tests.
type ManualClock struct {
	mu  sync.Mutex
	now int64
}

// NewManualClock returns a clock starting at t.
func NewManualClock(t int64) *ManualClock {
	return &ManualClock{now: t}
}

func (c *ManualClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *ManualClock) Set(t int64) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new time.
func (c *ManualClock) Advance(d time.Duration) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += int64(d)
	return c.now
}

// NextMinute returns the start of the minute after t.
func NextMinute(t int64) int64 {
	return t - t%Minute + Minute
}

// NextTradingDay returns the next trading day boundary (07:30 UTC) after the day
// of t, rolled forward when it already lies before now.
func NextTradingDay(t, now int64) int64 {
	day := t - t%Day + tradingDayOffset
	if day < now {
		day += Day
	}
	return day
}

// TradingDayOf returns the UTC date of the trading day t belongs to.
func TradingDayOf(t int64) time.Time {
	shifted := time.Unix(0, t-tradingDayOffset).UTC()
	return time.Date(shifted.Year(), shifted.Month(), shifted.Day(), 0, 0, 0, 0, time.UTC)
}
