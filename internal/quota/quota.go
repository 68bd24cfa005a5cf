package quota

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/uswork-ny/godzilla-community/internal/nanotime"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
	"github.com/yanun0323/errors"
)

// Config defines the trailing trade window and the notional ceilings.
type Config struct {
	Window       time.Duration      `yaml:"window" json:"window"`
	TradeCeiling float64            `yaml:"tradeCeiling" json:"tradeCeiling"`
	OrderCeiling float64            `yaml:"orderCeiling" json:"orderCeiling"`
	Multipliers  map[string]float64 `yaml:"multipliers" json:"multipliers"`
}

// DefaultConfig is a five minute window with a 4M traded and 1M per-order
// ceiling.
func DefaultConfig() Config {
	return Config{
		Window:       5 * time.Minute,
		TradeCeiling: 4_000_000,
		OrderCeiling: 1_000_000,
		Multipliers:  msg.DefaultMultipliers,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Window <= 0 {
		c.Window = def.Window
	}
	if c.TradeCeiling <= 0 {
		c.TradeCeiling = def.TradeCeiling
	}
	if c.OrderCeiling <= 0 {
		c.OrderCeiling = def.OrderCeiling
	}
	if c.Multipliers == nil {
		c.Multipliers = def.Multipliers
	}
	return c
}

// Validate rejects negative limits.
func (c Config) Validate() error {
	if c.Window < 0 || c.TradeCeiling < 0 || c.OrderCeiling < 0 {
		return errors.Wrapf(exception.ErrConfig, "negative quota limit, window: %s, trade: %f, order: %f",
			c.Window, c.TradeCeiling, c.OrderCeiling)
	}
	for suffix, m := range c.Multipliers {
		if m <= 0 {
			return errors.Wrap(exception.ErrConfig, "quota multiplier must be positive").With("suffix", suffix)
		}
	}
	return nil
}

type sample struct {
	at       int64
	notional decimal.Decimal
}

type window struct {
	samples []sample
	sum     decimal.Decimal
}

// Enforcer aggregates traded notional per strategy over a trailing window.
// It is owned by one router and is not safe for concurrent use.
type Enforcer struct {
	cfg          Config
	clock        nanotime.Clock
	window       int64
	tradeCeiling decimal.Decimal
	orderCeiling decimal.Decimal
	windows      map[uint32]*window
}

// New creates an enforcer. A nil clock means the system clock.
func New(cfg Config, clock nanotime.Clock) *Enforcer {
	cfg = cfg.withDefaults()
	if clock == nil {
		clock = nanotime.SystemClock{}
	}
	return &Enforcer{
		cfg:          cfg,
		clock:        clock,
		window:       int64(cfg.Window),
		tradeCeiling: decimal.NewFromFloat(cfg.TradeCeiling),
		orderCeiling: decimal.NewFromFloat(cfg.OrderCeiling),
		windows:      make(map[uint32]*window),
	}
}

func (e *Enforcer) Config() Config { return e.cfg }

// Notional weights price*volume by the quote multiplier of symbol.
func (e *Enforcer) Notional(symbol string, price, volume float64) decimal.Decimal {
	return msg.Notional(symbol, price, volume, e.cfg.Multipliers)
}

// RecordTrade adds a traded notional for sid at the current time.
func (e *Enforcer) RecordTrade(sid uint32, notional decimal.Decimal) {
	e.RecordTradeAt(sid, e.clock.Now(), notional)
}

// RecordTradeAt evicts samples that left the window as of at, then appends
// the new sample.
func (e *Enforcer) RecordTradeAt(sid uint32, at int64, notional decimal.Decimal) {
	w, ok := e.windows[sid]
	if !ok {
		w = &window{}
		e.windows[sid] = w
	}
	e.evict(w, at)
	w.samples = append(w.samples, sample{at: at, notional: notional})
	w.sum = w.sum.Add(notional)
}

func (e *Enforcer) evict(w *window, now int64) {
	n := 0
	for n < len(w.samples) && now-w.samples[n].at > e.window {
		w.sum = w.sum.Sub(w.samples[n].notional)
		n++
	}
	if n == 0 {
		return
	}
	w.samples = append(w.samples[:0], w.samples[n:]...)
}

// CheckTradeQuota reports whether sid may keep trading as of now.
func (e *Enforcer) CheckTradeQuota(sid uint32) bool {
	return e.CheckTradeQuotaAt(sid, e.clock.Now())
}

// CheckTradeQuotaAt reports whether sid's sum over the window ending at now
// is below the trade ceiling. A strategy with no trades always passes.
func (e *Enforcer) CheckTradeQuotaAt(sid uint32, now int64) bool {
	w, ok := e.windows[sid]
	if !ok {
		return true
	}
	e.evict(w, now)
	return w.sum.LessThan(e.tradeCeiling)
}

// CheckOrderAmount reports whether a single order's notional is below the
// per-order ceiling.
func (e *Enforcer) CheckOrderAmount(notional decimal.Decimal) bool {
	return notional.LessThan(e.orderCeiling)
}

// Check runs both gates for an order of sid and wraps
// exception.ErrRiskRejected when either refuses it.
func (e *Enforcer) Check(sid uint32, symbol string, price, volume float64) error {
	notional := e.Notional(symbol, price, volume)
	if !e.CheckOrderAmount(notional) {
		return errors.Wrapf(exception.ErrRiskRejected, "order notional %s of %s reaches ceiling %s",
			notional, symbol, e.orderCeiling)
	}
	if !e.CheckTradeQuota(sid) {
		return errors.Wrapf(exception.ErrRiskRejected, "strategy %d traded %s in the last %s",
			sid, e.Sum(sid), e.cfg.Window)
	}
	return nil
}

// Sum is the running sum of sid without evicting.
func (e *Enforcer) Sum(sid uint32) decimal.Decimal {
	if w, ok := e.windows[sid]; ok {
		return w.sum
	}
	return decimal.Zero
}

// Recompute sums the retained samples of sid from scratch.
func (e *Enforcer) Recompute(sid uint32) decimal.Decimal {
	total := decimal.Zero
	if w, ok := e.windows[sid]; ok {
		for _, s := range w.samples {
			total = total.Add(s.notional)
		}
	}
	return total
}

// Samples is the number of retained samples of sid.
func (e *Enforcer) Samples(sid uint32) int {
	if w, ok := e.windows[sid]; ok {
		return len(w.samples)
	}
	return 0
}
