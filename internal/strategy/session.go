package strategy

import (
	"time"

	"github.com/uswork-ny/godzilla-community/internal/bus"
	"github.com/uswork-ny/godzilla-community/internal/msg"
)

// Session is the handle one strategy uses to talk to the router. It carries
// the strategy id so attribution never depends on which callback is running.
type Session struct {
	id       uint32
	name     string
	strategy Strategy
	ctx      *Context
}

func (s *Session) ID() uint32         { return s.id }
func (s *Session) Name() string       { return s.name }
func (s *Session) Context() *Context  { return s.ctx }
func (s *Session) Strategy() Strategy { return s.strategy }
func (s *Session) Now() int64         { return s.ctx.Now() }

func (s *Session) AddAccount(source, account string) error {
	return s.ctx.AddAccount(source, account)
}

func (s *Session) AddMarketData(source string) (uint32, error) {
	return s.ctx.AddMarketData(source)
}

// Subscribe asks for depth updates.
func (s *Session) Subscribe(source string, symbols []string, instType msg.InstrumentType, exchange string) error {
	return s.ctx.Subscribe(s.id, msg.SubDepth, source, symbols, instType, exchange)
}

func (s *Session) SubscribeTrade(source string, symbols []string, instType msg.InstrumentType, exchange string) error {
	return s.ctx.Subscribe(s.id, msg.SubTrade, source, symbols, instType, exchange)
}

func (s *Session) SubscribeTicker(source string, symbols []string, instType msg.InstrumentType, exchange string) error {
	return s.ctx.Subscribe(s.id, msg.SubTicker, source, symbols, instType, exchange)
}

// SubscribeIndexPrice only applies to futures; other instrument types are
// ignored.
func (s *Session) SubscribeIndexPrice(source string, symbols []string, instType msg.InstrumentType, exchange string) error {
	if instType != msg.InstrumentFFuture {
		return nil
	}
	return s.ctx.Subscribe(s.id, msg.SubIndexPrice, source, symbols, instType, exchange)
}

// SubscribeBar asks the bar service for bars rolled from the trades of
// symbols.
func (s *Session) SubscribeBar(symbols []string, instType msg.InstrumentType, exchange string) error {
	return s.ctx.Subscribe(s.id, msg.SubBar, "bar", symbols, instType, exchange)
}

// Unsubscribe drops depth updates.
func (s *Session) Unsubscribe(source string, symbols []string, instType msg.InstrumentType, exchange string) error {
	return s.ctx.Unsubscribe(s.id, msg.SubDepth, source, symbols, instType, exchange)
}

func (s *Session) SubscribeAll(source, exchange string) error {
	return s.ctx.SubscribeAll(source, exchange)
}

func (s *Session) InsertOrder(in msg.OrderInput) (uint64, error) {
	return s.ctx.InsertOrder(s.id, in)
}

func (s *Session) CancelOrder(account string, orderID uint64, symbol, exOrderID string, instType msg.InstrumentType) (uint64, error) {
	return s.ctx.CancelOrder(s.id, account, orderID, symbol, exOrderID, instType)
}

func (s *Session) QueryOrder(account string, orderID uint64, symbol, exOrderID string, instType msg.InstrumentType) (uint64, error) {
	return s.ctx.QueryOrder(s.id, account, orderID, symbol, exOrderID, instType)
}

func (s *Session) AdjustLeverage(account string, req msg.AdjustLeverage) error {
	return s.ctx.AdjustLeverage(s.id, account, req)
}

func (s *Session) MergePositions(account string, req msg.MergePosition) error {
	return s.ctx.MergePositions(s.id, account, req)
}

func (s *Session) QueryPositions(account string, req msg.QueryPosition) error {
	return s.ctx.QueryPositions(s.id, account, req)
}

// Order returns the latest projection of one of the process' orders.
func (s *Session) Order(id uint64) (msg.Order, bool) {
	return s.ctx.tracker.Order(id)
}

// AddTimer runs fn for this session once at the absolute time at.
func (s *Session) AddTimer(at int64, fn func(*Session, bus.Event)) *bus.Timer {
	return s.ctx.node.Bus().AddTimer(at, s.timer(fn))
}

// AddInterval runs fn for this session every d.
func (s *Session) AddInterval(d time.Duration, fn func(*Session, bus.Event)) *bus.Timer {
	return s.ctx.node.Bus().AddInterval(d, s.timer(fn))
}

func (s *Session) timer(fn func(*Session, bus.Event)) bus.Handler {
	return func(e bus.Event) {
		s.ctx.call(s, "timer", func() { fn(s, e) })
	}
}
