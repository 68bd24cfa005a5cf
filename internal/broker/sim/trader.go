package sim

import (
	stderrors "errors"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/uswork-ny/godzilla-community/internal/broker"
	"github.com/uswork-ny/godzilla-community/internal/codec"
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/uswork-ny/godzilla-community/internal/nanotime"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

var (
	ErrInvalidOrder = stderrors.New("sim: invalid order")
	ErrNoQuote      = stderrors.New("sim: no quote for market order")
	ErrUnknownOrder = stderrors.New("sim: unknown order")
	ErrOrderFinal   = stderrors.New("sim: order is final")
)

const volumeEpsilon = 1e-12

// TraderConfig sets up a simulated account.
type TraderConfig struct {
	Source    string
	Account   string
	HolderUID uint32
	// FillRatio is the share of an order filled on insert, 1 when unset. The
	// rest rests until Match crosses it.
	FillRatio float64
	Balances  map[string]float64
	Clock     nanotime.Clock
}

type simOrder struct {
	dest   uint32
	order  msg.Order
	quote  decimal.Decimal
	volume decimal.Decimal
}

type positionKey struct {
	symbol   string
	exchange string
	instType msg.InstrumentType
}

// Trader fills orders against its own book of last prices.
type Trader struct {
	cfg       TraderConfig
	r         broker.Reporter
	orders    map[uint64]*simOrder
	positions map[positionKey]*msg.Position
	assets    map[string]*msg.Asset
	last      map[string]float64
	leverage  map[string]int32
	tradeID   uint64
}

var _ broker.Trader = (*Trader)(nil)

// NewTrader creates a simulated trader.
func NewTrader(cfg TraderConfig) *Trader {
	if cfg.FillRatio <= 0 || cfg.FillRatio > 1 {
		cfg.FillRatio = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = nanotime.SystemClock{}
	}
	t := &Trader{
		cfg:       cfg,
		orders:    make(map[uint64]*simOrder),
		positions: make(map[positionKey]*msg.Position),
		assets:    make(map[string]*msg.Asset),
		last:      make(map[string]float64),
		leverage:  make(map[string]int32),
	}
	for coin, avail := range cfg.Balances {
		t.asset(coin).Avail = avail
	}
	return t
}

func (t *Trader) Bind(r broker.Reporter) { t.r = r }

func (t *Trader) asset(coin string) *msg.Asset {
	a, ok := t.assets[coin]
	if !ok {
		a = &msg.Asset{
			HolderUID:      t.cfg.HolderUID,
			LedgerCategory: msg.LedgerAccount,
			Coin:           coin,
			AccountID:      t.cfg.Account,
		}
		t.assets[coin] = a
	}
	return a
}

// InsertOrder accepts the order and fills FillRatio of it at once.
func (t *Trader) InsertOrder(dest uint32, input msg.OrderInput) error {
	if input.Volume <= 0 || input.Symbol == "" {
		return errors.Wrapf(ErrInvalidOrder, "order %d volume %v", input.OrderID, input.Volume)
	}
	if _, ok := t.orders[input.OrderID]; ok {
		return errors.Wrapf(ErrInvalidOrder, "duplicate order %d", input.OrderID)
	}
	price := input.Price
	if input.OrderType == msg.OrderTypeMarket {
		last, ok := t.last[input.Symbol]
		if !ok {
			return errors.Wrapf(ErrNoQuote, "%s", input.Symbol)
		}
		price = last
	} else if price <= 0 {
		return errors.Wrapf(ErrInvalidOrder, "order %d price %v", input.OrderID, price)
	}

	now := t.cfg.Clock.Now()
	o := &simOrder{dest: dest, order: msg.OrderFromInput(input)}
	o.order.Status = msg.StatusSubmitted
	o.order.InsertTime = now
	o.order.UpdateTime = now
	o.order.ExOrderID = "sim-" + strconv.FormatUint(input.OrderID, 16)
	t.orders[input.OrderID] = o
	if err := t.r.ReportOrder(dest, o.order); err != nil {
		return err
	}

	if err := t.fill(o, price, input.Volume*t.cfg.FillRatio); err != nil {
		return err
	}
	if o.order.Status.IsFinal() {
		return nil
	}
	switch {
	case input.OrderType == msg.OrderTypeMarket,
		input.TimeCondition == msg.TimeConditionIOC,
		input.TimeCondition == msg.TimeConditionFOK:
		return t.cancel(o)
	}
	return nil
}

// fill trades volume of o at price and reports the trade, the order and the
// position.
func (t *Trader) fill(o *simOrder, price, volume float64) error {
	if volume > o.order.VolumeLeft {
		volume = o.order.VolumeLeft
	}
	if volume <= volumeEpsilon {
		return nil
	}
	now := t.cfg.Clock.Now()
	t.tradeID++
	base, quote := splitSymbol(o.order.Symbol)
	trade := msg.MyTrade{
		StrategyID:     o.order.StrategyID,
		TradeTime:      now,
		TradeID:        t.tradeID,
		OrderID:        o.order.OrderID,
		ExOrderID:      o.order.ExOrderID,
		Symbol:         o.order.Symbol,
		ExchangeID:     o.order.ExchangeID,
		AccountID:      t.cfg.Account,
		SourceID:       t.cfg.Source,
		InstrumentType: o.order.InstrumentType,
		Side:           o.order.Side,
		Price:          price,
		Volume:         volume,
		BaseCurrency:   base,
		QuoteCurrency:  quote,
	}

	p, v := decimal.NewFromFloat(price), decimal.NewFromFloat(volume)
	o.quote = o.quote.Add(p.Mul(v))
	o.volume = o.volume.Add(v)
	o.order.VolumeTraded += volume
	o.order.VolumeLeft -= volume
	o.order.AvgPrice = o.quote.Div(o.volume).InexactFloat64()
	o.order.UpdateTime = now
	if o.order.VolumeLeft <= volumeEpsilon {
		o.order.VolumeLeft = 0
		o.order.Status = msg.StatusFilled
	} else {
		o.order.Status = msg.StatusPartialFilledActive
	}

	position := t.move(o.order, price, volume)
	t.settle(o.order.Side, base, quote, price, volume)

	if err := t.r.ReportTrade(o.dest, trade); err != nil {
		return err
	}
	if err := t.r.ReportOrder(o.dest, o.order); err != nil {
		return err
	}
	return t.r.ReportPosition(o.dest, position)
}

func (t *Trader) move(o msg.Order, price, volume float64) msg.Position {
	key := positionKey{o.Symbol, o.ExchangeID, o.InstrumentType}
	p, ok := t.positions[key]
	if !ok {
		p = &msg.Position{
			Symbol:         o.Symbol,
			InstrumentType: o.InstrumentType,
			ExchangeID:     o.ExchangeID,
			HolderUID:      t.cfg.HolderUID,
			LedgerCategory: msg.LedgerAccount,
			SourceID:       t.cfg.Source,
			AccountID:      t.cfg.Account,
			Direction:      msg.DirectionLong,
		}
		t.positions[key] = p
	}
	delta := volume
	if o.Side == msg.SideSell {
		delta = -volume
	}
	next := p.Volume + delta
	switch {
	case next == 0:
		p.AvgOpenPrice = 0
	case p.Volume == 0 || (p.Volume > 0) == (delta > 0):
		p.AvgOpenPrice = (p.AvgOpenPrice*math.Abs(p.Volume) + price*volume) / math.Abs(next)
	case (p.Volume > 0) != (next > 0):
		p.AvgOpenPrice = price
	}
	p.Volume = next
	p.LastPrice = price
	p.UpdateTime = t.cfg.Clock.Now()
	return *p
}

func (t *Trader) settle(side msg.Side, base, quote string, price, volume float64) {
	if base == "" || quote == "" {
		return
	}
	notional := price * volume
	if side == msg.SideSell {
		t.asset(base).Avail -= volume
		t.asset(quote).Avail += notional
		return
	}
	t.asset(base).Avail += volume
	t.asset(quote).Avail -= notional
}

func splitSymbol(symbol string) (string, string) {
	base, quote, ok := strings.Cut(symbol, "_")
	if !ok {
		return "", ""
	}
	return base, quote
}

func (t *Trader) CancelOrder(dest uint32, action msg.OrderAction) error {
	o, ok := t.orders[action.OrderID]
	if !ok {
		return errors.Wrapf(ErrUnknownOrder, "%d", action.OrderID)
	}
	if o.order.Status.IsFinal() {
		return errors.Wrapf(ErrOrderFinal, "%d is %s", action.OrderID, o.order.Status)
	}
	return t.cancel(o)
}

func (t *Trader) cancel(o *simOrder) error {
	if o.order.VolumeTraded > 0 {
		o.order.Status = msg.StatusPartialFilledNotActive
	} else {
		o.order.Status = msg.StatusCancelled
	}
	o.order.UpdateTime = t.cfg.Clock.Now()
	return t.r.ReportOrder(o.dest, o.order)
}

func (t *Trader) QueryOrder(dest uint32, action msg.OrderAction) error {
	o, ok := t.orders[action.OrderID]
	if !ok {
		return errors.Wrapf(ErrUnknownOrder, "%d", action.OrderID)
	}
	return t.r.ReportOrder(dest, o.order)
}

// AdjustLeverage records the leverage and echoes the request.
func (t *Trader) AdjustLeverage(dest uint32, req msg.AdjustLeverage) error {
	if req.Leverage <= 0 {
		return errors.Wrapf(ErrInvalidOrder, "leverage %d", req.Leverage)
	}
	t.leverage[req.Symbol] = req.Leverage
	return t.respond(dest, req.StrategyUID, msg.TypeAdjustLeverage, req)
}

// MergePosition is accepted and echoed; spot positions need no merging.
func (t *Trader) MergePosition(dest uint32, req msg.MergePosition) error {
	return t.respond(dest, req.StrategyUID, msg.TypeMergePosition, req)
}

func (t *Trader) QueryPosition(dest uint32, req msg.QueryPosition) error {
	for _, p := range t.sortedPositions() {
		if req.Symbol != "" && p.Symbol != req.Symbol {
			continue
		}
		if err := t.r.ReportPosition(dest, p); err != nil {
			return err
		}
	}
	return t.respond(dest, req.StrategyUID, msg.TypeQueryPosition, req)
}

func (t *Trader) respond(dest, strategyUID uint32, typ msg.Type, v any) error {
	data, err := codec.MarshalJSON(v)
	if err != nil {
		return err
	}
	return t.r.ReportResponse(dest, msg.UnionResponse{StrategyUID: strategyUID, Type: typ, Data: string(data)})
}

// ReqPosition publishes every position.
func (t *Trader) ReqPosition() error {
	for _, p := range t.sortedPositions() {
		if err := t.r.ReportPosition(0, p); err != nil {
			return err
		}
	}
	return nil
}

// ReqAccount publishes every asset.
func (t *Trader) ReqAccount() error {
	coins := make([]string, 0, len(t.assets))
	for coin := range t.assets {
		coins = append(coins, coin)
	}
	sort.Strings(coins)
	now := t.cfg.Clock.Now()
	for _, coin := range coins {
		a := t.assets[coin]
		a.UpdateTime = now
		if err := t.r.ReportAsset(0, *a); err != nil {
			return err
		}
	}
	logs.Debugf("sim %s/%s published %d assets", t.cfg.Source, t.cfg.Account, len(coins))
	return nil
}

func (t *Trader) sortedPositions() []msg.Position {
	out := make([]msg.Position, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].ExchangeID < out[j].ExchangeID
	})
	return out
}

// Match records price as the last price of symbol and fills resting limit
// orders it crosses, oldest first.
func (t *Trader) Match(symbol string, price float64) error {
	if price <= 0 {
		return nil
	}
	t.last[symbol] = price
	ids := make([]uint64, 0, len(t.orders))
	for id, o := range t.orders {
		if o.order.Symbol == symbol && !o.order.Status.IsFinal() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		o := t.orders[id]
		crossed := (o.order.Side == msg.SideBuy && o.order.Price >= price) ||
			(o.order.Side == msg.SideSell && o.order.Price <= price)
		if !crossed {
			continue
		}
		if err := t.fill(o, price, o.order.VolumeLeft); err != nil {
			return err
		}
	}
	return nil
}

// Order returns the current state of order id.
func (t *Trader) Order(id uint64) (msg.Order, bool) {
	o, ok := t.orders[id]
	if !ok {
		return msg.Order{}, false
	}
	return o.order, true
}

// Avail is the available balance of coin.
func (t *Trader) Avail(coin string) float64 {
	if a, ok := t.assets[coin]; ok {
		return a.Avail
	}
	return 0
}

func (t *Trader) Leverage(symbol string) int32 { return t.leverage[symbol] }
