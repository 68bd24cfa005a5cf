package sim

import (
	"math/rand"
	"sort"

	"github.com/uswork-ny/godzilla-community/internal/broker"
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/uswork-ny/godzilla-community/internal/nanotime"
	"github.com/yanun0323/decimal"
	"github.com/yanun0323/logs"
)

type subKey struct {
	symbol string
	kind   string
}

// MarketDataConfig sets up a simulated venue.
type MarketDataConfig struct {
	Source      string
	Exchange    string
	Instruments []msg.Instrument
	// Prices are the starting mid prices per symbol.
	Prices map[string]float64
	// Step is the largest relative move of one Walk, 0.001 when unset.
	Step   float64
	Spread float64
	Seed   int64
	Clock  nanotime.Clock
}

// MarketData serves subscriptions with a random walk of mid prices.
type MarketData struct {
	cfg    MarketDataConfig
	p      broker.Publisher
	subs   map[subKey]struct{}
	all    bool
	prices map[string]float64
	up     map[string]bool
	rng    *rand.Rand
	seq    int64
}

var _ broker.MarketData = (*MarketData)(nil)

func NewMarketData(cfg MarketDataConfig) *MarketData {
	if cfg.Step <= 0 {
		cfg.Step = 0.001
	}
	if cfg.Spread <= 0 {
		cfg.Spread = 0.0002
	}
	if cfg.Clock == nil {
		cfg.Clock = nanotime.SystemClock{}
	}
	m := &MarketData{
		cfg:    cfg,
		subs:   make(map[subKey]struct{}),
		prices: make(map[string]float64, len(cfg.Prices)),
		up:     make(map[string]bool, len(cfg.Prices)),
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
	for symbol, price := range cfg.Prices {
		m.prices[symbol] = price
	}
	return m
}

func (m *MarketData) Bind(p broker.Publisher) { m.p = p }

func (m *MarketData) Subscribe(req msg.SubscribeRequest) error {
	m.subs[subKey{req.Symbol, req.SubType}] = struct{}{}
	logs.Infof("sim %s subscribed %s %s", m.cfg.Source, req.SubType, req.Symbol)
	return nil
}

func (m *MarketData) Unsubscribe(req msg.SubscribeRequest) error {
	delete(m.subs, subKey{req.Symbol, req.SubType})
	return nil
}

// SubscribeAll turns every stream on and announces the instruments.
func (m *MarketData) SubscribeAll(msg.SubscribeAll) error {
	m.all = true
	return m.PublishInstruments()
}

// Subscribed reports whether kind of symbol is published.
func (m *MarketData) Subscribed(symbol, kind string) bool {
	if m.all {
		return true
	}
	_, ok := m.subs[subKey{symbol, kind}]
	return ok
}

// PublishInstruments publishes the instrument list followed by InstrumentEnd.
func (m *MarketData) PublishInstruments() error {
	for _, inst := range m.cfg.Instruments {
		if err := m.p.Publish(inst); err != nil {
			return err
		}
	}
	return m.p.Publish(msg.InstrumentEnd{ExchangeID: m.cfg.Exchange})
}

// Walk moves every mid price once and publishes the depth and ticker of the
// subscribed symbols. It returns the new mid prices.
func (m *MarketData) Walk() (map[string]float64, error) {
	symbols := make([]string, 0, len(m.prices))
	for symbol := range m.prices {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	now := m.cfg.Clock.Now()
	for _, symbol := range symbols {
		last := m.prices[symbol]
		mid := last * (1 + (m.rng.Float64()*2-1)*m.cfg.Step)
		m.prices[symbol] = mid
		m.up[symbol] = mid >= last
		half := mid * m.cfg.Spread / 2
		tick := m.tick(symbol)
		if m.Subscribed(symbol, msg.SubDepth) {
			if err := m.p.Publish(m.depth(symbol, mid, half, tick, now)); err != nil {
				return nil, err
			}
		}
		if m.Subscribed(symbol, msg.SubTrade) {
			if err := m.p.Publish(m.trade(symbol, mid, half, tick, now)); err != nil {
				return nil, err
			}
		}
		if m.Subscribed(symbol, msg.SubTicker) {
			ticker := msg.Ticker{
				SourceID:   m.cfg.Source,
				Symbol:     symbol,
				ExchangeID: m.cfg.Exchange,
				DataTime:   now,
				BidPrice:   snap(mid-half, tick, false),
				BidVolume:  1,
				AskPrice:   snap(mid+half, tick, true),
				AskVolume:  1,
			}
			if err := m.p.Publish(ticker); err != nil {
				return nil, err
			}
		}
	}
	out := make(map[string]float64, len(m.prices))
	for symbol, mid := range m.prices {
		out[symbol] = mid
	}
	return out, nil
}

func (m *MarketData) depth(symbol string, mid, half float64, tick decimal.Decimal, now int64) msg.Depth {
	d := msg.Depth{
		SourceID:       m.cfg.Source,
		Symbol:         symbol,
		ExchangeID:     m.cfg.Exchange,
		DataTime:       now,
		InstrumentType: m.instType(symbol),
	}
	for i := 0; i < msg.DepthLevels; i++ {
		offset := half * float64(2*i+1)
		d.BidPrice[i] = snap(mid-offset, tick, false)
		d.AskPrice[i] = snap(mid+offset, tick, true)
		d.BidVolume[i] = float64(i + 1)
		d.AskVolume[i] = float64(i + 1)
	}
	return d
}

// trade prints one unit at the ask when the mid went up and at the bid
// otherwise.
func (m *MarketData) trade(symbol string, mid, half float64, tick decimal.Decimal, now int64) msg.Trade {
	m.seq++
	t := msg.Trade{
		Symbol:         symbol,
		ExchangeID:     m.cfg.Exchange,
		InstrumentType: m.instType(symbol),
		TradeID:        m.seq,
		Volume:         1,
		TradeTime:      now,
	}
	if m.up[symbol] {
		t.Side = msg.SideBuy
		t.Price = snap(mid+half, tick, true)
	} else {
		t.Side = msg.SideSell
		t.Price = snap(mid-half, tick, false)
	}
	return t
}

// tick is the price tick of symbol, zero when the instrument has none.
func (m *MarketData) tick(symbol string) decimal.Decimal {
	for _, inst := range m.cfg.Instruments {
		if inst.Symbol == symbol && inst.PriceTick > 0 {
			return decimal.NewFromFloat(inst.PriceTick)
		}
	}
	return decimal.Zero
}

// snap moves price onto the tick grid, bids down and asks up, so a quote
// never crosses the mid it was built from.
func snap(price float64, tick decimal.Decimal, up bool) float64 {
	if !tick.IsPositive() {
		return price
	}
	steps := decimal.NewFromFloat(price).Div(tick)
	if up {
		steps = steps.Ceil(0)
	} else {
		steps = steps.Floor(0)
	}
	v, _ := steps.Mul(tick).Float64()
	return v
}

func (m *MarketData) instType(symbol string) msg.InstrumentType {
	for _, inst := range m.cfg.Instruments {
		if inst.Symbol == symbol {
			return inst.InstrumentType
		}
	}
	return msg.InstrumentSpot
}

// Mid is the current mid price of symbol.
func (m *MarketData) Mid(symbol string) float64 { return m.prices[symbol] }
