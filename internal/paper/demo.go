package paper

import (
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/uswork-ny/godzilla-community/internal/strategy"
	"github.com/yanun0323/logs"
)

const defaultDemoEvery = 10

// DemoConfig sets what the demo strategy trades.
type DemoConfig struct {
	Source     string
	Account    string
	MarketData string
	Exchange   string
	Symbols    []string
	Volume     float64
	// Every is how many depth updates pass between two orders.
	Every int
	// Bars subscribes the symbols to the bar service as well.
	Bars bool
}

// Demo crosses the spread every few depth updates, buying and selling in
// turn, with at most one live order per symbol.
type Demo struct {
	strategy.Base

	cfg    DemoConfig
	ticks  map[string]int
	side   map[string]msg.Side
	live   map[uint64]string
	busy   map[string]bool
	fills  int
	orders int
	bars   int
}

func NewDemo(cfg DemoConfig) *Demo {
	if cfg.Every <= 0 {
		cfg.Every = defaultDemoEvery
	}
	return &Demo{
		cfg:   cfg,
		ticks: make(map[string]int),
		side:  make(map[string]msg.Side),
		live:  make(map[uint64]string),
		busy:  make(map[string]bool),
	}
}

func (d *Demo) PreStart(s *strategy.Session) {
	if err := s.AddAccount(d.cfg.Source, d.cfg.Account); err != nil {
		logs.Errorf("demo add account %s@%s, err: %+v", d.cfg.Account, d.cfg.Source, err)
	}
	if err := s.Subscribe(d.cfg.MarketData, d.cfg.Symbols, msg.InstrumentSpot, d.cfg.Exchange); err != nil {
		logs.Errorf("demo subscribe %v, err: %+v", d.cfg.Symbols, err)
	}
	if !d.cfg.Bars {
		return
	}
	if err := s.SubscribeBar(d.cfg.Symbols, msg.InstrumentSpot, d.cfg.Exchange); err != nil {
		logs.Errorf("demo subscribe bars %v, err: %+v", d.cfg.Symbols, err)
	}
}

func (d *Demo) OnBar(_ *strategy.Session, b msg.Bar) {
	d.bars++
	logs.Infof("demo bar %s o:%.2f h:%.2f l:%.2f c:%.2f trades:%d", b.Symbol, b.Open, b.High, b.Low, b.Close, b.TradeCount)
}

func (d *Demo) OnDepth(s *strategy.Session, depth msg.Depth) {
	d.ticks[depth.Symbol]++
	if d.ticks[depth.Symbol]%d.cfg.Every != 0 || d.busy[depth.Symbol] {
		return
	}
	side := d.side[depth.Symbol]
	price := depth.AskPrice[0]
	if side == msg.SideSell {
		price = depth.BidPrice[0]
	}
	if price <= 0 {
		return
	}
	id, err := s.InsertOrder(msg.OrderInput{
		Symbol:         depth.Symbol,
		ExchangeID:     depth.ExchangeID,
		AccountID:      d.cfg.Account,
		InstrumentType: depth.InstrumentType,
		Price:          price,
		Volume:         d.cfg.Volume,
		Side:           side,
		OrderType:      msg.OrderTypeLimit,
		TimeCondition:  msg.TimeConditionIOC,
	})
	if err != nil {
		logs.Warnf("demo %s order refused, err: %+v", depth.Symbol, err)
		return
	}
	d.orders++
	d.live[id] = depth.Symbol
	d.busy[depth.Symbol] = true
	if side == msg.SideBuy {
		d.side[depth.Symbol] = msg.SideSell
	} else {
		d.side[depth.Symbol] = msg.SideBuy
	}
}

func (d *Demo) OnOrder(_ *strategy.Session, o msg.Order) {
	if !o.Status.IsFinal() {
		return
	}
	if symbol, ok := d.live[o.OrderID]; ok {
		delete(d.live, o.OrderID)
		d.busy[symbol] = false
	}
}

func (d *Demo) OnMyTrade(_ *strategy.Session, t msg.MyTrade) {
	d.fills++
	logs.Infof("demo %s %s %.6f @ %.2f", t.Symbol, t.Side, t.Volume, t.Price)
}

func (d *Demo) PostStop(*strategy.Session) {
	logs.Infof("demo placed %d orders, %d fills, %d bars", d.orders, d.fills, d.bars)
}

// Orders is how many orders were accepted.
func (d *Demo) Orders() int { return d.orders }

// Fills is how many trades came back.
func (d *Demo) Fills() int { return d.fills }

// Bars is how many bars arrived.
func (d *Demo) Bars() int { return d.bars }
