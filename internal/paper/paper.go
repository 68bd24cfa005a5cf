// Package paper runs a master, the ledger, simulated venues and the demo
// strategy inside one process.
package paper

import (
	"context"
	stderrors "errors"
	"sort"

	"github.com/sourcegraph/conc/pool"
	"github.com/uswork-ny/godzilla-community/internal/bar"
	"github.com/uswork-ny/godzilla-community/internal/broker"
	"github.com/uswork-ny/godzilla-community/internal/broker/sim"
	"github.com/uswork-ny/godzilla-community/internal/bus"
	"github.com/uswork-ny/godzilla-community/internal/journal"
	"github.com/uswork-ny/godzilla-community/internal/ledger"
	"github.com/uswork-ny/godzilla-community/internal/location"
	"github.com/uswork-ny/godzilla-community/internal/marketdb"
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/uswork-ny/godzilla-community/internal/node"
	"github.com/uswork-ny/godzilla-community/internal/obs"
	"github.com/uswork-ny/godzilla-community/internal/ops"
	"github.com/uswork-ny/godzilla-community/internal/quota"
	"github.com/uswork-ny/godzilla-community/internal/strategy"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const settleSteps = 100_000

// Engine owns every node of a paper run.
type Engine struct {
	cfg     ops.Loaded
	store   *journal.Store
	metrics *obs.Metrics

	master  *node.Master
	nodes   []*node.Node
	ledger  *ledger.Service
	feeds   map[string]*sim.MarketData
	traders map[uint32]*sim.Trader
	bars    *bar.Service

	app    *node.Node
	runner *strategy.Runner
	demo   *Demo
}

// New opens the whole paper setup on store and waits until every node was
// started by the master. db may be nil.
func New(cfg ops.Loaded, store *journal.Store, db *marketdb.Store) (*Engine, error) {
	e := &Engine{
		cfg:     cfg,
		store:   store,
		metrics: obs.NewMetrics(),
		feeds:   make(map[string]*sim.MarketData),
		traders: make(map[uint32]*sim.Trader),
	}
	store.WithMetrics(e.metrics)

	var err error
	e.master, err = node.NewMaster(store, cfg.Mode, node.MasterConfig{Metrics: e.metrics})
	if err != nil {
		return nil, err
	}
	if err := e.build(db); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) open(loc *location.Location) (*node.Node, error) {
	n, err := node.New(e.store, loc, node.Config{Metrics: e.metrics})
	if err != nil {
		return nil, err
	}
	e.nodes = append(e.nodes, n)
	return n, nil
}

func (e *Engine) build(db *marketdb.Store) error {
	ln, err := e.open(location.Ledger(e.cfg.Mode))
	if err != nil {
		return err
	}
	if e.ledger, err = ledger.New(ln, ledger.Config{MarketDB: db, SnapshotDir: e.cfg.Ledger.SnapshotDir}); err != nil {
		return err
	}

	for _, source := range e.cfg.Strategy.MarketData {
		if err := e.openFeed(source); err != nil {
			return err
		}
	}
	for _, acc := range e.cfg.Strategy.Accounts {
		if err := e.openAccount(acc); err != nil {
			return err
		}
	}
	if e.cfg.Paper.BarInterval > 0 {
		bn, err := e.open(location.MarketData(e.cfg.Mode, "bar"))
		if err != nil {
			return err
		}
		e.bars, err = bar.New(bn, bar.Config{Source: e.cfg.Strategy.MarketData[0], Interval: e.cfg.Paper.BarInterval})
		if err != nil {
			return err
		}
	}
	if err := e.Settle(); err != nil {
		return err
	}
	for _, source := range e.sources() {
		if err := e.feeds[source].PublishInstruments(); err != nil {
			return err
		}
	}

	if e.app, err = e.open(e.cfg.StrategyLocation()); err != nil {
		return err
	}
	enforcer := quota.New(e.cfg.Quota, e.store.Clock())
	e.runner = strategy.NewRunner(e.app, enforcer)
	acc := e.cfg.Strategy.Accounts[0]
	e.demo = NewDemo(DemoConfig{
		Source:     acc.Source,
		Account:    acc.Account,
		MarketData: e.cfg.Strategy.MarketData[0],
		Exchange:   e.cfg.Paper.Exchange,
		Symbols:    e.cfg.Strategy.Symbols,
		Volume:     e.cfg.Strategy.Volume,
		Bars:       e.bars != nil,
	})
	if _, err := e.runner.AddStrategy(e.cfg.Strategy.Name, e.demo); err != nil {
		return err
	}
	e.runner.Start()
	return e.Settle()
}

func (e *Engine) openFeed(source string) error {
	n, err := e.open(location.MarketData(e.cfg.Mode, source))
	if err != nil {
		return err
	}
	feed := sim.NewMarketData(sim.MarketDataConfig{
		Source:      source,
		Exchange:    e.cfg.Paper.Exchange,
		Instruments: e.instruments(),
		Prices:      e.cfg.Paper.Prices,
		Seed:        e.cfg.Paper.Seed,
		Clock:       e.store.Clock(),
	})
	if _, err := broker.NewMarketDataService(n, feed); err != nil {
		return err
	}
	n.Bus().AddInterval(e.cfg.Paper.Interval, func(bus.Event) {
		if _, err := feed.Walk(); err != nil {
			logs.Errorf("walk %s, err: %+v", source, err)
		}
	})
	e.feeds[source] = feed
	return nil
}

func (e *Engine) openAccount(acc ops.AccountConfig) error {
	n, err := e.open(location.Account(e.cfg.Mode, acc.Source, acc.Account))
	if err != nil {
		return err
	}
	trader := sim.NewTrader(sim.TraderConfig{
		Source:    acc.Source,
		Account:   acc.Account,
		HolderUID: n.Location().UID,
		FillRatio: e.cfg.Paper.FillRatio,
		Balances:  e.cfg.Paper.Balances,
		Clock:     e.store.Clock(),
	})
	if _, err := broker.NewTraderService(n, trader); err != nil {
		return err
	}
	for _, source := range e.cfg.Strategy.MarketData {
		if err := n.RequestReadFromPublic(location.MarketData(e.cfg.Mode, source).UID); err != nil {
			return err
		}
	}
	n.Subscribe(func(ev bus.Event) {
		rec, err := ev.Record()
		if err != nil {
			return
		}
		d := rec.(msg.Depth)
		if d.BidPrice[0] <= 0 || d.AskPrice[0] <= 0 {
			return
		}
		if err := trader.Match(d.Symbol, (d.BidPrice[0]+d.AskPrice[0])/2); err != nil {
			logs.Errorf("match %s, err: %+v", d.Symbol, err)
		}
	}, bus.Is(msg.TypeDepth))
	e.traders[n.Location().UID] = trader
	return nil
}

func (e *Engine) instruments() []msg.Instrument {
	symbols := make([]string, 0, len(e.cfg.Paper.Prices))
	for symbol := range e.cfg.Paper.Prices {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	out := make([]msg.Instrument, 0, len(symbols))
	for _, symbol := range symbols {
		out = append(out, msg.Instrument{
			Symbol:         symbol,
			ExchangeID:     e.cfg.Paper.Exchange,
			InstrumentType: msg.InstrumentSpot,
			PriceTick:      0.01,
			IsTrading:      true,
		})
	}
	return out
}

func (e *Engine) sources() []string {
	out := make([]string, 0, len(e.feeds))
	for source := range e.feeds {
		out = append(out, source)
	}
	sort.Strings(out)
	return out
}

// Step dispatches at most one event on the master and on every node.
func (e *Engine) Step() bool {
	progressed := e.master.Step()
	for _, n := range e.nodes {
		if n.Step() {
			progressed = true
		}
	}
	return progressed
}

// Settle pumps every node until nothing is left to dispatch.
func (e *Engine) Settle() error {
	if _, err := e.master.Discover(); err != nil {
		return err
	}
	for i := 0; i < settleSteps; i++ {
		if !e.Step() {
			return nil
		}
	}
	return errors.Wrap(exception.ErrRouting, "paper setup never settled")
}

// Run serves every node on its own goroutine until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	p := pool.New().WithErrors()
	p.Go(func() error { return ignoreCanceled(e.master.Run(ctx)) })
	for _, n := range e.nodes {
		if n == e.app {
			continue
		}
		p.Go(func() error { return ignoreCanceled(n.Run(ctx)) })
	}
	p.Go(func() error { return ignoreCanceled(e.runner.Run(ctx)) })
	logs.Infof("paper run with %d nodes", len(e.nodes))
	return p.Wait()
}

func ignoreCanceled(err error) error {
	if stderrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close stops the strategy, dumps the ledger and releases every journal.
func (e *Engine) Close() error {
	if e.runner != nil {
		e.runner.Stop()
	}
	var err error
	if e.ledger != nil && e.nodes != nil {
		err = e.ledger.Dump()
	}
	for i := len(e.nodes) - 1; i >= 0; i-- {
		_ = e.nodes[i].Close()
	}
	e.nodes = nil
	if e.master != nil {
		_ = e.master.Close()
		e.master = nil
	}
	return err
}

func (e *Engine) Metrics() *obs.Metrics   { return e.metrics }
func (e *Engine) Ledger() *ledger.Service { return e.ledger }
func (e *Engine) Demo() *Demo             { return e.demo }
func (e *Engine) Strategy() *node.Node    { return e.app }
func (e *Engine) Bars() *bar.Service      { return e.bars }

// Feed returns the simulated market data of source.
func (e *Engine) Feed(source string) *sim.MarketData { return e.feeds[source] }

// Trader returns the simulated trader behind the td location uid.
func (e *Engine) Trader(uid uint32) (*sim.Trader, bool) {
	t, ok := e.traders[uid]
	return t, ok
}
