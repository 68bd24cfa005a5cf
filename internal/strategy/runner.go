package strategy

import (
	"context"
	stderrors "errors"

	"github.com/uswork-ny/godzilla-community/internal/bus"
	"github.com/uswork-ny/godzilla-community/internal/location"
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/uswork-ny/godzilla-community/internal/node"
	"github.com/uswork-ny/godzilla-community/internal/quota"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Runner hosts any number of strategies on one strategy node and dispatches
// bus events to their sessions.
type Runner struct {
	node     *node.Node
	ctx      *Context
	sessions []*Session
	byID     map[uint32]*Session
	started  bool
	stopped  bool
}

// NewRunner creates a runner on n.
func NewRunner(n *node.Node, enforcer *quota.Enforcer) *Runner {
	return &Runner{
		node: n,
		ctx:  NewContext(n, enforcer),
		byID: make(map[uint32]*Session),
	}
}

func (r *Runner) Context() *Context { return r.ctx }
func (r *Runner) Node() *node.Node  { return r.node }

// Sessions lists the sessions in the order they were added.
func (r *Runner) Sessions() []*Session { return r.sessions }

// Session returns the session with the strategy id sid.
func (r *Runner) Session(sid uint32) (*Session, bool) {
	s, ok := r.byID[sid]
	return s, ok
}

// AddStrategy registers s under name. The strategy id is the hash of name.
func (r *Runner) AddStrategy(name string, s Strategy) (*Session, error) {
	if r.started {
		return nil, errors.Wrap(exception.ErrConfig, "runner already started").With("strategy", name)
	}
	id := location.Hash32(name)
	if _, ok := r.byID[id]; ok {
		return nil, errors.Wrap(exception.ErrConfig, "duplicated strategy").With("strategy", name)
	}
	sess := &Session{id: id, name: name, strategy: s, ctx: r.ctx}
	r.sessions = append(r.sessions, sess)
	r.byID[id] = sess
	return sess, nil
}

// Start wires dispatch and runs PreStart/PostStart once the node has been
// started by the master.
func (r *Runner) Start() {
	r.node.OnStart(r.start)
}

func (r *Runner) start() {
	if r.started {
		return
	}
	r.started = true
	for _, s := range r.sessions {
		r.ctx.call(s, "pre_start", func() { s.strategy.PreStart(s) })
	}
	r.subscribe()
	for _, s := range r.sessions {
		r.ctx.call(s, "post_start", func() { s.strategy.PostStart(s) })
	}
	logs.Infof("runner %s started %d strategies", r.node.Location().UName, len(r.sessions))
}

func (r *Runner) subscribe() {
	self := r.node.Location().UID
	b := r.node.Bus()

	b.Subscribe(r.onDepth, bus.Is(msg.TypeDepth))
	b.Subscribe(r.onTicker, bus.Is(msg.TypeTicker))
	b.Subscribe(r.onTrade, bus.Is(msg.TypeTrade))
	b.Subscribe(r.onIndexPrice, bus.Is(msg.TypeIndexPrice))
	b.Subscribe(r.onBar, bus.Is(msg.TypeBar))
	b.Subscribe(r.onOrder, bus.Is(msg.TypeOrder), bus.To(self))
	b.Subscribe(r.onMyTrade, bus.Is(msg.TypeMyTrade), bus.To(self))
	b.Subscribe(r.onOrderActionError, bus.Is(msg.TypeOrderActionError), bus.To(self))
	b.Subscribe(r.onPosition, bus.Is(msg.TypePosition))
	b.Subscribe(r.onUnionResponse, bus.Is(msg.TypeUnionResponse), bus.To(self))
}

func (r *Runner) record(e bus.Event) (msg.Record, bool) {
	rec, err := e.Record()
	if err != nil {
		r.node.Metrics().IncProtocolDrop()
		logs.Warnf("drop %s from %08x, err: %+v", e.MsgType, e.Source, err)
		return nil, false
	}
	return rec, true
}

// market delivers a market-data event to every session subscribed to it.
func (r *Runner) market(kind, symbol string, instType msg.InstrumentType, exchange string, fn func(*Session)) {
	for _, s := range r.sessions {
		if r.ctx.IsSubscribed(kind, s.id, symbol, instType, exchange) {
			r.ctx.call(s, kind, func() { fn(s) })
		}
	}
}

func (r *Runner) onDepth(e bus.Event) {
	if rec, ok := r.record(e); ok {
		d := rec.(msg.Depth)
		r.market(msg.SubDepth, d.Symbol, d.InstrumentType, d.ExchangeID, func(s *Session) { s.strategy.OnDepth(s, d) })
	}
}

func (r *Runner) onTicker(e bus.Event) {
	if rec, ok := r.record(e); ok {
		t := rec.(msg.Ticker)
		r.market(msg.SubTicker, t.Symbol, t.InstrumentType, t.ExchangeID, func(s *Session) { s.strategy.OnTicker(s, t) })
	}
}

func (r *Runner) onTrade(e bus.Event) {
	if rec, ok := r.record(e); ok {
		t := rec.(msg.Trade)
		r.market(msg.SubTrade, t.Symbol, t.InstrumentType, t.ExchangeID, func(s *Session) { s.strategy.OnTrade(s, t) })
	}
}

func (r *Runner) onIndexPrice(e bus.Event) {
	if rec, ok := r.record(e); ok {
		p := rec.(msg.IndexPrice)
		r.market(msg.SubIndexPrice, p.Symbol, p.InstrumentType, p.ExchangeID, func(s *Session) { s.strategy.OnIndexPrice(s, p) })
	}
}

func (r *Runner) onBar(e bus.Event) {
	if rec, ok := r.record(e); ok {
		bar := rec.(msg.Bar)
		for _, s := range r.sessions {
			r.ctx.call(s, "bar", func() { s.strategy.OnBar(s, bar) })
		}
	}
}

func (r *Runner) onOrder(e bus.Event) {
	rec, ok := r.record(e)
	if !ok {
		return
	}
	o := rec.(msg.Order)
	if !r.ctx.tracker.Apply(o) {
		logs.Debugf("ignore order frame %016x after terminal status", o.OrderID)
		return
	}
	if s, ok := r.byID[o.StrategyID]; ok {
		r.ctx.call(s, "order", func() { s.strategy.OnOrder(s, o) })
	}
}

func (r *Runner) onMyTrade(e bus.Event) {
	rec, ok := r.record(e)
	if !ok {
		return
	}
	t := rec.(msg.MyTrade)
	r.ctx.quota.RecordTrade(t.StrategyID, r.ctx.quota.Notional(t.Symbol, t.Price, t.Volume))
	if s, ok := r.byID[t.StrategyID]; ok {
		r.ctx.call(s, "my_trade", func() { s.strategy.OnMyTrade(s, t) })
	}
}

func (r *Runner) onOrderActionError(e bus.Event) {
	rec, ok := r.record(e)
	if !ok {
		return
	}
	oae := rec.(msg.OrderActionError)
	o, ok := r.ctx.tracker.Order(oae.OrderID)
	if !ok {
		logs.Warnf("order action error for unknown order %016x: %s", oae.OrderID, oae.ErrorMsg)
		return
	}
	if s, ok := r.byID[o.StrategyID]; ok {
		r.ctx.call(s, "order_action_error", func() { s.strategy.OnOrderActionError(s, oae) })
	}
}

func (r *Runner) onPosition(e bus.Event) {
	if rec, ok := r.record(e); ok {
		p := rec.(msg.Position)
		for _, s := range r.sessions {
			r.ctx.call(s, "position", func() { s.strategy.OnPosition(s, p) })
		}
	}
}

func (r *Runner) onUnionResponse(e bus.Event) {
	var resp msg.UnionResponse
	if err := e.JSON(&resp); err != nil {
		r.node.Metrics().IncProtocolDrop()
		logs.Warnf("drop union response from %08x, err: %+v", e.Source, err)
		return
	}
	if s, ok := r.byID[resp.StrategyUID]; ok {
		r.ctx.call(s, "union_response", func() { s.strategy.OnUnionResponse(s, resp) })
	}
}

// Stop runs PreStop/PostStop of every strategy.
func (r *Runner) Stop() {
	if !r.started || r.stopped {
		return
	}
	r.stopped = true
	for _, s := range r.sessions {
		r.ctx.call(s, "pre_stop", func() { s.strategy.PreStop(s) })
	}
	for _, s := range r.sessions {
		r.ctx.call(s, "post_stop", func() { s.strategy.PostStop(s) })
	}
	logs.Infof("runner %s stopped", r.node.Location().UName)
}

// Run waits for the master, starts the strategies and pumps the bus until
// ctx is done or, in replay, the journals are exhausted.
func (r *Runner) Run(ctx context.Context) error {
	r.Start()
	if err := r.node.WaitReady(ctx); err != nil {
		return err
	}
	err := r.node.Run(ctx)
	r.Stop()
	if stderrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
