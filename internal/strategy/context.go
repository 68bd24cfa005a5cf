package strategy

import (
	"runtime/debug"

	"github.com/uswork-ny/godzilla-community/internal/bus"
	"github.com/uswork-ny/godzilla-community/internal/codec"
	"github.com/uswork-ny/godzilla-community/internal/journal"
	"github.com/uswork-ny/godzilla-community/internal/location"
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/uswork-ny/godzilla-community/internal/node"
	"github.com/uswork-ny/godzilla-community/internal/obs"
	"github.com/uswork-ny/godzilla-community/internal/quota"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Context turns strategy calls into journal frames. It owns the account and
// market-data routes, the subscription table, the order tracker and the quota
// enforcer of one process. Strategy ids are passed explicitly on every call.
type Context struct {
	node    *node.Node
	quota   *quota.Enforcer
	tracker *Tracker
	metrics *obs.Metrics

	accounts     map[uint32]*location.Location
	marketData   map[string]uint32
	subscribed   map[uint32]struct{}
	subscribeAll bool
}

// NewContext creates a router over n. A nil enforcer gets the default quota.
func NewContext(n *node.Node, enforcer *quota.Enforcer) *Context {
	if enforcer == nil {
		enforcer = quota.New(quota.DefaultConfig(), n.Store().Clock())
	}
	return &Context{
		node:       n,
		quota:      enforcer,
		tracker:    NewTracker(n.Metrics()),
		metrics:    n.Metrics(),
		accounts:   make(map[uint32]*location.Location),
		marketData: make(map[string]uint32),
		subscribed: make(map[uint32]struct{}),
	}
}

func (c *Context) Node() *node.Node        { return c.node }
func (c *Context) Quota() *quota.Enforcer  { return c.quota }
func (c *Context) Tracker() *Tracker       { return c.tracker }
func (c *Context) Now() int64              { return c.node.Now() }
func (c *Context) SubscribedAll() bool     { return c.subscribeAll }

// AddAccount routes orders of account to the td location of source. In live
// mode the account must already be known to the master.
func (c *Context) AddAccount(source, account string) error {
	id := location.Hash32(account)
	if _, ok := c.accounts[id]; ok {
		logs.Infof("duplicated account added %s@%s [%08x]", account, source, id)
		return nil
	}
	loc := location.Account(c.node.Mode(), source, account)
	if c.node.Mode() == location.ModeLive && !c.node.Registry().HasLocation(loc.UID) {
		return errors.Wrapf(exception.ErrConfig, "invalid account %s@%s", account, source)
	}
	c.accounts[id] = loc
	if err := c.node.RequestWriteTo(loc.UID); err != nil {
		return err
	}
	if err := c.node.RequestReadFrom(loc.UID); err != nil {
		return err
	}
	logs.Infof("added account %s@%s [%08x]", account, source, id)
	return nil
}

// Accounts lists the routed account locations.
func (c *Context) Accounts() []*location.Location {
	out := make([]*location.Location, 0, len(c.accounts))
	for _, loc := range c.accounts {
		out = append(out, loc)
	}
	return out
}

// UsesAccount reports whether uid is one of the routed account locations.
func (c *Context) UsesAccount(uid uint32) bool {
	for _, loc := range c.accounts {
		if loc.UID == uid {
			return true
		}
	}
	return false
}

// AddMarketData reads the public journal of source and asks for a writer to
// it for subscription requests. It returns the market-data location uid.
func (c *Context) AddMarketData(source string) (uint32, error) {
	if uid, ok := c.marketData[source]; ok {
		return uid, nil
	}
	loc := location.MarketData(c.node.Mode(), source)
	if c.node.Mode() == location.ModeLive && !c.node.Registry().HasLocation(loc.UID) {
		return 0, errors.Wrapf(exception.ErrConfig, "invalid md %s", source)
	}
	if err := c.node.RequestReadFromPublic(loc.UID); err != nil {
		return 0, err
	}
	if err := c.node.RequestWriteTo(loc.UID); err != nil {
		return 0, err
	}
	c.marketData[source] = loc.UID
	logs.Infof("added md %s [%08x]", source, loc.UID)
	return loc.UID, nil
}

// whenWritable runs fn now when a writer to dest exists, otherwise once the
// grant arrives.
func (c *Context) whenWritable(dest uint32, fn func() error) error {
	if c.node.HasWriter(dest) {
		return fn()
	}
	c.node.Subscribe(func(bus.Event) {
		if err := fn(); err != nil {
			logs.Errorf("deferred write to %08x, err: %+v", dest, err)
		}
	},
		bus.Is(msg.TypeRequestWriteTo),
		bus.To(c.node.Location().UID),
		bus.Where(func(e bus.Event) bool {
			rec, err := e.Record()
			return err == nil && rec.(msg.RequestWriteToMsg).DestID == dest
		}),
		bus.Once(),
	)
	return nil
}

// Subscribe asks source for kind updates of symbols on behalf of sid. A key
// already subscribed is never requested twice.
func (c *Context) Subscribe(sid uint32, kind, source string, symbols []string, instType msg.InstrumentType, exchange string) error {
	md, err := c.AddMarketData(source)
	if err != nil {
		return err
	}
	fresh := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		key := msg.SubscriptionKey(symbol, kind, instType, exchange, uint64(sid))
		if _, ok := c.subscribed[key]; ok {
			continue
		}
		c.subscribed[key] = struct{}{}
		fresh = append(fresh, symbol)
	}
	if len(fresh) == 0 {
		return nil
	}
	logs.Infof("strategy %d subscribe %s %v from %s [%08x]", sid, kind, fresh, source, md)
	return c.whenWritable(md, func() error {
		return c.writeSubscription(md, msg.TypeSubscribe, kind, fresh, instType, exchange)
	})
}

// Unsubscribe drops the keys of sid and tells source about the ones that
// were subscribed.
func (c *Context) Unsubscribe(sid uint32, kind, source string, symbols []string, instType msg.InstrumentType, exchange string) error {
	md, err := c.AddMarketData(source)
	if err != nil {
		return err
	}
	gone := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		key := msg.SubscriptionKey(symbol, kind, instType, exchange, uint64(sid))
		if _, ok := c.subscribed[key]; !ok {
			continue
		}
		delete(c.subscribed, key)
		gone = append(gone, symbol)
	}
	if len(gone) == 0 {
		return nil
	}
	logs.Infof("strategy %d unsubscribe %s %v from %s [%08x]", sid, kind, gone, source, md)
	return c.whenWritable(md, func() error {
		return c.writeSubscription(md, msg.TypeUnsubscribe, kind, gone, instType, exchange)
	})
}

func (c *Context) writeSubscription(md uint32, t msg.Type, kind string, symbols []string, instType msg.InstrumentType, exchange string) error {
	for _, symbol := range symbols {
		req := msg.SubscribeRequest{Symbol: symbol, Exchange: exchange, SubType: kind, InstrumentType: instType}
		if err := c.node.WriteJSON(md, 0, t, req); err != nil {
			return err
		}
	}
	return nil
}

// SubscribeAll asks source for everything it publishes; every session then
// receives all market data.
func (c *Context) SubscribeAll(source, exchange string) error {
	md, err := c.AddMarketData(source)
	if err != nil {
		return err
	}
	if c.subscribeAll {
		return nil
	}
	c.subscribeAll = true
	logs.Infof("subscribe all from %s [%08x]", source, md)
	return c.whenWritable(md, func() error {
		return c.node.WriteJSON(md, 0, msg.TypeSubscribeAll, msg.SubscribeAll{Exchange: exchange})
	})
}

// IsSubscribed reports whether sid asked for kind updates of the instrument.
func (c *Context) IsSubscribed(kind string, sid uint32, symbol string, instType msg.InstrumentType, exchange string) bool {
	if c.subscribeAll {
		return true
	}
	_, ok := c.subscribed[msg.SubscriptionKey(symbol, kind, instType, exchange, uint64(sid))]
	return ok
}

// accountWriter resolves the route of account. Unknown accounts are routing
// errors, known accounts without a granted writer are configuration errors.
func (c *Context) accountWriter(account string) (*location.Location, *journal.Writer, error) {
	loc, ok := c.accounts[location.Hash32(account)]
	if !ok {
		return nil, nil, errors.Wrapf(exception.ErrRouting, "invalid account %s", account)
	}
	if !c.node.HasWriter(loc.UID) {
		return nil, nil, errors.Wrapf(exception.ErrConfig, "account %s has no write destination yet", account)
	}
	w, err := c.node.Writer(loc.UID)
	return loc, w, err
}

// InsertOrder writes an OrderInput for sid and returns its order id, the uid
// of the frame carrying it. The quota is checked first.
func (c *Context) InsertOrder(sid uint32, in msg.OrderInput) (uint64, error) {
	loc, w, err := c.accountWriter(in.AccountID)
	if err != nil {
		return 0, err
	}
	if err := c.quota.Check(sid, in.Symbol, in.Price, in.Volume); err != nil {
		c.metrics.IncQuotaReject()
		logs.Warnf("strategy %d order refused, err: %+v", sid, err)
		return 0, err
	}

	buf, err := w.OpenFrame(0, msg.TypeOrderInput, codec.OrderInputPayloadSize)
	if err != nil {
		return 0, err
	}
	in.StrategyID = sid
	in.OrderID = w.CurrentFrameUID()
	if in.SourceID == "" {
		in.SourceID = loc.Group
	}
	copy(buf, codec.EncodeOrderInput(buf[:0], in))
	if err := w.CloseFrame(codec.OrderInputPayloadSize); err != nil {
		return 0, err
	}

	c.subscribed[msg.SubscriptionKey(in.Symbol, msg.SubOrder, in.InstrumentType, in.ExchangeID, uint64(sid))] = struct{}{}
	c.tracker.Track(msg.OrderFromInput(in))
	logs.Debugf("strategy %d insert order %016x %s via %s", sid, in.OrderID, in.Symbol, loc.UName)
	return in.OrderID, nil
}

// CancelOrder writes a cancel action and returns its order action id.
func (c *Context) CancelOrder(sid uint32, account string, orderID uint64, symbol, exOrderID string, instType msg.InstrumentType) (uint64, error) {
	return c.orderAction(sid, account, msg.OrderAction{
		OrderID:        orderID,
		Symbol:         symbol,
		ExOrderID:      exOrderID,
		InstrumentType: instType,
		ActionFlag:     msg.ActionCancel,
	})
}

// QueryOrder writes a query action and returns its order action id.
func (c *Context) QueryOrder(sid uint32, account string, orderID uint64, symbol, exOrderID string, instType msg.InstrumentType) (uint64, error) {
	return c.orderAction(sid, account, msg.OrderAction{
		OrderID:        orderID,
		Symbol:         symbol,
		ExOrderID:      exOrderID,
		InstrumentType: instType,
		ActionFlag:     msg.ActionQuery,
	})
}

func (c *Context) orderAction(sid uint32, account string, action msg.OrderAction) (uint64, error) {
	_, w, err := c.accountWriter(account)
	if err != nil {
		return 0, err
	}
	buf, err := w.OpenFrame(0, msg.TypeOrderAction, codec.OrderActionPayloadSize)
	if err != nil {
		return 0, err
	}
	action.StrategyID = sid
	action.OrderActionID = w.CurrentFrameUID()
	copy(buf, codec.EncodeOrderAction(buf[:0], action))
	if err := w.CloseFrame(codec.OrderActionPayloadSize); err != nil {
		return 0, err
	}
	return action.OrderActionID, nil
}

func (c *Context) writeDocument(account string, t msg.Type, doc any) error {
	_, w, err := c.accountWriter(account)
	if err != nil {
		return err
	}
	data, err := codec.MarshalJSON(doc)
	if err != nil {
		return err
	}
	return w.Write(0, t, data)
}

// AdjustLeverage asks the account to change the leverage of a symbol.
func (c *Context) AdjustLeverage(sid uint32, account string, req msg.AdjustLeverage) error {
	req.StrategyUID = sid
	return c.writeDocument(account, msg.TypeAdjustLeverage, req)
}

// MergePositions asks the account to merge opposite positions of a symbol.
func (c *Context) MergePositions(sid uint32, account string, req msg.MergePosition) error {
	req.StrategyUID = sid
	return c.writeDocument(account, msg.TypeMergePosition, req)
}

// QueryPositions asks the account for its positions of a symbol.
func (c *Context) QueryPositions(sid uint32, account string, req msg.QueryPosition) error {
	req.StrategyUID = sid
	return c.writeDocument(account, msg.TypeQueryPosition, req)
}

// call runs fn for session s and contains its panics.
func (c *Context) call(s *Session, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.metrics.IncCallbackPanic()
			logs.Errorf("strategy %s panicked in %s, err: %+v\n%s", s.name, what, r, debug.Stack())
		}
	}()
	fn()
}
