package broker

import (
	stderrors "errors"
	"runtime/debug"

	"github.com/uswork-ny/godzilla-community/internal/bus"
	"github.com/uswork-ny/godzilla-community/internal/location"
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/uswork-ny/godzilla-community/internal/node"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// TraderService serves the frames addressed to a td node with a Trader and
// writes the answers back.
type TraderService struct {
	node    *node.Node
	trader  Trader
	trigger int64
}

// NewTraderService binds t to the td node n.
func NewTraderService(n *node.Node, t Trader) (*TraderService, error) {
	if n.Location().Category != location.CategoryTD {
		return nil, errors.Wrapf(exception.ErrConfig, "trader needs a td location, got %s", n.Location().UName)
	}
	s := &TraderService{node: n, trader: t}
	t.Bind(s)

	self := n.Location().UID
	n.Subscribe(s.onOrderInput, bus.Is(msg.TypeOrderInput), bus.To(self))
	n.Subscribe(s.onOrderAction, bus.Is(msg.TypeOrderAction), bus.To(self))
	n.Subscribe(s.onControl, bus.Is(msg.TypeAdjustLeverage, msg.TypeMergePosition, msg.TypeQueryPosition), bus.To(self))
	n.OnStart(s.start)
	return s, nil
}

func (s *TraderService) Node() *node.Node { return s.node }

func (s *TraderService) start() {
	if err := guard(s.node, "account request", s.trader.ReqAccount); err != nil {
		logs.Warnf("%s account request, err: %+v", s.node.Location().UName, err)
	}
	if err := guard(s.node, "position request", s.trader.ReqPosition); err != nil {
		logs.Warnf("%s position request, err: %+v", s.node.Location().UName, err)
	}
	if err := s.node.WriteJSON(0, 0, msg.TypeBrokerState, msg.BrokerState{State: msg.BrokerReady}); err != nil {
		logs.Errorf("%s publish broker state, err: %+v", s.node.Location().UName, err)
	}
}

func (s *TraderService) onOrderInput(e bus.Event) {
	rec, err := e.Record()
	if err != nil {
		s.node.Metrics().IncProtocolDrop()
		logs.Warnf("drop order input from %08x, err: %+v", e.Source, err)
		return
	}
	input := rec.(msg.OrderInput)
	s.trigger = e.GenTime
	err = guard(s.node, "insert order", func() error { return s.trader.InsertOrder(e.Source, input) })
	if err == nil {
		return
	}
	logs.Errorf("insert order %d from %08x, err: %+v", input.OrderID, e.Source, err)
	order := msg.OrderFromInput(input)
	order.Status = msg.StatusError
	order.ErrorCode = errorCode(err)
	order.UpdateTime = e.GenTime
	if err := s.ReportOrder(e.Source, order); err != nil {
		logs.Errorf("report rejected order %d, err: %+v", input.OrderID, err)
	}
}

func (s *TraderService) onOrderAction(e bus.Event) {
	rec, err := e.Record()
	if err != nil {
		s.node.Metrics().IncProtocolDrop()
		logs.Warnf("drop order action from %08x, err: %+v", e.Source, err)
		return
	}
	action := rec.(msg.OrderAction)
	s.trigger = e.GenTime
	what, fn := "cancel order", s.trader.CancelOrder
	if action.ActionFlag == msg.ActionQuery {
		what, fn = "query order", s.trader.QueryOrder
	}
	err = guard(s.node, what, func() error { return fn(e.Source, action) })
	if err == nil {
		return
	}
	logs.Warnf("%s %d from %08x, err: %+v", what, action.OrderID, e.Source, err)
	actionErr := msg.OrderActionError{
		OrderID:       action.OrderID,
		OrderActionID: action.OrderActionID,
		ErrorID:       -1,
		ErrorMsg:      err.Error(),
	}
	if err := s.ReportActionError(e.Source, actionErr); err != nil {
		logs.Errorf("report action error %d, err: %+v", action.OrderActionID, err)
	}
}

func (s *TraderService) onControl(e bus.Event) {
	s.trigger = e.GenTime
	var err error
	switch e.MsgType {
	case msg.TypeAdjustLeverage:
		var req msg.AdjustLeverage
		if err = e.JSON(&req); err == nil {
			err = guard(s.node, "adjust leverage", func() error { return s.trader.AdjustLeverage(e.Source, req) })
		}
	case msg.TypeMergePosition:
		var req msg.MergePosition
		if err = e.JSON(&req); err == nil {
			err = guard(s.node, "merge position", func() error { return s.trader.MergePosition(e.Source, req) })
		}
	case msg.TypeQueryPosition:
		var req msg.QueryPosition
		if err = e.JSON(&req); err == nil {
			err = guard(s.node, "query position", func() error { return s.trader.QueryPosition(e.Source, req) })
		}
	}
	if err == nil {
		return
	}
	if stderrors.Is(err, exception.ErrProtocol) {
		s.node.Metrics().IncProtocolDrop()
	}
	logs.Warnf("%s from %08x, err: %+v", e.MsgType, e.Source, err)
}

func (s *TraderService) write(dest uint32, rec msg.Record) error {
	return s.node.WriteRecord(dest, s.trigger, rec)
}

func (s *TraderService) ReportOrder(dest uint32, order msg.Order) error {
	return s.write(dest, order)
}

func (s *TraderService) ReportTrade(dest uint32, trade msg.MyTrade) error {
	return s.write(dest, trade)
}

func (s *TraderService) ReportPosition(dest uint32, position msg.Position) error {
	return s.write(dest, position)
}

func (s *TraderService) ReportAsset(dest uint32, asset msg.Asset) error {
	return s.write(dest, asset)
}

func (s *TraderService) ReportActionError(dest uint32, actionErr msg.OrderActionError) error {
	return s.write(dest, actionErr)
}

func (s *TraderService) ReportResponse(dest uint32, resp msg.UnionResponse) error {
	return s.node.WriteJSON(dest, s.trigger, msg.TypeUnionResponse, resp)
}

// MarketDataService decodes subscription documents for a MarketData adapter
// and publishes what it produces on the public journal of the md node.
type MarketDataService struct {
	node    *node.Node
	md      MarketData
	trigger int64
}

// NewMarketDataService binds md to the md node n.
func NewMarketDataService(n *node.Node, md MarketData) (*MarketDataService, error) {
	if n.Location().Category != location.CategoryMD {
		return nil, errors.Wrapf(exception.ErrConfig, "market data needs an md location, got %s", n.Location().UName)
	}
	s := &MarketDataService{node: n, md: md}
	md.Bind(s)

	self := n.Location().UID
	n.Subscribe(s.onSubscribe, bus.Is(msg.TypeSubscribe, msg.TypeUnsubscribe), bus.To(self))
	n.Subscribe(s.onSubscribeAll, bus.Is(msg.TypeSubscribeAll), bus.To(self))
	return s, nil
}

func (s *MarketDataService) Node() *node.Node { return s.node }

func (s *MarketDataService) onSubscribe(e bus.Event) {
	var req msg.SubscribeRequest
	if err := e.JSON(&req); err != nil {
		s.drop(e, err)
		return
	}
	switch req.SubType {
	case msg.SubDepth, msg.SubTrade, msg.SubTicker, msg.SubIndexPrice:
	default:
		s.drop(e, errors.Wrapf(exception.ErrProtocol, "unknown sub_type %q", req.SubType))
		return
	}
	s.trigger = e.GenTime
	what, fn := "subscribe", s.md.Subscribe
	if e.MsgType == msg.TypeUnsubscribe {
		what, fn = "unsubscribe", s.md.Unsubscribe
	}
	if err := guard(s.node, what, func() error { return fn(req) }); err != nil {
		logs.Warnf("%s %s %s@%s, err: %+v", what, req.SubType, req.Symbol, req.Exchange, err)
	}
}

func (s *MarketDataService) onSubscribeAll(e bus.Event) {
	var req msg.SubscribeAll
	if err := e.JSON(&req); err != nil {
		s.drop(e, err)
		return
	}
	s.trigger = e.GenTime
	logs.Infof("subscribe all request from %08x", e.Source)
	if err := guard(s.node, "subscribe all", func() error { return s.md.SubscribeAll(req) }); err != nil {
		logs.Warnf("subscribe all, err: %+v", err)
	}
}

func (s *MarketDataService) drop(e bus.Event, err error) {
	s.node.Metrics().IncProtocolDrop()
	logs.Warnf("drop %s from %08x, err: %+v", e.MsgType, e.Source, err)
}

// Publish writes rec to the public journal.
func (s *MarketDataService) Publish(rec msg.Record) error {
	return s.node.WriteRecord(0, s.trigger, rec)
}

// guard runs an adapter call and turns a panic into an error.
func guard(n *node.Node, what string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			n.Metrics().IncCallbackPanic()
			logs.Errorf("adapter panicked in %s, err: %+v\n%s", what, r, debug.Stack())
			err = errors.Errorf("%s panicked: %v", what, r)
		}
	}()
	return fn()
}

func errorCode(err error) string {
	switch {
	case stderrors.Is(err, exception.ErrNotImplemented):
		return "unsupported"
	case stderrors.Is(err, exception.ErrRiskRejected):
		return "risk"
	default:
		return "rejected"
	}
}
