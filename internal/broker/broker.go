package broker

import (
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
	"github.com/yanun0323/errors"
)

// Reporter writes what an adapter learns from its venue back to the journals.
// dest 0 is the public journal of the service.
type Reporter interface {
	ReportOrder(dest uint32, order msg.Order) error
	ReportTrade(dest uint32, trade msg.MyTrade) error
	ReportPosition(dest uint32, position msg.Position) error
	ReportAsset(dest uint32, asset msg.Asset) error
	ReportActionError(dest uint32, actionErr msg.OrderActionError) error
	ReportResponse(dest uint32, resp msg.UnionResponse) error
}

// Trader is the capability set of a trading adapter. dest is the location
// that sent the request and receives the answers.
type Trader interface {
	Bind(r Reporter)
	InsertOrder(dest uint32, input msg.OrderInput) error
	CancelOrder(dest uint32, action msg.OrderAction) error
	QueryOrder(dest uint32, action msg.OrderAction) error
	AdjustLeverage(dest uint32, req msg.AdjustLeverage) error
	MergePosition(dest uint32, req msg.MergePosition) error
	QueryPosition(dest uint32, req msg.QueryPosition) error
	ReqPosition() error
	ReqAccount() error
}

// Publisher writes market data to the public journal of the service.
type Publisher interface {
	Publish(rec msg.Record) error
}

// MarketData is the capability set of a market-data adapter.
type MarketData interface {
	Bind(p Publisher)
	Subscribe(req msg.SubscribeRequest) error
	Unsubscribe(req msg.SubscribeRequest) error
	SubscribeAll(req msg.SubscribeAll) error
}

func notImplemented(what string) error {
	return errors.Wrapf(exception.ErrNotImplemented, "%s is not supported", what)
}

// UnimplementedTrader answers every request with ErrNotImplemented. Embed it
// to implement only part of Trader.
type UnimplementedTrader struct{}

func (UnimplementedTrader) Bind(Reporter) {}
func (UnimplementedTrader) InsertOrder(uint32, msg.OrderInput) error {
	return notImplemented("insert order")
}
func (UnimplementedTrader) CancelOrder(uint32, msg.OrderAction) error {
	return notImplemented("cancel order")
}
func (UnimplementedTrader) QueryOrder(uint32, msg.OrderAction) error {
	return notImplemented("query order")
}
func (UnimplementedTrader) AdjustLeverage(uint32, msg.AdjustLeverage) error {
	return notImplemented("adjust leverage")
}
func (UnimplementedTrader) MergePosition(uint32, msg.MergePosition) error {
	return notImplemented("merge position")
}
func (UnimplementedTrader) QueryPosition(uint32, msg.QueryPosition) error {
	return notImplemented("query position")
}
func (UnimplementedTrader) ReqPosition() error { return notImplemented("position request") }
func (UnimplementedTrader) ReqAccount() error  { return notImplemented("account request") }

// UnimplementedMarketData answers every request with ErrNotImplemented.
type UnimplementedMarketData struct{}

func (UnimplementedMarketData) Bind(Publisher) {}
func (UnimplementedMarketData) Subscribe(msg.SubscribeRequest) error {
	return notImplemented("subscribe")
}
func (UnimplementedMarketData) Unsubscribe(msg.SubscribeRequest) error {
	return notImplemented("unsubscribe")
}
func (UnimplementedMarketData) SubscribeAll(msg.SubscribeAll) error {
	return notImplemented("subscribe all")
}
