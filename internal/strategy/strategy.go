package strategy

import "github.com/uswork-ny/godzilla-community/internal/msg"

// Strategy receives lifecycle and market callbacks. Every callback gets the
// Session of the strategy it is addressed to.
type Strategy interface {
	PreStart(s *Session)
	PostStart(s *Session)
	PreStop(s *Session)
	PostStop(s *Session)

	OnDepth(s *Session, depth msg.Depth)
	OnTicker(s *Session, ticker msg.Ticker)
	OnTrade(s *Session, trade msg.Trade)
	OnIndexPrice(s *Session, price msg.IndexPrice)
	OnBar(s *Session, bar msg.Bar)

	OnOrder(s *Session, order msg.Order)
	OnMyTrade(s *Session, trade msg.MyTrade)
	OnPosition(s *Session, position msg.Position)
	OnOrderActionError(s *Session, err msg.OrderActionError)
	OnUnionResponse(s *Session, resp msg.UnionResponse)
}

// Base implements Strategy with no-ops. Embed it and override what is needed.
type Base struct{}

func (Base) PreStart(*Session)  {}
func (Base) PostStart(*Session) {}
func (Base) PreStop(*Session)   {}
func (Base) PostStop(*Session)  {}

func (Base) OnDepth(*Session, msg.Depth)           {}
func (Base) OnTicker(*Session, msg.Ticker)         {}
func (Base) OnTrade(*Session, msg.Trade)           {}
func (Base) OnIndexPrice(*Session, msg.IndexPrice) {}
func (Base) OnBar(*Session, msg.Bar)               {}

func (Base) OnOrder(*Session, msg.Order)                       {}
func (Base) OnMyTrade(*Session, msg.MyTrade)                   {}
func (Base) OnPosition(*Session, msg.Position)                 {}
func (Base) OnOrderActionError(*Session, msg.OrderActionError) {}
func (Base) OnUnionResponse(*Session, msg.UnionResponse)       {}
