package book

import (
	"github.com/uswork-ny/godzilla-community/internal/bus"
	"github.com/uswork-ny/godzilla-community/internal/msg"
)

// Book consumes the account view of one td or strategy location.
type Book interface {
	OnDepth(e bus.Event, depth msg.Depth)
	OnPosition(e bus.Event, position msg.Position)
	OnMyTrade(e bus.Event, trade msg.MyTrade)
	OnOrder(e bus.Event, order msg.Order)
	OnAsset(e bus.Event, asset msg.Asset)
}
