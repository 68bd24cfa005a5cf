package codec

import "github.com/uswork-ny/godzilla-community/internal/msg"

var (
	AssetPayloadSize    = len(EncodeAsset(nil, msg.Asset{}))
	PositionPayloadSize = len(EncodePosition(nil, msg.Position{}))
)

func EncodeAsset(dst []byte, v msg.Asset) []byte {
	w := newWriter(dst)
	w.i64(v.UpdateTime)
	w.u32(v.HolderUID)
	w.i8(int8(v.LedgerCategory))
	w.str(v.Coin, msg.SymbolLen)
	w.str(v.AccountID, msg.AccountLen)
	w.str(v.ExchangeID, msg.ExchangeLen)
	w.f64(v.Avail)
	w.f64(v.Margin)
	w.f64(v.Frozen)
	return w.buf
}

func DecodeAsset(src []byte) (msg.Asset, bool) {
	if len(src) < AssetPayloadSize {
		return msg.Asset{}, false
	}
	r := &reader{src: src}
	return msg.Asset{
		UpdateTime:     r.i64(),
		HolderUID:      r.u32(),
		LedgerCategory: msg.LedgerCategory(r.i8()),
		Coin:           r.str(msg.SymbolLen),
		AccountID:      r.str(msg.AccountLen),
		ExchangeID:     r.str(msg.ExchangeLen),
		Avail:          r.f64(),
		Margin:         r.f64(),
		Frozen:         r.f64(),
	}, true
}

func EncodePosition(dst []byte, v msg.Position) []byte {
	w := newWriter(dst)
	w.u32(v.StrategyID)
	w.i64(v.UpdateTime)
	w.str(v.Symbol, msg.SymbolLen)
	w.i8(int8(v.InstrumentType))
	w.str(v.ExchangeID, msg.ExchangeLen)
	w.u32(v.HolderUID)
	w.i8(int8(v.LedgerCategory))
	w.str(v.SourceID, msg.SourceLen)
	w.str(v.AccountID, msg.AccountLen)
	w.i8(int8(v.Direction))
	w.f64(v.Volume)
	w.i64(v.FrozenTotal)
	w.f64(v.LastPrice)
	w.f64(v.AvgOpenPrice)
	w.f64(v.SettlementPrice)
	w.f64(v.Margin)
	w.f64(v.RealizedPnl)
	w.f64(v.UnrealizedPnl)
	return w.buf
}

func DecodePosition(src []byte) (msg.Position, bool) {
	if len(src) < PositionPayloadSize {
		return msg.Position{}, false
	}
	r := &reader{src: src}
	return msg.Position{
		StrategyID:      r.u32(),
		UpdateTime:      r.i64(),
		Symbol:          r.str(msg.SymbolLen),
		InstrumentType:  msg.InstrumentType(r.i8()),
		ExchangeID:      r.str(msg.ExchangeLen),
		HolderUID:       r.u32(),
		LedgerCategory:  msg.LedgerCategory(r.i8()),
		SourceID:        r.str(msg.SourceLen),
		AccountID:       r.str(msg.AccountLen),
		Direction:       msg.Direction(r.i8()),
		Volume:          r.f64(),
		FrozenTotal:     r.i64(),
		LastPrice:       r.f64(),
		AvgOpenPrice:    r.f64(),
		SettlementPrice: r.f64(),
		Margin:          r.f64(),
		RealizedPnl:     r.f64(),
		UnrealizedPnl:   r.f64(),
	}, true
}
