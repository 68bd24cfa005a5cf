package codec

import "github.com/uswork-ny/godzilla-community/internal/msg"

// Payload sizes of the order flow records.
var (
	OrderInputPayloadSize       = len(EncodeOrderInput(nil, msg.OrderInput{}))
	OrderActionPayloadSize      = len(EncodeOrderAction(nil, msg.OrderAction{}))
	OrderActionErrorPayloadSize = len(EncodeOrderActionError(nil, msg.OrderActionError{}))
	OrderPayloadSize            = len(EncodeOrder(nil, msg.Order{}))
	MyTradePayloadSize          = len(EncodeMyTrade(nil, msg.MyTrade{}))
)

// EncodeOrderInput serializes an order intent, reusing dst's capacity.
func EncodeOrderInput(dst []byte, v msg.OrderInput) []byte {
	w := newWriter(dst)
	w.u32(v.StrategyID)
	w.u64(v.OrderID)
	w.str(v.Symbol, msg.SymbolLen)
	w.str(v.ExchangeID, msg.ExchangeLen)
	w.str(v.SourceID, msg.SourceLen)
	w.str(v.AccountID, msg.AccountLen)
	w.i8(int8(v.InstrumentType))
	w.f64(v.Price)
	w.f64(v.StopPrice)
	w.f64(v.Volume)
	w.i8(int8(v.Side))
	w.i8(int8(v.PositionSide))
	w.i8(int8(v.OrderType))
	w.i8(int8(v.TimeCondition))
	w.bool(v.ReduceOnly)
	return w.buf
}

// DecodeOrderInput parses an order intent payload.
func DecodeOrderInput(src []byte) (msg.OrderInput, bool) {
	if len(src) < OrderInputPayloadSize {
		return msg.OrderInput{}, false
	}
	r := &reader{src: src}
	return msg.OrderInput{
		StrategyID:     r.u32(),
		OrderID:        r.u64(),
		Symbol:         r.str(msg.SymbolLen),
		ExchangeID:     r.str(msg.ExchangeLen),
		SourceID:       r.str(msg.SourceLen),
		AccountID:      r.str(msg.AccountLen),
		InstrumentType: msg.InstrumentType(r.i8()),
		Price:          r.f64(),
		StopPrice:      r.f64(),
		Volume:         r.f64(),
		Side:           msg.Side(r.i8()),
		PositionSide:   msg.Direction(r.i8()),
		OrderType:      msg.OrderType(r.i8()),
		TimeCondition:  msg.TimeCondition(r.i8()),
		ReduceOnly:     r.bool(),
	}, true
}

// EncodeOrderAction serializes a cancel or query request.
func EncodeOrderAction(dst []byte, v msg.OrderAction) []byte {
	w := newWriter(dst)
	w.u32(v.StrategyID)
	w.u64(v.OrderID)
	w.u64(v.OrderActionID)
	w.str(v.Symbol, msg.SymbolLen)
	w.str(v.ExOrderID, msg.OrderIDLen)
	w.i8(int8(v.ActionFlag))
	w.i8(int8(v.InstrumentType))
	return w.buf
}

func DecodeOrderAction(src []byte) (msg.OrderAction, bool) {
	if len(src) < OrderActionPayloadSize {
		return msg.OrderAction{}, false
	}
	r := &reader{src: src}
	return msg.OrderAction{
		StrategyID:     r.u32(),
		OrderID:        r.u64(),
		OrderActionID:  r.u64(),
		Symbol:         r.str(msg.SymbolLen),
		ExOrderID:      r.str(msg.OrderIDLen),
		ActionFlag:     msg.OrderActionFlag(r.i8()),
		InstrumentType: msg.InstrumentType(r.i8()),
	}, true
}

func EncodeOrderActionError(dst []byte, v msg.OrderActionError) []byte {
	w := newWriter(dst)
	w.u64(v.OrderID)
	w.u64(v.OrderActionID)
	w.i32(v.ErrorID)
	w.str(v.ErrorMsg, msg.ErrorMsgLen)
	return w.buf
}

func DecodeOrderActionError(src []byte) (msg.OrderActionError, bool) {
	if len(src) < OrderActionErrorPayloadSize {
		return msg.OrderActionError{}, false
	}
	r := &reader{src: src}
	return msg.OrderActionError{
		OrderID:       r.u64(),
		OrderActionID: r.u64(),
		ErrorID:       r.i32(),
		ErrorMsg:      r.str(msg.ErrorMsgLen),
	}, true
}

// EncodeOrder serializes an order projection.
func EncodeOrder(dst []byte, v msg.Order) []byte {
	w := newWriter(dst)
	w.u32(v.StrategyID)
	w.u64(v.OrderID)
	w.str(v.ExOrderID, msg.OrderIDLen)
	w.str(v.Symbol, msg.SymbolLen)
	w.i8(int8(v.InstrumentType))
	w.str(v.ExchangeID, msg.ExchangeLen)
	w.str(v.AccountID, msg.AccountLen)
	w.str(v.SourceID, msg.SourceLen)
	w.f64(v.Price)
	w.f64(v.Volume)
	w.f64(v.VolumeTraded)
	w.f64(v.VolumeLeft)
	w.f64(v.StopPrice)
	w.f64(v.ClosePnl)
	w.f64(v.AvgPrice)
	w.f64(v.Fee)
	w.str(v.FeeCurrency, msg.SymbolLen)
	w.i8(int8(v.Status))
	w.i8(int8(v.TimeCondition))
	w.i8(int8(v.Side))
	w.i8(int8(v.PositionSide))
	w.i8(int8(v.OrderType))
	w.str(v.ErrorCode, msg.ErrorCodeLen)
	w.i64(v.InsertTime)
	w.i64(v.UpdateTime)
	return w.buf
}

func DecodeOrder(src []byte) (msg.Order, bool) {
	if len(src) < OrderPayloadSize {
		return msg.Order{}, false
	}
	r := &reader{src: src}
	return msg.Order{
		StrategyID:     r.u32(),
		OrderID:        r.u64(),
		ExOrderID:      r.str(msg.OrderIDLen),
		Symbol:         r.str(msg.SymbolLen),
		InstrumentType: msg.InstrumentType(r.i8()),
		ExchangeID:     r.str(msg.ExchangeLen),
		AccountID:      r.str(msg.AccountLen),
		SourceID:       r.str(msg.SourceLen),
		Price:          r.f64(),
		Volume:         r.f64(),
		VolumeTraded:   r.f64(),
		VolumeLeft:     r.f64(),
		StopPrice:      r.f64(),
		ClosePnl:       r.f64(),
		AvgPrice:       r.f64(),
		Fee:            r.f64(),
		FeeCurrency:    r.str(msg.SymbolLen),
		Status:         msg.OrderStatus(r.i8()),
		TimeCondition:  msg.TimeCondition(r.i8()),
		Side:           msg.Side(r.i8()),
		PositionSide:   msg.Direction(r.i8()),
		OrderType:      msg.OrderType(r.i8()),
		ErrorCode:      r.str(msg.ErrorCodeLen),
		InsertTime:     r.i64(),
		UpdateTime:     r.i64(),
	}, true
}

// EncodeMyTrade serializes a fill of one of our orders.
func EncodeMyTrade(dst []byte, v msg.MyTrade) []byte {
	w := newWriter(dst)
	w.u32(v.StrategyID)
	w.i64(v.TradeTime)
	w.u64(v.TradeID)
	w.u64(v.OrderID)
	w.str(v.ExOrderID, msg.OrderIDLen)
	w.str(v.Symbol, msg.SymbolLen)
	w.str(v.ExchangeID, msg.ExchangeLen)
	w.str(v.AccountID, msg.AccountLen)
	w.str(v.SourceID, msg.SourceLen)
	w.i8(int8(v.InstrumentType))
	w.i8(int8(v.Side))
	w.i8(int8(v.Offset))
	w.f64(v.Price)
	w.f64(v.Volume)
	w.f64(v.Fee)
	w.str(v.FeeCurrency, msg.SymbolLen)
	w.str(v.BaseCurrency, msg.SymbolLen)
	w.str(v.QuoteCurrency, msg.SymbolLen)
	return w.buf
}

func DecodeMyTrade(src []byte) (msg.MyTrade, bool) {
	if len(src) < MyTradePayloadSize {
		return msg.MyTrade{}, false
	}
	r := &reader{src: src}
	return msg.MyTrade{
		StrategyID:     r.u32(),
		TradeTime:      r.i64(),
		TradeID:        r.u64(),
		OrderID:        r.u64(),
		ExOrderID:      r.str(msg.OrderIDLen),
		Symbol:         r.str(msg.SymbolLen),
		ExchangeID:     r.str(msg.ExchangeLen),
		AccountID:      r.str(msg.AccountLen),
		SourceID:       r.str(msg.SourceLen),
		InstrumentType: msg.InstrumentType(r.i8()),
		Side:           msg.Side(r.i8()),
		Offset:         msg.Offset(r.i8()),
		Price:          r.f64(),
		Volume:         r.f64(),
		Fee:            r.f64(),
		FeeCurrency:    r.str(msg.SymbolLen),
		BaseCurrency:   r.str(msg.SymbolLen),
		QuoteCurrency:  r.str(msg.SymbolLen),
	}, true
}
