package codec

import "github.com/uswork-ny/godzilla-community/internal/msg"

// Payload sizes of the market data records.
var (
	InstrumentPayloadSize    = len(EncodeInstrument(nil, msg.Instrument{}))
	InstrumentEndPayloadSize = len(EncodeInstrumentEnd(nil, msg.InstrumentEnd{}))
	TickerPayloadSize        = len(EncodeTicker(nil, msg.Ticker{}))
	DepthPayloadSize         = len(EncodeDepth(nil, msg.Depth{}))
	TradePayloadSize         = len(EncodeTrade(nil, msg.Trade{}))
	IndexPricePayloadSize    = len(EncodeIndexPrice(nil, msg.IndexPrice{}))
	BarPayloadSize           = len(EncodeBar(nil, msg.Bar{}))
)

// EncodeInstrument serializes an instrument, reusing dst's capacity.
func EncodeInstrument(dst []byte, v msg.Instrument) []byte {
	w := newWriter(dst)
	w.str(v.Symbol, msg.SymbolLen)
	w.str(v.ExchangeID, msg.ExchangeLen)
	w.i8(int8(v.InstrumentType))
	w.str(v.ProductID, msg.ProductIDLen)
	w.i32(v.ContractMultiplier)
	w.f64(v.PriceTick)
	w.str(v.OpenDate, msg.DateLen)
	w.str(v.CreateDate, msg.DateLen)
	w.str(v.ExpireDate, msg.DateLen)
	w.i32(v.DeliveryYear)
	w.i32(v.DeliveryMonth)
	w.bool(v.IsTrading)
	w.f64(v.LongMarginRatio)
	w.f64(v.ShortMarginRatio)
	return w.buf
}

// DecodeInstrument parses an instrument payload.
func DecodeInstrument(src []byte) (msg.Instrument, bool) {
	if len(src) < InstrumentPayloadSize {
		return msg.Instrument{}, false
	}
	r := &reader{src: src}
	return msg.Instrument{
		Symbol:             r.str(msg.SymbolLen),
		ExchangeID:         r.str(msg.ExchangeLen),
		InstrumentType:     msg.InstrumentType(r.i8()),
		ProductID:          r.str(msg.ProductIDLen),
		ContractMultiplier: r.i32(),
		PriceTick:          r.f64(),
		OpenDate:           r.str(msg.DateLen),
		CreateDate:         r.str(msg.DateLen),
		ExpireDate:         r.str(msg.DateLen),
		DeliveryYear:       r.i32(),
		DeliveryMonth:      r.i32(),
		IsTrading:          r.bool(),
		LongMarginRatio:    r.f64(),
		ShortMarginRatio:   r.f64(),
	}, true
}

func EncodeInstrumentEnd(dst []byte, v msg.InstrumentEnd) []byte {
	w := newWriter(dst)
	w.str(v.ExchangeID, msg.ExchangeLen)
	return w.buf
}

func DecodeInstrumentEnd(src []byte) (msg.InstrumentEnd, bool) {
	if len(src) < InstrumentEndPayloadSize {
		return msg.InstrumentEnd{}, false
	}
	r := &reader{src: src}
	return msg.InstrumentEnd{ExchangeID: r.str(msg.ExchangeLen)}, true
}

// EncodeTicker serializes a best bid/offer update.
func EncodeTicker(dst []byte, v msg.Ticker) []byte {
	w := newWriter(dst)
	w.str(v.SourceID, msg.SourceLen)
	w.str(v.Symbol, msg.SymbolLen)
	w.str(v.ExchangeID, msg.ExchangeLen)
	w.i64(v.DataTime)
	w.i8(int8(v.InstrumentType))
	w.f64(v.BidPrice)
	w.f64(v.BidVolume)
	w.f64(v.AskPrice)
	w.f64(v.AskVolume)
	return w.buf
}

func DecodeTicker(src []byte) (msg.Ticker, bool) {
	if len(src) < TickerPayloadSize {
		return msg.Ticker{}, false
	}
	r := &reader{src: src}
	return msg.Ticker{
		SourceID:       r.str(msg.SourceLen),
		Symbol:         r.str(msg.SymbolLen),
		ExchangeID:     r.str(msg.ExchangeLen),
		DataTime:       r.i64(),
		InstrumentType: msg.InstrumentType(r.i8()),
		BidPrice:       r.f64(),
		BidVolume:      r.f64(),
		AskPrice:       r.f64(),
		AskVolume:      r.f64(),
	}, true
}

// EncodeDepth serializes a ten level book snapshot.
func EncodeDepth(dst []byte, v msg.Depth) []byte {
	w := newWriter(dst)
	w.str(v.SourceID, msg.SourceLen)
	w.str(v.Symbol, msg.SymbolLen)
	w.str(v.ExchangeID, msg.ExchangeLen)
	w.i64(v.DataTime)
	w.i8(int8(v.InstrumentType))
	for _, levels := range [...]*[msg.DepthLevels]float64{&v.BidPrice, &v.AskPrice, &v.BidVolume, &v.AskVolume} {
		for _, x := range levels {
			w.f64(x)
		}
	}
	return w.buf
}

func DecodeDepth(src []byte) (msg.Depth, bool) {
	if len(src) < DepthPayloadSize {
		return msg.Depth{}, false
	}
	r := &reader{src: src}
	v := msg.Depth{
		SourceID:       r.str(msg.SourceLen),
		Symbol:         r.str(msg.SymbolLen),
		ExchangeID:     r.str(msg.ExchangeLen),
		DataTime:       r.i64(),
		InstrumentType: msg.InstrumentType(r.i8()),
	}
	for _, levels := range [...]*[msg.DepthLevels]float64{&v.BidPrice, &v.AskPrice, &v.BidVolume, &v.AskVolume} {
		for i := range levels {
			levels[i] = r.f64()
		}
	}
	return v, true
}

// EncodeTrade serializes a public trade print.
func EncodeTrade(dst []byte, v msg.Trade) []byte {
	w := newWriter(dst)
	w.str(v.ClientID, msg.ClientIDLen)
	w.str(v.Symbol, msg.SymbolLen)
	w.str(v.ExchangeID, msg.ExchangeLen)
	w.i8(int8(v.InstrumentType))
	w.i64(v.TradeID)
	w.i64(v.AskID)
	w.i64(v.BidID)
	w.f64(v.Price)
	w.f64(v.Volume)
	w.i8(int8(v.Side))
	w.i8(int8(v.PositionSide))
	w.i64(v.TradeTime)
	return w.buf
}

func DecodeTrade(src []byte) (msg.Trade, bool) {
	if len(src) < TradePayloadSize {
		return msg.Trade{}, false
	}
	r := &reader{src: src}
	return msg.Trade{
		ClientID:       r.str(msg.ClientIDLen),
		Symbol:         r.str(msg.SymbolLen),
		ExchangeID:     r.str(msg.ExchangeLen),
		InstrumentType: msg.InstrumentType(r.i8()),
		TradeID:        r.i64(),
		AskID:          r.i64(),
		BidID:          r.i64(),
		Price:          r.f64(),
		Volume:         r.f64(),
		Side:           msg.Side(r.i8()),
		PositionSide:   msg.Direction(r.i8()),
		TradeTime:      r.i64(),
	}, true
}

func EncodeIndexPrice(dst []byte, v msg.IndexPrice) []byte {
	w := newWriter(dst)
	w.str(v.Symbol, msg.SymbolLen)
	w.str(v.ExchangeID, msg.ExchangeLen)
	w.i8(int8(v.InstrumentType))
	w.f64(v.Price)
	return w.buf
}

func DecodeIndexPrice(src []byte) (msg.IndexPrice, bool) {
	if len(src) < IndexPricePayloadSize {
		return msg.IndexPrice{}, false
	}
	r := &reader{src: src}
	return msg.IndexPrice{
		Symbol:         r.str(msg.SymbolLen),
		ExchangeID:     r.str(msg.ExchangeLen),
		InstrumentType: msg.InstrumentType(r.i8()),
		Price:          r.f64(),
	}, true
}

func EncodeBar(dst []byte, v msg.Bar) []byte {
	w := newWriter(dst)
	w.str(v.Symbol, msg.SymbolLen)
	w.str(v.ExchangeID, msg.ExchangeLen)
	w.i64(v.StartTime)
	w.i64(v.EndTime)
	w.f64(v.Open)
	w.f64(v.Close)
	w.f64(v.Low)
	w.f64(v.High)
	w.f64(v.Volume)
	w.f64(v.StartVolume)
	w.i32(v.TradeCount)
	w.i32(v.Interval)
	return w.buf
}

func DecodeBar(src []byte) (msg.Bar, bool) {
	if len(src) < BarPayloadSize {
		return msg.Bar{}, false
	}
	r := &reader{src: src}
	return msg.Bar{
		Symbol:      r.str(msg.SymbolLen),
		ExchangeID:  r.str(msg.ExchangeLen),
		StartTime:   r.i64(),
		EndTime:     r.i64(),
		Open:        r.f64(),
		Close:       r.f64(),
		Low:         r.f64(),
		High:        r.f64(),
		Volume:      r.f64(),
		StartVolume: r.f64(),
		TradeCount:  r.i32(),
		Interval:    r.i32(),
	}, true
}
