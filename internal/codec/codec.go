package codec

import (
	"github.com/bytedance/sonic"
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
	"github.com/yanun0323/errors"
)

// Marshal serializes a fixed-layout record.
func Marshal(rec msg.Record) ([]byte, error) {
	return Append(nil, rec)
}

// Append serializes rec into dst's capacity.
func Append(dst []byte, rec msg.Record) ([]byte, error) {
	switch v := rec.(type) {
	case msg.Instrument:
		return EncodeInstrument(dst, v), nil
	case msg.InstrumentEnd:
		return EncodeInstrumentEnd(dst, v), nil
	case msg.Ticker:
		return EncodeTicker(dst, v), nil
	case msg.Depth:
		return EncodeDepth(dst, v), nil
	case msg.Trade:
		return EncodeTrade(dst, v), nil
	case msg.IndexPrice:
		return EncodeIndexPrice(dst, v), nil
	case msg.Bar:
		return EncodeBar(dst, v), nil
	case msg.OrderInput:
		return EncodeOrderInput(dst, v), nil
	case msg.OrderAction:
		return EncodeOrderAction(dst, v), nil
	case msg.OrderActionError:
		return EncodeOrderActionError(dst, v), nil
	case msg.Order:
		return EncodeOrder(dst, v), nil
	case msg.MyTrade:
		return EncodeMyTrade(dst, v), nil
	case msg.Asset:
		return EncodeAsset(dst, v), nil
	case msg.Position:
		return EncodePosition(dst, v), nil
	case msg.RequestWriteToMsg:
		return EncodeRequestWriteTo(dst, v), nil
	case msg.RequestReadFromMsg:
		return EncodeRequestReadFrom(dst, v), nil
	case msg.RequestReadFromPublicMsg:
		return EncodeRequestReadFromPublic(dst, v), nil
	case msg.ChannelMsg:
		return EncodeChannel(dst, v), nil
	case msg.TradingDayMsg:
		return EncodeTradingDay(dst, v), nil
	}
	return nil, errors.Wrapf(exception.ErrProtocol, "no binary layout for %T", rec)
}

// Unmarshal parses the payload of a frame of type t.
func Unmarshal(t msg.Type, payload []byte) (msg.Record, error) {
	var (
		rec msg.Record
		ok  bool
	)
	switch t {
	case msg.TypeInstrument:
		rec, ok = decode(DecodeInstrument, payload)
	case msg.TypeInstrumentEnd:
		rec, ok = decode(DecodeInstrumentEnd, payload)
	case msg.TypeTicker:
		rec, ok = decode(DecodeTicker, payload)
	case msg.TypeDepth:
		rec, ok = decode(DecodeDepth, payload)
	case msg.TypeTrade:
		rec, ok = decode(DecodeTrade, payload)
	case msg.TypeIndexPrice:
		rec, ok = decode(DecodeIndexPrice, payload)
	case msg.TypeBar:
		rec, ok = decode(DecodeBar, payload)
	case msg.TypeOrderInput:
		rec, ok = decode(DecodeOrderInput, payload)
	case msg.TypeOrderAction:
		rec, ok = decode(DecodeOrderAction, payload)
	case msg.TypeOrderActionError:
		rec, ok = decode(DecodeOrderActionError, payload)
	case msg.TypeOrder:
		rec, ok = decode(DecodeOrder, payload)
	case msg.TypeMyTrade:
		rec, ok = decode(DecodeMyTrade, payload)
	case msg.TypeAsset:
		rec, ok = decode(DecodeAsset, payload)
	case msg.TypePosition:
		rec, ok = decode(DecodePosition, payload)
	case msg.TypeRequestWriteTo:
		rec, ok = decode(DecodeRequestWriteTo, payload)
	case msg.TypeRequestReadFrom:
		rec, ok = decode(DecodeRequestReadFrom, payload)
	case msg.TypeRequestReadFromPublic:
		rec, ok = decode(DecodeRequestReadFromPublic, payload)
	case msg.TypeChannel:
		rec, ok = decode(DecodeChannel, payload)
	case msg.TypeTradingDay:
		rec, ok = decode(DecodeTradingDay, payload)
	default:
		return nil, errors.Wrapf(exception.ErrProtocol, "no binary layout for %s", t)
	}
	if !ok {
		return nil, errors.Wrapf(exception.ErrProtocol, "short %s payload, %d bytes", t, len(payload))
	}
	return rec, nil
}

func decode[T msg.Record](fn func([]byte) (T, bool), payload []byte) (msg.Record, bool) {
	v, ok := fn(payload)
	return v, ok
}

// IsDocument reports whether frames of type t carry a JSON control document.
func IsDocument(t msg.Type) bool {
	switch t {
	case msg.TypeRegister, msg.TypeLocation, msg.TypeDeregister,
		msg.TypeSubscribe, msg.TypeSubscribeAll, msg.TypeUnsubscribe,
		msg.TypeAdjustLeverage, msg.TypeMergePosition, msg.TypeQueryPosition,
		msg.TypeQryAsset, msg.TypeUnionResponse, msg.TypeBrokerState,
		msg.TypeInstrumentRequest, msg.TypeRemoveStrategy,
		msg.TypeBrokerStateRefresh, msg.TypeCancelAllOrder:
		return true
	}
	return false
}

// MarshalJSON encodes a control document.
func MarshalJSON(v any) ([]byte, error) {
	data, err := sonic.ConfigFastest.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(exception.ErrProtocol, err.Error())
	}
	return data, nil
}

// UnmarshalJSON decodes a control document. Malformed input is a protocol error.
func UnmarshalJSON(data []byte, v any) error {
	if len(data) == 0 {
		return errors.Wrap(exception.ErrProtocol, "empty control document")
	}
	if err := sonic.ConfigFastest.Unmarshal(data, v); err != nil {
		return errors.Wrap(exception.ErrProtocol, err.Error())
	}
	return nil
}
