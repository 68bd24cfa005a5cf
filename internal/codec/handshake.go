package codec

import "github.com/uswork-ny/godzilla-community/internal/msg"

const (
	RequestWriteToPayloadSize  = 4
	RequestReadFromPayloadSize = 12
	ChannelPayloadSize         = 8
	TradingDayPayloadSize      = 8
)

func EncodeRequestWriteTo(dst []byte, v msg.RequestWriteToMsg) []byte {
	w := newWriter(dst)
	w.u32(v.DestID)
	return w.buf
}

func DecodeRequestWriteTo(src []byte) (msg.RequestWriteToMsg, bool) {
	if len(src) < RequestWriteToPayloadSize {
		return msg.RequestWriteToMsg{}, false
	}
	r := &reader{src: src}
	return msg.RequestWriteToMsg{DestID: r.u32()}, true
}

func EncodeRequestReadFrom(dst []byte, v msg.RequestReadFromMsg) []byte {
	w := newWriter(dst)
	w.u32(v.SourceID)
	w.i64(v.FromTime)
	return w.buf
}

func DecodeRequestReadFrom(src []byte) (msg.RequestReadFromMsg, bool) {
	if len(src) < RequestReadFromPayloadSize {
		return msg.RequestReadFromMsg{}, false
	}
	r := &reader{src: src}
	return msg.RequestReadFromMsg{SourceID: r.u32(), FromTime: r.i64()}, true
}

// RequestReadFromPublic shares the RequestReadFrom layout.
func EncodeRequestReadFromPublic(dst []byte, v msg.RequestReadFromPublicMsg) []byte {
	return EncodeRequestReadFrom(dst, msg.RequestReadFromMsg(v))
}

func DecodeRequestReadFromPublic(src []byte) (msg.RequestReadFromPublicMsg, bool) {
	v, ok := DecodeRequestReadFrom(src)
	return msg.RequestReadFromPublicMsg(v), ok
}

func EncodeChannel(dst []byte, v msg.ChannelMsg) []byte {
	w := newWriter(dst)
	w.u32(v.SourceID)
	w.u32(v.DestID)
	return w.buf
}

func DecodeChannel(src []byte) (msg.ChannelMsg, bool) {
	if len(src) < ChannelPayloadSize {
		return msg.ChannelMsg{}, false
	}
	r := &reader{src: src}
	return msg.ChannelMsg{SourceID: r.u32(), DestID: r.u32()}, true
}

func EncodeTradingDay(dst []byte, v msg.TradingDayMsg) []byte {
	w := newWriter(dst)
	w.i64(v.Timestamp)
	return w.buf
}

func DecodeTradingDay(src []byte) (msg.TradingDayMsg, bool) {
	if len(src) < TradingDayPayloadSize {
		return msg.TradingDayMsg{}, false
	}
	r := &reader{src: src}
	return msg.TradingDayMsg{Timestamp: r.i64()}, true
}
