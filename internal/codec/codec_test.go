package codec

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
)

func TestOrderRecordsThroughFrames(t *testing.T) {
	in := msg.OrderInput{
		StrategyID:     3,
		OrderID:        1<<32 | 5,
		Symbol:         "btc_usdt",
		ExchangeID:     "binance",
		SourceID:       "binance",
		AccountID:      "acc1",
		InstrumentType: msg.InstrumentSwap,
		Price:          100.5,
		Volume:         1,
		Side:           msg.SideSell,
		OrderType:      msg.OrderTypeLimit,
		TimeCondition:  msg.TimeConditionGTC,
		ReduceOnly:     true,
	}
	payload, err := Marshal(in)
	require.NoError(t, err)
	require.Len(t, payload, OrderInputPayloadSize)

	rec, err := Unmarshal(msg.TypeOrderInput, payload)
	require.NoError(t, err)
	require.Equal(t, in, rec)

	order := msg.OrderFromInput(in)
	order.Status = msg.StatusFilled
	order.VolumeTraded = 1
	order.VolumeLeft = 0
	order.ErrorCode = "E42"
	payload, err = Marshal(order)
	require.NoError(t, err)
	rec, err = Unmarshal(msg.TypeOrder, payload)
	require.NoError(t, err)
	assert.Equal(t, order, rec)
}

func TestStringFieldsTruncateAtBound(t *testing.T) {
	long := strings.Repeat("x", 100)
	tests := []struct {
		name  string
		width int
		enc   func(string) []byte
		dec   func([]byte) string
	}{
		{"symbol", msg.SymbolLen,
			func(s string) []byte { return EncodeTicker(nil, msg.Ticker{Symbol: s}) },
			func(b []byte) string { v, _ := DecodeTicker(b); return v.Symbol }},
		{"exchange", msg.ExchangeLen,
			func(s string) []byte { return EncodeTicker(nil, msg.Ticker{ExchangeID: s}) },
			func(b []byte) string { v, _ := DecodeTicker(b); return v.ExchangeID }},
		{"source", msg.SourceLen,
			func(s string) []byte { return EncodeOrderInput(nil, msg.OrderInput{SourceID: s}) },
			func(b []byte) string { v, _ := DecodeOrderInput(b); return v.SourceID }},
		{"account", msg.AccountLen,
			func(s string) []byte { return EncodeOrderInput(nil, msg.OrderInput{AccountID: s}) },
			func(b []byte) string { v, _ := DecodeOrderInput(b); return v.AccountID }},
		{"date", msg.DateLen,
			func(s string) []byte { return EncodeInstrument(nil, msg.Instrument{ExpireDate: s}) },
			func(b []byte) string { v, _ := DecodeInstrument(b); return v.ExpireDate }},
		{"error msg", msg.ErrorMsgLen,
			func(s string) []byte { return EncodeOrderActionError(nil, msg.OrderActionError{ErrorMsg: s + s}) },
			func(b []byte) string { v, _ := DecodeOrderActionError(b); return v.ErrorMsg }},
		{"error code", msg.ErrorCodeLen,
			func(s string) []byte { return EncodeOrder(nil, msg.Order{ErrorCode: s}) },
			func(b []byte) string { v, _ := DecodeOrder(b); return v.ErrorCode }},
	}
	for _, tc := range tests {
		got := tc.dec(tc.enc(long))
		if len(got) != tc.width {
			t.Fatalf("%s: kept %d bytes, want %d", tc.name, len(got), tc.width)
		}
	}
}

func TestDepthLevels(t *testing.T) {
	var d msg.Depth
	d.Symbol = "eth_usdt"
	for i := 0; i < msg.DepthLevels; i++ {
		d.BidPrice[i] = 100 - float64(i)
		d.AskPrice[i] = 101 + float64(i)
		d.BidVolume[i] = float64(i + 1)
		d.AskVolume[i] = float64(2 * (i + 1))
	}
	got, ok := DecodeDepth(EncodeDepth(make([]byte, 0, 8), d))
	require.True(t, ok)
	require.Equal(t, d, got)
}

func TestUnmarshalRejectsShortAndUnknown(t *testing.T) {
	_, err := Unmarshal(msg.TypeOrder, make([]byte, 10))
	require.True(t, errors.Is(err, exception.ErrProtocol))

	_, err = Unmarshal(msg.TypeSubscribe, []byte("{}"))
	require.True(t, errors.Is(err, exception.ErrProtocol))
}

func TestControlDocuments(t *testing.T) {
	req := msg.SubscribeRequest{Symbol: "btc_usdt", Exchange: "binance", SubType: msg.SubDepth, InstrumentType: msg.InstrumentSpot}
	data, err := MarshalJSON(req)
	require.NoError(t, err)

	var got msg.SubscribeRequest
	require.NoError(t, UnmarshalJSON(data, &got))
	require.Equal(t, req, got)

	require.True(t, errors.Is(UnmarshalJSON([]byte("{not json"), &got), exception.ErrProtocol))
	require.True(t, errors.Is(UnmarshalJSON(nil, &got), exception.ErrProtocol))

	require.True(t, IsDocument(msg.TypeSubscribe))
	require.False(t, IsDocument(msg.TypeOrder))
}
