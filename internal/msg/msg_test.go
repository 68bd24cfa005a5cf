package msg

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderFromInput(t *testing.T) {
	in := OrderInput{
		StrategyID:     7,
		OrderID:        0xabc000010000002a,
		Symbol:         "btc_usdt",
		ExchangeID:     "binance",
		SourceID:       "binance",
		AccountID:      "acc1",
		InstrumentType: InstrumentSpot,
		Price:          100,
		StopPrice:      90,
		Volume:         1.5,
		Side:           SideSell,
		PositionSide:   DirectionShort,
		OrderType:      OrderTypeLimit,
		TimeCondition:  TimeConditionGTC,
	}

	o := OrderFromInput(in)
	assert.Equal(t, in.StrategyID, o.StrategyID)
	assert.Equal(t, in.OrderID, o.OrderID)
	assert.Equal(t, in.Symbol, o.Symbol)
	assert.Equal(t, in.ExchangeID, o.ExchangeID)
	assert.Equal(t, in.AccountID, o.AccountID)
	assert.Equal(t, in.InstrumentType, o.InstrumentType)
	assert.Equal(t, in.Side, o.Side)
	assert.Equal(t, in.PositionSide, o.PositionSide)
	assert.Equal(t, in.OrderType, o.OrderType)
	assert.Equal(t, in.TimeCondition, o.TimeCondition)
	assert.Equal(t, in.Price, o.Price)
	assert.Equal(t, in.StopPrice, o.StopPrice)
	assert.Zero(t, o.VolumeTraded)
	assert.Equal(t, in.Volume, o.VolumeLeft)
	assert.Equal(t, StatusPreSend, o.Status)
}

func TestOrderStatusIsFinal(t *testing.T) {
	tests := []struct {
		status OrderStatus
		final  bool
	}{
		{StatusUnknown, false},
		{StatusPreSend, false},
		{StatusSubmitted, false},
		{StatusPending, false},
		{StatusPartialFilledActive, false},
		{StatusPartialFilledNotActive, true},
		{StatusFilled, true},
		{StatusCancelled, true},
		{StatusError, true},
	}
	for _, tc := range tests {
		if got := tc.status.IsFinal(); got != tc.final {
			t.Fatalf("%s.IsFinal() = %v, want %v", tc.status, got, tc.final)
		}
	}
}

func TestSubscriptionKey(t *testing.T) {
	a := SubscriptionKey("btc_usdt", SubDepth, InstrumentSpot, "binance", 0)
	b := SubscriptionKey("btc_usdt", SubDepth, InstrumentSpot, "binance", 0)
	require.Equal(t, a, b)

	require.NotEqual(t, a, SubscriptionKey("btc_usdt", SubTrade, InstrumentSpot, "binance", 0))
	require.NotEqual(t, a, SubscriptionKey("btc_usdt", SubDepth, InstrumentSwap, "binance", 0))
	require.NotEqual(t, a, SubscriptionKey("btc_usdt", SubDepth, InstrumentSpot, "okx", 0))
	require.NotEqual(t, a, SubscriptionKey("btc_usdt", SubDepth, InstrumentSpot, "binance", 1))

	// order keys ignore everything but the owner
	require.Equal(t,
		SubscriptionKey("btc_usdt", SubOrder, InstrumentSpot, "binance", 42),
		SubscriptionKey("eth_usdt", SubOrder, InstrumentSwap, "okx", 42),
	)
}

func TestNotional(t *testing.T) {
	tests := []struct {
		symbol string
		price  float64
		volume float64
		want   string
	}{
		{"btc_usdt", 100, 2, "200"},
		{"eth_btc", 0.05, 2, "3000"},
		{"ETH_BTC", 0.05, 2, "3000"},
		{"xrp_eth", 0.001, 1000, "3000"},
		{"abc_xt", 10, 1, "30"},
		{"cake_bnb", 0.01, 10, "40"},
	}
	for _, tc := range tests {
		got := Notional(tc.symbol, tc.price, tc.volume, DefaultMultipliers)
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("Notional(%s) = %s, want %s", tc.symbol, got, tc.want)
		}
	}
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "Depth", TypeDepth.String())
	assert.Equal(t, "Type(12345)", Type(12345).String())
}
