package quota

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uswork-ny/godzilla-community/internal/nanotime"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
)

func TestSlidingWindow(t *testing.T) {
	e := New(Config{Window: 5 * time.Minute, TradeCeiling: 150}, nanotime.NewManualClock(0))
	const sid = 1
	start := int64(time.Hour)
	eps := int64(time.Second)
	window := int64(5 * time.Minute)
	v := decimal.NewFromInt(100)

	e.RecordTradeAt(sid, start, v)
	assert.True(t, e.CheckTradeQuotaAt(sid, start))

	e.RecordTradeAt(sid, start+window-eps, v)
	assert.Equal(t, "200", e.Sum(sid).String())
	assert.False(t, e.CheckTradeQuotaAt(sid, start+window-eps))

	e.RecordTradeAt(sid, start+window+eps, v)
	assert.Equal(t, "200", e.Sum(sid).String())
	assert.Equal(t, 2, e.Samples(sid))
	assert.True(t, e.Sum(sid).Equal(e.Recompute(sid)))

	assert.True(t, e.CheckTradeQuotaAt(sid, start+3*window))
	assert.Equal(t, 0, e.Samples(sid))
}

func TestEvictionBoundary(t *testing.T) {
	e := New(Config{Window: time.Minute}, nil)
	e.RecordTradeAt(1, 0, decimal.NewFromInt(1))

	e.RecordTradeAt(1, int64(time.Minute), decimal.NewFromInt(1))
	assert.Equal(t, 2, e.Samples(1), "age equal to the window is kept")

	e.RecordTradeAt(1, int64(time.Minute)+1, decimal.NewFromInt(1))
	assert.Equal(t, 2, e.Samples(1))
}

func TestUnknownStrategyPasses(t *testing.T) {
	e := New(Config{}, nanotime.NewManualClock(0))
	assert.True(t, e.CheckTradeQuota(42))
	assert.True(t, e.Sum(42).IsZero())
}

func TestSumMatchesRecompute(t *testing.T) {
	clock := nanotime.NewManualClock(0)
	e := New(Config{Window: 10 * time.Second}, clock)
	rnd := rand.New(rand.NewSource(7))

	for i := 0; i < 2000; i++ {
		clock.Advance(time.Duration(rnd.Intn(int(time.Second))))
		sid := uint32(rnd.Intn(3))
		e.RecordTrade(sid, decimal.NewFromFloat(rnd.Float64()*1000).Round(4))
		if !e.Sum(sid).Equal(e.Recompute(sid)) {
			t.Fatalf("step %d: sum %s != recompute %s", i, e.Sum(sid), e.Recompute(sid))
		}
	}
}

func TestCheckOrderAmount(t *testing.T) {
	e := New(Config{OrderCeiling: 1_000_000}, nil)
	testCases := []struct {
		desc   string
		symbol string
		price  float64
		volume float64
		pass   bool
	}{
		{desc: "stable quote", symbol: "btc_usdt", price: 60000, volume: 10, pass: true},
		{desc: "at ceiling", symbol: "btc_usdt", price: 100000, volume: 10, pass: false},
		{desc: "btc quote weighted", symbol: "eth_btc", price: 0.05, volume: 1000, pass: false},
		{desc: "xt quote weighted", symbol: "abc_XT", price: 1, volume: 300000, pass: true},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got := e.CheckOrderAmount(e.Notional(tc.symbol, tc.price, tc.volume))
			if got != tc.pass {
				t.Fatalf("CheckOrderAmount(%s %f x %f) = %v, want %v", tc.symbol, tc.price, tc.volume, got, tc.pass)
			}
		})
	}
}

func TestCheckRejects(t *testing.T) {
	clock := nanotime.NewManualClock(int64(time.Hour))
	e := New(Config{TradeCeiling: 1000, OrderCeiling: 500}, clock)

	require.NoError(t, e.Check(1, "btc_usdt", 100, 1))

	err := e.Check(1, "btc_usdt", 100, 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrRiskRejected))

	e.RecordTrade(1, decimal.NewFromInt(1000))
	err = e.Check(1, "btc_usdt", 1, 1)
	assert.True(t, errors.Is(err, exception.ErrRiskRejected))
	require.NoError(t, e.Check(2, "btc_usdt", 1, 1))
}

func TestValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	err := Config{Multipliers: map[string]float64{"_btc": 0}}.Validate()
	assert.True(t, errors.Is(err, exception.ErrConfig))
}
