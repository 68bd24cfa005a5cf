package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uswork-ny/godzilla-community/internal/bus"
	"github.com/uswork-ny/godzilla-community/internal/journal"
	"github.com/uswork-ny/godzilla-community/internal/location"
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/uswork-ny/godzilla-community/internal/nanotime"
	"github.com/uswork-ny/godzilla-community/internal/node"
	"github.com/uswork-ny/godzilla-community/internal/obs"
	"github.com/uswork-ny/godzilla-community/internal/quota"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
)

type fixture struct {
	clock   *nanotime.ManualClock
	metrics *obs.Metrics
	master  *node.Master
	md      *node.Node
	td      *node.Node
	app     *node.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{clock: nanotime.NewManualClock(1_000), metrics: obs.NewMetrics()}
	store, err := journal.NewStore(journal.Config{Root: t.TempDir(), LowLatency: true})
	require.NoError(t, err)
	store.WithClock(f.clock)

	f.master, err = node.NewMaster(store, location.ModeLive, node.MasterConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.master.Close() })

	open := func(loc *location.Location) *node.Node {
		n, err := node.New(store, loc, node.Config{Metrics: f.metrics})
		require.NoError(t, err)
		t.Cleanup(func() { _ = n.Close() })
		return n
	}
	f.md = open(location.MarketData(location.ModeLive, "binance"))
	f.td = open(location.Account(location.ModeLive, "sim", "acc"))
	f.app = open(location.New(location.ModeLive, location.CategoryStrategy, "default", "demo"))

	_, err = f.master.Discover()
	require.NoError(t, err)
	f.pump(t)
	require.True(t, f.app.Started())
	return f
}

func (f *fixture) pump(t *testing.T) {
	t.Helper()
	for i := 0; i < 10000; i++ {
		progressed := f.master.Step()
		for _, n := range []*node.Node{f.md, f.td, f.app} {
			if n.Step() {
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
	t.Fatal("bus never went idle")
}

func (f *fixture) tick() { f.clock.Advance(time.Microsecond) }

type recorder struct {
	Base
	orders    []msg.Order
	trades    []msg.MyTrade
	depths    []msg.Depth
	positions []msg.Position
	timers    []uint32
	panicky   bool
	starts    int
	stops     int
}

func (r *recorder) PreStart(*Session)                       { r.starts++ }
func (r *recorder) PostStop(*Session)                       { r.stops++ }
func (r *recorder) OnOrder(_ *Session, o msg.Order)         { r.orders = append(r.orders, o) }
func (r *recorder) OnMyTrade(_ *Session, t msg.MyTrade)     { r.trades = append(r.trades, t) }
func (r *recorder) OnDepth(_ *Session, d msg.Depth)         { r.depths = append(r.depths, d) }
func (r *recorder) OnPosition(_ *Session, p msg.Position) {
	if r.panicky {
		panic("position handler")
	}
	r.positions = append(r.positions, p)
}

func startRunner(t *testing.T, f *fixture, enforcer *quota.Enforcer, names ...string) (*Runner, []*recorder) {
	t.Helper()
	runner := NewRunner(f.app, enforcer)
	recs := make([]*recorder, 0, len(names))
	for _, name := range names {
		rec := &recorder{}
		_, err := runner.AddStrategy(name, rec)
		require.NoError(t, err)
		recs = append(recs, rec)
	}
	runner.Start()
	return runner, recs
}

func spotOrder(price, volume float64) msg.OrderInput {
	return msg.OrderInput{
		Symbol:         "btc_usdt",
		ExchangeID:     "binance",
		AccountID:      "acc",
		InstrumentType: msg.InstrumentSpot,
		Price:          price,
		Volume:         volume,
		Side:           msg.SideBuy,
		OrderType:      msg.OrderTypeLimit,
		TimeCondition:  msg.TimeConditionGTC,
	}
}

func TestSubscribeIsSentOnce(t *testing.T) {
	f := newFixture(t)
	runner, _ := startRunner(t, f, nil, "demo")
	sess := runner.Sessions()[0]

	var requests []msg.SubscribeRequest
	f.md.Subscribe(func(e bus.Event) {
		var req msg.SubscribeRequest
		require.NoError(t, e.JSON(&req))
		requests = append(requests, req)
	}, bus.Is(msg.TypeSubscribe), bus.From(f.app.Location().UID))

	symbols := []string{"btc_usdt"}
	require.NoError(t, sess.Subscribe("binance", symbols, msg.InstrumentSpot, "binance"))
	require.NoError(t, sess.Subscribe("binance", symbols, msg.InstrumentSpot, "binance"))
	f.pump(t)
	require.True(t, f.app.HasWriter(f.md.Location().UID))

	f.tick()
	require.NoError(t, sess.Subscribe("binance", symbols, msg.InstrumentSpot, "binance"))
	f.pump(t)

	require.Len(t, requests, 1)
	assert.Equal(t, msg.SubscribeRequest{Symbol: "btc_usdt", Exchange: "binance", SubType: msg.SubDepth, InstrumentType: msg.InstrumentSpot}, requests[0])

	require.NoError(t, sess.SubscribeTrade("binance", symbols, msg.InstrumentSpot, "binance"))
	f.pump(t)
	assert.Len(t, requests, 2)
}

func TestOrderLifecycle(t *testing.T) {
	f := newFixture(t)
	runner, recs := startRunner(t, f, nil, "demo")
	sess := runner.Sessions()[0]
	require.NoError(t, sess.AddAccount("sim", "acc"))
	f.pump(t)

	var inputs []msg.OrderInput
	f.td.Subscribe(func(e bus.Event) {
		rec, err := e.Record()
		require.NoError(t, err)
		inputs = append(inputs, rec.(msg.OrderInput))
	}, bus.Is(msg.TypeOrderInput), bus.From(f.app.Location().UID))

	f.tick()
	id, err := sess.InsertOrder(spotOrder(100, 1))
	require.NoError(t, err)
	f.pump(t)

	require.Len(t, inputs, 1)
	assert.Equal(t, id, inputs[0].OrderID)
	assert.Equal(t, sess.ID(), inputs[0].StrategyID)
	assert.Equal(t, "sim", inputs[0].SourceID)
	_, owned := runner.ctx.subscribed[msg.SubscriptionKey("", msg.SubOrder, 0, "", uint64(sess.ID()))]
	assert.True(t, owned, "order subscription is keyed by the strategy id")

	o, ok := sess.Order(id)
	require.True(t, ok)
	assert.Equal(t, msg.StatusPreSend, o.Status)

	app := f.app.Location().UID
	filled := msg.Order{StrategyID: sess.ID(), OrderID: id, Symbol: "btc_usdt", Volume: 1, VolumeTraded: 1, Status: msg.StatusFilled}
	f.tick()
	require.NoError(t, f.td.WriteRecord(app, 0, filled))
	f.pump(t)

	o, _ = sess.Order(id)
	assert.Equal(t, msg.StatusFilled, o.Status)
	require.Len(t, recs[0].orders, 1)

	stale := filled
	stale.Status = msg.StatusSubmitted
	stale.VolumeTraded = 0
	f.tick()
	require.NoError(t, f.td.WriteRecord(app, 0, stale))
	f.pump(t)

	o, _ = sess.Order(id)
	assert.Equal(t, msg.StatusFilled, o.Status)
	assert.Len(t, recs[0].orders, 1)
	assert.Equal(t, uint64(1), f.metrics.Snapshot().StaleOrderFrames)
}

func TestOrderIDsGrow(t *testing.T) {
	f := newFixture(t)
	runner, _ := startRunner(t, f, nil, "demo")
	sess := runner.Sessions()[0]
	require.NoError(t, sess.AddAccount("sim", "acc"))
	f.pump(t)

	var last uint64
	for i := 0; i < 5; i++ {
		id, err := sess.InsertOrder(spotOrder(100, 1))
		require.NoError(t, err)
		if id <= last {
			t.Fatalf("order id %x not above %x", id, last)
		}
		last = id
	}
	action, err := sess.CancelOrder("acc", last, "btc_usdt", "", msg.InstrumentSpot)
	require.NoError(t, err)
	assert.Greater(t, action, last)
}

func TestRoutingErrors(t *testing.T) {
	f := newFixture(t)
	runner, _ := startRunner(t, f, nil, "demo")
	sess := runner.Sessions()[0]

	_, err := sess.InsertOrder(spotOrder(100, 1))
	assert.True(t, errors.Is(err, exception.ErrRouting), "unregistered account: %v", err)

	err = sess.AddAccount("sim", "ghost")
	assert.True(t, errors.Is(err, exception.ErrConfig), "unknown account: %v", err)

	_, err = sess.AddMarketData("nowhere")
	assert.True(t, errors.Is(err, exception.ErrConfig), "unknown md: %v", err)

	require.NoError(t, sess.AddAccount("sim", "acc"))
	_, err = sess.InsertOrder(spotOrder(100, 1))
	assert.True(t, errors.Is(err, exception.ErrConfig), "writer not granted yet: %v", err)

	err = sess.AdjustLeverage("ghost", msg.AdjustLeverage{Symbol: "btc_usdt", Leverage: 3})
	assert.True(t, errors.Is(err, exception.ErrRouting))
}

func TestQuotaIsEnforced(t *testing.T) {
	f := newFixture(t)
	enforcer := quota.New(quota.Config{OrderCeiling: 500, TradeCeiling: 1000}, f.clock)
	runner, recs := startRunner(t, f, enforcer, "demo")
	sess := runner.Sessions()[0]
	require.NoError(t, sess.AddAccount("sim", "acc"))
	f.pump(t)

	_, err := sess.InsertOrder(spotOrder(100, 10))
	assert.True(t, errors.Is(err, exception.ErrRiskRejected))
	assert.Equal(t, uint64(1), f.metrics.Snapshot().QuotaRejects)

	f.tick()
	require.NoError(t, f.td.WriteRecord(f.app.Location().UID, 0, msg.MyTrade{
		StrategyID: sess.ID(), Symbol: "btc_usdt", Price: 100, Volume: 10,
	}))
	f.pump(t)
	require.Len(t, recs[0].trades, 1)
	assert.Equal(t, "1000", enforcer.Sum(sess.ID()).String())

	_, err = sess.InsertOrder(spotOrder(1, 1))
	assert.True(t, errors.Is(err, exception.ErrRiskRejected))
}

func TestMarketDataFollowsSubscriptions(t *testing.T) {
	f := newFixture(t)
	runner, recs := startRunner(t, f, nil, "a", "b")
	a, b := runner.Sessions()[0], runner.Sessions()[1]
	require.NoError(t, a.Subscribe("binance", []string{"btc_usdt"}, msg.InstrumentSpot, "binance"))
	require.NoError(t, b.Subscribe("binance", []string{"eth_usdt"}, msg.InstrumentSpot, "binance"))
	f.pump(t)

	f.tick()
	require.NoError(t, f.md.WriteRecord(0, 0, msg.Depth{Symbol: "btc_usdt", ExchangeID: "binance", InstrumentType: msg.InstrumentSpot}))
	require.NoError(t, f.md.WriteRecord(0, 0, msg.Depth{Symbol: "btc_usdt", ExchangeID: "okx", InstrumentType: msg.InstrumentSpot}))
	f.pump(t)

	assert.Len(t, recs[0].depths, 1)
	assert.Empty(t, recs[1].depths)
}

func TestTimersKeepTheirSession(t *testing.T) {
	f := newFixture(t)
	runner, _ := startRunner(t, f, nil, "a", "b")
	a, b := runner.Sessions()[0], runner.Sessions()[1]

	var fired []uint32
	record := func(s *Session, _ bus.Event) { fired = append(fired, s.ID()) }
	now := f.app.Now()
	a.AddTimer(now+10, record)
	b.AddTimer(now+5, record)

	f.clock.Advance(20)
	f.pump(t)
	assert.Equal(t, []uint32{b.ID(), a.ID()}, fired)
}

func TestPanicDoesNotStopOtherStrategies(t *testing.T) {
	f := newFixture(t)
	runner, recs := startRunner(t, f, nil, "a", "b")
	recs[0].panicky = true
	require.NoError(t, runner.Sessions()[0].AddAccount("sim", "acc"))
	f.pump(t)

	f.tick()
	require.NoError(t, f.td.WriteRecord(f.app.Location().UID, 0, msg.Position{Symbol: "btc_usdt", Volume: 2}))
	f.pump(t)

	assert.Empty(t, recs[0].positions)
	require.Len(t, recs[1].positions, 1)
	assert.Equal(t, uint64(1), f.metrics.Snapshot().CallbackPanics)
}

func TestControlDocumentsCarryStrategyID(t *testing.T) {
	f := newFixture(t)
	runner, _ := startRunner(t, f, nil, "demo")
	sess := runner.Sessions()[0]
	require.NoError(t, sess.AddAccount("sim", "acc"))
	f.pump(t)

	var got []msg.AdjustLeverage
	f.td.Subscribe(func(e bus.Event) {
		var doc msg.AdjustLeverage
		require.NoError(t, e.JSON(&doc))
		got = append(got, doc)
	}, bus.Is(msg.TypeAdjustLeverage))

	f.tick()
	require.NoError(t, sess.AdjustLeverage("acc", msg.AdjustLeverage{Symbol: "btc_usdt", Leverage: 5, StrategyUID: 99}))
	require.NoError(t, sess.QueryPositions("acc", msg.QueryPosition{Symbol: "btc_usdt"}))
	f.pump(t)

	require.Len(t, got, 1)
	assert.Equal(t, sess.ID(), got[0].StrategyUID)
	assert.Equal(t, int32(5), got[0].Leverage)
}

func TestLifecycle(t *testing.T) {
	f := newFixture(t)
	runner, recs := startRunner(t, f, nil, "demo")
	assert.Equal(t, 1, recs[0].starts)

	_, err := runner.AddStrategy("late", &recorder{})
	assert.True(t, errors.Is(err, exception.ErrConfig))

	runner.Stop()
	runner.Stop()
	assert.Equal(t, 1, recs[0].stops)
}

func TestDuplicateStrategy(t *testing.T) {
	f := newFixture(t)
	runner := NewRunner(f.app, nil)
	_, err := runner.AddStrategy("demo", &recorder{})
	require.NoError(t, err)
	_, err = runner.AddStrategy("demo", &recorder{})
	assert.True(t, errors.Is(err, exception.ErrConfig))
}

func TestTrackerFinality(t *testing.T) {
	testCases := []struct {
		desc   string
		first  msg.OrderStatus
		second msg.OrderStatus
		want   msg.OrderStatus
	}{
		{desc: "submitted then filled", first: msg.StatusSubmitted, second: msg.StatusFilled, want: msg.StatusFilled},
		{desc: "filled then submitted", first: msg.StatusFilled, second: msg.StatusSubmitted, want: msg.StatusFilled},
		{desc: "cancelled then partial", first: msg.StatusCancelled, second: msg.StatusPartialFilledActive, want: msg.StatusCancelled},
		{desc: "error is terminal", first: msg.StatusError, second: msg.StatusPending, want: msg.StatusError},
		{desc: "pending then partial", first: msg.StatusPending, second: msg.StatusPartialFilledActive, want: msg.StatusPartialFilledActive},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			tr := NewTracker(nil)
			tr.Track(msg.Order{OrderID: 1, Status: msg.StatusPreSend})
			tr.Apply(msg.Order{OrderID: 1, Status: tc.first})
			tr.Apply(msg.Order{OrderID: 1, Status: tc.second})
			o, _ := tr.Order(1)
			if o.Status != tc.want {
				t.Fatalf("status = %s, want %s", o.Status, tc.want)
			}
		})
	}
}

func TestTrackDoesNotOverwrite(t *testing.T) {
	tr := NewTracker(nil)
	tr.Apply(msg.Order{OrderID: 1, StrategyID: 3, Status: msg.StatusSubmitted})
	tr.Track(msg.Order{OrderID: 1, StrategyID: 3, Status: msg.StatusPreSend})
	o, _ := tr.Order(1)
	assert.Equal(t, msg.StatusSubmitted, o.Status)
	assert.Len(t, tr.Active(3), 1)
	assert.Empty(t, tr.Active(4))
}
