package broker_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uswork-ny/godzilla-community/internal/broker"
	"github.com/uswork-ny/godzilla-community/internal/broker/sim"
	"github.com/uswork-ny/godzilla-community/internal/bus"
	"github.com/uswork-ny/godzilla-community/internal/journal"
	"github.com/uswork-ny/godzilla-community/internal/location"
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/uswork-ny/godzilla-community/internal/nanotime"
	"github.com/uswork-ny/godzilla-community/internal/node"
	"github.com/uswork-ny/godzilla-community/internal/obs"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
)

type fixture struct {
	metrics *obs.Metrics
	master  *node.Master
	md      *node.Node
	td      *node.Node
	app     *node.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{metrics: obs.NewMetrics()}
	store, err := journal.NewStore(journal.Config{Root: t.TempDir(), LowLatency: true})
	require.NoError(t, err)
	store.WithClock(nanotime.NewManualClock(1_000))

	f.master, err = node.NewMaster(store, location.ModeLive, node.MasterConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.master.Close() })

	open := func(loc *location.Location) *node.Node {
		n, err := node.New(store, loc, node.Config{Metrics: f.metrics})
		require.NoError(t, err)
		t.Cleanup(func() { _ = n.Close() })
		return n
	}
	f.md = open(location.MarketData(location.ModeLive, "sim"))
	f.td = open(location.Account(location.ModeLive, "sim", "acc"))
	f.app = open(location.New(location.ModeLive, location.CategoryStrategy, "default", "demo"))

	_, err = f.master.Discover()
	require.NoError(t, err)
	f.pump(t)
	require.True(t, f.td.Started())
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

// connect lets app write to and read from the td.
func (f *fixture) connect(t *testing.T) {
	t.Helper()
	td := f.td.Location().UID
	require.NoError(t, f.app.RequestWriteTo(td))
	require.NoError(t, f.app.RequestReadFrom(td))
	f.pump(t)
	require.True(t, f.app.HasWriter(td))
	require.True(t, f.td.HasWriter(f.app.Location().UID))
}

func (f *fixture) collect(t *testing.T) (*[]msg.Order, *[]msg.OrderActionError) {
	t.Helper()
	var orders []msg.Order
	var actionErrs []msg.OrderActionError
	f.app.Subscribe(func(e bus.Event) {
		rec, err := e.Record()
		require.NoError(t, err)
		switch v := rec.(type) {
		case msg.Order:
			orders = append(orders, v)
		case msg.OrderActionError:
			actionErrs = append(actionErrs, v)
		}
	}, bus.Is(msg.TypeOrder, msg.TypeOrderActionError), bus.From(f.td.Location().UID), bus.To(f.app.Location().UID))
	return &orders, &actionErrs
}

func order(id uint64, volume float64) msg.OrderInput {
	return msg.OrderInput{
		OrderID:        id,
		Symbol:         "btc_usdt",
		ExchangeID:     "sim",
		InstrumentType: msg.InstrumentSpot,
		Price:          100,
		Volume:         volume,
		Side:           msg.SideBuy,
		OrderType:      msg.OrderTypeLimit,
		TimeCondition:  msg.TimeConditionGTC,
	}
}

func TestTraderServiceRoundTrip(t *testing.T) {
	f := newFixture(t)
	trader := sim.NewTrader(sim.TraderConfig{Source: "sim", Account: "acc", HolderUID: f.td.Location().UID})
	_, err := broker.NewTraderService(f.td, trader)
	require.NoError(t, err)
	f.connect(t)
	orders, actionErrs := f.collect(t)

	td := f.td.Location().UID
	require.NoError(t, f.app.WriteRecord(td, 0, order(1, 2)))
	f.pump(t)
	require.Len(t, *orders, 2)
	assert.Equal(t, msg.StatusSubmitted, (*orders)[0].Status)
	assert.Equal(t, msg.StatusFilled, (*orders)[1].Status)

	require.NoError(t, f.app.WriteRecord(td, 0, order(2, 0)))
	f.pump(t)
	require.Len(t, *orders, 3)
	assert.Equal(t, msg.StatusError, (*orders)[2].Status)
	assert.Equal(t, "rejected", (*orders)[2].ErrorCode)

	require.NoError(t, f.app.WriteRecord(td, 0, msg.OrderAction{OrderID: 99, OrderActionID: 5, ActionFlag: msg.ActionCancel}))
	f.pump(t)
	require.Len(t, *actionErrs, 1)
	assert.Equal(t, uint64(5), (*actionErrs)[0].OrderActionID)
}

type panicTrader struct {
	broker.UnimplementedTrader
}

func (panicTrader) InsertOrder(uint32, msg.OrderInput) error { panic("venue down") }

func TestTraderServiceSurvivesPanics(t *testing.T) {
	f := newFixture(t)
	_, err := broker.NewTraderService(f.td, panicTrader{})
	require.NoError(t, err)
	f.connect(t)
	orders, actionErrs := f.collect(t)

	td := f.td.Location().UID
	require.NoError(t, f.app.WriteRecord(td, 0, order(1, 1)))
	require.NoError(t, f.app.WriteRecord(td, 0, msg.OrderAction{OrderID: 1, ActionFlag: msg.ActionQuery}))
	f.pump(t)

	require.Len(t, *orders, 1)
	assert.Equal(t, msg.StatusError, (*orders)[0].Status)
	require.Len(t, *actionErrs, 1, "unimplemented query is answered with an action error")
	assert.Equal(t, uint64(1), f.metrics.Snapshot().CallbackPanics)
}

func TestServicesCheckCategory(t *testing.T) {
	f := newFixture(t)
	_, err := broker.NewTraderService(f.md, broker.UnimplementedTrader{})
	require.True(t, errors.Is(err, exception.ErrConfig))
	_, err = broker.NewMarketDataService(f.td, broker.UnimplementedMarketData{})
	require.True(t, errors.Is(err, exception.ErrConfig))
}

func TestUnimplemented(t *testing.T) {
	var tr broker.Trader = broker.UnimplementedTrader{}
	require.True(t, errors.Is(tr.ReqAccount(), exception.ErrNotImplemented))
	require.True(t, errors.Is(tr.CancelOrder(0, msg.OrderAction{}), exception.ErrNotImplemented))
	var md broker.MarketData = broker.UnimplementedMarketData{}
	require.True(t, errors.Is(md.Subscribe(msg.SubscribeRequest{}), exception.ErrNotImplemented))
}

func TestMarketDataServicePublishes(t *testing.T) {
	f := newFixture(t)
	md := sim.NewMarketData(sim.MarketDataConfig{
		Source:   "sim",
		Exchange: "sim",
		Prices:   map[string]float64{"btc_usdt": 100},
	})
	_, err := broker.NewMarketDataService(f.md, md)
	require.NoError(t, err)

	mdUID := f.md.Location().UID
	require.NoError(t, f.app.RequestWriteTo(mdUID))
	require.NoError(t, f.app.RequestReadFromPublic(mdUID))
	f.pump(t)

	var depths []msg.Depth
	f.app.Subscribe(func(e bus.Event) {
		rec, err := e.Record()
		require.NoError(t, err)
		depths = append(depths, rec.(msg.Depth))
	}, bus.Is(msg.TypeDepth), bus.From(mdUID))

	drops := f.metrics.Snapshot().ProtocolDrops
	require.NoError(t, f.app.WriteJSON(mdUID, 0, msg.TypeSubscribe, msg.SubscribeRequest{Symbol: "btc_usdt", Exchange: "sim", SubType: "candles"}))
	f.pump(t)
	assert.Equal(t, drops+1, f.metrics.Snapshot().ProtocolDrops)
	assert.False(t, md.Subscribed("btc_usdt", "candles"))

	require.NoError(t, f.app.WriteJSON(mdUID, 0, msg.TypeSubscribe, msg.SubscribeRequest{Symbol: "btc_usdt", Exchange: "sim", SubType: msg.SubDepth}))
	f.pump(t)
	require.True(t, md.Subscribed("btc_usdt", msg.SubDepth))

	_, err = md.Walk()
	require.NoError(t, err)
	f.pump(t)
	require.Len(t, depths, 1)
	assert.Equal(t, "btc_usdt", depths[0].Symbol)
}
