package book

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uswork-ny/godzilla-community/internal/bus"
	"github.com/uswork-ny/godzilla-community/internal/codec"
	"github.com/uswork-ny/godzilla-community/internal/journal"
	"github.com/uswork-ny/godzilla-community/internal/location"
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/uswork-ny/godzilla-community/internal/nanotime"
	"github.com/uswork-ny/godzilla-community/internal/node"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
)

type fixture struct {
	clock  *nanotime.ManualClock
	store  *journal.Store
	master *node.Master
	ledger *node.Node
	td     *node.Node
	app    *node.Node
}

func newFixture(t *testing.T, withLedger bool) *fixture {
	t.Helper()
	f := &fixture{clock: nanotime.NewManualClock(1_000)}
	store, err := journal.NewStore(journal.Config{Root: t.TempDir(), LowLatency: true})
	require.NoError(t, err)
	f.store = store.WithClock(f.clock)

	f.master, err = node.NewMaster(f.store, location.ModeLive, node.MasterConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.master.Close() })

	open := func(loc *location.Location) *node.Node {
		n, err := node.New(f.store, loc, node.Config{})
		require.NoError(t, err)
		t.Cleanup(func() { _ = n.Close() })
		return n
	}
	if withLedger {
		f.ledger = open(location.Ledger(location.ModeLive))
	}
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
	nodes := []*node.Node{f.td, f.app}
	if f.ledger != nil {
		nodes = append(nodes, f.ledger)
	}
	for i := 0; i < 10000; i++ {
		progressed := f.master.Step()
		for _, n := range nodes {
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

type countingBook struct {
	*PositionBook
	orders int
	assets int
}

func (b *countingBook) OnOrder(e bus.Event, o msg.Order) {
	b.orders++
	b.PositionBook.OnOrder(e, o)
}

func (b *countingBook) OnAsset(e bus.Event, a msg.Asset) {
	b.assets++
	b.PositionBook.OnAsset(e, a)
}

func newCountingBook(loc *location.Location) *countingBook {
	return &countingBook{PositionBook: NewPositionBook(loc)}
}

func fill(order uint64, side msg.Side, price, volume float64) msg.MyTrade {
	return msg.MyTrade{
		OrderID:        order,
		Symbol:         "btc_usdt",
		ExchangeID:     "binance",
		AccountID:      "acc",
		SourceID:       "sim",
		InstrumentType: msg.InstrumentSpot,
		Side:           side,
		Price:          price,
		Volume:         volume,
	}
}

func TestAddBookRejectsCategory(t *testing.T) {
	f := newFixture(t, true)
	ctx := NewContext(f.app)

	err := ctx.AddBook(location.MarketData(location.ModeLive, "binance"), newCountingBook(f.td.Location()))
	require.True(t, errors.Is(err, exception.ErrConfig))
	err = ctx.AddBook(location.Ledger(location.ModeLive), newCountingBook(f.td.Location()))
	require.True(t, errors.Is(err, exception.ErrConfig))
}

func TestAddBookNeedsLedger(t *testing.T) {
	f := newFixture(t, false)
	ctx := NewContext(f.app)

	err := ctx.AddBook(f.td.Location(), newCountingBook(f.td.Location()))
	require.True(t, errors.Is(err, exception.ErrConfig))
	assert.Equal(t, 0, ctx.Books(f.td.Location().UID))
}

func TestAddBookQueriesAssets(t *testing.T) {
	f := newFixture(t, true)
	ctx := NewContext(f.app)

	var queries []msg.QryAsset
	f.ledger.Subscribe(func(e bus.Event) {
		var q msg.QryAsset
		require.NoError(t, e.JSON(&q))
		queries = append(queries, q)
	}, bus.Is(msg.TypeQryAsset), bus.From(f.app.Location().UID))

	require.NoError(t, ctx.AddBook(f.td.Location(), newCountingBook(f.td.Location())))
	f.pump(t)

	require.Len(t, queries, 1)
	assert.Equal(t, f.td.Location().UID, queries[0].UID)
	assert.Equal(t, "td", queries[0].Category)
	assert.Equal(t, 1, ctx.Books(f.td.Location().UID))
}

func TestBooksFollowOwnership(t *testing.T) {
	f := newFixture(t, true)
	ctx := NewContext(f.app)
	tdBook := newCountingBook(f.td.Location())
	appBook := newCountingBook(f.app.Location())
	require.NoError(t, ctx.AddBook(f.td.Location(), tdBook))
	require.NoError(t, ctx.AddBook(f.app.Location(), appBook))

	require.NoError(t, f.td.RequestWriteTo(f.app.Location().UID))
	f.pump(t)
	require.True(t, f.td.HasWriter(f.app.Location().UID))

	appUID := f.app.Location().UID
	require.NoError(t, f.td.WriteRecord(appUID, 0, fill(7, msg.SideBuy, 100, 1)))
	require.NoError(t, f.td.WriteRecord(appUID, 0, fill(7, msg.SideBuy, 110, 1)))
	require.NoError(t, f.td.WriteRecord(appUID, 0, msg.Order{OrderID: 7, Status: msg.StatusPartialFilledActive, VolumeTraded: 2}))
	require.NoError(t, f.td.WriteRecord(appUID, 0, msg.Asset{HolderUID: appUID, Coin: "usdt", Avail: 10}))
	f.pump(t)

	for _, b := range []*countingBook{tdBook, appBook} {
		assert.Equal(t, 1, b.orders)
		assert.InDelta(t, 2, b.LongVolume("btc_usdt", "binance", msg.InstrumentSpot), 1e-12)
		avg, ok := b.AvgFillPrice(7)
		require.True(t, ok)
		assert.InDelta(t, 105, avg, 1e-9)
		o, ok := b.Order(7)
		require.True(t, ok)
		assert.InDelta(t, 105, o.AvgPrice, 1e-9)
	}
	assert.Equal(t, 0, tdBook.assets)
	assert.Equal(t, 1, appBook.assets)

	ctx.PopBook(f.td.Location().UID)
	require.NoError(t, f.td.WriteRecord(appUID, 0, msg.Order{OrderID: 7, Status: msg.StatusFilled}))
	f.pump(t)
	assert.Equal(t, 1, tdBook.orders)
	assert.Equal(t, 2, appBook.orders)
	assert.Equal(t, 0, appBook.Orders())
}

func TestMonitorInstrumentsReplacesCatalog(t *testing.T) {
	f := newFixture(t, true)
	ctx := NewContext(f.app)

	var requests int
	f.ledger.Subscribe(func(bus.Event) { requests++ },
		bus.Is(msg.TypeInstrumentRequest), bus.From(f.app.Location().UID))
	require.NoError(t, ctx.RequestInstruments())
	f.pump(t)
	require.Equal(t, 1, requests)
	require.True(t, f.ledger.HasWriter(f.app.Location().UID))

	appUID := f.app.Location().UID
	require.NoError(t, f.ledger.WriteRecord(appUID, 0, msg.Instrument{Symbol: "btc_usdt", ExchangeID: "binance", InstrumentType: msg.InstrumentSpot}))
	require.NoError(t, f.ledger.WriteRecord(appUID, 0, msg.Instrument{Symbol: "eth_usdt", ExchangeID: "binance", InstrumentType: msg.InstrumentSpot}))
	f.pump(t)
	assert.Empty(t, ctx.Instruments(), "catalog changes only at the end marker")

	require.NoError(t, f.ledger.WriteRecord(appUID, 0, msg.InstrumentEnd{ExchangeID: "binance"}))
	f.pump(t)
	require.Len(t, ctx.Instruments(), 2)
	assert.Equal(t, "btc_usdt", ctx.Instruments()[0].Symbol)

	require.NoError(t, f.ledger.WriteRecord(appUID, 0, msg.Instrument{Symbol: "sol_usdt", ExchangeID: "binance", InstrumentType: msg.InstrumentSpot}))
	require.NoError(t, f.ledger.WriteRecord(appUID, 0, msg.InstrumentEnd{ExchangeID: "binance"}))
	f.pump(t)
	require.Len(t, ctx.Instruments(), 1)
	_, ok := ctx.Instrument("sol_usdt", "binance", msg.InstrumentSpot)
	assert.True(t, ok)
	_, ok = ctx.Instrument("btc_usdt", "binance", msg.InstrumentSpot)
	assert.False(t, ok)
}

func TestApplyFill(t *testing.T) {
	testCases := []struct {
		desc     string
		fills    [][2]float64
		volume   float64
		avg      float64
		realized float64
	}{
		{desc: "open", fills: [][2]float64{{100, 1}}, volume: 1, avg: 100},
		{desc: "add", fills: [][2]float64{{100, 1}, {110, 1}}, volume: 2, avg: 105},
		{desc: "reduce", fills: [][2]float64{{100, 2}, {120, -1}}, volume: 1, avg: 100, realized: 20},
		{desc: "flat", fills: [][2]float64{{100, 1}, {90, -1}}, volume: 0, avg: 0, realized: -10},
		{desc: "flip", fills: [][2]float64{{100, 1}, {110, -3}}, volume: -2, avg: 110, realized: 10},
		{desc: "short add", fills: [][2]float64{{100, -1}, {80, -1}}, volume: -2, avg: 90},
		{desc: "short cover", fills: [][2]float64{{100, -2}, {90, 1}}, volume: -1, avg: 100, realized: 10},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			var p msg.Position
			for _, f := range tc.fills {
				applyFill(&p, f[0], f[1])
			}
			if p.Volume != tc.volume || p.AvgOpenPrice != tc.avg || p.RealizedPnl != tc.realized {
				t.Fatalf("got volume=%v avg=%v realized=%v, want %v %v %v",
					p.Volume, p.AvgOpenPrice, p.RealizedPnl, tc.volume, tc.avg, tc.realized)
			}
		})
	}
}

func TestDepthMarksPositions(t *testing.T) {
	loc := location.New(location.ModeLive, location.CategoryStrategy, "default", "demo")
	b := NewPositionBook(loc)
	b.OnMyTrade(bus.Event{GenTime: 10}, fill(1, msg.SideBuy, 100, 2))

	var d msg.Depth
	d.Symbol, d.ExchangeID, d.InstrumentType = "btc_usdt", "binance", msg.InstrumentSpot
	d.BidPrice[0], d.AskPrice[0] = 109, 111
	b.OnDepth(bus.Event{GenTime: 20}, d)

	p, ok := b.Position(PositionKey{"btc_usdt", "binance", msg.InstrumentSpot, msg.DirectionLong})
	require.True(t, ok)
	assert.Equal(t, 110.0, p.LastPrice)
	assert.Equal(t, 20.0, p.UnrealizedPnl)
	assert.Equal(t, msg.LedgerStrategy, p.LedgerCategory)
	assert.Equal(t, int64(20), b.LastGenTime())

	d.BidPrice[0] = 0
	b.OnDepth(bus.Event{GenTime: 30}, d)
	p, _ = b.Position(PositionKey{"btc_usdt", "binance", msg.InstrumentSpot, msg.DirectionLong})
	assert.Equal(t, 110.0, p.LastPrice, "one sided book is ignored")
}

func TestPositionOverridesFills(t *testing.T) {
	loc := location.Account(location.ModeLive, "sim", "acc")
	b := NewPositionBook(loc)
	b.OnMyTrade(bus.Event{}, fill(1, msg.SideBuy, 100, 2))
	b.OnPosition(bus.Event{}, msg.Position{Symbol: "btc_usdt", ExchangeID: "binance", InstrumentType: msg.InstrumentSpot, Volume: 5, AvgOpenPrice: 99})

	assert.Equal(t, 5.0, b.LongVolume("btc_usdt", "binance", msg.InstrumentSpot))
	assert.Equal(t, 1, b.Positions())
}

func TestSnapshotRoundTrip(t *testing.T) {
	loc := location.Account(location.ModeLive, "sim", "acc")
	b := NewPositionBook(loc)
	b.OnMyTrade(bus.Event{GenTime: 5}, fill(1, msg.SideBuy, 100, 1))
	b.OnOrder(bus.Event{GenTime: 6}, msg.Order{OrderID: 1, Status: msg.StatusSubmitted})
	b.OnAsset(bus.Event{GenTime: 7}, msg.Asset{Coin: "usdt", Avail: 42})

	path := filepath.Join(t.TempDir(), "snap", "book.json")
	snap := b.Snapshot()
	require.NoError(t, WriteSnapshot(path, snap))
	read, err := ReadSnapshot(path)
	require.NoError(t, err)
	require.NoError(t, CompareSnapshots(snap, read))
	assert.Equal(t, int64(7), read.LastGenTime)

	restored := NewPositionBook(loc)
	restored.Restore(read)
	require.NoError(t, CompareSnapshots(snap, restored.Snapshot()))

	restored.OnAsset(bus.Event{GenTime: 8}, msg.Asset{Coin: "usdt", Avail: 41})
	require.Error(t, CompareSnapshots(snap, restored.Snapshot()))
}

func TestReadSnapshotMissing(t *testing.T) {
	_, err := ReadSnapshot(filepath.Join(t.TempDir(), "none.json"))
	require.True(t, errors.Is(err, exception.ErrIO))
}

func TestRecoverFromSnapshot(t *testing.T) {
	clock := nanotime.NewManualClock(1_000)
	store, err := journal.NewStore(journal.Config{Root: t.TempDir(), LowLatency: true})
	require.NoError(t, err)
	store.WithClock(clock)

	td := location.Account(location.ModeLive, "sim", "acc")
	app := location.New(location.ModeLive, location.CategoryStrategy, "default", "demo")
	w, err := store.NewWriter(td, app.UID, "test")
	require.NoError(t, err)

	trades := []msg.MyTrade{
		fill(1, msg.SideBuy, 100, 1),
		fill(1, msg.SideBuy, 110, 1),
		fill(2, msg.SideSell, 120, 1),
	}
	partial := NewPositionBook(app)
	for i, trade := range trades {
		clock.Set(int64(1_000 * (i + 1)))
		payload, err := codec.Marshal(trade)
		require.NoError(t, err)
		require.NoError(t, w.Write(0, msg.TypeMyTrade, payload))
		if i < 2 {
			partial.OnMyTrade(bus.Event{GenTime: clock.Now()}, trade)
		}
	}
	require.NoError(t, w.Close())

	streams := []Stream{{Source: td, Dest: app.UID}}
	full, err := Recover(context.Background(), RecoverConfig{Store: store, Location: app, Streams: streams})
	require.NoError(t, err)
	assert.Equal(t, 1.0, full.LongVolume("btc_usdt", "binance", msg.InstrumentSpot))

	path := filepath.Join(t.TempDir(), "book.json")
	require.NoError(t, WriteSnapshot(path, partial.Snapshot()))
	recovered, err := Recover(context.Background(), RecoverConfig{Store: store, Location: app, SnapshotPath: path, Streams: streams})
	require.NoError(t, err)
	require.NoError(t, CompareSnapshots(full.Snapshot(), recovered.Snapshot()))

	p, ok := recovered.Position(PositionKey{"btc_usdt", "binance", msg.InstrumentSpot, msg.DirectionLong})
	require.True(t, ok)
	assert.Equal(t, 15.0, p.RealizedPnl)
	assert.Equal(t, int64(3_000), recovered.LastGenTime())

	_, err = Recover(context.Background(), RecoverConfig{Store: store, Location: td, SnapshotPath: path, Streams: streams})
	require.True(t, errors.Is(err, exception.ErrConfig))
}
