package node

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uswork-ny/godzilla-community/internal/bus"
	"github.com/uswork-ny/godzilla-community/internal/journal"
	"github.com/uswork-ny/godzilla-community/internal/location"
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/uswork-ny/godzilla-community/internal/nanotime"
)

type stepper interface{ Step() bool }

func pump(t *testing.T, steppers ...stepper) {
	t.Helper()
	for i := 0; i < 10000; i++ {
		progressed := false
		for _, s := range steppers {
			if s.Step() {
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
	t.Fatal("bus never went idle")
}

type cluster struct {
	store  *journal.Store
	clock  *nanotime.ManualClock
	master *Master
}

func newCluster(t *testing.T) *cluster {
	t.Helper()
	clock := nanotime.NewManualClock(1_000)
	store, err := journal.NewStore(journal.Config{Root: t.TempDir(), LowLatency: true})
	require.NoError(t, err)
	store.WithClock(clock)

	master, err := NewMaster(store, location.ModeLive, MasterConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = master.Close() })
	return &cluster{store: store, clock: clock, master: master}
}

func (c *cluster) join(t *testing.T, category location.Category, group, name string) *Node {
	t.Helper()
	n, err := New(c.store, location.New(location.ModeLive, category, group, name), Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	_, err = c.master.Discover()
	require.NoError(t, err)
	return n
}

func TestRegisterStartsNode(t *testing.T) {
	c := newCluster(t)
	a := c.join(t, location.CategoryStrategy, "default", "a")
	require.False(t, a.Started())

	started := 0
	a.OnStart(func() { started++ })
	pump(t, c.master, a)

	require.True(t, a.Started())
	assert.Equal(t, 1, started)
	assert.True(t, c.master.Registered(a.Location().UID))
	assert.True(t, a.Registry().HasLocation(c.master.Location().UID))

	a.OnStart(func() { started++ })
	assert.Equal(t, 2, started)
}

func TestLocationsAreBroadcast(t *testing.T) {
	c := newCluster(t)
	a := c.join(t, location.CategoryStrategy, "default", "a")
	pump(t, c.master, a)
	b := c.join(t, location.CategoryTD, "sim", "acc")
	pump(t, c.master, a, b)

	assert.True(t, a.Registry().HasLocation(b.Location().UID))
	assert.True(t, b.Registry().HasLocation(a.Location().UID))
}

func TestWriteGrantWiresBothEnds(t *testing.T) {
	c := newCluster(t)
	a := c.join(t, location.CategoryStrategy, "default", "a")
	b := c.join(t, location.CategoryTD, "sim", "acc")
	pump(t, c.master, a, b)

	require.NoError(t, a.RequestWriteTo(b.Location().UID))
	pump(t, c.master, a, b)

	require.True(t, a.HasWriter(b.Location().UID))
	assert.True(t, a.Registry().HasChannel(a.Location().UID, b.Location().UID))
	assert.True(t, b.Registry().HasChannel(a.Location().UID, b.Location().UID))
	assert.True(t, c.master.Registry().HasChannel(a.Location().UID, b.Location().UID))

	var got []msg.Record
	b.Subscribe(func(e bus.Event) {
		rec, err := e.Record()
		require.NoError(t, err)
		got = append(got, rec)
	}, bus.Is(msg.TypeOrderInput), bus.From(a.Location().UID), bus.To(b.Location().UID))

	c.clock.Advance(time.Microsecond)
	require.NoError(t, a.WriteRecord(b.Location().UID, 0, msg.OrderInput{OrderID: 7, Symbol: "btc_usdt"}))
	pump(t, c.master, a, b)

	require.Len(t, got, 1)
	assert.Equal(t, uint64(7), got[0].(msg.OrderInput).OrderID)
}

func TestReadGrantWaitsForWriter(t *testing.T) {
	c := newCluster(t)
	b := c.join(t, location.CategoryTD, "sim", "acc")
	pump(t, c.master, b)

	late := location.New(location.ModeLive, location.CategoryStrategy, "default", "late")
	require.NoError(t, b.RequestReadFrom(late.UID))
	pump(t, c.master, b)
	assert.True(t, c.master.Registry().HasChannel(late.UID, b.Location().UID))
	assert.False(t, b.Reader().Joined(late.UID, b.Location().UID))

	a := c.join(t, location.CategoryStrategy, "default", "late")
	pump(t, c.master, a, b)

	assert.True(t, a.HasWriter(b.Location().UID))
	assert.True(t, b.Reader().Joined(late.UID, b.Location().UID))
}

func TestPublicReadIsHeldUntilSourceRegisters(t *testing.T) {
	c := newCluster(t)
	a := c.join(t, location.CategoryStrategy, "default", "a")
	pump(t, c.master, a)

	md := location.MarketData(location.ModeLive, "sim")
	require.NoError(t, a.RequestReadFromPublic(md.UID))
	pump(t, c.master, a)
	assert.False(t, a.Reader().Joined(md.UID, 0))

	feed := c.join(t, location.CategoryMD, md.Group, md.Name)
	pump(t, c.master, a, feed)
	require.True(t, a.Reader().Joined(md.UID, 0))

	var prices []float64
	a.Subscribe(func(e bus.Event) {
		rec, err := e.Record()
		require.NoError(t, err)
		prices = append(prices, rec.(msg.Trade).Price)
	}, bus.Is(msg.TypeTrade), bus.From(md.UID))

	c.clock.Advance(time.Microsecond)
	require.NoError(t, feed.WriteRecord(0, 0, msg.Trade{Symbol: "btc_usdt", Price: 42}))
	pump(t, c.master, a, feed)
	assert.Equal(t, []float64{42}, prices)
}

func TestReplayNodeWaitsForPendingGrants(t *testing.T) {
	c := newCluster(t)
	a, err := New(c.store, location.New(location.ModeLive, location.CategoryStrategy, "default", "a"),
		Config{Bus: bus.Config{Replay: true}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	assert.Equal(t, 1, a.Bus().Expected())

	_, err = c.master.Discover()
	require.NoError(t, err)
	pump(t, c.master, a)
	require.True(t, a.Started())
	assert.Zero(t, a.Bus().Expected())

	md := location.MarketData(location.ModeLive, "sim")
	require.NoError(t, a.RequestReadFromPublic(md.UID))
	require.NoError(t, a.RequestReadFromPublic(md.UID))
	pump(t, c.master, a)
	assert.Equal(t, 1, a.Bus().Expected())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, a.Run(ctx), context.DeadlineExceeded)

	feed := c.join(t, location.CategoryMD, md.Group, md.Name)
	pump(t, c.master, a, feed)
	require.True(t, a.Reader().Joined(md.UID, 0))
	assert.Zero(t, a.Bus().Expected())
	require.NoError(t, a.Run(context.Background()))
}

func TestDeregisterUnwires(t *testing.T) {
	c := newCluster(t)
	a := c.join(t, location.CategoryStrategy, "default", "a")
	b := c.join(t, location.CategoryTD, "sim", "acc")
	pump(t, c.master, a, b)
	require.NoError(t, a.RequestWriteTo(b.Location().UID))
	pump(t, c.master, a, b)
	require.True(t, a.HasWriter(b.Location().UID))

	require.NoError(t, b.Close())
	pump(t, c.master, a)

	assert.False(t, c.master.Registered(b.Location().UID))
	assert.False(t, a.Registry().HasLocation(b.Location().UID))
	assert.False(t, a.HasWriter(b.Location().UID))
	assert.Empty(t, a.Registry().ChannelsOf(b.Location().UID))
}

func TestRegisterRetriesUntilStarted(t *testing.T) {
	c := newCluster(t)
	a, err := New(c.store, location.New(location.ModeLive, location.CategoryStrategy, "default", "a"),
		Config{RegisterInterval: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	c.clock.Advance(time.Second)
	pump(t, a)
	assert.Equal(t, 1, a.Bus().Timers())

	_, err = c.master.Discover()
	require.NoError(t, err)
	pump(t, c.master, a)
	require.True(t, a.Started())
	assert.Equal(t, 0, a.Bus().Timers())
}

func TestWaitReadyHonoursContext(t *testing.T) {
	c := newCluster(t)
	a := c.join(t, location.CategoryStrategy, "default", "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, a.WaitReady(ctx), context.Canceled)
}

func TestWriterRequiresGrant(t *testing.T) {
	c := newCluster(t)
	a := c.join(t, location.CategoryStrategy, "default", "a")
	_, err := a.Writer(12345)
	require.Error(t, err)
	require.Error(t, a.WriteRecord(12345, 0, msg.Trade{}))
}

func TestLocationFromPath(t *testing.T) {
	root := "/tmp/gz"
	loc := location.New(location.ModeLive, location.CategoryTD, "sim", "acc")
	path := filepath.Join(root, "live", "td", "sim", "acc", "journal", "00000000.1.journal")

	got, ok := locationFromPath(root, path)
	require.True(t, ok)
	assert.Equal(t, loc.UID, got.UID)

	_, ok = locationFromPath(root, filepath.Join(root, "live", "td", "sim", "journal", "x"))
	assert.False(t, ok)
}
