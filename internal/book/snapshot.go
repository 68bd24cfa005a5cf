package book

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/uswork-ny/godzilla-community/internal/codec"
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/uswork-ny/godzilla-community/internal/nanotime"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
	"github.com/yanun0323/errors"
)

// Snapshot captures a PositionBook at a point in time.
type Snapshot struct {
	Location    string         `json:"location"`
	Timestamp   int64          `json:"timestamp"`
	LastGenTime int64          `json:"last_gen_time"`
	Positions   []msg.Position `json:"positions"`
	Orders      []msg.Order    `json:"orders"`
	Assets      []msg.Asset    `json:"assets"`
}

// Snapshot builds a snapshot with entries in a stable order.
func (b *PositionBook) Snapshot() Snapshot {
	snap := Snapshot{
		Location:    b.loc.UName,
		Timestamp:   nanotime.Now(),
		LastGenTime: b.lastGen,
		Positions:   make([]msg.Position, 0, len(b.positions)),
		Orders:      make([]msg.Order, 0, len(b.orders)),
		Assets:      make([]msg.Asset, 0, len(b.assets)),
	}
	for _, p := range b.positions {
		snap.Positions = append(snap.Positions, p)
	}
	sort.Slice(snap.Positions, func(i, j int) bool {
		return lessKey(keyOf(snap.Positions[i]), keyOf(snap.Positions[j]))
	})
	for _, o := range b.orders {
		snap.Orders = append(snap.Orders, o)
	}
	sort.Slice(snap.Orders, func(i, j int) bool { return snap.Orders[i].OrderID < snap.Orders[j].OrderID })
	for _, a := range b.assets {
		snap.Assets = append(snap.Assets, a)
	}
	sort.Slice(snap.Assets, func(i, j int) bool { return snap.Assets[i].Coin < snap.Assets[j].Coin })
	return snap
}

func lessKey(a, b PositionKey) bool {
	if a.Symbol != b.Symbol {
		return a.Symbol < b.Symbol
	}
	if a.ExchangeID != b.ExchangeID {
		return a.ExchangeID < b.ExchangeID
	}
	if a.InstrumentType != b.InstrumentType {
		return a.InstrumentType < b.InstrumentType
	}
	return a.Direction < b.Direction
}

// Restore replaces the book content with snap. Fill sums are not part of a
// snapshot, so average fill prices restart from the next fill.
func (b *PositionBook) Restore(snap Snapshot) {
	clear(b.positions)
	clear(b.orders)
	clear(b.fills)
	clear(b.assets)
	for _, p := range snap.Positions {
		b.positions[keyOf(p)] = p
	}
	for _, o := range snap.Orders {
		b.orders[o.OrderID] = o
	}
	for _, a := range snap.Assets {
		b.assets[a.Coin] = a
	}
	b.lastGen = snap.LastGenTime
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snap Snapshot) error {
	data, err := codec.MarshalJSON(snap)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(exception.ErrIO, "create snapshot dir %s, err: %+v", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(exception.ErrIO, "write snapshot %s, err: %+v", path, err)
	}
	return nil
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, errors.Wrapf(exception.ErrIO, "read snapshot %s, err: %+v", path, err)
	}
	var snap Snapshot
	if err := codec.UnmarshalJSON(data, &snap); err != nil {
		return Snapshot{}, errors.Wrapf(exception.ErrProtocol, "decode snapshot %s, err: %+v", path, err)
	}
	return snap, nil
}

// CompareSnapshots checks that two snapshots hold the same positions, orders
// and asset balances.
func CompareSnapshots(expected, actual Snapshot) error {
	if len(expected.Positions) != len(actual.Positions) {
		return errors.Errorf("snapshot position count mismatch: expected=%d actual=%d", len(expected.Positions), len(actual.Positions))
	}
	want := make(map[PositionKey]msg.Position, len(expected.Positions))
	for _, p := range expected.Positions {
		want[keyOf(p)] = p
	}
	for _, p := range actual.Positions {
		w, ok := want[keyOf(p)]
		if !ok {
			return errors.Errorf("snapshot missing position: %s@%s", p.Symbol, p.ExchangeID)
		}
		if w.Volume != p.Volume || w.AvgOpenPrice != p.AvgOpenPrice {
			return errors.Errorf("snapshot position mismatch: %s@%s expected=%v@%v actual=%v@%v",
				p.Symbol, p.ExchangeID, w.Volume, w.AvgOpenPrice, p.Volume, p.AvgOpenPrice)
		}
	}

	if len(expected.Orders) != len(actual.Orders) {
		return errors.Errorf("snapshot order count mismatch: expected=%d actual=%d", len(expected.Orders), len(actual.Orders))
	}
	orders := make(map[uint64]msg.OrderStatus, len(expected.Orders))
	for _, o := range expected.Orders {
		orders[o.OrderID] = o.Status
	}
	for _, o := range actual.Orders {
		status, ok := orders[o.OrderID]
		if !ok || status != o.Status {
			return errors.Errorf("snapshot order mismatch: %d", o.OrderID)
		}
	}

	if len(expected.Assets) != len(actual.Assets) {
		return errors.Errorf("snapshot asset count mismatch: expected=%d actual=%d", len(expected.Assets), len(actual.Assets))
	}
	assets := make(map[string]float64, len(expected.Assets))
	for _, a := range expected.Assets {
		assets[a.Coin] = a.Avail
	}
	for _, a := range actual.Assets {
		avail, ok := assets[a.Coin]
		if !ok || avail != a.Avail {
			return errors.Errorf("snapshot asset mismatch: %s", a.Coin)
		}
	}
	return nil
}
