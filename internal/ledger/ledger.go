package ledger

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/uswork-ny/godzilla-community/internal/book"
	"github.com/uswork-ny/godzilla-community/internal/bus"
	"github.com/uswork-ny/godzilla-community/internal/location"
	"github.com/uswork-ny/godzilla-community/internal/marketdb"
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/uswork-ny/godzilla-community/internal/node"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

type Config struct {
	// MarketDB receives every instrument a market-data source publishes.
	MarketDB *marketdb.Store
	// SnapshotDir is where Dump writes one book snapshot per holder.
	SnapshotDir string
}

type instrumentKey struct {
	symbol   string
	exchange string
	instType msg.InstrumentType
}

// openOrder is an order a td reported and has not finished yet.
type openOrder struct {
	td    uint32
	order msg.Order
}

// Service keeps a PositionBook for every td and strategy location, the
// instrument catalog of every market-data source, the open orders and broker
// states it sees, and answers QryAsset, InstrumentRequest, BrokerStateRefresh,
// CancelAllOrder and RemoveStrategy.
type Service struct {
	node        *node.Node
	cfg         Config
	books       *book.Context
	holders     map[uint32]*book.PositionBook
	retired     map[uint32]*book.PositionBook
	instruments map[instrumentKey]msg.Instrument
	orders      map[uint64]openOrder
	brokers     map[uint32]msg.BrokerStateValue
}

// New serves the ledger on n, which must be the ledger location of its mode.
func New(n *node.Node, cfg Config) (*Service, error) {
	if n.Location().UID != location.Ledger(n.Mode()).UID {
		return nil, errors.Wrapf(exception.ErrConfig, "%s is not the ledger location", n.Location().UName)
	}
	s := &Service{
		node:        n,
		cfg:         cfg,
		books:       book.NewContext(n),
		holders:     make(map[uint32]*book.PositionBook),
		retired:     make(map[uint32]*book.PositionBook),
		instruments: make(map[instrumentKey]msg.Instrument),
		orders:      make(map[uint64]openOrder),
		brokers:     make(map[uint32]msg.BrokerStateValue),
	}
	if err := s.load(); err != nil {
		return nil, err
	}

	master := n.Master().UID
	self := n.Location().UID
	n.Subscribe(s.onLocation, bus.Is(msg.TypeLocation), bus.From(master))
	n.Subscribe(s.onDeregister, bus.Is(msg.TypeDeregister), bus.From(master))
	n.Subscribe(s.onInstrument, bus.Is(msg.TypeInstrument), bus.To(0))
	n.Subscribe(s.onInstrumentRequest, bus.Is(msg.TypeInstrumentRequest), bus.To(self))
	n.Subscribe(s.onQryAsset, bus.Is(msg.TypeQryAsset), bus.To(self))
	n.Subscribe(s.onOrder, bus.Is(msg.TypeOrder), bus.Where(s.fromTD))
	n.Subscribe(s.onBrokerState, bus.Is(msg.TypeBrokerState), bus.To(0))
	n.Subscribe(s.onBrokerStateRefresh, bus.Is(msg.TypeBrokerStateRefresh), bus.To(self))
	n.Subscribe(s.onCancelAllOrder, bus.Is(msg.TypeCancelAllOrder), bus.To(self))
	n.Subscribe(s.onRemoveStrategy, bus.Is(msg.TypeRemoveStrategy), bus.To(self))

	for _, loc := range n.Registry().Locations() {
		s.track(loc)
	}
	return s, nil
}

func (s *Service) load() error {
	if s.cfg.MarketDB == nil {
		return nil
	}
	insts, err := s.cfg.MarketDB.Instruments(context.Background(), "")
	if err != nil {
		return err
	}
	for _, inst := range insts {
		s.instruments[keyOf(inst)] = inst
	}
	logs.Infof("ledger loaded %d instruments", len(insts))
	return nil
}

func keyOf(inst msg.Instrument) instrumentKey {
	return instrumentKey{inst.Symbol, inst.ExchangeID, inst.InstrumentType}
}

func (s *Service) onLocation(e bus.Event) {
	var doc msg.LocationDoc
	if err := e.JSON(&doc); err != nil {
		s.node.Metrics().IncProtocolDrop()
		logs.Warnf("ledger dropped location, err: %+v", err)
		return
	}
	loc, err := location.Parse(doc.UName)
	if err != nil {
		s.node.Metrics().IncProtocolDrop()
		logs.Warnf("ledger dropped location %s, err: %+v", doc.UName, err)
		return
	}
	s.track(loc)
}

// track starts following loc: a book for td and strategy locations, the
// public journal of td and md locations.
func (s *Service) track(loc *location.Location) {
	if loc.Mode != s.node.Mode() {
		return
	}
	switch loc.Category {
	case location.CategoryTD, location.CategoryStrategy:
		if _, ok := s.holders[loc.UID]; ok {
			return
		}
		b, ok := s.retired[loc.UID]
		if !ok {
			b = book.NewPositionBook(loc)
		}
		if err := s.books.AddBook(loc, b); err != nil {
			logs.Errorf("ledger add book %s, err: %+v", loc.UName, err)
			return
		}
		delete(s.retired, loc.UID)
		s.holders[loc.UID] = b
		logs.Infof("ledger tracks %s", loc.UName)
		if loc.Category == location.CategoryStrategy {
			return
		}
	case location.CategoryMD:
	default:
		return
	}
	if err := s.node.RequestReadFromPublic(loc.UID); err != nil {
		logs.Errorf("ledger read public of %s, err: %+v", loc.UName, err)
	}
}

func (s *Service) onDeregister(e bus.Event) {
	var doc msg.Deregister
	if err := e.JSON(&doc); err != nil {
		s.node.Metrics().IncProtocolDrop()
		return
	}
	delete(s.brokers, doc.UID)
	b, ok := s.holders[doc.UID]
	if !ok {
		return
	}
	s.books.PopBook(doc.UID)
	delete(s.holders, doc.UID)
	s.retired[doc.UID] = b
}

// fromTD keeps the events a td location wrote.
func (s *Service) fromTD(e bus.Event) bool {
	loc, ok := s.node.Registry().Location(e.Source)
	return ok && loc.Category == location.CategoryTD
}

func (s *Service) onOrder(e bus.Event) {
	rec, err := e.Record()
	if err != nil {
		s.node.Metrics().IncProtocolDrop()
		return
	}
	order := rec.(msg.Order)
	if order.Status.IsFinal() {
		delete(s.orders, order.OrderID)
		return
	}
	s.orders[order.OrderID] = openOrder{td: e.Source, order: order}
}

// OpenOrders lists the unfinished orders ordered by id.
func (s *Service) OpenOrders() []msg.Order {
	out := make([]msg.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o.order)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

func (s *Service) onBrokerState(e bus.Event) {
	loc, ok := s.node.Registry().Location(e.Source)
	if !ok || (loc.Category != location.CategoryTD && loc.Category != location.CategoryMD) {
		return
	}
	var doc msg.BrokerState
	if err := e.JSON(&doc); err != nil {
		s.node.Metrics().IncProtocolDrop()
		logs.Warnf("ledger dropped broker state of %s, err: %+v", loc.UName, err)
		return
	}
	s.brokers[e.Source] = doc.State
	logs.Infof("broker %s state %d", loc.UName, doc.State)
}

// BrokerState is the last state the broker uid published.
func (s *Service) BrokerState(uid uint32) (msg.BrokerStateValue, bool) {
	st, ok := s.brokers[uid]
	return st, ok
}

func (s *Service) onBrokerStateRefresh(e bus.Event) {
	uids := make([]uint32, 0, len(s.brokers))
	for uid := range s.brokers {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	requester := e.Source
	s.reply(requester, func() error {
		for _, uid := range uids {
			doc := msg.BrokerState{UID: uid, State: s.brokers[uid]}
			if err := s.node.WriteJSON(requester, e.GenTime, msg.TypeBrokerState, doc); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) onCancelAllOrder(e bus.Event) {
	var req msg.CancelAllOrder
	if err := e.JSON(&req); err != nil {
		s.node.Metrics().IncProtocolDrop()
		logs.Warnf("ledger dropped CancelAllOrder from %08x, err: %+v", e.Source, err)
		return
	}
	byTD := make(map[uint32][]msg.Order)
	for _, o := range s.orders {
		if o.td == req.UID || o.order.StrategyID == req.UID {
			byTD[o.td] = append(byTD[o.td], o.order)
		}
	}
	logs.Infof("ledger cancels all orders of %08x, accounts: %d", req.UID, len(byTD))
	for td, orders := range byTD {
		if !s.node.Registry().HasLocation(td) {
			logs.Warnf("ledger has no location for account %08x", td)
			continue
		}
		sort.Slice(orders, func(i, j int) bool { return orders[i].OrderID < orders[j].OrderID })
		s.reply(td, func() error {
			for _, o := range orders {
				if err := s.cancel(td, e.GenTime, o); err != nil {
					return err
				}
			}
			return nil
		})
	}
}

// cancel writes a cancel action for o to the account td on behalf of the
// strategy that placed it.
func (s *Service) cancel(td uint32, trigger int64, o msg.Order) error {
	w, err := s.node.Writer(td)
	if err != nil {
		return err
	}
	action := msg.OrderAction{
		StrategyID:     o.StrategyID,
		OrderID:        o.OrderID,
		OrderActionID:  w.CurrentFrameUID(),
		Symbol:         o.Symbol,
		ExOrderID:      o.ExOrderID,
		ActionFlag:     msg.ActionCancel,
		InstrumentType: o.InstrumentType,
	}
	logs.Infof("ledger cancels order %d of %08x", o.OrderID, o.StrategyID)
	return s.node.WriteRecord(td, trigger, action)
}

func (s *Service) onRemoveStrategy(e bus.Event) {
	var req msg.RemoveStrategy
	if err := e.JSON(&req); err != nil {
		s.node.Metrics().IncProtocolDrop()
		logs.Warnf("ledger dropped RemoveStrategy from %08x, err: %+v", e.Source, err)
		return
	}
	if err := s.RemoveStrategy(req.UID); err != nil {
		logs.Warnf("ledger remove strategy %s [%08x], err: %+v", req.UName, req.UID, err)
	}
}

// RemoveStrategy forgets the retained book of a strategy that has left and
// deletes its snapshot. A running strategy is refused.
func (s *Service) RemoveStrategy(uid uint32) error {
	if _, ok := s.holders[uid]; ok {
		return errors.Wrapf(exception.ErrRouting, "strategy %08x is running", uid)
	}
	b, ok := s.retired[uid]
	if ok && b.Location().Category != location.CategoryStrategy {
		return errors.Wrapf(exception.ErrConfig, "%s is not a strategy", b.Location().UName)
	}
	delete(s.retired, uid)
	if s.cfg.SnapshotDir != "" {
		err := os.Remove(s.SnapshotPath(uid))
		if err != nil && !stderrors.Is(err, fs.ErrNotExist) {
			return errors.Wrap(exception.ErrIO, err.Error())
		}
	}
	logs.Infof("ledger removed strategy %08x", uid)
	return nil
}

func (s *Service) onInstrument(e bus.Event) {
	rec, err := e.Record()
	if err != nil {
		s.node.Metrics().IncProtocolDrop()
		return
	}
	inst := rec.(msg.Instrument)
	s.instruments[keyOf(inst)] = inst
	if s.cfg.MarketDB == nil {
		return
	}
	if err := s.cfg.MarketDB.PutInstrument(context.Background(), inst); err != nil {
		logs.Errorf("ledger persist %s@%s, err: %+v", inst.Symbol, inst.ExchangeID, err)
	}
}

func (s *Service) onInstrumentRequest(e bus.Event) {
	requester := e.Source
	s.reply(requester, func() error {
		for _, inst := range s.Instruments() {
			if err := s.node.WriteRecord(requester, e.GenTime, inst); err != nil {
				return err
			}
		}
		return s.node.WriteRecord(requester, e.GenTime, msg.InstrumentEnd{})
	})
}

func (s *Service) onQryAsset(e bus.Event) {
	var q msg.QryAsset
	if err := e.JSON(&q); err != nil {
		s.node.Metrics().IncProtocolDrop()
		logs.Warnf("ledger dropped QryAsset from %08x, err: %+v", e.Source, err)
		return
	}
	b, ok := s.holders[q.UID]
	if !ok {
		logs.Warnf("ledger has no book for %s [%08x]", q.UName, q.UID)
		return
	}
	requester := e.Source
	s.reply(requester, func() error {
		snap := b.Snapshot()
		for _, a := range snap.Assets {
			if err := s.node.WriteRecord(requester, e.GenTime, a); err != nil {
				return err
			}
		}
		for _, p := range snap.Positions {
			if err := s.node.WriteRecord(requester, e.GenTime, p); err != nil {
				return err
			}
		}
		logs.Infof("ledger answered %s with %d assets", q.UName, len(snap.Assets))
		return nil
	})
}

// reply writes to dest now or after the master grants the writer.
func (s *Service) reply(dest uint32, fn func() error) {
	if err := s.books.WhenWritable(dest, fn); err != nil {
		logs.Errorf("ledger reply to %08x, err: %+v", dest, err)
		return
	}
	if err := s.node.RequestWriteTo(dest); err != nil {
		logs.Errorf("ledger request writer to %08x, err: %+v", dest, err)
	}
}

// Book returns the book of the holder uid.
func (s *Service) Book(uid uint32) (*book.PositionBook, bool) {
	b, ok := s.holders[uid]
	return b, ok
}

// Asset is the latest asset of coin held by uid.
func (s *Service) Asset(uid uint32, coin string) (msg.Asset, bool) {
	b, ok := s.holders[uid]
	if !ok {
		return msg.Asset{}, false
	}
	return b.Asset(coin)
}

// Instruments lists the catalog ordered by exchange and symbol.
func (s *Service) Instruments() []msg.Instrument {
	out := make([]msg.Instrument, 0, len(s.instruments))
	for _, inst := range s.instruments {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ExchangeID != out[j].ExchangeID {
			return out[i].ExchangeID < out[j].ExchangeID
		}
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].InstrumentType < out[j].InstrumentType
	})
	return out
}

// Dump writes a snapshot of every book under SnapshotDir, including the
// books of locations that have left.
func (s *Service) Dump() error {
	if s.cfg.SnapshotDir == "" {
		return nil
	}
	for _, books := range []map[uint32]*book.PositionBook{s.holders, s.retired} {
		for uid, b := range books {
			if err := book.WriteSnapshot(s.SnapshotPath(uid), b.Snapshot()); err != nil {
				return err
			}
		}
	}
	logs.Infof("ledger dumped %d books to %s", len(s.holders)+len(s.retired), s.cfg.SnapshotDir)
	return nil
}

// SnapshotPath is where Dump writes the book of uid.
func (s *Service) SnapshotPath(uid uint32) string {
	return filepath.Join(s.cfg.SnapshotDir, fmt.Sprintf("%08x.json", uid))
}
