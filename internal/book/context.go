package book

import (
	"sort"

	"github.com/uswork-ny/godzilla-community/internal/bus"
	"github.com/uswork-ny/godzilla-community/internal/location"
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/uswork-ny/godzilla-community/internal/node"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

type instrumentKey struct {
	symbol   string
	exchange string
	instType msg.InstrumentType
}

// Context attaches books to locations and keeps the instrument catalog the
// ledger announces.
type Context struct {
	node        *node.Node
	ledger      *location.Location
	books       map[uint32][]*attachment
	instruments map[instrumentKey]msg.Instrument
	pending     []msg.Instrument
}

type attachment struct {
	book Book
	subs []*bus.Subscription
}

// NewContext creates a book context on n and starts collecting instruments.
func NewContext(n *node.Node) *Context {
	c := &Context{
		node:        n,
		ledger:      location.Ledger(n.Mode()),
		books:       make(map[uint32][]*attachment),
		instruments: make(map[instrumentKey]msg.Instrument),
	}
	c.MonitorInstruments()
	return c
}

// Ledger is the ledger service location.
func (c *Context) Ledger() *location.Location { return c.ledger }

// MonitorInstruments collects Instrument frames addressed to this node until
// InstrumentEnd, then replaces the catalog with what was collected and starts
// over.
func (c *Context) MonitorInstruments() {
	c.pending = nil
	c.node.Subscribe(func(e bus.Event) {
		rec, err := e.Record()
		if err != nil {
			logs.Warnf("drop instrument from %08x, err: %+v", e.Source, err)
			return
		}
		c.pending = append(c.pending, rec.(msg.Instrument))
	},
		bus.Is(msg.TypeInstrument),
		bus.To(c.node.Location().UID),
		bus.Until(msg.TypeInstrumentEnd, func() {
			clear(c.instruments)
			for _, inst := range c.pending {
				c.instruments[instrumentKey{inst.Symbol, inst.ExchangeID, inst.InstrumentType}] = inst
			}
			logs.Infof("instrument info updated, size: %d", len(c.instruments))
			c.MonitorInstruments()
		}),
	)
}

// RequestInstruments asks the ledger for the instrument catalog.
func (c *Context) RequestInstruments() error {
	if err := c.node.RequestWriteTo(c.ledger.UID); err != nil {
		return err
	}
	if err := c.node.RequestReadFrom(c.ledger.UID); err != nil {
		return err
	}
	return c.WhenWritable(c.ledger.UID, func() error {
		w, err := c.node.Writer(c.ledger.UID)
		if err != nil {
			return err
		}
		logs.Infof("instrument requested from %s", c.ledger.UName)
		return w.Mark(0, msg.TypeInstrumentRequest)
	})
}

// Instrument looks up one instrument of the catalog.
func (c *Context) Instrument(symbol, exchange string, instType msg.InstrumentType) (msg.Instrument, bool) {
	inst, ok := c.instruments[instrumentKey{symbol, exchange, instType}]
	return inst, ok
}

// Instruments lists the catalog ordered by exchange and symbol.
func (c *Context) Instruments() []msg.Instrument {
	out := make([]msg.Instrument, 0, len(c.instruments))
	for _, inst := range c.instruments {
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

// WhenWritable runs fn now when the node holds a writer to dest, otherwise once the
// master grants one.
func (c *Context) WhenWritable(dest uint32, fn func() error) error {
	if c.node.HasWriter(dest) {
		return fn()
	}
	c.node.Subscribe(func(bus.Event) {
		if err := fn(); err != nil {
			logs.Errorf("deferred write to %08x, err: %+v", dest, err)
		}
	},
		bus.Is(msg.TypeRequestWriteTo),
		bus.To(c.node.Location().UID),
		bus.Where(func(e bus.Event) bool {
			rec, err := e.Record()
			return err == nil && rec.(msg.RequestWriteToMsg).DestID == dest
		}),
		bus.Once(),
	)
	return nil
}

// AddBook feeds book with the orders, trades, positions and assets of loc.
// loc must be a td or strategy location.
func (c *Context) AddBook(loc *location.Location, book Book) error {
	if loc.Category != location.CategoryTD && loc.Category != location.CategoryStrategy {
		return errors.Wrapf(exception.ErrConfig, "invalid book location category: %s", loc.Category)
	}
	self := c.node.Location()
	isLedger := self.UID == c.ledger.UID
	if !isLedger && self.Mode == location.ModeLive && !c.node.Registry().HasLocation(c.ledger.UID) {
		return errors.Wrap(exception.ErrConfig, "has no location for ledger service")
	}
	if _, err := c.node.Registry().AddLocation(loc); err != nil {
		return err
	}

	for _, ch := range c.node.Registry().ChannelsOf(loc.UID) {
		c.join(loc, ch)
	}

	att := &attachment{book: book}
	att.subs = append(att.subs, c.node.Subscribe(func(e bus.Event) {
		rec, err := e.Record()
		if err != nil {
			return
		}
		ch := rec.(msg.ChannelMsg)
		c.join(loc, location.Channel{Source: ch.SourceID, Dest: ch.DestID})
	}, bus.Is(msg.TypeChannel)))

	att.subs = append(att.subs, subscribeBook(c.node.Bus(), loc, book)...)
	c.books[loc.UID] = append(c.books[loc.UID], att)

	if isLedger {
		return nil
	}
	if err := c.WhenWritable(c.ledger.UID, func() error {
		return c.queryAsset(loc)
	}); err != nil {
		return err
	}
	if err := c.node.RequestWriteTo(c.ledger.UID); err != nil {
		return err
	}
	return c.node.RequestReadFrom(c.ledger.UID)
}

func (c *Context) queryAsset(loc *location.Location) error {
	err := c.node.WriteJSON(c.ledger.UID, 0, msg.TypeQryAsset, msg.QryAsset{
		Mode:     loc.Mode.String(),
		Category: loc.Category.String(),
		Group:    loc.Group,
		Name:     loc.Name,
		UName:    loc.UName,
		UID:      loc.UID,
	})
	if err == nil {
		logs.Infof("%s [%08x] asset requested", loc.UName, loc.UID)
	}
	return err
}

// join reads the journal behind ch when it touches loc.
func (c *Context) join(loc *location.Location, ch location.Channel) {
	if !ch.Touches(loc.UID) {
		return
	}
	if err := c.node.JoinChannel(ch); err != nil {
		logs.Warnf("book %s cannot read %08x -> %08x, err: %+v", loc.UName, ch.Source, ch.Dest, err)
		return
	}
	logs.Debugf("book %s reads %08x -> %08x", loc.UName, ch.Source, ch.Dest)
}

// PopBook detaches every book of the location uid.
func (c *Context) PopBook(uid uint32) {
	for _, att := range c.books[uid] {
		for _, s := range att.subs {
			s.Cancel()
		}
	}
	delete(c.books, uid)
}

// Books is the number of books attached to uid.
func (c *Context) Books(uid uint32) int {
	return len(c.books[uid])
}

// subscribeBook wires book to the events of loc on b: td books take what the
// td wrote, strategy books what was written to the strategy.
func subscribeBook(b *bus.Bus, loc *location.Location, book Book) []*bus.Subscription {
	owned := func(e bus.Event) bool {
		if loc.Category == location.CategoryTD {
			return e.Source == loc.UID
		}
		return e.Dest == loc.UID
	}
	return []*bus.Subscription{
		b.Subscribe(record(book.OnDepth), bus.Is(msg.TypeDepth)),
		b.Subscribe(record(book.OnPosition), bus.Is(msg.TypePosition), bus.Where(owned)),
		b.Subscribe(record(book.OnMyTrade), bus.Is(msg.TypeMyTrade), bus.Where(owned)),
		b.Subscribe(record(book.OnOrder), bus.Is(msg.TypeOrder), bus.Where(owned)),
		b.Subscribe(record(func(e bus.Event, asset msg.Asset) {
			if asset.HolderUID == loc.UID {
				book.OnAsset(e, asset)
			}
		}), bus.Is(msg.TypeAsset)),
	}
}

func record[T msg.Record](fn func(bus.Event, T)) bus.Handler {
	return func(e bus.Event) {
		rec, err := e.Record()
		if err != nil {
			logs.Warnf("drop %s from %08x, err: %+v", e.MsgType, e.Source, err)
			return
		}
		fn(e, rec.(T))
	}
}
