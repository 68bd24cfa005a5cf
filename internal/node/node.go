package node

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uswork-ny/godzilla-community/internal/bus"
	"github.com/uswork-ny/godzilla-community/internal/codec"
	"github.com/uswork-ny/godzilla-community/internal/journal"
	"github.com/uswork-ny/godzilla-community/internal/location"
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/uswork-ny/godzilla-community/internal/obs"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const defaultRegisterInterval = time.Second

// Config controls an io device.
type Config struct {
	Bus     bus.Config
	Metrics *obs.Metrics
	// RegisterInterval is how often Register is repeated until the master
	// answers with RequestStart.
	RegisterInterval time.Duration
}

// Node is the io device of one location: a public writer, a writer to the
// master, writers granted by the master and a bus over every journal it was
// allowed to read. A Node is used from one goroutine.
type Node struct {
	loc      *location.Location
	master   *location.Location
	store    *journal.Store
	identity string
	metrics  *obs.Metrics

	registry *location.Registry
	reader   *journal.Reader
	bus      *bus.Bus
	writers  map[uint32]*journal.Writer
	pending  map[location.Channel]bool

	startTime int64
	started   bool
	onStart   []func()
	retry     *bus.Timer
	closed    bool
	buf       []byte
}

// New opens the io device of loc and registers it with the master.
func New(store *journal.Store, loc *location.Location, cfg Config) (*Node, error) {
	if cfg.RegisterInterval <= 0 {
		cfg.RegisterInterval = defaultRegisterInterval
	}
	master := location.Master(loc.Mode)
	if loc.UID == master.UID {
		return nil, errors.Wrap(exception.ErrConfig, "master location cannot open a node")
	}

	n := &Node{
		loc:       loc,
		master:    master,
		store:     store,
		identity:  uuid.NewString(),
		metrics:   cfg.Metrics,
		registry:  location.NewRegistry(),
		reader:    store.NewReader(),
		writers:   make(map[uint32]*journal.Writer),
		pending:   make(map[location.Channel]bool),
		startTime: store.Clock().Now(),
	}
	_, _ = n.registry.AddLocation(loc)
	_, _ = n.registry.AddLocation(master)

	if err := n.reader.Join(master, loc.UID, n.startTime); err != nil {
		return nil, err
	}
	n.bus = bus.New(n.reader, store.Clock(), cfg.Bus).WithMetrics(cfg.Metrics)
	n.bus.Expect()

	for _, dest := range []uint32{0, master.UID} {
		if _, err := n.openWriter(dest); err != nil {
			n.closeWriters()
			return nil, err
		}
	}
	n.subscribe()

	if err := n.register(); err != nil {
		n.closeWriters()
		return nil, err
	}
	n.retry = n.bus.AddInterval(cfg.RegisterInterval, func(bus.Event) {
		if err := n.register(); err != nil {
			logs.Errorf("re-register %s, err: %+v", n.loc.UName, err)
		}
	})
	logs.Infof("node %s opened as %s", loc.UName, n.identity)
	return n, nil
}

func (n *Node) Location() *location.Location  { return n.loc }
func (n *Node) Master() *location.Location    { return n.master }
func (n *Node) Identity() string              { return n.identity }
func (n *Node) Registry() *location.Registry  { return n.registry }
func (n *Node) Bus() *bus.Bus                 { return n.bus }
func (n *Node) Store() *journal.Store         { return n.store }
func (n *Node) Metrics() *obs.Metrics         { return n.metrics }
func (n *Node) Started() bool                 { return n.started }
func (n *Node) StartTime() int64              { return n.startTime }
func (n *Node) Now() int64                    { return n.bus.Now() }
func (n *Node) Mode() location.Mode           { return n.loc.Mode }
func (n *Node) IsMaster(uid uint32) bool      { return uid == n.master.UID }
func (n *Node) Reader() *journal.Reader       { return n.reader }
func (n *Node) Subscribe(h bus.Handler, opts ...bus.Option) *bus.Subscription {
	return n.bus.Subscribe(h, opts...)
}

func (n *Node) register() error {
	return n.WriteJSON(n.master.UID, 0, msg.TypeRegister, docOf(n.loc, n.identity))
}

func (n *Node) subscribe() {
	fromMaster := []bus.Option{bus.From(n.master.UID), bus.To(n.loc.UID)}
	on := func(t msg.Type, h bus.Handler) {
		n.bus.Subscribe(h, append([]bus.Option{bus.Is(t)}, fromMaster...)...)
	}
	on(msg.TypeLocation, n.onLocation)
	on(msg.TypeDeregister, n.onDeregister)
	on(msg.TypeChannel, n.onChannel)
	on(msg.TypeRequestWriteTo, n.onRequestWriteTo)
	on(msg.TypeRequestReadFrom, n.onRequestReadFrom)
	on(msg.TypeRequestReadFromPublic, n.onRequestReadFromPublic)
	on(msg.TypeRequestStart, n.onRequestStart)
}

func (n *Node) drop(e bus.Event, err error) {
	n.metrics.IncProtocolDrop()
	logs.Warnf("%s dropped %s from %08x, err: %+v", n.loc.UName, e.MsgType, e.Source, err)
}

func (n *Node) onLocation(e bus.Event) {
	var doc msg.LocationDoc
	if err := e.JSON(&doc); err != nil {
		n.drop(e, err)
		return
	}
	loc, err := locationOf(doc)
	if err != nil {
		n.drop(e, err)
		return
	}
	if _, err := n.registry.AddLocation(loc); err != nil {
		logs.Errorf("%s add location %s, err: %+v", n.loc.UName, loc.UName, err)
	}
}

func (n *Node) onDeregister(e bus.Event) {
	var doc msg.Deregister
	if err := e.JSON(&doc); err != nil {
		n.drop(e, err)
		return
	}
	n.forget(doc.UID)
}

func (n *Node) onChannel(e bus.Event) {
	rec, err := e.Record()
	if err != nil {
		n.drop(e, err)
		return
	}
	ch := rec.(msg.ChannelMsg)
	n.registry.AddChannel(location.Channel{Source: ch.SourceID, Dest: ch.DestID})
}

func (n *Node) onRequestWriteTo(e bus.Event) {
	rec, err := e.Record()
	if err != nil {
		n.drop(e, err)
		return
	}
	dest := rec.(msg.RequestWriteToMsg).DestID
	if _, err := n.openWriter(dest); err != nil {
		logs.Errorf("%s open writer to %08x, err: %+v", n.loc.UName, dest, err)
	}
}

func (n *Node) onRequestReadFrom(e bus.Event) {
	rec, err := e.Record()
	if err != nil {
		n.drop(e, err)
		return
	}
	req := rec.(msg.RequestReadFromMsg)
	if err := n.join(req.SourceID, n.loc.UID, req.FromTime); err != nil {
		logs.Errorf("%s read from %08x, err: %+v", n.loc.UName, req.SourceID, err)
	}
	n.granted(location.Channel{Source: req.SourceID, Dest: n.loc.UID})
}

func (n *Node) onRequestReadFromPublic(e bus.Event) {
	rec, err := e.Record()
	if err != nil {
		n.drop(e, err)
		return
	}
	req := rec.(msg.RequestReadFromPublicMsg)
	if err := n.join(req.SourceID, 0, req.FromTime); err != nil {
		logs.Errorf("%s read public from %08x, err: %+v", n.loc.UName, req.SourceID, err)
	}
	n.granted(location.Channel{Source: req.SourceID, Dest: 0})
}

// awaiting marks ch as requested. A replay bus keeps running until the grant
// for it arrives.
func (n *Node) awaiting(ch location.Channel) {
	if n.pending[ch] {
		return
	}
	n.pending[ch] = true
	n.bus.Expect()
}

func (n *Node) granted(ch location.Channel) {
	if !n.pending[ch] {
		return
	}
	delete(n.pending, ch)
	n.bus.Arrived()
}

func (n *Node) onRequestStart(bus.Event) {
	if n.started {
		return
	}
	n.started = true
	n.retry.Stop()
	n.bus.Arrived()
	logs.Infof("node %s started", n.loc.UName)
	hooks := n.onStart
	n.onStart = nil
	for _, fn := range hooks {
		fn()
	}
}

// OnStart runs fn once the master has finished wiring this node, right away
// when that already happened.
func (n *Node) OnStart(fn func()) {
	if n.started {
		fn()
		return
	}
	n.onStart = append(n.onStart, fn)
}

func (n *Node) join(source, dest uint32, from int64) error {
	loc, ok := n.registry.Location(source)
	if !ok {
		return errors.Wrapf(exception.ErrConfig, "unknown source location %08x", source)
	}
	return n.reader.Join(loc, dest, from)
}

// JoinChannel makes sure this node reads the journal behind ch. It is a no-op
// when the journal is already joined.
func (n *Node) JoinChannel(ch location.Channel) error {
	if n.reader.Joined(ch.Source, ch.Dest) {
		return nil
	}
	return n.join(ch.Source, ch.Dest, n.Now())
}

func (n *Node) forget(uid uint32) {
	if uid == n.loc.UID || uid == n.master.UID {
		return
	}
	n.registry.RemoveLocation(uid)
	n.reader.Disjoin(uid)
	for ch := range n.pending {
		if ch.Source == uid {
			n.granted(ch)
		}
	}
	if w, ok := n.writers[uid]; ok {
		_ = w.Close()
		delete(n.writers, uid)
	}
}

func (n *Node) openWriter(dest uint32) (*journal.Writer, error) {
	if w, ok := n.writers[dest]; ok {
		return w, nil
	}
	w, err := n.store.NewWriter(n.loc, dest, n.identity)
	if err != nil {
		return nil, err
	}
	n.writers[dest] = w
	return w, nil
}

// RequestWriteTo asks the master for a writer to dest. The grant arrives as a
// RequestWriteTo event; nothing is sent when the writer already exists.
func (n *Node) RequestWriteTo(dest uint32) error {
	if n.HasWriter(dest) {
		return nil
	}
	return n.WriteRecord(n.master.UID, 0, msg.RequestWriteToMsg{DestID: dest})
}

// RequestReadFrom asks the master to let this node read what source writes
// to it.
func (n *Node) RequestReadFrom(source uint32) error {
	if n.reader.Joined(source, n.loc.UID) {
		return nil
	}
	if err := n.WriteRecord(n.master.UID, 0, msg.RequestReadFromMsg{SourceID: source, FromTime: n.Now()}); err != nil {
		return err
	}
	n.awaiting(location.Channel{Source: source, Dest: n.loc.UID})
	return nil
}

// RequestReadFromPublic asks to read the public journal of source.
func (n *Node) RequestReadFromPublic(source uint32) error {
	if n.reader.Joined(source, 0) {
		return nil
	}
	if err := n.WriteRecord(n.master.UID, 0, msg.RequestReadFromPublicMsg{SourceID: source, FromTime: n.Now()}); err != nil {
		return err
	}
	n.awaiting(location.Channel{Source: source, Dest: 0})
	return nil
}

// HasWriter reports whether a writer to dest was granted.
func (n *Node) HasWriter(dest uint32) bool {
	_, ok := n.writers[dest]
	return ok
}

// Writer returns the writer to dest.
func (n *Node) Writer(dest uint32) (*journal.Writer, error) {
	w, ok := n.writers[dest]
	if !ok {
		return nil, errors.Wrapf(exception.ErrRouting, "%s has no writer to %08x", n.loc.UName, dest)
	}
	return w, nil
}

// WriteRecord writes a fixed-layout record to dest.
func (n *Node) WriteRecord(dest uint32, trigger int64, rec msg.Record) error {
	w, err := n.Writer(dest)
	if err != nil {
		return err
	}
	n.buf, err = codec.Append(n.buf, rec)
	if err != nil {
		return err
	}
	return w.Write(trigger, rec.MsgType(), n.buf)
}

// WriteJSON writes a control document of type t to dest.
func (n *Node) WriteJSON(dest uint32, trigger int64, t msg.Type, v any) error {
	w, err := n.Writer(dest)
	if err != nil {
		return err
	}
	data, err := codec.MarshalJSON(v)
	if err != nil {
		return err
	}
	return w.Write(trigger, t, data)
}

// Step dispatches at most one event.
func (n *Node) Step() bool {
	return n.bus.Step()
}

// Run pumps the bus until ctx is done.
func (n *Node) Run(ctx context.Context) error {
	return n.bus.Run(ctx)
}

// WaitReady pumps the bus until the master has started this node.
func (n *Node) WaitReady(ctx context.Context) error {
	return n.bus.Poll(ctx, func() bool { return n.started })
}

// Close deregisters from the master and releases every journal.
func (n *Node) Close() error {
	if n.closed {
		return nil
	}
	n.closed = true
	if err := n.WriteJSON(n.master.UID, 0, msg.TypeDeregister, msg.Deregister{UID: n.loc.UID}); err != nil {
		logs.Warnf("deregister %s, err: %+v", n.loc.UName, err)
	}
	n.closeWriters()
	n.reader.Close()
	n.bus.Close()
	logs.Infof("node %s closed", n.loc.UName)
	return nil
}

func (n *Node) closeWriters() {
	for dest, w := range n.writers {
		_ = w.Close()
		delete(n.writers, dest)
	}
}
