package node

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uswork-ny/godzilla-community/internal/bus"
	"github.com/uswork-ny/godzilla-community/internal/codec"
	"github.com/uswork-ny/godzilla-community/internal/journal"
	"github.com/uswork-ny/godzilla-community/internal/location"
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/uswork-ny/godzilla-community/internal/obs"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const defaultScanInterval = 100 * time.Millisecond

// MasterConfig controls the master.
type MasterConfig struct {
	Bus     bus.Config
	Metrics *obs.Metrics
	// ScanInterval is how often the journal root is scanned for locations
	// that started writing to the master.
	ScanInterval time.Duration
}

// Master owns the authoritative registry. It admits locations, grants
// writers and readers for every channel and tells everyone about changes.
type Master struct {
	loc      *location.Location
	store    *journal.Store
	identity string
	metrics  *obs.Metrics

	registry *location.Registry
	reader   *journal.Reader
	bus      *bus.Bus
	writers  map[uint32]*journal.Writer
	apps     map[uint32]msg.LocationDoc
	public   map[uint32][]uint32

	startTime int64
	buf       []byte
}

// NewMaster starts the master of mode.
func NewMaster(store *journal.Store, mode location.Mode, cfg MasterConfig) (*Master, error) {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = defaultScanInterval
	}
	m := &Master{
		loc:       location.Master(mode),
		store:     store,
		identity:  uuid.NewString(),
		metrics:   cfg.Metrics,
		registry:  location.NewRegistry(),
		reader:    store.NewReader(),
		writers:   make(map[uint32]*journal.Writer),
		apps:      make(map[uint32]msg.LocationDoc),
		public:    make(map[uint32][]uint32),
		startTime: store.Clock().Now(),
	}
	_, _ = m.registry.AddLocation(m.loc)
	m.bus = bus.New(m.reader, store.Clock(), cfg.Bus).WithMetrics(cfg.Metrics)

	on := func(t msg.Type, h bus.Handler) {
		m.bus.Subscribe(h, bus.Is(t), bus.To(m.loc.UID))
	}
	on(msg.TypeRegister, m.onRegister)
	on(msg.TypeDeregister, m.onDeregister)
	on(msg.TypeRequestWriteTo, m.onRequestWriteTo)
	on(msg.TypeRequestReadFrom, m.onRequestReadFrom)
	on(msg.TypeRequestReadFromPublic, m.onRequestReadFromPublic)

	if _, err := m.Discover(); err != nil {
		return nil, err
	}
	m.bus.AddInterval(cfg.ScanInterval, func(bus.Event) {
		if _, err := m.Discover(); err != nil {
			logs.Errorf("discover locations, err: %+v", err)
		}
	})
	logs.Infof("master %s started as %s", m.loc.UName, m.identity)
	return m, nil
}

func (m *Master) Location() *location.Location { return m.loc }
func (m *Master) Registry() *location.Registry { return m.registry }
func (m *Master) Bus() *bus.Bus                { return m.bus }

// Registered reports whether uid is an admitted application.
func (m *Master) Registered(uid uint32) bool {
	_, ok := m.apps[uid]
	return ok
}

// Discover joins every journal written to the master by a location of the
// same mode. It returns the number of journals joined by this call.
func (m *Master) Discover() (int, error) {
	root := m.store.Config().Root
	pattern := filepath.Join(root, m.loc.Mode.String(), "*", "*", "*", "journal",
		fmt.Sprintf("%08x.*.journal", m.loc.UID))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return 0, errors.Wrapf(err, "glob %s", pattern)
	}

	joined := 0
	for _, path := range matches {
		loc, ok := locationFromPath(root, path)
		if !ok || loc.UID == m.loc.UID || m.reader.Joined(loc.UID, m.loc.UID) {
			continue
		}
		if err := m.reader.Join(loc, m.loc.UID, m.startTime); err != nil {
			return joined, err
		}
		joined++
		logs.Debugf("master reads %s", loc.UName)
	}
	return joined, nil
}

// locationFromPath maps root/mode/category/group/name/journal/file back to
// its location.
func locationFromPath(root, path string) (*location.Location, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return nil, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 6 || parts[4] != "journal" {
		return nil, false
	}
	loc, err := location.Parse(strings.Join([]string{parts[1], parts[2], parts[3], parts[0]}, "/"))
	if err != nil {
		return nil, false
	}
	return loc, true
}

func (m *Master) drop(e bus.Event, err error) {
	m.metrics.IncProtocolDrop()
	logs.Warnf("master dropped %s from %08x, err: %+v", e.MsgType, e.Source, err)
}

func (m *Master) onRegister(e bus.Event) {
	var doc msg.LocationDoc
	if err := e.JSON(&doc); err != nil {
		m.drop(e, err)
		return
	}
	loc, err := locationOf(doc)
	if err != nil {
		m.drop(e, err)
		return
	}
	if loc.UID != e.Source {
		m.drop(e, errors.Errorf("register of %08x sent by %08x", loc.UID, e.Source))
		return
	}
	if prev, ok := m.apps[loc.UID]; ok && prev.Identity == doc.Identity {
		return
	}
	if _, err := m.registry.AddLocation(loc); err != nil {
		logs.Errorf("register %s, err: %+v", loc.UName, err)
		return
	}
	if _, err := m.writerTo(loc.UID); err != nil {
		logs.Errorf("open writer to %s, err: %+v", loc.UName, err)
		return
	}
	m.apps[loc.UID] = doc
	m.broadcastJSON(loc.UID, e.GenTime, msg.TypeLocation, doc)

	for _, known := range m.registry.Locations() {
		m.sendJSON(loc.UID, e.GenTime, msg.TypeLocation, m.docOf(known))
	}
	for _, ch := range m.registry.Channels() {
		m.send(loc.UID, e.GenTime, msg.ChannelMsg{SourceID: ch.Source, DestID: ch.Dest})
	}
	for _, ch := range m.registry.ChannelsOf(loc.UID) {
		m.grant(ch, e.GenTime)
	}
	for _, reader := range m.public[loc.UID] {
		m.send(reader, e.GenTime, msg.RequestReadFromPublicMsg{SourceID: loc.UID, FromTime: m.bus.Now()})
	}
	delete(m.public, loc.UID)

	if w, err := m.writerTo(loc.UID); err == nil {
		if err := w.Mark(e.GenTime, msg.TypeRequestStart); err != nil {
			logs.Errorf("start %s, err: %+v", loc.UName, err)
		}
	}
	logs.Infof("registered %s pid %d", loc.UName, doc.PID)
}

func (m *Master) docOf(loc *location.Location) msg.LocationDoc {
	if doc, ok := m.apps[loc.UID]; ok {
		return doc
	}
	if loc.UID == m.loc.UID {
		return docOf(loc, m.identity)
	}
	return docOf(loc, "")
}

func (m *Master) onDeregister(e bus.Event) {
	var doc msg.Deregister
	if err := e.JSON(&doc); err != nil {
		m.drop(e, err)
		return
	}
	if doc.UID != e.Source || !m.Registered(doc.UID) {
		return
	}
	m.deregister(doc.UID, e.GenTime)
}

func (m *Master) deregister(uid uint32, trigger int64) {
	loc, _ := m.registry.Location(uid)
	delete(m.apps, uid)
	m.registry.RemoveLocation(uid)
	if w, ok := m.writers[uid]; ok {
		_ = w.Close()
		delete(m.writers, uid)
	}
	m.broadcastJSON(uid, trigger, msg.TypeDeregister, msg.Deregister{UID: uid})
	if loc != nil {
		logs.Infof("deregistered %s", loc.UName)
	}
}

func (m *Master) onRequestWriteTo(e bus.Event) {
	rec, err := e.Record()
	if err != nil {
		m.drop(e, err)
		return
	}
	m.addChannel(location.Channel{Source: e.Source, Dest: rec.(msg.RequestWriteToMsg).DestID}, e.GenTime)
}

func (m *Master) onRequestReadFrom(e bus.Event) {
	rec, err := e.Record()
	if err != nil {
		m.drop(e, err)
		return
	}
	m.addChannel(location.Channel{Source: rec.(msg.RequestReadFromMsg).SourceID, Dest: e.Source}, e.GenTime)
}

func (m *Master) onRequestReadFromPublic(e bus.Event) {
	rec, err := e.Record()
	if err != nil {
		m.drop(e, err)
		return
	}
	source := rec.(msg.RequestReadFromPublicMsg).SourceID
	if !m.Registered(source) {
		m.public[source] = append(m.public[source], e.Source)
		return
	}
	m.send(e.Source, e.GenTime, msg.RequestReadFromPublicMsg{SourceID: source, FromTime: m.bus.Now()})
}

// addChannel records ch and grants both ends. Grants are repeated for a known
// channel since the requester may have restarted.
func (m *Master) addChannel(ch location.Channel, trigger int64) {
	added := m.registry.AddChannel(ch)
	m.grant(ch, trigger)
	if added {
		for uid := range m.apps {
			m.send(uid, trigger, msg.ChannelMsg{SourceID: ch.Source, DestID: ch.Dest})
		}
	}
}

// grant hands the writer to the source once it is registered, and the reader
// to the destination once both ends are.
func (m *Master) grant(ch location.Channel, trigger int64) {
	if m.Registered(ch.Source) {
		m.send(ch.Source, trigger, msg.RequestWriteToMsg{DestID: ch.Dest})
		if m.Registered(ch.Dest) {
			m.send(ch.Dest, trigger, msg.RequestReadFromMsg{SourceID: ch.Source, FromTime: m.bus.Now()})
		}
	}
}

func (m *Master) writerTo(uid uint32) (*journal.Writer, error) {
	if w, ok := m.writers[uid]; ok {
		return w, nil
	}
	w, err := m.store.NewWriter(m.loc, uid, m.identity)
	if err != nil {
		return nil, err
	}
	m.writers[uid] = w
	return w, nil
}

func (m *Master) send(uid uint32, trigger int64, rec msg.Record) {
	w, ok := m.writers[uid]
	if !ok {
		return
	}
	var err error
	if m.buf, err = codec.Append(m.buf, rec); err == nil {
		err = w.Write(trigger, rec.MsgType(), m.buf)
	}
	if err != nil {
		logs.Errorf("send %s to %08x, err: %+v", rec.MsgType(), uid, err)
	}
}

func (m *Master) sendJSON(uid uint32, trigger int64, t msg.Type, v any) {
	w, ok := m.writers[uid]
	if !ok {
		return
	}
	data, err := codec.MarshalJSON(v)
	if err == nil {
		err = w.Write(trigger, t, data)
	}
	if err != nil {
		logs.Errorf("send %s to %08x, err: %+v", t, uid, err)
	}
}

func (m *Master) broadcastJSON(except uint32, trigger int64, t msg.Type, v any) {
	for uid := range m.apps {
		if uid != except {
			m.sendJSON(uid, trigger, t, v)
		}
	}
}

// Step dispatches at most one event.
func (m *Master) Step() bool { return m.bus.Step() }

// Run serves until ctx is done.
func (m *Master) Run(ctx context.Context) error { return m.bus.Run(ctx) }

// Close releases every journal.
func (m *Master) Close() error {
	for uid, w := range m.writers {
		_ = w.Close()
		delete(m.writers, uid)
	}
	m.reader.Close()
	m.bus.Close()
	logs.Infof("master %s closed", m.loc.UName)
	return nil
}
