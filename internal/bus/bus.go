package bus

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/btree"
	"github.com/uswork-ny/godzilla-community/internal/journal"
	"github.com/uswork-ny/godzilla-community/internal/nanotime"
	"github.com/uswork-ny/godzilla-community/internal/obs"
	"github.com/yanun0323/logs"
)

const (
	defaultQueueSize = 1024
	defaultIdleMax   = time.Millisecond
	defaultIdleMin   = 10 * time.Microsecond
)

// Config controls the pump loop.
type Config struct {
	// Replay makes Run return once every joined journal is exhausted and no
	// Expect is outstanding. Timers then fire on frame time instead of the
	// clock.
	Replay    bool
	QueueSize int
	IdleMin   time.Duration
	IdleMax   time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.IdleMin <= 0 {
		c.IdleMin = defaultIdleMin
	}
	if c.IdleMax <= 0 {
		c.IdleMax = defaultIdleMax
	}
	return c
}

// Bus merges a journal reader, posted events and timers into one stream and
// dispatches it to subscriptions in registration order. All callbacks run on
// the goroutine pumping the bus.
type Bus struct {
	cfg     Config
	reader  *journal.Reader
	clock   nanotime.Clock
	queue   *Queue
	metrics *obs.Metrics

	subs   []*Subscription
	nextID uint64
	dirty  bool

	timers   *btree.BTreeG[*Timer]
	timerSeq uint64

	expected int
	now      int64
}

// New creates a bus over reader.
func New(reader *journal.Reader, clock nanotime.Clock, cfg Config) *Bus {
	cfg = cfg.withDefaults()
	if clock == nil {
		clock = nanotime.SystemClock{}
	}
	return &Bus{
		cfg:    cfg,
		reader: reader,
		clock:  clock,
		queue:  NewQueue(cfg.QueueSize),
		timers: btree.NewBTreeG[*Timer](func(a, b *Timer) bool {
			if a.at != b.at {
				return a.at < b.at
			}
			return a.seq < b.seq
		}),
	}
}

// WithMetrics attaches a metrics sink.
func (b *Bus) WithMetrics(m *obs.Metrics) *Bus {
	b.metrics = m
	return b
}

func (b *Bus) Reader() *journal.Reader { return b.reader }
func (b *Bus) Replay() bool            { return b.cfg.Replay }

// Now is the clock time in live mode and the time of the last dispatched
// event in replay mode.
func (b *Bus) Now() int64 {
	if b.cfg.Replay {
		return b.now
	}
	return b.clock.Now()
}

// Subscribe adds handler to the dispatch table. Subscriptions added while an
// event is being dispatched see the next event onwards.
func (b *Bus) Subscribe(handler Handler, opts ...Option) *Subscription {
	b.nextID++
	s := &Subscription{id: b.nextID, bus: b, handler: handler}
	for _, opt := range opts {
		opt(s)
	}
	b.subs = append(b.subs, s)
	return s
}

// Post queues an event that is dispatched before any further journal frame.
func (b *Bus) Post(e Event) error {
	if e.GenTime == 0 {
		e.GenTime = b.Now()
	}
	return b.queue.TryPublish(e)
}

// Step dispatches at most one event and reports whether it did.
func (b *Bus) Step() bool {
	if e, ok := b.queue.TryNext(); ok {
		b.dispatch(e)
		return true
	}

	hasFrame := b.reader != nil && b.reader.DataAvailable()
	timer, hasTimer := b.timers.Min()
	if hasTimer {
		due := false
		switch {
		case hasFrame:
			due = timer.at <= b.reader.Current().GenTime
			if !b.cfg.Replay {
				due = due && timer.at <= b.clock.Now()
			}
		case !b.cfg.Replay:
			due = timer.at <= b.clock.Now()
		}
		if due {
			b.fire(timer)
			return true
		}
	}
	if !hasFrame {
		return false
	}

	b.dispatch(FromFrame(b.reader.Current()))
	b.reader.Next()
	return true
}

// Run pumps the bus until ctx is done. In replay mode it also returns once no
// event is left and no expected journal is still to be joined.
func (b *Bus) Run(ctx context.Context) error {
	idle := b.newIdle()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if b.Step() {
			idle.Reset()
			continue
		}
		if b.cfg.Replay && b.expected == 0 {
			return nil
		}
		if err := b.wait(ctx, idle); err != nil {
			return err
		}
	}
}

// Poll pumps the bus until done reports true or ctx ends, backing off the
// same way Run does while nothing is ready.
func (b *Bus) Poll(ctx context.Context, done func() bool) error {
	idle := b.newIdle()
	for !done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if b.Step() {
			idle.Reset()
			continue
		}
		if err := b.wait(ctx, idle); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) newIdle() *backoff.ExponentialBackOff {
	idle := backoff.NewExponentialBackOff()
	idle.InitialInterval = b.cfg.IdleMin
	idle.MaxInterval = b.cfg.IdleMax
	return idle
}

func (b *Bus) wait(ctx context.Context, idle *backoff.ExponentialBackOff) error {
	sleep := idle.NextBackOff()
	if sleep == backoff.Stop {
		sleep = b.cfg.IdleMax
	}
	t := time.NewTimer(sleep)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Expect keeps a replay Run alive until a matching Arrived, for journals
// that will be joined once a grant shows up.
func (b *Bus) Expect() { b.expected++ }

// Arrived releases one Expect.
func (b *Bus) Arrived() {
	if b.expected > 0 {
		b.expected--
	}
}

// Expected is how many joins are still awaited.
func (b *Bus) Expected() int { return b.expected }

// Drain steps until nothing is ready.
func (b *Bus) Drain() int {
	n := 0
	for b.Step() {
		n++
	}
	return n
}

func (b *Bus) dispatch(e Event) {
	start := time.Now()
	if e.GenTime > b.now {
		b.now = e.GenTime
	}
	subs := b.subs
	for _, s := range subs {
		if s.cancelled {
			continue
		}
		if s.hasUntil && e.MsgType == s.untilType && s.routed(e) {
			s.Cancel()
			if s.untilDone != nil {
				b.call(s.untilDone)
			}
			continue
		}
		if !s.matches(e) {
			continue
		}
		if s.once {
			s.Cancel()
		}
		b.call(func() { s.handler(e) })
	}
	b.compact()
	b.metrics.ObserveDispatch(time.Since(start))
}

// call runs fn inside a recover boundary so one failing callback never stops
// the others.
func (b *Bus) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.IncCallbackPanic()
			logs.Errorf("bus callback panic: %v\n%s", r, debug.Stack())
		}
	}()
	fn()
}

func (b *Bus) compact() {
	if !b.dirty {
		return
	}
	b.dirty = false
	kept := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if !s.cancelled {
			kept = append(kept, s)
		}
	}
	b.subs = kept
}

// Subscriptions is the number of active subscriptions.
func (b *Bus) Subscriptions() int {
	n := 0
	for _, s := range b.subs {
		if !s.cancelled {
			n++
		}
	}
	return n
}

// Close stops accepting posted events.
func (b *Bus) Close() {
	b.queue.Close()
}
