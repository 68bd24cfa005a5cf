package bus

import (
	"time"

	"github.com/uswork-ny/godzilla-community/internal/msg"
)

// Timer is a scheduled callback. It fires as a msg.TypeTime event.
type Timer struct {
	bus      *Bus
	seq      uint64
	at       int64
	interval int64
	fn       Handler
	stopped  bool
}

// At is the next deadline in nanoseconds.
func (t *Timer) At() int64 { return t.at }

// Stop cancels the timer.
func (t *Timer) Stop() {
	if t == nil || t.stopped {
		return
	}
	t.stopped = true
	t.bus.timers.Delete(t)
}

// AddTimer runs fn once at the absolute time at.
func (b *Bus) AddTimer(at int64, fn Handler) *Timer {
	return b.schedule(at, 0, fn)
}

// AddInterval runs fn every d, starting d from now.
func (b *Bus) AddInterval(d time.Duration, fn Handler) *Timer {
	if d <= 0 {
		d = time.Millisecond
	}
	return b.schedule(b.Now()+int64(d), int64(d), fn)
}

func (b *Bus) schedule(at, interval int64, fn Handler) *Timer {
	b.timerSeq++
	t := &Timer{bus: b, seq: b.timerSeq, at: at, interval: interval, fn: fn}
	b.timers.Set(t)
	return t
}

// Timers is the number of pending timers.
func (b *Bus) Timers() int {
	return b.timers.Len()
}

func (b *Bus) fire(t *Timer) {
	b.timers.Delete(t)
	e := Event{GenTime: t.at, TriggerTime: t.at, MsgType: msg.TypeTime}
	if t.at > b.now {
		b.now = t.at
	}
	if t.interval > 0 {
		b.timerSeq++
		t.seq = b.timerSeq
		t.at += t.interval
		b.timers.Set(t)
	} else {
		t.stopped = true
	}
	b.call(func() { t.fn(e) })
}
