package obs

import (
	"sync/atomic"
	"time"
)

// Metrics collects runtime counters and latency stats. A nil *Metrics is a
// valid no-op sink.
type Metrics struct {
	framesWritten    uint64
	framesDispatched uint64
	pageRolls        uint64
	pagesSwept       uint64
	callbackPanics   uint64
	protocolDrops    uint64
	quotaRejects     uint64
	staleOrderFrames uint64

	commitLatency   LatencyStats
	dispatchLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	FramesWritten    uint64
	FramesDispatched uint64
	PageRolls        uint64
	PagesSwept       uint64
	CallbackPanics   uint64
	ProtocolDrops    uint64
	QuotaRejects     uint64
	StaleOrderFrames uint64
	CommitLatency    LatencySnapshot
	DispatchLatency  LatencySnapshot
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) inc(p *uint64) {
	if m == nil {
		return
	}
	atomic.AddUint64(p, 1)
}

// ObserveCommit records a committed frame and how long the commit took.
func (m *Metrics) ObserveCommit(d time.Duration) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.framesWritten, 1)
	m.commitLatency.Observe(d)
}

// ObserveDispatch records a dispatched bus event and its callback time.
func (m *Metrics) ObserveDispatch(d time.Duration) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.framesDispatched, 1)
	m.dispatchLatency.Observe(d)
}

func (m *Metrics) IncPageRoll() {
	if m == nil {
		return
	}
	m.inc(&m.pageRolls)
}

func (m *Metrics) AddPagesSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	atomic.AddUint64(&m.pagesSwept, uint64(n))
}

func (m *Metrics) IncCallbackPanic() {
	if m == nil {
		return
	}
	m.inc(&m.callbackPanics)
}

// IncProtocolDrop counts frames dropped for a malformed payload.
func (m *Metrics) IncProtocolDrop() {
	if m == nil {
		return
	}
	m.inc(&m.protocolDrops)
}

func (m *Metrics) IncQuotaReject() {
	if m == nil {
		return
	}
	m.inc(&m.quotaRejects)
}

// IncStaleOrderFrame counts order updates ignored after a terminal status.
func (m *Metrics) IncStaleOrderFrame() {
	if m == nil {
		return
	}
	m.inc(&m.staleOrderFrames)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		FramesWritten:    atomic.LoadUint64(&m.framesWritten),
		FramesDispatched: atomic.LoadUint64(&m.framesDispatched),
		PageRolls:        atomic.LoadUint64(&m.pageRolls),
		PagesSwept:       atomic.LoadUint64(&m.pagesSwept),
		CallbackPanics:   atomic.LoadUint64(&m.callbackPanics),
		ProtocolDrops:    atomic.LoadUint64(&m.protocolDrops),
		QuotaRejects:     atomic.LoadUint64(&m.quotaRejects),
		StaleOrderFrames: atomic.LoadUint64(&m.staleOrderFrames),
		CommitLatency:    m.commitLatency.Snapshot(),
		DispatchLatency:  m.dispatchLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		low := atomic.LoadUint64(&l.min)
		if low != 0 && nanos >= low {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, low, nanos) {
			break
		}
	}
	for {
		high := atomic.LoadUint64(&l.max)
		if nanos <= high {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, high, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(atomic.LoadUint64(&l.sum) / count),
	}
}
