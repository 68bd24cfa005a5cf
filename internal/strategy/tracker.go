package strategy

import (
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/uswork-ny/godzilla-community/internal/obs"
)

// Tracker keeps the latest projection of every order seen by a router. The
// last frame wins until the order reaches a terminal status; later frames for
// a terminal order are ignored.
type Tracker struct {
	orders  map[uint64]msg.Order
	metrics *obs.Metrics
}

func NewTracker(m *obs.Metrics) *Tracker {
	return &Tracker{orders: make(map[uint64]msg.Order), metrics: m}
}

// Track records the initial projection of an order just sent. It never
// replaces a known order.
func (t *Tracker) Track(o msg.Order) {
	if _, ok := t.orders[o.OrderID]; !ok {
		t.orders[o.OrderID] = o
	}
}

// Apply merges an Order frame and reports whether it was accepted.
func (t *Tracker) Apply(o msg.Order) bool {
	if known, ok := t.orders[o.OrderID]; ok && known.Status.IsFinal() {
		t.metrics.IncStaleOrderFrame()
		return false
	}
	t.orders[o.OrderID] = o
	return true
}

// Order returns the projection of id.
func (t *Tracker) Order(id uint64) (msg.Order, bool) {
	o, ok := t.orders[id]
	return o, ok
}

// Active lists the non-terminal orders of a strategy.
func (t *Tracker) Active(sid uint32) []msg.Order {
	var out []msg.Order
	for _, o := range t.orders {
		if o.StrategyID == sid && !o.Status.IsFinal() {
			out = append(out, o)
		}
	}
	return out
}

// Len is the number of tracked orders.
func (t *Tracker) Len() int { return len(t.orders) }
