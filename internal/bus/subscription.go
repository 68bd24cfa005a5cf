package bus

import "github.com/uswork-ny/godzilla-community/internal/msg"

// Handler receives matching events.
type Handler func(Event)

// Option narrows a subscription.
type Option func(*Subscription)

// Subscription is one row of the dispatch table.
type Subscription struct {
	id      uint64
	bus     *Bus
	handler Handler

	types     map[msg.Type]struct{}
	hasSource bool
	source    uint32
	hasDest   bool
	dest      uint32
	where     func(Event) bool
	once      bool

	hasUntil  bool
	untilType msg.Type
	untilDone func()

	cancelled bool
}

// Is keeps events of the given types.
func Is(types ...msg.Type) Option {
	return func(s *Subscription) {
		if s.types == nil {
			s.types = make(map[msg.Type]struct{}, len(types))
		}
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}
}

// From keeps events written by the location uid.
func From(uid uint32) Option {
	return func(s *Subscription) {
		s.hasSource = true
		s.source = uid
	}
}

// To keeps events addressed to the location uid.
func To(uid uint32) Option {
	return func(s *Subscription) {
		s.hasDest = true
		s.dest = uid
	}
}

// Where keeps events accepted by fn.
func Where(fn func(Event) bool) Option {
	return func(s *Subscription) {
		s.where = fn
	}
}

// Once delivers the first matching event and then cancels.
func Once() Option {
	return func(s *Subscription) {
		s.once = true
	}
}

// Until delivers matching events until an event of type t from the same
// source and destination arrives. That event is not delivered; done runs
// instead and the subscription ends.
func Until(t msg.Type, done func()) Option {
	return func(s *Subscription) {
		s.hasUntil = true
		s.untilType = t
		s.untilDone = done
	}
}

// Cancel removes the subscription. Safe to call from inside its handler.
func (s *Subscription) Cancel() {
	if s == nil || s.cancelled {
		return
	}
	s.cancelled = true
	s.bus.dirty = true
}

// Active reports whether the subscription still receives events.
func (s *Subscription) Active() bool {
	return s != nil && !s.cancelled
}

func (s *Subscription) routed(e Event) bool {
	if s.hasSource && e.Source != s.source {
		return false
	}
	if s.hasDest && e.Dest != s.dest {
		return false
	}
	return true
}

func (s *Subscription) matches(e Event) bool {
	if s.types != nil {
		if _, ok := s.types[e.MsgType]; !ok {
			return false
		}
	}
	if !s.routed(e) {
		return false
	}
	return s.where == nil || s.where(e)
}
