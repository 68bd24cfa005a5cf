package location

import (
	"sort"
	"sync"

	"github.com/uswork-ny/godzilla-community/pkg/exception"
	"github.com/yanun0323/errors"
)

// Registry stores the locations and channels a process has discovered.
type Registry struct {
	mu        sync.RWMutex
	locations map[uint32]*Location
	channels  map[uint64]Channel
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		locations: make(map[uint32]*Location),
		channels:  make(map[uint64]Channel),
	}
}

// AddLocation registers loc and reports whether it was new. Registering a
// different location under an existing uid is rejected.
func (r *Registry) AddLocation(loc *Location) (bool, error) {
	if loc == nil {
		return false, errors.Wrap(exception.ErrConfig, "nil location")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if known, ok := r.locations[loc.UID]; ok {
		if known.UName != loc.UName {
			return false, errors.Wrapf(exception.ErrConfig, "location uid collision, known: %s, incoming: %s", known.UName, loc.UName)
		}
		return false, nil
	}
	r.locations[loc.UID] = loc
	return true, nil
}

// Location returns the location by uid.
func (r *Registry) Location(uid uint32) (*Location, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	loc, ok := r.locations[uid]
	return loc, ok
}

// HasLocation reports whether uid is known.
func (r *Registry) HasLocation(uid uint32) bool {
	_, ok := r.Location(uid)
	return ok
}

// RemoveLocation drops the location and every channel touching it.
func (r *Registry) RemoveLocation(uid uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locations, uid)
	for key, ch := range r.channels {
		if ch.Touches(uid) {
			delete(r.channels, key)
		}
	}
}

// Locations returns all known locations ordered by uname.
func (r *Registry) Locations() []*Location {
	r.mu.RLock()
	out := make([]*Location, 0, len(r.locations))
	for _, loc := range r.locations {
		out = append(out, loc)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UName < out[j].UName })
	return out
}

// AddChannel records ch and reports whether it was new.
func (r *Registry) AddChannel(ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[ch.key()]; ok {
		return false
	}
	r.channels[ch.key()] = ch
	return true
}

// HasChannel reports whether the source->dest channel is known.
func (r *Registry) HasChannel(source, dest uint32) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.channels[Channel{Source: source, Dest: dest}.key()]
	return ok
}

// RemoveChannel forgets the source->dest channel.
func (r *Registry) RemoveChannel(source, dest uint32) {
	r.mu.Lock()
	delete(r.channels, Channel{Source: source, Dest: dest}.key())
	r.mu.Unlock()
}

// Channels returns all channels ordered by (source, dest).
func (r *Registry) Channels() []Channel {
	r.mu.RLock()
	out := make([]Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	r.mu.RUnlock()
	sortChannels(out)
	return out
}

// ChannelsOf returns the channels with uid at either end.
func (r *Registry) ChannelsOf(uid uint32) []Channel {
	r.mu.RLock()
	var out []Channel
	for _, ch := range r.channels {
		if ch.Touches(uid) {
			out = append(out, ch)
		}
	}
	r.mu.RUnlock()
	sortChannels(out)
	return out
}

func sortChannels(chs []Channel) {
	sort.Slice(chs, func(i, j int) bool { return chs[i].key() < chs[j].key() })
}
