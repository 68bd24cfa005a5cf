package bus

import (
	"github.com/uswork-ny/godzilla-community/internal/codec"
	"github.com/uswork-ny/godzilla-community/internal/journal"
	"github.com/uswork-ny/godzilla-community/internal/msg"
)

// Event is one item of the merged stream: a journal frame, a posted event or
// a timer tick.
type Event struct {
	UID         uint64
	GenTime     int64
	TriggerTime int64
	MsgType     msg.Type
	Source      uint32
	Dest        uint32
	Payload     []byte
}

// FromFrame wraps a journal frame. The payload is shared with the reader.
func FromFrame(f journal.Frame) Event {
	return Event{
		UID:         f.UID,
		GenTime:     f.GenTime,
		TriggerTime: f.TriggerTime,
		MsgType:     f.MsgType,
		Source:      f.Source,
		Dest:        f.Dest,
		Payload:     f.Payload,
	}
}

// Record decodes a fixed-layout payload.
func (e Event) Record() (msg.Record, error) {
	return codec.Unmarshal(e.MsgType, e.Payload)
}

// JSON decodes a control document payload into v.
func (e Event) JSON(v any) error {
	return codec.UnmarshalJSON(e.Payload, v)
}
