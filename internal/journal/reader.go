package journal

import (
	"github.com/uswork-ny/godzilla-community/internal/location"
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/yanun0323/logs"
)

// cursor walks one journal.
type cursor struct {
	store  *Store
	loc    *location.Location
	dest   uint32
	pageID uint32
	page   *Page

	off     int64
	frameNB uint32
	seek    int64

	ready  bool
	length uint32
	frame  Frame
	buf    []byte
}

func (c *cursor) reset(pageID uint32, seek int64) {
	_ = c.page.Close()
	c.page = nil
	c.pageID = pageID
	c.off = pageHeaderSize
	c.frameNB = 0
	c.seek = seek
	c.ready = false
}

// peek makes the next visible frame current. It reports false when the
// writer has not committed anything beyond the cursor yet.
func (c *cursor) peek() (bool, error) {
	for !c.ready {
		if c.page == nil {
			page, err := c.store.Open(c.loc, c.dest, c.pageID, OpenOptions{Lazy: true})
			if err != nil {
				if err != ErrPageNotFound {
					return false, err
				}
				if skipped, err := c.skipRetired(); err != nil || !skipped {
					return false, err
				}
				continue
			}
			c.page = page
		}
		length, err := c.page.frameLength(c.off)
		if err != nil {
			return false, err
		}
		if length == 0 {
			return false, nil
		}
		f, buf, err := c.page.readFrame(c.off, length, c.buf)
		c.buf = buf
		if err != nil {
			return false, err
		}
		if f.MsgType == msg.TypePageEnd {
			c.reset(c.pageID+1, c.seek)
			continue
		}
		f.UID = FrameUID(f.Source, f.Dest, c.pageID, c.frameNB)
		if f.GenTime < c.seek {
			c.advance(length)
			continue
		}
		c.frame = f
		c.length = length
		c.ready = true
	}
	return true, nil
}

// skipRetired moves a cursor whose page was swept to the earliest retained
// page after it.
func (c *cursor) skipRetired() (bool, error) {
	ids, err := c.store.PageIDs(c.loc, c.dest)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id > c.pageID {
			c.reset(id, c.seek)
			return true, nil
		}
	}
	return false, nil
}

func (c *cursor) advance(length uint32) {
	c.off += int64(length)
	c.frameNB++
	c.ready = false
}

// Reader merges any number of journals into one stream ordered by the oldest
// ready gen_time. A Reader is used from one goroutine.
type Reader struct {
	store   *Store
	cursors []*cursor
	current *cursor
}

// Join starts reading the journal (loc, dest) from the first frame with
// gen_time >= from. Joining an already joined journal is a no-op.
func (r *Reader) Join(loc *location.Location, dest uint32, from int64) error {
	if r.Joined(loc.UID, dest) {
		return nil
	}
	pageID, err := r.store.FindPageID(loc, dest, from)
	if err != nil {
		return err
	}
	c := &cursor{store: r.store, loc: loc, dest: dest}
	c.reset(pageID, from)
	r.cursors = append(r.cursors, c)
	return nil
}

// Joined reports whether the journal (uid, dest) is being read.
func (r *Reader) Joined(uid, dest uint32) bool {
	for _, c := range r.cursors {
		if c.loc.UID == uid && c.dest == dest {
			return true
		}
	}
	return false
}

// Disjoin stops reading every journal written by the location uid.
func (r *Reader) Disjoin(uid uint32) {
	kept := r.cursors[:0]
	for _, c := range r.cursors {
		if c.loc.UID == uid {
			_ = c.page.Close()
			if r.current == c {
				r.current = nil
			}
			continue
		}
		kept = append(kept, c)
	}
	clear(r.cursors[len(kept):])
	r.cursors = kept
}

// DataAvailable selects the joined journal holding the oldest ready frame.
// Read errors are logged and count as no data; the journal is retried on the
// next call.
func (r *Reader) DataAvailable() bool {
	r.current = nil
	for _, c := range r.cursors {
		ok, err := c.peek()
		if err != nil {
			logs.Errorf("read %s/%08x page %d, err: %+v", c.loc.UName, c.dest, c.pageID, err)
			continue
		}
		if !ok {
			continue
		}
		if r.current == nil || c.frame.GenTime < r.current.frame.GenTime {
			r.current = c
		}
	}
	return r.current != nil
}

// Current returns the frame picked by the last DataAvailable.
func (r *Reader) Current() Frame {
	if r.current == nil {
		return Frame{}
	}
	return r.current.frame
}

// Next moves past the current frame.
func (r *Reader) Next() {
	if r.current == nil {
		return
	}
	r.current.advance(r.current.length)
	r.current = nil
}

// SeekToTime repositions every joined journal at the first frame with
// gen_time >= t.
func (r *Reader) SeekToTime(t int64) error {
	r.current = nil
	for _, c := range r.cursors {
		pageID, err := r.store.FindPageID(c.loc, c.dest, t)
		if err != nil {
			return err
		}
		c.reset(pageID, t)
	}
	return nil
}

// Close releases every page.
func (r *Reader) Close() {
	for _, c := range r.cursors {
		_ = c.page.Close()
	}
	r.cursors = nil
	r.current = nil
}
