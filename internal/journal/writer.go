package journal

import (
	"encoding/binary"
	stderrors "errors"
	"time"

	"github.com/uswork-ny/godzilla-community/internal/location"
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"golang.org/x/sys/unix"
)

var (
	ErrWriterClosed   = stderrors.New("journal: writer closed")
	ErrFrameOpen      = stderrors.New("journal: frame already open")
	ErrNoFrameOpen    = stderrors.New("journal: no frame open")
	ErrFrameOverflow  = stderrors.New("journal: frame longer than reserved")
	ErrJournalTooLong = stderrors.New("journal: page id space exhausted")
)

// Writer appends frames to the journal (loc, dest). A writer is used from one
// goroutine.
type Writer struct {
	store    *Store
	loc      *location.Location
	dest     uint32
	identity string

	page    *Page
	off     int64
	frameNB uint32
	begin   int64
	lastGen int64

	open     bool
	reserved int
	pending  Frame
	buf      []byte
	closed   bool
}

func newWriter(s *Store, loc *location.Location, dest uint32, identity string) (*Writer, error) {
	ids, err := s.PageIDs(loc, dest)
	if err != nil {
		return nil, err
	}
	pageID := uint32(1)
	if len(ids) > 0 {
		pageID = ids[len(ids)-1]
	}
	w := &Writer{store: s, loc: loc, dest: dest, identity: identity}
	if err := w.load(pageID); err != nil {
		return nil, err
	}
	if err := w.resume(); err != nil {
		_ = w.page.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) Location() *location.Location { return w.loc }
func (w *Writer) Dest() uint32                 { return w.dest }
func (w *Writer) Identity() string             { return w.identity }

func (w *Writer) load(pageID uint32) error {
	page, err := w.store.Open(w.loc, w.dest, pageID, OpenOptions{ForWrite: true, Writer: w.identity})
	if err != nil {
		return err
	}
	if w.page != nil {
		_ = w.page.Close()
	}
	w.page = page
	w.off = pageHeaderSize
	w.frameNB = 0
	w.begin = 0
	return nil
}

// resume skips the frames already committed to the tail page, rolling over
// pages that were closed by a previous writer.
func (w *Writer) resume() error {
	h, err := w.page.header()
	if err != nil {
		return err
	}
	w.begin = h.BeginTime
	var buf []byte
	for {
		length, err := w.page.frameLength(w.off)
		if err != nil {
			return err
		}
		if length == 0 {
			return nil
		}
		var f Frame
		f, buf, err = w.page.readFrame(w.off, length, buf)
		if err != nil {
			return err
		}
		if f.GenTime > w.lastGen {
			w.lastGen = f.GenTime
		}
		if f.MsgType == msg.TypePageEnd {
			if err := w.load(w.page.id + 1); err != nil {
				return err
			}
			continue
		}
		w.off += int64(length)
		w.frameNB++
	}
}

// CurrentFrameUID is the uid of the open frame, or of the next frame when none
// is open. Ids grow strictly with every committed frame.
func (w *Writer) CurrentFrameUID() uint64 {
	return FrameUID(w.loc.UID, w.dest, w.page.id, w.frameNB)
}

// OpenFrame reserves room for a payload of up to length bytes and returns the
// buffer to fill. The frame becomes visible on CloseFrame.
func (w *Writer) OpenFrame(trigger int64, msgType msg.Type, length int) ([]byte, error) {
	if w.closed {
		return nil, ErrWriterClosed
	}
	if w.open {
		return nil, ErrFrameOpen
	}
	need := int64(frameHeaderSize + length)
	// a page always keeps room for its PageEnd frame
	if int64(pageHeaderSize)+need+frameHeaderSize > int64(w.page.size) {
		return nil, errors.Wrapf(ErrFrameTooLarge, "%d bytes on %d byte pages", length, w.page.size)
	}
	if w.off+need+frameHeaderSize > int64(w.page.size) || w.frameNB >= maxFrameNB {
		if err := w.roll(trigger); err != nil {
			return nil, err
		}
	}

	total := frameHeaderSize + length
	if cap(w.buf) < total {
		w.buf = make([]byte, total)
	}
	w.buf = w.buf[:total]
	clear(w.buf[frameHeaderSize:])
	w.open = true
	w.reserved = length
	w.pending = Frame{
		TriggerTime: trigger,
		MsgType:     msgType,
		Source:      w.loc.UID,
		Dest:        w.dest,
	}
	return w.buf[frameHeaderSize:], nil
}

// CloseFrame commits the first length bytes of the open frame. gen_time is
// stamped here and never goes backwards. Unless the store runs in low latency
// mode the frame is on disk before CloseFrame returns.
func (w *Writer) CloseFrame(length int) error {
	if !w.open {
		return ErrNoFrameOpen
	}
	if length < 0 || length > w.reserved {
		w.open = false
		return errors.Wrapf(ErrFrameOverflow, "%d > %d", length, w.reserved)
	}
	start := time.Now()
	w.open = false

	f := w.pending
	f.GenTime = w.stamp()
	buf := w.buf[:frameHeaderSize+length]
	if err := w.commit(f, buf); err != nil {
		return err
	}
	w.store.metrics.ObserveCommit(time.Since(start))
	return nil
}

func (w *Writer) stamp() int64 {
	gen := w.store.clock.Now()
	if gen < w.lastGen {
		gen = w.lastGen
	}
	w.lastGen = gen
	return gen
}

// commit writes the frame body first and the length last so readers never see
// a partial frame.
func (w *Writer) commit(f Frame, buf []byte) error {
	encodeFrameHeader(buf, f, buf[frameHeaderSize:])
	if _, err := w.page.file.WriteAt(buf[4:], w.off+4); err != nil {
		return errors.Wrap(exception.ErrIO, err.Error()).With("path", w.page.path)
	}
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(buf)))
	if _, err := w.page.file.WriteAt(buf[0:4], w.off); err != nil {
		return errors.Wrap(exception.ErrIO, err.Error()).With("path", w.page.path)
	}
	if w.begin == 0 {
		w.begin = f.GenTime
	}
	if err := w.page.setTimes(w.begin, f.GenTime); err != nil {
		return err
	}
	if !w.store.cfg.LowLatency {
		if err := unix.Fdatasync(int(w.page.file.Fd())); err != nil {
			return errors.Wrap(exception.ErrIO, err.Error()).With("path", w.page.path)
		}
	}
	w.off += int64(len(buf))
	w.frameNB++
	return nil
}

// roll seals the current page with a PageEnd frame and moves to the next one.
func (w *Writer) roll(trigger int64) error {
	if w.page.id >= maxPageID {
		return errors.Wrapf(ErrJournalTooLong, "%s/%08x", w.loc.UName, w.dest)
	}
	end := make([]byte, frameHeaderSize)
	f := Frame{TriggerTime: trigger, MsgType: msg.TypePageEnd, Source: w.loc.UID, Dest: w.dest, GenTime: w.stamp()}
	if err := w.commit(f, end); err != nil {
		return err
	}
	next := w.page.id + 1
	if err := w.load(next); err != nil {
		return err
	}
	w.store.metrics.IncPageRoll()
	logs.Debugf("journal %s/%08x rolled to page %d", w.loc.UName, w.dest, next)
	return nil
}

// Write commits payload as one frame.
func (w *Writer) Write(trigger int64, msgType msg.Type, payload []byte) error {
	buf, err := w.OpenFrame(trigger, msgType, len(payload))
	if err != nil {
		return err
	}
	copy(buf, payload)
	return w.CloseFrame(len(payload))
}

// Mark commits a frame without payload.
func (w *Writer) Mark(trigger int64, msgType msg.Type) error {
	return w.Write(trigger, msgType, nil)
}

// Close releases the tail page and the writer lock.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.page.Close()
}
