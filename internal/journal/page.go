package journal

import (
	"bytes"
	"encoding/binary"
	stderrors "errors"
	"hash/crc32"
	"os"

	"github.com/uswork-ny/godzilla-community/internal/location"
	"github.com/uswork-ny/godzilla-community/internal/msg"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
	"github.com/yanun0323/errors"
)

const (
	pageVersion    uint16 = 1
	pageHeaderSize        = 32

	// frameHeaderSize covers length, checksum, msg_type, source, dest, pad,
	// gen_time and trigger_time.
	frameHeaderSize = 40

	frameNBBits = 20
	maxFrameNB  = 1<<frameNBBits - 1
	maxPageID   = 1<<(32-frameNBBits) - 1
)

var (
	pageMagic = [4]byte{'G', 'Z', 'J', '1'}
	crcTable  = crc32.MakeTable(crc32.Castagnoli)
)

var (
	ErrPageNotFound     = stderrors.New("journal: page not found")
	ErrInvalidPage      = stderrors.New("journal: invalid page header")
	ErrChecksumMismatch = stderrors.New("journal: frame checksum mismatch")
	ErrFrameTooLarge    = stderrors.New("journal: frame exceeds page capacity")
)

// pageHeader is the fixed header at the start of every page file.
type pageHeader struct {
	PageSize  uint32
	PageID    uint32
	BeginTime int64
	EndTime   int64
}

func encodePageHeader(dst []byte, h pageHeader) {
	_ = dst[pageHeaderSize-1]
	copy(dst[0:4], pageMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], pageVersion)
	binary.LittleEndian.PutUint16(dst[6:8], pageHeaderSize)
	binary.LittleEndian.PutUint32(dst[8:12], h.PageSize)
	binary.LittleEndian.PutUint32(dst[12:16], h.PageID)
	binary.LittleEndian.PutUint64(dst[16:24], uint64(h.BeginTime))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(h.EndTime))
}

func decodePageHeader(src []byte) (pageHeader, error) {
	if len(src) < pageHeaderSize || !bytes.Equal(src[0:4], pageMagic[:]) {
		return pageHeader{}, ErrInvalidPage
	}
	if binary.LittleEndian.Uint16(src[4:6]) != pageVersion || binary.LittleEndian.Uint16(src[6:8]) != pageHeaderSize {
		return pageHeader{}, ErrInvalidPage
	}
	return pageHeader{
		PageSize:  binary.LittleEndian.Uint32(src[8:12]),
		PageID:    binary.LittleEndian.Uint32(src[12:16]),
		BeginTime: int64(binary.LittleEndian.Uint64(src[16:24])),
		EndTime:   int64(binary.LittleEndian.Uint64(src[24:32])),
	}, nil
}

// Frame is one committed journal record. Payload is only valid until the
// reader moves past the frame.
type Frame struct {
	UID         uint64
	GenTime     int64
	TriggerTime int64
	MsgType     msg.Type
	Source      uint32
	Dest        uint32
	Payload     []byte
}

// FrameUID derives the id of frame nb on page pageID of the journal written by
// source to dest. The high half identifies the ordered (source, dest) pair.
func FrameUID(source, dest, pageID, nb uint32) uint64 {
	return uint64(location.HashPair(source, dest))<<32 | uint64(pageID)<<frameNBBits | uint64(nb)
}

// encodeFrameHeader fills everything but the leading length.
func encodeFrameHeader(dst []byte, f Frame, payload []byte) {
	_ = dst[frameHeaderSize-1]
	binary.LittleEndian.PutUint32(dst[8:12], uint32(f.MsgType))
	binary.LittleEndian.PutUint32(dst[12:16], f.Source)
	binary.LittleEndian.PutUint32(dst[16:20], f.Dest)
	binary.LittleEndian.PutUint32(dst[20:24], 0)
	binary.LittleEndian.PutUint64(dst[24:32], uint64(f.GenTime))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(f.TriggerTime))
	binary.LittleEndian.PutUint32(dst[4:8], checksum(dst[8:frameHeaderSize], payload))
}

func decodeFrameHeader(src []byte) Frame {
	return Frame{
		MsgType:     msg.Type(int32(binary.LittleEndian.Uint32(src[8:12]))),
		Source:      binary.LittleEndian.Uint32(src[12:16]),
		Dest:        binary.LittleEndian.Uint32(src[16:20]),
		GenTime:     int64(binary.LittleEndian.Uint64(src[24:32])),
		TriggerTime: int64(binary.LittleEndian.Uint64(src[32:40])),
	}
}

func checksum(header, payload []byte) uint32 {
	crc := crc32.Update(0, crcTable, header)
	return crc32.Update(crc, crcTable, payload)
}

// Page is one fixed-size file of a journal.
type Page struct {
	loc      *location.Location
	dest     uint32
	id       uint32
	size     int
	path     string
	file     *os.File
	writable bool
	lockPath string
	identity string
}

func (p *Page) ID() uint32                   { return p.id }
func (p *Page) Dest() uint32                 { return p.dest }
func (p *Page) Size() int                    { return p.size }
func (p *Page) Location() *location.Location { return p.loc }

// Header reads the current page header from disk.
func (p *Page) header() (pageHeader, error) {
	var buf [pageHeaderSize]byte
	if _, err := p.file.ReadAt(buf[:], 0); err != nil {
		return pageHeader{}, errors.Wrap(exception.ErrIO, err.Error()).With("path", p.path)
	}
	return decodePageHeader(buf[:])
}

// BeginTime is the gen_time of the first frame, 0 for an empty page.
func (p *Page) BeginTime() (int64, error) {
	h, err := p.header()
	if err != nil {
		return 0, err
	}
	return h.BeginTime, nil
}

// EndTime is the gen_time of the last committed frame.
func (p *Page) EndTime() (int64, error) {
	h, err := p.header()
	if err != nil {
		return 0, err
	}
	return h.EndTime, nil
}

func (p *Page) setTimes(begin, end int64) error {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(begin))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(end))
	if _, err := p.file.WriteAt(buf[:], 16); err != nil {
		return errors.Wrap(exception.ErrIO, err.Error()).With("path", p.path)
	}
	return nil
}

// frameLength reads the committed length at off, 0 when nothing is there yet.
func (p *Page) frameLength(off int64) (uint32, error) {
	if off+4 > int64(p.size) {
		return 0, nil
	}
	var buf [4]byte
	if _, err := p.file.ReadAt(buf[:], off); err != nil {
		return 0, errors.Wrap(exception.ErrIO, err.Error()).With("path", p.path)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// readFrame loads the committed frame at off into buf.
func (p *Page) readFrame(off int64, length uint32, buf []byte) (Frame, []byte, error) {
	if length < frameHeaderSize || off+int64(length) > int64(p.size) {
		return Frame{}, buf, errors.Wrapf(ErrInvalidPage, "frame length %d at %d in %s", length, off, p.path)
	}
	if cap(buf) < int(length) {
		buf = make([]byte, length)
	}
	buf = buf[:length]
	if _, err := p.file.ReadAt(buf, off); err != nil {
		return Frame{}, buf, errors.Wrap(exception.ErrIO, err.Error()).With("path", p.path)
	}
	payload := buf[frameHeaderSize:]
	if checksum(buf[8:frameHeaderSize], payload) != binary.LittleEndian.Uint32(buf[4:8]) {
		return Frame{}, buf, errors.Wrapf(ErrChecksumMismatch, "frame at %d in %s", off, p.path)
	}
	f := decodeFrameHeader(buf)
	f.Payload = payload
	return f, buf, nil
}

// Close releases the page file.
func (p *Page) Close() error {
	if p == nil || p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	if p.writable {
		releaseWriter(p.lockPath, p.identity)
	}
	return err
}
