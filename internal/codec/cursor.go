package codec

import (
	"encoding/binary"
	"math"

	"github.com/uswork-ny/godzilla-community/internal/adapter"
)

// writer appends packed little-endian fields.
type writer struct {
	buf []byte
}

func newWriter(dst []byte) *writer {
	return &writer{buf: dst[:0]}
}

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) i8(v int8)    { w.buf = append(w.buf, uint8(v)) }
func (w *writer) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *writer) i32(v int32)  { w.u32(uint32(v)) }
func (w *writer) u64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *writer) i64(v int64)  { w.u64(uint64(v)) }
func (w *writer) f64(v float64) {
	w.u64(math.Float64bits(v))
}

func (w *writer) bool(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

func (w *writer) str(s string, width int) {
	w.buf = adapter.AppendString(w.buf, s, width)
}

// reader consumes fields in the order writer produced them. Callers check the
// payload size before reading.
type reader struct {
	src []byte
	off int
}

func (r *reader) u8() uint8 {
	v := r.src[r.off]
	r.off++
	return v
}

func (r *reader) i8() int8 { return int8(r.u8()) }

func (r *reader) u32() uint32 {
	v := binary.LittleEndian.Uint32(r.src[r.off:])
	r.off += 4
	return v
}

func (r *reader) i32() int32 { return int32(r.u32()) }

func (r *reader) u64() uint64 {
	v := binary.LittleEndian.Uint64(r.src[r.off:])
	r.off += 8
	return v
}

func (r *reader) i64() int64   { return int64(r.u64()) }
func (r *reader) f64() float64 { return math.Float64frombits(r.u64()) }
func (r *reader) bool() bool   { return r.u8() != 0 }

func (r *reader) str(width int) string {
	s := adapter.GetString(r.src[r.off : r.off+width])
	r.off += width
	return s
}
