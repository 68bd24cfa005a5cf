package adapter

// PutString copies s into the fixed-width field dst, truncating at len(dst)
// bytes and zero-filling the remainder. It returns the number of bytes kept.
func PutString(dst []byte, s string) int {
	n := copy(dst, s)
	clear(dst[n:])
	return n
}

// AppendString appends s as a fixed-width field of width bytes.
func AppendString(buf []byte, s string, width int) []byte {
	start := len(buf)
	buf = append(buf, make([]byte, width)...)
	PutString(buf[start:], s)
	return buf
}

// GetString reads a fixed-width field up to the first zero byte.
func GetString(src []byte) string {
	for i, c := range src {
		if c == 0 {
			return string(src[:i])
		}
	}
	return string(src)
}

// Truncate cuts s to at most width bytes, the value a fixed-width field of that
// width round-trips to.
func Truncate(s string, width int) string {
	if len(s) <= width {
		return s
	}
	return s[:width]
}
