package location

const (
	fnvOffset32 uint32 = 0x811c9dc5
	fnvPrime32  uint32 = 0x01000193
)

// Hash32 is 32-bit FNV-1a over the bytes of s.
func Hash32(s string) uint32 {
	h := fnvOffset32
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime32
	}
	return h
}

// HashPair is 32-bit FNV-1a over the little-endian bytes of a then b. The
// order matters: HashPair(a, b) and HashPair(b, a) differ.
func HashPair(a, b uint32) uint32 {
	h := fnvOffset32
	for _, v := range [2]uint32{a, b} {
		for i := 0; i < 4; i++ {
			h ^= v >> (8 * i) & 0xff
			h *= fnvPrime32
		}
	}
	return h
}
