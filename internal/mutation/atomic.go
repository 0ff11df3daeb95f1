package mutation

import "bytes"

// ApplyAdd implements atomic add: little-endian add of b into a,
// zero-extended/truncated to len(b) (spec.md section 8).
func ApplyAdd(a, b []byte) []byte {
	a = zeroExtendRight(a, len(b))[:len(b)]
	out := make([]byte, len(b))
	carry := uint16(0)
	for i := 0; i < len(b); i++ {
		sum := uint16(a[i]) + uint16(b[i]) + carry
		out[i] = byte(sum)
		carry = sum >> 8
	}
	return out
}

// ApplyBitAnd/Or/Xor zero-extend a on the right to len(b), truncate to
// len(b), then combine bitwise (spec.md section 8).
func ApplyBitAnd(a, b []byte) []byte { return combineBitwise(a, b, func(x, y byte) byte { return x & y }) }
func ApplyBitOr(a, b []byte) []byte  { return combineBitwise(a, b, func(x, y byte) byte { return x | y }) }
func ApplyBitXor(a, b []byte) []byte { return combineBitwise(a, b, func(x, y byte) byte { return x ^ y }) }

func combineBitwise(a, b []byte, op func(byte, byte) byte) []byte {
	a = zeroExtendRight(a, len(b))[:len(b)]
	out := make([]byte, len(b))
	for i := range b {
		out[i] = op(a[i], b[i])
	}
	return out
}

// ApplyMax/Min are numeric (unsigned, little-endian) comparisons on
// length-matched operands (spec.md section 8).
func ApplyMax(a, b []byte) []byte {
	if compareLittleEndianUnsigned(a, b) >= 0 {
		return a
	}
	return b
}

func ApplyMin(a, b []byte) []byte {
	if compareLittleEndianUnsigned(a, b) <= 0 {
		return a
	}
	return b
}

// compareLittleEndianUnsigned compares a and b as little-endian unsigned
// integers of equal width (the caller-supplied operands are assumed
// length-matched, per spec.md section 8's ApplyMax/ApplyMin contract).
func compareLittleEndianUnsigned(a, b []byte) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := n - 1; i >= 0; i-- {
		var av, bv byte
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

// ApplyByteMax/ByteMin are lexicographic comparisons with no length
// change (spec.md section 8).
func ApplyByteMax(a, b []byte) []byte {
	if bytes.Compare(a, b) >= 0 {
		return a
	}
	return b
}

func ApplyByteMin(a, b []byte) []byte {
	if bytes.Compare(a, b) <= 0 {
		return a
	}
	return b
}

// ApplyAppendIfFits returns a‖b if the concatenation fits within
// valueSizeLimit, else a, unmodified (no-op), per spec.md section 8.
func ApplyAppendIfFits(a, b []byte, valueSizeLimit int) []byte {
	if len(a)+len(b) > valueSizeLimit {
		return a
	}
	out := make([]byte, len(a)+len(b))
	copy(out, a)
	copy(out[len(a):], b)
	return out
}

// CompareAndClearMatches reports whether the existing value equals b,
// i.e. whether the clear half of compare-and-clear should proceed
// (spec.md section 8).
func CompareAndClearMatches(existing, b []byte) bool {
	return bytes.Equal(existing, b)
}

// zeroExtendRight pads a on the right with zero bytes up to n bytes,
// or returns a unmodified if it is already at least n bytes (the
// subsequent [:n] truncates down when a was longer).
func zeroExtendRight(a []byte, n int) []byte {
	if len(a) >= n {
		return a
	}
	out := make([]byte, n)
	copy(out, a)
	return out
}
