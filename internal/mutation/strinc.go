package mutation

// Strinc computes the lexicographically-next byte string after all
// strings prefixed by key, i.e. the smallest string that is not a
// prefix of and does not start with key — the standard "successor key"
// used to turn a prefix into an exclusive range end. It strips any
// trailing 0xff bytes and increments the last remaining byte (spec.md
// section 8, "strinc" seed scenario).
//
// Strinc panics if key consists entirely of 0xff bytes (or is empty),
// since no successor exists in that case; callers at the wire boundary
// should validate before calling.
func Strinc(key []byte) []byte {
	end := len(key)
	for end > 0 && key[end-1] == 0xff {
		end--
	}
	if end == 0 {
		panic("mutation: strinc of a key with no non-0xff byte has no successor")
	}
	out := make([]byte, end)
	copy(out, key[:end])
	out[end-1]++
	return out
}
