package mutation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyAdd(t *testing.T) {
	// set(foo, "a"); atomic-add(foo, 0x01) -> "b" (0x62), per spec.md section 8.
	a := []byte{'a'}
	b := []byte{0x01}
	assert.Equal(t, []byte{0x62}, ApplyAdd(a, b))
}

func TestApplyAddCarriesAndWraps(t *testing.T) {
	a := []byte{0xff, 0x00}
	b := []byte{0x01, 0x00}
	assert.Equal(t, []byte{0x00, 0x01}, ApplyAdd(a, b))
}

func TestApplyBitwiseZeroExtendsAndTruncates(t *testing.T) {
	a := []byte{0x0f}
	b := []byte{0xff, 0xff}
	assert.Equal(t, []byte{0x0f, 0x00}, ApplyBitAnd(a, b))
	assert.Equal(t, []byte{0xff, 0xff}, ApplyBitOr(a, b))
}

func TestApplyByteMaxMin(t *testing.T) {
	a, b := []byte("abc"), []byte("abd")
	assert.Equal(t, b, ApplyByteMax(a, b))
	assert.Equal(t, a, ApplyByteMin(a, b))
}

func TestApplyMaxMinNumeric(t *testing.T) {
	small := []byte{0x01, 0x00}
	large := []byte{0x00, 0x01}
	assert.Equal(t, large, ApplyMax(small, large))
	assert.Equal(t, small, ApplyMin(small, large))
}

func TestApplyAppendIfFits(t *testing.T) {
	a, b := []byte("ab"), []byte("cd")
	assert.Equal(t, []byte("abcd"), ApplyAppendIfFits(a, b, 10))
	assert.Equal(t, a, ApplyAppendIfFits(a, b, 3), "over limit is a no-op")
}

func TestCompareAndClearMatches(t *testing.T) {
	assert.True(t, CompareAndClearMatches([]byte("x"), []byte("x")))
	assert.False(t, CompareAndClearMatches([]byte("x"), []byte("y")))
}
