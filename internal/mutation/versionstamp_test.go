package mutation

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriteVersionstamp(t *testing.T) {
	// prefix(3) ++ placeholder(10) ++ suffix(2) ++ offset(4)
	param := make([]byte, 3+VersionstampSize+2+offsetFieldSize)
	copy(param, []byte("foo"))
	binary.LittleEndian.PutUint32(param[len(param)-offsetFieldSize:], 3)

	stamp := EncodeVersionstamp(42, 7)
	out, offset, err := RewriteVersionstamp(param, stamp)
	require.NoError(t, err)
	assert.Equal(t, 3, offset)
	assert.Equal(t, stamp[:], out[3:3+VersionstampSize])
	assert.Equal(t, []byte("foo"), out[:3])
}

func TestRewriteVersionstampRejectsOutOfBounds(t *testing.T) {
	param := make([]byte, offsetFieldSize+4)
	binary.LittleEndian.PutUint32(param[len(param)-offsetFieldSize:], 0)
	_, _, err := RewriteVersionstamp(param, EncodeVersionstamp(1, 1))
	assert.Error(t, err)
}
