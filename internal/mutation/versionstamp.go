// Package mutation implements the mutation-kind semantics from spec.md
// sections 6 and 8: versionstamp rewriting and the atomic-op family. It
// is grounded on the teacher's kv/transaction/mvcc write/key encoding
// (big-endian, fixed-width binary manipulation) and kv/util/codec.
package mutation

import (
	"encoding/binary"

	"github.com/juju/errors"
)

// VersionstampSize is the width of a versionstamp: an 8-byte commit
// version followed by a 2-byte transaction number within the batch
// (spec.md section 6 glossary).
const VersionstampSize = 10

// offsetFieldSize is the width of the little-endian offset suffix that
// locates the versionstamp placeholder inside param1/param2.
const offsetFieldSize = 4

// EncodeVersionstamp packs (commitVersion, txnNumInBatch) into the
// 10-byte wire form.
func EncodeVersionstamp(commitVersion uint64, txnNumInBatch uint16) [VersionstampSize]byte {
	var out [VersionstampSize]byte
	binary.BigEndian.PutUint64(out[:8], commitVersion)
	binary.BigEndian.PutUint16(out[8:], txnNumInBatch)
	return out
}

// RewriteVersionstamp overwrites the 10-byte placeholder inside param,
// whose offset is little-endian-encoded in the trailing 4 bytes of
// param, with the given versionstamp. It returns the rewritten
// parameter with the trailing offset suffix stripped, matching the
// original placeholder's final on-the-wire width, and the byte offset
// the versionstamp ended up at (the commit pipeline ignores it and
// builds the write-conflict range from the whole rewritten key).
//
// A structural error is returned if offset+10 exceeds the parameter
// length once the offset suffix is removed, per spec.md section 9
// ("Versionstamp rewriting via raw offset").
func RewriteVersionstamp(param []byte, stamp [VersionstampSize]byte) ([]byte, int, error) {
	if len(param) < offsetFieldSize {
		return nil, 0, errors.Errorf("mutation: parameter too short to carry an offset suffix: %d bytes", len(param))
	}
	body := param[:len(param)-offsetFieldSize]
	offset := int(binary.LittleEndian.Uint32(param[len(param)-offsetFieldSize:]))
	if offset < 0 || offset+VersionstampSize > len(body) {
		return nil, 0, errors.Errorf("mutation: versionstamp offset %d out of bounds for %d-byte parameter", offset, len(body))
	}
	out := make([]byte, len(body))
	copy(out, body)
	copy(out[offset:offset+VersionstampSize], stamp[:])
	return out, offset, nil
}
