package clients

import (
	"bytes"
	"encoding/gob"

	"google.golang.org/grpc/encoding"
)

// gobCodecName is registered with google.golang.org/grpc's codec
// registry so every client and server in this module can exchange the
// hand-written txnpb structs without a protoc-generated marshaler
// (SPEC_FULL.md section 1: no generated protobuf schema is available
// in this retrieval pack, so gRPC's transport and connection
// management are kept while its usual payload codec is swapped for
// encoding/gob).
const gobCodecName = "gob"

type gobCodec struct{}

func (gobCodec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (gobCodec) Name() string { return gobCodecName }

func init() {
	encoding.RegisterCodec(gobCodec{})
}
