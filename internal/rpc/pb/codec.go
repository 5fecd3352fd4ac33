package pb

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec implements google.golang.org/grpc/encoding.Codec, registered
// under the name "proto" — the name grpc-go's transport uses by default
// for the wire codec regardless of which encoding actually produced the
// bytes. Registering under that name is a documented extension point
// (encoding.RegisterCodec overwrites any codec previously registered
// under the same name) and lets this service run on real gRPC
// transport, flow control, metadata, and status codes while encoding
// messages as JSON instead of protobuf, since no protoc toolchain is
// available to generate a canonical protobuf codec for these messages.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return "proto" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
