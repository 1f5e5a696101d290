/*
Custom gRPC codec. The wire messages in this package are plain Go
structs rather than protoc-generated protobuf types, so the default
protobuf codec cannot marshal them. This registers a JSON-backed
encoding.Codec under the name "proto" - the name grpc-go's transport
looks up when a call specifies no content-subtype - which is a stable,
documented extension point (encoding.RegisterCodec). Everything else
about the transport is genuine grpc-go: TCP listener, HTTP/2 framing,
streaming, service registration. routing/proto/routing.proto records
the contract the structs mirror.
*/
package routing

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const codecName = "proto"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
