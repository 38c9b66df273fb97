// Package syncgrpc carries the sync package's protocol over gRPC. No
// protoc toolchain is available in this environment, so the usual
// generated-stub layer (message codec, service descriptor, client/server
// dispatch) is authored by hand here instead: the gRPC and protobuf
// dependencies are real and exercised at runtime, only the codegen step is
// replaced.
package syncgrpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

const codecName = "json"

// jsonCodec marshals RPC messages as JSON instead of protobuf wire format,
// since the sync package's message types are plain Go structs, not
// generated proto.Message implementations.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("syncgrpc: marshal: %w", err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("syncgrpc: unmarshal: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
