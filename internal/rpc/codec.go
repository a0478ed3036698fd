package rpc

import (
	"encoding/json"
	"fmt"
)

// jsonCodec implements google.golang.org/grpc/encoding.Codec with JSON
// instead of protobuf wire format (spec §6: "wire encoding is
// implementer's choice"). Registered once via grpc.ForceServerCodec so the
// hand-written ServiceDesc in service.go never needs protoc-generated messages.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal %T: %w", v, err)
	}
	return body, nil
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("rpc: unmarshal into %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string { return "json" }

// Codec is the shared jsonCodec instance passed to grpc.ForceServerCodec
// when constructing the server (see cmd/schedulerd).
var Codec = jsonCodec{}
