package serializer

import "github.com/relock/sentinel/rpc/common"

// IRPCSerializer is the interface for frame payload serializers
type IRPCSerializer interface {
	// Encode serializes a value and keyword arguments into one frame payload
	// It returns the payload and an error if the value cannot be encoded
	Encode(value any, kwargs map[string]any) ([]byte, error)
	// EncodeRequest serializes a route call: a mapping of the route name and all keyword arguments
	EncodeRequest(route string, kwargs map[string]any) ([]byte, error)
	// Decode deserializes one frame payload
	// Decoding never fails, undecodable payloads are returned as raw bytes
	Decode(payload []byte) common.Response
}
