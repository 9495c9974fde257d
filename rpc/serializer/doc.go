// Package serializer provides the payload encoding of the cluster wire protocol.
// A frame carries exactly one payload; this package decides what the bytes of
// that payload are, the framing itself lives in the transport/base package.
//
// Encoding rules, in priority order:
//
//   - No keyword arguments and a bool or nil value: the ASCII literals
//     "True", "False" or "None".
//
//   - Raw bytes without keyword arguments: the bytes unmodified (an empty
//     byte slice is sent as "None", a frame is never empty).
//
//   - Everything else: compact JSON. For a request this is the mapping of
//     the route name (key "route") plus all keyword arguments.
//
// Decoding applies the inverse. A payload that looks like a JSON document but
// does not parse is logged and returned as raw bytes with the kind
// common.ResponseDecodeFailure; the connection stays usable. Other non-JSON
// payloads are plain raw byte responses.
//
// Key Components:
//
//   - IRPCSerializer: Interface used by connections and the stub server.
//
//   - jsonSerializerImpl: The only implementation, using encoding/json.
//
// Thread Safety:
//
//	The serializer is stateless and safe for concurrent use.
//
// Usage:
//
//	s := serializer.NewJSONSerializer()
//	payload, err := s.EncodeRequest("members", nil)
//	// ... send payload, receive reply ...
//	resp := s.Decode(reply)
package serializer
