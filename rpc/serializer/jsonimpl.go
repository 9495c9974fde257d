package serializer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/relock/sentinel/rpc/common"
)

var Logger = logger.GetLogger("rpc")

var (
	literalTrue  = []byte("True")
	literalFalse = []byte("False")
	literalNone  = []byte("None")
)

// NewJSONSerializer creates a new serializer using json encoding
func NewJSONSerializer() IRPCSerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the IRPCSerializer interface using json encoding
type jsonSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Encode(value any, kwargs map[string]any) ([]byte, error) {
	if len(kwargs) == 0 {
		switch v := value.(type) {
		case nil:
			return literalNone, nil
		case bool:
			if v {
				return literalTrue, nil
			}
			return literalFalse, nil
		case []byte:
			// a frame is never empty
			if len(v) == 0 {
				return literalNone, nil
			}
			return v, nil
		default:
			return marshal(v)
		}
	}

	if value == nil {
		return marshal(kwargs)
	}

	// combine a mapping value with the keyword arguments
	m, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("cannot combine value of type %T with keyword arguments", value)
	}
	merged := make(map[string]any, len(m)+len(kwargs))
	for k, v := range m {
		merged[k] = v
	}
	for k, v := range kwargs {
		merged[k] = v
	}
	return marshal(merged)
}

func (j jsonSerializerImpl) EncodeRequest(route string, kwargs map[string]any) ([]byte, error) {
	req := make(map[string]any, len(kwargs)+1)
	for k, v := range kwargs {
		req[k] = v
	}
	req[common.RouteKey] = route
	return marshal(req)
}

func (j jsonSerializerImpl) Decode(payload []byte) common.Response {
	switch {
	case len(payload) == 0, bytes.Equal(payload, literalNone):
		return common.Response{Kind: common.ResponseOK, Value: nil}
	case bytes.Equal(payload, literalTrue):
		return common.Response{Kind: common.ResponseOK, Value: true}
	case bytes.Equal(payload, literalFalse):
		return common.Response{Kind: common.ResponseOK, Value: false}
	}

	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		raw := bytes.Clone(payload)
		if looksStructured(payload) {
			Logger.Errorf("Socket decode failed: %v (%d bytes)", err, len(payload))
			return common.Response{Kind: common.ResponseDecodeFailure, Value: raw}
		}
		return common.Response{Kind: common.ResponseOK, Value: raw}
	}
	return common.Response{Kind: common.ResponseOK, Value: value}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// marshal encodes v as compact json without html escaping and without trailing newline
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// looksStructured reports whether a payload was meant to be a json object or array
func looksStructured(payload []byte) bool {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return false
	}
	return trimmed[0] == '{' || trimmed[0] == '['
}
