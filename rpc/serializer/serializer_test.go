package serializer

import (
	"testing"

	"github.com/relock/sentinel/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSerializerRoundTrip tests that payloads can be encoded and decoded correctly
func TestSerializerRoundTrip(t *testing.T) {
	s := NewJSONSerializer()

	testCases := []struct {
		name  string
		value any
	}{
		{name: "true", value: true},
		{name: "false", value: false},
		{name: "none", value: nil},
		// raw bytes only survive when they are neither a literal nor valid json, see TestRawBytesAreUntyped
		{name: "bytes", value: []byte("opaque \x00\x01 payload")},
		{name: "mapping", value: map[string]any{
			"route": "exchange",
			"key":   "value",
			"n":     float64(42),
			"list":  []any{"a", float64(1), true},
			"inner": map[string]any{"x": nil},
		}},
		{name: "empty mapping", value: map[string]any{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := s.Encode(tc.value, nil)
			require.NoError(t, err)

			resp := s.Decode(payload)
			assert.Equal(t, common.ResponseOK, resp.Kind)
			assert.Equal(t, tc.value, resp.Value)
		})
	}
}

// TestRawBytesAreUntyped tests that raw bytes carry no type tag and decode like any other payload
func TestRawBytesAreUntyped(t *testing.T) {
	s := NewJSONSerializer()

	testCases := []struct {
		name     string
		raw      []byte
		expected any
	}{
		{name: "number", raw: []byte("42"), expected: float64(42)},
		{name: "literal", raw: []byte("True"), expected: true},
		{name: "json string", raw: []byte(`"text"`), expected: "text"},
		{name: "object", raw: []byte(`{"a":1}`), expected: map[string]any{"a": float64(1)}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := s.Encode(tc.raw, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.raw, payload)

			resp := s.Decode(payload)
			assert.Equal(t, common.ResponseOK, resp.Kind)
			assert.Equal(t, tc.expected, resp.Value)
		})
	}
}

// TestEncodeLiterals tests that booleans and nil travel as literals
func TestEncodeLiterals(t *testing.T) {
	s := NewJSONSerializer()

	for value, expected := range map[any]string{true: "True", false: "False"} {
		payload, err := s.Encode(value, nil)
		require.NoError(t, err)
		assert.Equal(t, expected, string(payload))
	}

	payload, err := s.Encode(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "None", string(payload))

	// empty bytes can not be sent
	payload, err = s.Encode([]byte{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "None", string(payload))
}

// TestEncodeWithKwargs tests that keyword arguments force json encoding
func TestEncodeWithKwargs(t *testing.T) {
	s := NewJSONSerializer()

	payload, err := s.Encode(nil, map[string]any{"flag": true})
	require.NoError(t, err)
	assert.Equal(t, `{"flag":true}`, string(payload))

	payload, err = s.Encode(map[string]any{"a": 1}, map[string]any{"b": 2})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, string(payload))

	_, err = s.Encode(true, map[string]any{"b": 2})
	assert.Error(t, err)
}

// TestEncodeRequest tests that the route is merged into the keyword arguments
func TestEncodeRequest(t *testing.T) {
	s := NewJSONSerializer()

	payload, err := s.EncodeRequest("get", map[string]any{"key": "<k>"})
	require.NoError(t, err)
	// compact separators, no html escaping
	assert.Equal(t, `{"key":"<k>","route":"get"}`, string(payload))

	payload, err = s.EncodeRequest("members", nil)
	require.NoError(t, err)
	assert.Equal(t, `{"route":"members"}`, string(payload))
}

// TestDecodeFailure tests that broken json is returned as raw bytes
func TestDecodeFailure(t *testing.T) {
	s := NewJSONSerializer()

	broken := []byte(`{"route": "members", `)
	resp := s.Decode(broken)
	assert.Equal(t, common.ResponseDecodeFailure, resp.Kind)
	raw, ok := resp.Bytes()
	require.True(t, ok)
	assert.Equal(t, broken, raw)

	// decoded bytes must not alias the receive buffer
	broken[0] = 'X'
	assert.Equal(t, byte('{'), raw[0])
}

// TestDecodeScalars tests json scalars and raw payloads
func TestDecodeScalars(t *testing.T) {
	s := NewJSONSerializer()

	assert.Equal(t, float64(407), s.Decode([]byte("407")).Value)
	assert.Equal(t, "text", s.Decode([]byte(`"text"`)).Value)

	resp := s.Decode([]byte("plain words"))
	assert.Equal(t, common.ResponseOK, resp.Kind)
	assert.Equal(t, []byte("plain words"), resp.Value)

	resp = s.Decode(nil)
	assert.True(t, resp.IsNone())
}
