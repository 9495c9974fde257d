package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseKwargs tests the conversion of command line arguments into keyword arguments
func TestParseKwargs(t *testing.T) {
	kwargs, err := ParseKwargs([]string{
		"key=user",
		"count=3",
		"ratio=0.5",
		"flag=true",
		"empty=",
		`value:={"a":[1,2]}`,
		"url=/a=b",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"key":   "user",
		"count": int64(3),
		"ratio": 0.5,
		"flag":  true,
		"empty": "",
		"value": map[string]any{"a": []any{float64(1), float64(2)}},
		"url":   "/a=b",
	}, kwargs)
}

// TestParseKwargsInvalid tests malformed arguments
func TestParseKwargsInvalid(t *testing.T) {
	_, err := ParseKwargs([]string{"novalue"})
	assert.Error(t, err)

	_, err = ParseKwargs([]string{"=value"})
	assert.Error(t, err)

	_, err = ParseKwargs([]string{"value:={broken"})
	assert.Error(t, err)
}
