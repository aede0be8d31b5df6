package fingerprint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_KeyOrderIndependent(t *testing.T) {
	a := map[string]any{"name": "jon jones", "event": "ufc 214", "round": "3", "nested": map[string]any{"x": 1, "y": []any{"a", "b"}}}
	b := map[string]any{"round": "3", "nested": map[string]any{"y": []any{"a", "b"}, "x": 1}, "event": "ufc 214", "name": "jon jones"}

	assert.Equal(t, Generate(a), Generate(b))
	assert.Len(t, Generate(a), 64)
}

func TestGenerate_ContentSensitive(t *testing.T) {
	base := map[string]any{"name": "jon jones", "result": "win"}

	tests := []struct {
		name  string
		other map[string]any
	}{
		{name: "changed value", other: map[string]any{"name": "jon jones", "result": "loss"}},
		{name: "extra field", other: map[string]any{"name": "jon jones", "result": "win", "round": "3"}},
		{name: "list order", other: map[string]any{"name": "jon jones", "result": []any{"win"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, Generate(base), Generate(tt.other))
		})
	}
}

func TestGenerateFromJSON(t *testing.T) {
	fromJSON, err := GenerateFromJSON(json.RawMessage(`{"result":"win","name":"jon jones"}`))
	require.NoError(t, err)
	assert.Equal(t, Generate(map[string]any{"name": "jon jones", "result": "win"}), fromJSON)

	_, err = GenerateFromJSON(json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}
