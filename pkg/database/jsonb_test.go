package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Method string `json:"method"`
	Round  int    `json:"round"`
}

func TestJSONB_Scan(t *testing.T) {
	tests := []struct {
		name    string
		src     any
		want    snapshot
		wantErr bool
	}{
		{name: "bytes", src: []byte(`{"method":"KO","round":3}`), want: snapshot{Method: "KO", Round: 3}},
		{name: "text", src: `{"method":"Decision"}`, want: snapshot{Method: "Decision"}},
		{name: "null", src: nil},
		{name: "malformed", src: []byte(`{"method":`), wantErr: true},
		{name: "wrong type", src: 42, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col := JSONB[snapshot]{Data: snapshot{Method: "stale", Round: 9}}
			err := col.Scan(tt.src)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, col.GetValue())
		})
	}
}

func TestJSONB_Value(t *testing.T) {
	v, err := JSONB[[]string]{Data: []string{"Bones"}}.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte(`["Bones"]`), v)
}
