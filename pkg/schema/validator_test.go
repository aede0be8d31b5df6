package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
)

func strPtr(s string) *string { return &s }

func TestValidator_Validate(t *testing.T) {
	validator := NewValidator()

	tests := []struct {
		name       string
		record     models.RawRecord
		wantValid  bool
		wantFields []string
	}{
		{
			name:      "minimal record",
			record:    models.RawRecord{RawName: "Jon Jones", RawResult: "win"},
			wantValid: true,
		},
		{
			name:      "loose result spelling",
			record:    models.RawRecord{RawName: "Jon Jones", RawResult: "NC"},
			wantValid: true,
		},
		{
			name:       "missing name",
			record:     models.RawRecord{RawResult: "win"},
			wantFields: []string{"raw_name"},
		},
		{
			name:       "blank name",
			record:     models.RawRecord{RawName: "   ", RawResult: "win"},
			wantFields: []string{"raw_name"},
		},
		{
			name:       "missing result",
			record:     models.RawRecord{RawName: "Jon Jones"},
			wantFields: []string{"raw_result"},
		},
		{
			name:       "unknown result",
			record:     models.RawRecord{RawName: "Jon Jones", RawResult: "forfeit?"},
			wantFields: []string{"raw_result"},
		},
		{
			name:       "name too long",
			record:     models.RawRecord{RawName: strings.Repeat("a", 257), RawResult: "win"},
			wantFields: []string{"raw_name"},
		},
		{
			name:       "opponent is the competitor",
			record:     models.RawRecord{RawName: "Jon Jones", RawOpponentName: strPtr(" jon jones "), RawResult: "win"},
			wantFields: []string{"raw_opponent_name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validator.Validate(tt.record)
			assert.Equal(t, tt.wantValid, result.Valid)

			var fields []string
			for _, e := range result.Errors {
				fields = append(fields, e.Field)
			}
			assert.Equal(t, tt.wantFields, fields)

			if tt.wantValid {
				assert.NoError(t, result.Err())
			} else {
				require.Error(t, result.Err())
				assert.Contains(t, result.Err().Error(), tt.wantFields[0])
			}
		})
	}
}
