package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsertBuilder_OnConflict(t *testing.T) {
	ib := NewInsertBuilder()
	ib.InsertInto("raw_record_links")
	ib.Cols("fingerprint", "state")
	ib.Values("fp", "pending_review")

	ub := ib.OnConflict("fingerprint")
	ub.Set(ub.Assign("state", Excluded("state")))
	ib.Returning("created_at")

	query, args := ib.Build()
	assert.Contains(t, query, "INSERT INTO raw_record_links (fingerprint, state) VALUES ($1, $2)")
	assert.Contains(t, query, "ON CONFLICT (fingerprint) DO UPDATE")
	assert.Contains(t, query, "state = EXCLUDED.state")
	assert.Contains(t, query, "RETURNING created_at")
	assert.Equal(t, []any{"fp", "pending_review"}, args)
}

func TestNewSelectBuilder_UsesPostgresPlaceholders(t *testing.T) {
	sb := NewSelectBuilder()
	sb.Select("fingerprint").From("raw_record_links")
	sb.Where(sb.Equal("fingerprint", "fp"), sb.Equal("state", "rejected"))

	query, args := sb.Build()
	assert.Equal(t, "SELECT fingerprint FROM raw_record_links WHERE fingerprint = $1 AND state = $2", query)
	assert.Equal(t, []any{"fp", "rejected"}, args)
}
