package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB maps a jsonb column onto a typed value such as a history view
// snapshot or a queued raw record
type JSONB[T any] struct {
	Data T
}

// Scan decodes the column. SQL NULL leaves Data at its zero value.
func (p *JSONB[T]) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		var zero T
		p.Data = zero
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("JSONB.Scan: expected []byte or string, got %T", src)
	}
	if err := json.Unmarshal(b, &p.Data); err != nil {
		return fmt.Errorf("JSONB.Scan: %w", err)
	}
	return nil
}

func (p JSONB[T]) Value() (driver.Value, error) {
	return json.Marshal(p.Data)
}

func (p *JSONB[T]) GetValue() T {
	return p.Data
}
