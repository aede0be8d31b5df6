package ingest

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
)

// JSONParser reads a JSON array of raw records.
type JSONParser struct{}

func (p *JSONParser) Parse(r io.Reader) ([]models.RawRecord, error) {
	var records []models.RawRecord

	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&records); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	return records, nil
}
