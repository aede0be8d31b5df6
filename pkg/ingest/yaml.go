package ingest

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
)

// YAMLParser reads a YAML sequence of raw records.
type YAMLParser struct{}

func (p *YAMLParser) Parse(r io.Reader) ([]models.RawRecord, error) {
	var records []models.RawRecord

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&records); err != nil {
		if errors.Is(err, io.EOF) {
			return []models.RawRecord{}, nil
		}
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return records, nil
}
