// Package ingest reads raw fight-history records from files handed over by
// scrapers and manual imports.
package ingest

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
)

// Parser reads raw records from a stream
type Parser interface {
	Parse(r io.Reader) ([]models.RawRecord, error)
}

// ForFormat returns the parser for a format name.
// Supported formats: "json", "yaml", "csv".
func ForFormat(format string) Parser {
	switch strings.ToLower(format) {
	case "json":
		return &JSONParser{}
	case "yaml", "yml":
		return &YAMLParser{}
	case "csv":
		return &CSVParser{}
	default:
		return nil
	}
}

// ForFile returns the parser matching the file extension.
func ForFile(filename string) Parser {
	return ForFormat(strings.TrimPrefix(filepath.Ext(filename), "."))
}
