package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
)

// CSVParser reads raw records from CSV with a header row. Column names match
// the JSON field names; raw_name and raw_result are required.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader) ([]models.RawRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	colIndex, err := p.readHeader(reader)
	if err != nil {
		return nil, err
	}

	records := []models.RawRecord{}
	lineNum := 1
	for {
		lineNum++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		record, err := p.parseRow(row, colIndex, lineNum)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func (p *CSVParser) readHeader(reader *csv.Reader) (map[string]int, error) {
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.TrimSpace(col)] = i
	}
	for _, col := range []string{"raw_name", "raw_result"} {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}
	return colIndex, nil
}

func (p *CSVParser) parseRow(row []string, colIndex map[string]int, lineNum int) (models.RawRecord, error) {
	record := models.RawRecord{
		ID:              column(row, colIndex, "id"),
		Source:          column(row, colIndex, "source"),
		RawName:         column(row, colIndex, "raw_name"),
		RawResult:       column(row, colIndex, "raw_result"),
		RawOpponentName: optionalColumn(row, colIndex, "raw_opponent_name"),
		RawEventName:    optionalColumn(row, colIndex, "raw_event_name"),
		RawDate:         optionalColumn(row, colIndex, "raw_date"),
		RawLocation:     optionalColumn(row, colIndex, "raw_location"),
		RawMethod:       optionalColumn(row, colIndex, "raw_method"),
		RawRound:        optionalColumn(row, colIndex, "raw_round"),
		RawTime:         optionalColumn(row, colIndex, "raw_time"),
		RawWeightClass:  optionalColumn(row, colIndex, "raw_weight_class"),
	}

	if title := column(row, colIndex, "raw_title_fight"); title != "" {
		b, err := strconv.ParseBool(title)
		if err != nil {
			return models.RawRecord{}, fmt.Errorf("line %d: invalid raw_title_fight value %q: %w", lineNum, title, err)
		}
		record.RawTitleFight = &b
	}
	return record, nil
}

func column(row []string, colIndex map[string]int, col string) string {
	if idx, ok := colIndex[col]; ok && idx < len(row) {
		return row[idx]
	}
	return ""
}

func optionalColumn(row []string, colIndex map[string]int, col string) *string {
	v := column(row, colIndex, col)
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}
