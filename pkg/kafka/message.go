package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string
}

// DecodeRawRecord parses the message value as a raw fight record. The
// "source" header fills in a missing Source, the key a missing ID.
func (m *IncomingMessage) DecodeRawRecord() (models.RawRecord, error) {
	var record models.RawRecord
	if err := json.Unmarshal(m.Value, &record); err != nil {
		return models.RawRecord{}, fmt.Errorf("failed to decode raw record at %s/%d/%d: %w", m.Topic, m.Partition, m.Offset, err)
	}
	if record.Source == "" {
		record.Source = m.Headers["source"]
	}
	if record.ID == "" {
		record.ID = m.Key
	}
	return record, nil
}

// OutgoingMessage is a JSON-encoded message to publish
type OutgoingMessage struct {
	Key     string
	Value   any
	Headers map[string]string
}
