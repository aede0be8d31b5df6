// Package events carries domain events about canonical entities to downstream sinks
package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// EventType defines the type of event
type EventType string

const (
	EventTypeCompetitorCreated EventType = "competitor.created"
	EventTypeAlternateNameSeen EventType = "competitor.alternate_name"
	EventTypeContestCreated    EventType = "contest.created"
	EventTypeContestProjected  EventType = "contest.projected"
	EventTypeContestMerged     EventType = "contest.merged"
	EventTypeRecordQueued      EventType = "record.queued"
	EventTypeRecordResolved    EventType = "record.resolved"
	EventTypeRecordRejected    EventType = "record.rejected"
	EventTypeViewConflict      EventType = "history_view.conflict"
)

// Event is one domain event. Data holds the entity as JSON.
type Event struct {
	EventType     EventType       `json:"event_type"`
	SchemaVersion string          `json:"schema_version"`
	EntityType    string          `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	RecordID      string          `json:"record_id,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// New builds an event, encoding data as JSON
func New(eventType EventType, entityType, entityID string, data any) Event {
	raw, _ := json.Marshal(data)
	return Event{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		EntityType:    entityType,
		EntityID:      entityID,
		Data:          raw,
		Timestamp:     time.Now().UTC(),
	}
}

// Decode unmarshals the event data into v
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Sink receives events after the transaction that produced them commits
type Sink interface {
	Emit(ctx context.Context, events ...Event) error
}

// Nop discards events
type Nop struct{}

func (Nop) Emit(ctx context.Context, events ...Event) error { return nil }

// Fanout delivers events to every sink and joins their errors
type Fanout []Sink

func (f Fanout) Emit(ctx context.Context, events ...Event) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Emit(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Collector keeps events in memory
type Collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *Collector) Emit(ctx context.Context, events ...Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, events...)
	return nil
}

// Events returns a copy of everything collected
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// OfType returns the collected events of one type
func (c *Collector) OfType(t EventType) []Event {
	var out []Event
	for _, e := range c.Events() {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

// ContestMerge is the payload of EventTypeContestMerged
type ContestMerge struct {
	SurvivorID   string   `json:"survivor_id"`
	DuplicateIDs []string `json:"duplicate_ids"`
}
