// Package outbox implements the transactional outbox: change events are
// written in the same transaction as the mutation that caused them, and a
// publisher drains them to Kafka.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is the envelope written to outbox_events. The Kafka topic is the
// EventType and the message key is the AggregateID.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// NewEvent marshals payload into an Event.
func NewEvent(aggregateType, aggregateID, eventType string, payload interface{}) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       b,
	}, nil
}

// Record is a stored outbox row.
type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
}
