package timeblock

import (
	"github.com/google/uuid"
)

// AggregateType of every time block event; the aggregate id is the provider.
const AggregateType = "provider_calendar"

const (
	EventCreated = "timeblock.created"
	EventMerged  = "timeblock.merged"
	EventUpdated = "timeblock.updated"
	EventDeleted = "timeblock.deleted"
	EventSplit   = "timeblock.split"
)

type blockEvent struct {
	ProviderID string     `json:"provider_id"`
	Block      *TimeBlock `json:"block"`
}

type mergeEvent struct {
	ProviderID  string      `json:"provider_id"`
	Block       *TimeBlock  `json:"block"`
	AbsorbedIDs []uuid.UUID `json:"absorbed_ids"`
}

type deleteEvent struct {
	ProviderID string    `json:"provider_id"`
	BlockID    uuid.UUID `json:"block_id"`
}

type splitEvent struct {
	ProviderID     string     `json:"provider_id"`
	SourceBlockID  uuid.UUID  `json:"source_block_id"`
	OccurrenceDate Date       `json:"occurrence_date"`
	Action         Action     `json:"action"`
	ExceptionID    *uuid.UUID `json:"exception_id,omitempty"`
	TailID         *uuid.UUID `json:"tail_id,omitempty"`
}
