// Package timeblock implements provider availability: stored time blocks,
// recurrence expansion, merging of adjacent manual blocks, conflict checks
// against booked appointments and single-occurrence series splits.
package timeblock

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

type Pattern string

const (
	PatternNone   Pattern = "none"
	PatternDaily  Pattern = "daily"
	PatternWeekly Pattern = "weekly"
)

func (p Pattern) Valid() bool {
	switch p {
	case PatternNone, PatternDaily, PatternWeekly:
		return true
	}
	return false
}

// TimeBlock maps to the time_blocks table. For recurring blocks Start/End
// define the first occurrence: they anchor time of day and duration, and the
// start's date is the first eligible date of the series.
type TimeBlock struct {
	ID                uuid.UUID `db:"id" json:"id"`
	ProviderID        string    `db:"provider_id" json:"provider_id"`
	StartDateTime     time.Time `db:"start_date_time" json:"start_date_time"`
	EndDateTime       time.Time `db:"end_date_time" json:"end_date_time"`
	IsRecurring       bool      `db:"is_recurring" json:"is_recurring"`
	RecurrencePattern Pattern   `db:"recurrence_pattern" json:"recurrence_pattern"`
	RecurrenceDays    []int     `db:"recurrence_days" json:"recurrence_days"`
	RecurrenceEndDate *Date     `db:"recurrence_end_date" json:"recurrence_end_date,omitempty"`
	Notes             *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

func (b *TimeBlock) Window() Window {
	return Window{Start: b.StartDateTime, End: b.EndDateTime}
}

func (b *TimeBlock) Duration() time.Duration {
	return b.EndDateTime.Sub(b.StartDateTime)
}

// FirstDate is the first eligible date of the block in loc.
func (b *TimeBlock) FirstDate(loc *time.Location) Date {
	return DateOf(b.StartDateTime.In(loc))
}

// Clone returns a deep copy.
func (b *TimeBlock) Clone() *TimeBlock {
	c := *b
	if b.RecurrenceDays != nil {
		c.RecurrenceDays = append([]int(nil), b.RecurrenceDays...)
	}
	if b.RecurrenceEndDate != nil {
		d := *b.RecurrenceEndDate
		c.RecurrenceEndDate = &d
	}
	if b.Notes != nil {
		n := *b.Notes
		c.Notes = &n
	}
	return &c
}

// normalize clears recurrence fields of non-recurring blocks and sorts and
// dedupes weekdays.
func (b *TimeBlock) normalize() {
	if !b.IsRecurring {
		b.RecurrencePattern = PatternNone
		b.RecurrenceDays = []int{}
		b.RecurrenceEndDate = nil
		return
	}
	if b.RecurrencePattern != PatternWeekly {
		b.RecurrenceDays = []int{}
		return
	}
	seen := make(map[int]bool, len(b.RecurrenceDays))
	days := make([]int, 0, len(b.RecurrenceDays))
	for _, d := range b.RecurrenceDays {
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	sort.Ints(days)
	b.RecurrenceDays = days
}

// Window is an absolute time interval, half-open for conflicts.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Validate() error {
	if w.Start.IsZero() {
		return &ValidationError{Field: "start", Reason: "is required"}
	}
	if w.End.IsZero() {
		return &ValidationError{Field: "end", Reason: "is required"}
	}
	if !w.End.After(w.Start) {
		return &ValidationError{Field: "end", Reason: "must be after start"}
	}
	return nil
}

func (w Window) Duration() time.Duration { return w.End.Sub(w.Start) }

// Overlaps reports whether the half-open intervals intersect.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && w.End.After(o.Start)
}

// Touches reports whether the intervals overlap or share a boundary.
func (w Window) Touches(o Window) bool {
	return !w.Start.After(o.End) && !w.End.Before(o.Start)
}

// Occurrence is one concrete instance of a block. It is computed, never
// stored; SourceBlockID plus OccurrenceDate address it.
type Occurrence struct {
	SourceBlockID  uuid.UUID `json:"source_block_id"`
	OccurrenceDate Date      `json:"occurrence_date"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	IsRecurring    bool      `json:"is_recurring"`
	Notes          *string   `json:"notes,omitempty"`
}

func (o Occurrence) Window() Window { return Window{Start: o.Start, End: o.End} }

// Action selects what a single-instance mutation does to the occurrence.
type Action string

const (
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// InstanceEdit carries the replacement window for an edited occurrence.
type InstanceEdit struct {
	Window Window
	Notes  *string
}

// CreateInput describes a new block.
type CreateInput struct {
	Window            Window
	IsRecurring       bool
	RecurrencePattern Pattern
	RecurrenceDays    []int
	RecurrenceEndDate *Date
	Notes             *string
}

// CreateResult reports the stored block and, for non-recurring blocks, how
// many existing records were absorbed into it.
type CreateResult struct {
	Block       *TimeBlock `json:"block"`
	Merged      bool       `json:"merged"`
	MergedCount int        `json:"merged_count"`
}

// UpdateFields is a partial update; nil fields are left unchanged.
type UpdateFields struct {
	StartDateTime     *time.Time
	EndDateTime       *time.Time
	IsRecurring       *bool
	RecurrencePattern *Pattern
	RecurrenceDays    []int
	RecurrenceEndDate *Date
	ClearEndDate      bool
	Notes             *string
}

func (f UpdateFields) changesShape() bool {
	return f.StartDateTime != nil || f.EndDateTime != nil || f.IsRecurring != nil ||
		f.RecurrencePattern != nil || f.RecurrenceDays != nil || f.RecurrenceEndDate != nil || f.ClearEndDate
}

// SplitResult lists the records written by a single-instance mutation.
type SplitResult struct {
	Truncated *TimeBlock `json:"truncated"`
	Exception *TimeBlock `json:"exception,omitempty"`
	Tail      *TimeBlock `json:"tail,omitempty"`
}
