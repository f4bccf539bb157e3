package timeblock

import (
	"fmt"
	"time"
)

// MaxSingleBlockSpan bounds non-recurring blocks.
const MaxSingleBlockSpan = 30 * 24 * time.Hour

// MaxRecurringDuration bounds one occurrence of a series so consecutive
// daily occurrences cannot overlap.
const MaxRecurringDuration = 24 * time.Hour

// validateBlock checks the stored-record invariants. checkEndDate is false for
// updates that leave both the start and the end date alone; split truncation
// legitimately leaves an end date before the start.
func validateBlock(b *TimeBlock, loc *time.Location, checkEndDate bool) error {
	if err := b.Window().Validate(); err != nil {
		return err
	}
	if !b.IsRecurring {
		if b.Duration() > MaxSingleBlockSpan {
			return &ValidationError{Field: "end", Reason: "blocks may not span more than 30 days"}
		}
		return nil
	}

	switch b.RecurrencePattern {
	case PatternDaily:
	case PatternWeekly:
		if len(b.RecurrenceDays) == 0 {
			return &ValidationError{Field: "recurrence_days", Reason: "is required for weekly recurrence"}
		}
		for _, d := range b.RecurrenceDays {
			if d < 0 || d > 6 {
				return &ValidationError{Field: "recurrence_days", Reason: fmt.Sprintf("weekday %d out of range 0-6", d)}
			}
		}
	case "", PatternNone:
		return &ValidationError{Field: "recurrence_pattern", Reason: "is required for recurring blocks"}
	default:
		return &ValidationError{Field: "recurrence_pattern", Reason: fmt.Sprintf("unknown pattern %q", b.RecurrencePattern)}
	}

	if b.Duration() > MaxRecurringDuration {
		return &ValidationError{Field: "end", Reason: "recurring occurrences may not exceed 24 hours"}
	}
	if checkEndDate && b.RecurrenceEndDate != nil && b.RecurrenceEndDate.Before(b.FirstDate(loc)) {
		return &ValidationError{Field: "recurrence_end_date", Reason: "must not be before the start date"}
	}
	return nil
}
