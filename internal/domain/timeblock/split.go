package timeblock

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Segment is one record written by a split. It is one of
// *SeriesTruncation, *Exception or *TailSeries.
type Segment interface {
	segment()
}

// SeriesTruncation is the original series ending the day before the target.
type SeriesTruncation struct {
	Block *TimeBlock
}

// Exception is the standalone block replacing an edited occurrence.
type Exception struct {
	Block *TimeBlock
}

// TailSeries continues the original series from the day after the target.
type TailSeries struct {
	Block *TimeBlock
}

func (*SeriesTruncation) segment() {}
func (*Exception) segment() {}
func (*TailSeries) segment() {}

// SplitPlan is the ordered set of writes for one single-instance mutation.
type SplitPlan struct {
	Source   *TimeBlock
	Date     Date
	Action   Action
	Segments []Segment
}

// Splitter plans single-occurrence edits and deletes of recurring blocks.
type Splitter struct {
	ex *Expander
}

func NewSplitter(ex *Expander) *Splitter {
	return &Splitter{ex: ex}
}

// Plan computes the writes that remove (delete) or replace (edit) the
// occurrence of orig on date while leaving every other occurrence intact.
// It does not touch storage.
func (s *Splitter) Plan(orig *TimeBlock, date Date, action Action, edit *InstanceEdit) (*SplitPlan, error) {
	if action != ActionEdit && action != ActionDelete {
		return nil, &ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", action)}
	}
	if !orig.IsRecurring {
		return nil, &StateError{Reason: "time block is not recurring"}
	}
	if !s.ex.IsOccurrence(orig, date) {
		return nil, &StateError{Reason: fmt.Sprintf("time block has no occurrence on %s", date)}
	}

	loc := s.ex.Location()
	plan := &SplitPlan{Source: orig, Date: date, Action: action}

	truncated := orig.Clone()
	prev := date.AddDays(-1)
	truncated.RecurrenceEndDate = &prev
	plan.Segments = append(plan.Segments, &SeriesTruncation{Block: truncated})

	if action == ActionEdit {
		exc, err := s.exception(orig, date, edit, loc)
		if err != nil {
			return nil, err
		}
		plan.Segments = append(plan.Segments, &Exception{Block: exc})
	}

	if tail := s.tail(orig, date, loc); tail != nil {
		plan.Segments = append(plan.Segments, &TailSeries{Block: tail})
	}
	return plan, nil
}

func (s *Splitter) exception(orig *TimeBlock, date Date, edit *InstanceEdit, loc *time.Location) (*TimeBlock, error) {
	if edit == nil {
		return nil, &ValidationError{Field: "start", Reason: "a replacement window is required to edit an occurrence"}
	}
	if err := edit.Window.Validate(); err != nil {
		return nil, err
	}
	if DateOf(edit.Window.Start.In(loc)) != date {
		return nil, &ValidationError{Field: "start", Reason: fmt.Sprintf("must fall on the occurrence date %s", date)}
	}
	if edit.Window.Duration() > MaxSingleBlockSpan {
		return nil, &ValidationError{Field: "end", Reason: "blocks may not span more than 30 days"}
	}

	notes := orig.Clone().Notes
	if edit.Notes != nil {
		n := *edit.Notes
		notes = &n
	}
	return &TimeBlock{
		ProviderID:        orig.ProviderID,
		StartDateTime:     edit.Window.Start,
		EndDateTime:       edit.Window.End,
		RecurrencePattern: PatternNone,
		RecurrenceDays:    []int{},
		Notes:             notes,
	}, nil
}

// tail returns the continuation series, or nil when the original is bounded
// and has no occurrence after date.
func (s *Splitter) tail(orig *TimeBlock, date Date, loc *time.Location) *TimeBlock {
	next := date.AddDays(1)
	if orig.RecurrenceEndDate != nil && next.After(*orig.RecurrenceEndDate) {
		return nil
	}

	t := orig.Clone()
	t.ID = uuid.Nil
	t.CreatedAt = time.Time{}
	t.UpdatedAt = time.Time{}
	t.StartDateTime = next.At(orig.StartDateTime, loc)
	t.EndDateTime = t.StartDateTime.Add(orig.Duration())

	if t.RecurrenceEndDate != nil {
		if dates, _ := s.ex.occurrenceDates(t, next, *t.RecurrenceEndDate); len(dates) == 0 {
			return nil
		}
	}
	return t
}
