package timeblock

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
)

// DefaultMaxOccurrences caps the occurrences one block contributes to a
// single expansion.
const DefaultMaxOccurrences = 5000

var rruleWeekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// Expander turns stored blocks into concrete occurrences. Dates and time of
// day are interpreted in a single calendar location.
type Expander struct {
	loc         *time.Location
	maxPerBlock int
}

func NewExpander(loc *time.Location, maxPerBlock int) *Expander {
	if loc == nil {
		loc = time.UTC
	}
	if maxPerBlock <= 0 {
		maxPerBlock = DefaultMaxOccurrences
	}
	return &Expander{loc: loc, maxPerBlock: maxPerBlock}
}

func (e *Expander) Location() *time.Location { return e.loc }

// Expand returns the occurrences of blocks whose date lies within [from, to],
// ordered by start with ties broken by source block id. The second result
// lists blocks whose expansion was cut at the per-block cap.
func (e *Expander) Expand(blocks []*TimeBlock, from, to Date) ([]Occurrence, []uuid.UUID) {
	out := make([]Occurrence, 0, len(blocks))
	var capped []uuid.UUID
	for _, b := range blocks {
		occ, hit := e.ExpandBlock(b, from, to)
		out = append(out, occ...)
		if hit {
			capped = append(capped, b.ID)
		}
	}
	SortOccurrences(out)
	return out, capped
}

// ExpandBlock expands a single block over [from, to].
func (e *Expander) ExpandBlock(b *TimeBlock, from, to Date) ([]Occurrence, bool) {
	if to.Before(from) {
		return nil, false
	}

	if !b.IsRecurring {
		r := Window{Start: from.In(e.loc), End: to.AddDays(1).In(e.loc)}
		if !b.Window().Overlaps(r) {
			return nil, false
		}
		return []Occurrence{{
			SourceBlockID:  b.ID,
			OccurrenceDate: b.FirstDate(e.loc),
			Start:          b.StartDateTime.In(e.loc),
			End:            b.EndDateTime.In(e.loc),
			Notes:          b.Notes,
		}}, false
	}

	dates, hit := e.occurrenceDates(b, from, to)
	dur := b.Duration()
	out := make([]Occurrence, 0, len(dates))
	for _, d := range dates {
		start := d.At(b.StartDateTime, e.loc)
		out = append(out, Occurrence{
			SourceBlockID:  b.ID,
			OccurrenceDate: d,
			Start:          start,
			End:            start.Add(dur),
			IsRecurring:    true,
			Notes:          b.Notes,
		})
	}
	return out, hit
}

// IsOccurrence reports whether recurring block b has an occurrence on d.
func (e *Expander) IsOccurrence(b *TimeBlock, d Date) bool {
	if !b.IsRecurring {
		return false
	}
	dates, _ := e.occurrenceDates(b, d, d)
	return len(dates) == 1
}

// occurrenceDates evaluates the series rule between the later of from and the
// first eligible date, and the earlier of to and the recurrence end date.
func (e *Expander) occurrenceDates(b *TimeBlock, from, to Date) ([]Date, bool) {
	lo := maxDate(from, b.FirstDate(e.loc))
	hi := to
	if b.RecurrenceEndDate != nil {
		hi = minDate(hi, *b.RecurrenceEndDate)
	}
	if hi.Before(lo) {
		return nil, false
	}

	// Moving DTSTART forward to lo does not change the set for an interval
	// of one and keeps the iteration proportional to the queried range.
	opt := rrule.ROption{
		Dtstart: lo.At(b.StartDateTime, e.loc),
		Until:   hi.At(b.StartDateTime, e.loc),
	}
	allowed := make(map[time.Weekday]bool, 7)
	switch b.RecurrencePattern {
	case PatternDaily:
		opt.Freq = rrule.DAILY
	case PatternWeekly:
		opt.Freq = rrule.WEEKLY
		for _, d := range b.RecurrenceDays {
			if d < 0 || d > 6 || allowed[time.Weekday(d)] {
				continue
			}
			allowed[time.Weekday(d)] = true
			opt.Byweekday = append(opt.Byweekday, rruleWeekdays[d])
		}
		if len(opt.Byweekday) == 0 {
			return nil, false
		}
	default:
		return nil, false
	}

	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, false
	}
	times := rule.Between(lo.In(e.loc), hi.AddDays(1).In(e.loc), true)

	dates := make([]Date, 0, len(times))
	for _, t := range times {
		d := DateOf(t.In(e.loc))
		if d.Before(lo) || d.After(hi) {
			continue
		}
		if opt.Freq == rrule.WEEKLY && !allowed[d.Weekday()] {
			continue
		}
		if n := len(dates); n > 0 && dates[n-1] == d {
			continue
		}
		dates = append(dates, d)
	}

	if len(dates) > e.maxPerBlock {
		return dates[:e.maxPerBlock], true
	}
	return dates, false
}

// SortOccurrences orders by start, then by source block id.
func SortOccurrences(occ []Occurrence) {
	sort.SliceStable(occ, func(i, j int) bool {
		if !occ[i].Start.Equal(occ[j].Start) {
			return occ[i].Start.Before(occ[j].Start)
		}
		return occ[i].SourceBlockID.String() < occ[j].SourceBlockID.String()
	})
}
