package timeblock

import (
	"context"
	"sort"

	"github.com/salonhub/availability/internal/domain/appointment"
)

// ConflictChecker finds active appointments overlapping candidate windows.
type ConflictChecker struct {
	appts AppointmentLister
}

func NewConflictChecker(appts AppointmentLister) *ConflictChecker {
	return &ConflictChecker{appts: appts}
}

// Check returns the provider's non-canceled appointments intersecting w.
func (c *ConflictChecker) Check(ctx context.Context, providerID string, w Window) ([]*appointment.Appointment, error) {
	found, err := c.appts.ListActive(ctx, providerID, w.Start, w.End)
	if err != nil {
		return nil, err
	}
	out := make([]*appointment.Appointment, 0, len(found))
	for _, a := range found {
		if a.IsCanceled() || !a.Overlaps(w.Start, w.End) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// CheckOccurrences issues one range query spanning all occurrences and
// returns each conflicting appointment once, ordered by start.
func (c *ConflictChecker) CheckOccurrences(ctx context.Context, providerID string, occ []Occurrence) ([]*appointment.Appointment, error) {
	if len(occ) == 0 {
		return nil, nil
	}
	span := occ[0].Window()
	for _, o := range occ[1:] {
		if o.Start.Before(span.Start) {
			span.Start = o.Start
		}
		if o.End.After(span.End) {
			span.End = o.End
		}
	}

	found, err := c.appts.ListActive(ctx, providerID, span.Start, span.End)
	if err != nil {
		return nil, err
	}

	var out []*appointment.Appointment
	for _, a := range found {
		if a.IsCanceled() {
			continue
		}
		for _, o := range occ {
			if a.Overlaps(o.Start, o.End) {
				out = append(out, a)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}
