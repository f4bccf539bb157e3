package timeblock

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
)

const icsProductID = "-//salonhub//availability//EN"

// RenderICS serializes occurrences as a published VCALENDAR, one VEVENT per
// occurrence. UIDs are stable for a block and date.
func RenderICS(providerID string, occ []Occurrence, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(icsProductID)
	cal.SetXWRCalName("Unavailable: " + providerID)

	for _, o := range occ {
		ev := cal.AddEvent(occurrenceUID(o))
		ev.SetDtStampTime(stamp.UTC())
		ev.SetStartAt(o.Start.UTC())
		ev.SetEndAt(o.End.UTC())
		ev.SetSummary("Unavailable")
		if o.Notes != nil && *o.Notes != "" {
			ev.SetDescription(*o.Notes)
		}
	}
	return cal.Serialize()
}

func occurrenceUID(o Occurrence) string {
	return fmt.Sprintf("%s-%04d%02d%02d@availability", o.SourceBlockID,
		o.OccurrenceDate.Year, int(o.OccurrenceDate.Month), o.OccurrenceDate.Day)
}
