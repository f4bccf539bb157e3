// Package appointment is the read-only view of the booking system's
// appointments used for conflict checks.
package appointment

import (
	"strings"
	"time"
)

// Appointment maps to a row of the booking service's appointments table.
type Appointment struct {
	ID           string    `db:"id" json:"id"`
	ProviderID   string    `db:"provider_id" json:"provider_id"`
	CustomerName string    `db:"customer_name" json:"customer_name"`
	ServiceName  string    `db:"service_name" json:"service_name"`
	Start        time.Time `db:"start_time" json:"start"`
	End          time.Time `db:"end_time" json:"end"`
	Status       string    `db:"status" json:"status"`
}

// IsCanceled accepts both spellings used by booking clients.
func (a *Appointment) IsCanceled() bool {
	s := strings.ToLower(a.Status)
	return s == "canceled" || s == "cancelled"
}

// Overlaps uses half-open semantics: touching intervals do not overlap.
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return a.Start.Before(end) && a.End.After(start)
}
