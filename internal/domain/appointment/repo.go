package appointment

import (
	"context"
	"time"
)

type Repository interface {
	// ListActive returns the provider's non-canceled appointments that
	// intersect [start, end), ordered by start.
	ListActive(ctx context.Context, providerID string, start, end time.Time) ([]*Appointment, error)
}
