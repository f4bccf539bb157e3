package timeblock

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/salonhub/availability/internal/domain/appointment"
	"github.com/salonhub/availability/internal/platform/outbox"
)

// Repository persists time blocks. Every method is scoped to a provider; a
// block owned by another provider is reported as not found.
type Repository interface {
	Create(ctx context.Context, b *TimeBlock) error
	GetByID(ctx context.Context, providerID string, id uuid.UUID) (*TimeBlock, error)
	Update(ctx context.Context, b *TimeBlock) error
	Delete(ctx context.Context, providerID string, id uuid.UUID) error
	ListByProvider(ctx context.Context, providerID string, limit, offset int) ([]*TimeBlock, int, error)
	// ListInRange returns every block that may produce an occurrence inside
	// r: non-recurring blocks intersecting r and series starting before
	// r.End that are not known to end before it. It may over-select.
	ListInRange(ctx context.Context, providerID string, r Window) ([]*TimeBlock, error)
	// ListMergeCandidates returns non-recurring blocks touching w.
	ListMergeCandidates(ctx context.Context, providerID string, w Window) ([]*TimeBlock, error)
}

// TxRunner runs fn in one transaction holding a lock on key.
type TxRunner interface {
	WithLockedTx(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// AppointmentLister is the booking-system boundary.
type AppointmentLister interface {
	ListActive(ctx context.Context, providerID string, start, end time.Time) ([]*appointment.Appointment, error)
}

// EventRecorder appends change events inside the caller's transaction.
type EventRecorder interface {
	Append(ctx context.Context, evt outbox.Event) error
}

// OccurrenceCache stores expansion results per provider and range. Get
// returns the provider's current generation, which Set must be given so a
// result computed before an invalidation is never stored under the new one.
type OccurrenceCache interface {
	Get(ctx context.Context, providerID string, from, to Date) (occ []Occurrence, gen int64, ok bool)
	Set(ctx context.Context, providerID string, gen int64, from, to Date, occ []Occurrence)
	Invalidate(ctx context.Context, providerID string)
}

type nopEvents struct{}

func (nopEvents) Append(context.Context, outbox.Event) error { return nil }

type nopCache struct{}

func (nopCache) Get(context.Context, string, Date, Date) ([]Occurrence, int64, bool) {
	return nil, 0, false
}
func (nopCache) Set(context.Context, string, int64, Date, Date, []Occurrence) {}
func (nopCache) Invalidate(context.Context, string) {}
