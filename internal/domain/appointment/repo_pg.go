package appointment

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/salonhub/availability/internal/platform/db"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &appointmentRepoPG{pool: pool} }

func (r *appointmentRepoPG) ListActive(ctx context.Context, providerID string, start, end time.Time) ([]*Appointment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, provider_id, customer_name, service_name, start_time, end_time, status
		FROM appointments
		WHERE provider_id = $1
		  AND lower(status) NOT IN ('canceled', 'cancelled')
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time, id`, providerID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.ProviderID, &a.CustomerName, &a.ServiceName, &a.Start, &a.End, &a.Status); err != nil {
			return nil, err
		}
		items = append(items, &a)
	}
	return items, rows.Err()
}
