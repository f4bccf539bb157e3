package timeblock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/salonhub/availability/internal/platform/db"
)

type timeBlockRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &timeBlockRepoPG{pool: pool} }

func (r *timeBlockRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const blockCols = `id, provider_id, start_date_time, end_date_time, is_recurring,
	recurrence_pattern, recurrence_days, recurrence_end_date, notes, created_at, updated_at`

func (r *timeBlockRepoPG) scanBlock(row pgx.Row) (*TimeBlock, error) {
	var b TimeBlock
	var pattern string
	var days []int16
	var endDate *time.Time
	err := row.Scan(&b.ID, &b.ProviderID, &b.StartDateTime, &b.EndDateTime, &b.IsRecurring,
		&pattern, &days, &endDate, &b.Notes, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.RecurrencePattern = Pattern(pattern)
	b.RecurrenceDays = make([]int, len(days))
	for i, d := range days {
		b.RecurrenceDays[i] = int(d)
	}
	if endDate != nil {
		d := DateOf(*endDate)
		b.RecurrenceEndDate = &d
	}
	return &b, nil
}

func (r *timeBlockRepoPG) scanBlocks(rows pgx.Rows) ([]*TimeBlock, error) {
	defer rows.Close()
	var items []*TimeBlock
	for rows.Next() {
		b, err := r.scanBlock(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

func dbDays(days []int) []int16 {
	out := make([]int16, len(days))
	for i, d := range days {
		out[i] = int16(d)
	}
	return out
}

// dbDate encodes a calendar date as midnight UTC, which pgx writes as a
// DATE without shifting it.
func dbDate(d *Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.In(time.UTC)
	return &t
}

func (r *timeBlockRepoPG) Create(ctx context.Context, b *TimeBlock) error {
	b.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO time_blocks (id, provider_id, start_date_time, end_date_time, is_recurring,
			recurrence_pattern, recurrence_days, recurrence_end_date, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at, updated_at`,
		b.ID, b.ProviderID, b.StartDateTime, b.EndDateTime, b.IsRecurring,
		string(b.RecurrencePattern), dbDays(b.RecurrenceDays), dbDate(b.RecurrenceEndDate), b.Notes,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert time block: %w", err)
	}
	return nil
}

func (r *timeBlockRepoPG) GetByID(ctx context.Context, providerID string, id uuid.UUID) (*TimeBlock, error) {
	b, err := r.scanBlock(r.conn(ctx).QueryRow(ctx,
		`SELECT `+blockCols+` FROM time_blocks WHERE id = $1 AND provider_id = $2`, id, providerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get time block: %w", err)
	}
	return b, nil
}

func (r *timeBlockRepoPG) Update(ctx context.Context, b *TimeBlock) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE time_blocks SET start_date_time=$3, end_date_time=$4, is_recurring=$5,
			recurrence_pattern=$6, recurrence_days=$7, recurrence_end_date=$8, notes=$9,
			updated_at=NOW()
		WHERE id = $1 AND provider_id = $2
		RETURNING updated_at`,
		b.ID, b.ProviderID, b.StartDateTime, b.EndDateTime, b.IsRecurring,
		string(b.RecurrencePattern), dbDays(b.RecurrenceDays), dbDate(b.RecurrenceEndDate), b.Notes,
	).Scan(&b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &NotFoundError{ID: b.ID}
	}
	if err != nil {
		return fmt.Errorf("update time block: %w", err)
	}
	return nil
}

func (r *timeBlockRepoPG) Delete(ctx context.Context, providerID string, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM time_blocks WHERE id = $1 AND provider_id = $2`, id, providerID)
	if err != nil {
		return fmt.Errorf("delete time block: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{ID: id}
	}
	return nil
}

func (r *timeBlockRepoPG) ListByProvider(ctx context.Context, providerID string, limit, offset int) ([]*TimeBlock, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM time_blocks WHERE provider_id = $1`, providerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count time blocks: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+blockCols+` FROM time_blocks
		WHERE provider_id = $1
		ORDER BY start_date_time, id
		LIMIT $2 OFFSET $3`, providerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list time blocks: %w", err)
	}
	items, err := r.scanBlocks(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("scan time blocks: %w", err)
	}
	return items, total, nil
}

// ListInRange keeps series whose end date is on or after the day before
// rg.Start in UTC; the margin covers any calendar offset and the expander
// applies the exact bound.
func (r *timeBlockRepoPG) ListInRange(ctx context.Context, providerID string, rg Window) ([]*TimeBlock, error) {
	cutoff := DateOf(rg.Start.UTC()).AddDays(-1)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+blockCols+` FROM time_blocks
		WHERE provider_id = $1
		  AND start_date_time < $3
		  AND (
		    (NOT is_recurring AND end_date_time > $2)
		    OR (is_recurring AND (recurrence_end_date IS NULL OR recurrence_end_date >= $4))
		  )
		ORDER BY start_date_time, id`, providerID, rg.Start, rg.End, dbDate(&cutoff))
	if err != nil {
		return nil, fmt.Errorf("list time blocks in range: %w", err)
	}
	items, err := r.scanBlocks(rows)
	if err != nil {
		return nil, fmt.Errorf("scan time blocks: %w", err)
	}
	return items, nil
}

func (r *timeBlockRepoPG) ListMergeCandidates(ctx context.Context, providerID string, w Window) ([]*TimeBlock, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+blockCols+` FROM time_blocks
		WHERE provider_id = $1
		  AND NOT is_recurring
		  AND start_date_time <= $3
		  AND end_date_time >= $2
		ORDER BY start_date_time, id
		FOR UPDATE`, providerID, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("list merge candidates: %w", err)
	}
	items, err := r.scanBlocks(rows)
	if err != nil {
		return nil, fmt.Errorf("scan time blocks: %w", err)
	}
	return items, nil
}
