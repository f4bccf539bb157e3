// Package janitor runs periodic maintenance sweeps on a cron schedule.
package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Pruner deletes published outbox events older than cutoff.
type Pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Janitor struct {
	pruner    Pruner
	retention time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

func New(pruner Pruner, retention time.Duration, log zerolog.Logger) *Janitor {
	return &Janitor{pruner: pruner, retention: retention, log: log, now: time.Now}
}

// RunOnce prunes published events older than the retention window. Time
// blocks are never touched.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	cutoff := j.now().Add(-j.retention)
	n, err := j.pruner.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune outbox: %w", err)
	}
	j.log.Info().
		Int64("pruned", n).
		Time("cutoff", cutoff).
		Msg("outbox pruned")
	return n, nil
}

// Start schedules RunOnce and stops the scheduler when ctx is done. An empty
// schedule disables the janitor.
func (j *Janitor) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		j.log.Info().Msg("janitor disabled")
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if _, err := j.RunOnce(runCtx); err != nil {
			j.log.Error().Err(err).Msg("janitor sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}
	c.Start()
	j.log.Info().Str("schedule", schedule).Msg("janitor scheduled")

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}
