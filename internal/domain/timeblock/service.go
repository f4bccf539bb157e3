package timeblock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/salonhub/availability/internal/domain/appointment"
	"github.com/salonhub/availability/internal/platform/outbox"
)

const (
	// MaxExpansionDays bounds one expansion request.
	MaxExpansionDays = 366
	// DefaultConflictHorizonDays is how far ahead a series is checked
	// against booked appointments.
	DefaultConflictHorizonDays = 90
)

type Service struct {
	repo      Repository
	tx        TxRunner
	conflicts *ConflictChecker
	expander  *Expander
	splitter  *Splitter
	events    EventRecorder
	cache     OccurrenceCache
	tracer    trace.Tracer
	log       zerolog.Logger

	loc            *time.Location
	now            func() time.Time
	horizonDays    int
	maxOccurrences int
	tracerProvider trace.TracerProvider
}

type Option func(*Service)

// WithLocation sets the calendar location dates are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithEvents(ev EventRecorder) Option {
	return func(s *Service) { s.events = ev }
}

func WithCache(c OccurrenceCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithConflictHorizon(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.horizonDays = days
		}
	}
}

func WithMaxOccurrences(n int) Option {
	return func(s *Service) { s.maxOccurrences = n }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

func NewService(repo Repository, tx TxRunner, appts AppointmentLister, opts ...Option) *Service {
	s := &Service{
		repo:           repo,
		tx:             tx,
		events:         nopEvents{},
		cache:          nopCache{},
		log:            zerolog.Nop(),
		loc:            time.UTC,
		now:            time.Now,
		horizonDays:    DefaultConflictHorizonDays,
		maxOccurrences: DefaultMaxOccurrences,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracerProvider == nil {
		s.tracerProvider = otel.GetTracerProvider()
	}
	s.tracer = s.tracerProvider.Tracer("github.com/salonhub/availability/internal/domain/timeblock")
	s.expander = NewExpander(s.loc, s.maxOccurrences)
	s.splitter = NewSplitter(s.expander)
	s.conflicts = NewConflictChecker(appts)
	return s
}

func (s *Service) Location() *time.Location { return s.loc }

func (s *Service) today() Date { return DateOf(s.now().In(s.loc)) }

func (s *Service) startSpan(ctx context.Context, name, providerID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "timeblock."+name, trace.WithAttributes(attribute.String("provider.id", providerID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func lockKey(providerID string) string { return "timeblock:provider:" + providerID }

// mutate runs fn under the provider's write lock in one transaction and
// invalidates cached expansions after commit.
func (s *Service) mutate(ctx context.Context, op, providerID string, fn func(ctx context.Context) error) error {
	if providerID == "" {
		return &ValidationError{Field: "provider_id", Reason: "is required"}
	}
	if err := s.tx.WithLockedTx(ctx, lockKey(providerID), fn); err != nil {
		return classify(op, err)
	}
	s.cache.Invalidate(ctx, providerID)
	return nil
}

func (s *Service) emit(ctx context.Context, providerID, eventType string, payload interface{}) error {
	evt, err := outbox.NewEvent(AggregateType, providerID, eventType, payload)
	if err != nil {
		return err
	}
	return s.events.Append(ctx, evt)
}

// -- Reads --

// Expand returns the provider's occurrences on dates within [from, to].
func (s *Service) Expand(ctx context.Context, providerID string, from, to Date) (occ []Occurrence, err error) {
	ctx, span := s.startSpan(ctx, "Expand", providerID)
	defer func() { endSpan(span, err) }()

	if from.IsZero() {
		return nil, &ValidationError{Field: "start", Reason: "is required"}
	}
	if to.IsZero() {
		return nil, &ValidationError{Field: "end", Reason: "is required"}
	}
	if to.Before(from) {
		return nil, &ValidationError{Field: "end", Reason: "must not be before start"}
	}
	if from.DaysUntil(to)+1 > MaxExpansionDays {
		return nil, &ValidationError{Field: "end", Reason: fmt.Sprintf("range may not exceed %d days", MaxExpansionDays)}
	}

	cached, gen, ok := s.cache.Get(ctx, providerID, from, to)
	if ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}

	r := Window{Start: from.In(s.loc), End: to.AddDays(1).In(s.loc)}
	blocks, err := s.repo.ListInRange(ctx, providerID, r)
	if err != nil {
		return nil, classify("expand", err)
	}

	occ, capped := s.expander.Expand(blocks, from, to)
	for _, id := range capped {
		s.log.Warn().
			Str("provider_id", providerID).
			Str("block_id", id.String()).
			Int("limit", s.expander.maxPerBlock).
			Msg("occurrence cap reached, expansion truncated")
	}
	span.SetAttributes(attribute.Int("occurrences", len(occ)))
	s.cache.Set(ctx, providerID, gen, from, to, occ)
	return occ, nil
}

func (s *Service) ListBlocks(ctx context.Context, providerID string, limit, offset int) ([]*TimeBlock, int, error) {
	items, total, err := s.repo.ListByProvider(ctx, providerID, limit, offset)
	if err != nil {
		return nil, 0, classify("list", err)
	}
	return items, total, nil
}

func (s *Service) GetBlock(ctx context.Context, providerID string, id uuid.UUID) (*TimeBlock, error) {
	b, err := s.repo.GetByID(ctx, providerID, id)
	if err != nil {
		return nil, classify("get", err)
	}
	return b, nil
}

// CheckConflicts returns the provider's active appointments overlapping w.
func (s *Service) CheckConflicts(ctx context.Context, providerID string, w Window) (conflicts []*appointment.Appointment, err error) {
	ctx, span := s.startSpan(ctx, "CheckConflicts", providerID)
	defer func() { endSpan(span, err) }()

	if err := w.Validate(); err != nil {
		return nil, err
	}
	conflicts, err = s.conflicts.Check(ctx, providerID, w)
	if err != nil {
		return nil, classify("check_conflicts", err)
	}
	return conflicts, nil
}

func (s *Service) rejectConflicts(ctx context.Context, providerID string, w Window) error {
	conflicts, err := s.conflicts.Check(ctx, providerID, w)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return &ConflictError{Conflicts: conflicts}
	}
	return nil
}

// rejectSeriesConflicts checks every occurrence of b within the conflict
// horizon, starting at the later of today and the series start.
func (s *Service) rejectSeriesConflicts(ctx context.Context, b *TimeBlock) error {
	from := maxDate(s.today(), b.FirstDate(s.loc))
	to := from.AddDays(s.horizonDays - 1)
	occ, _ := s.expander.ExpandBlock(b, from, to)
	conflicts, err := s.conflicts.CheckOccurrences(ctx, b.ProviderID, occ)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return &ConflictError{Conflicts: conflicts}
	}
	return nil
}

// -- Creation --

// CreateBlock creates a recurring series or, for non-recurring input, merges
// the window with adjacent blocks.
func (s *Service) CreateBlock(ctx context.Context, providerID string, in CreateInput) (*CreateResult, error) {
	if !in.IsRecurring {
		return s.CreateNonRecurringBlock(ctx, providerID, in.Window, in.Notes)
	}
	return s.createSeries(ctx, providerID, in)
}

// CreateNonRecurringBlock stores w, absorbing every non-recurring block it
// overlaps or touches, transitively.
func (s *Service) CreateNonRecurringBlock(ctx context.Context, providerID string, w Window, notes *string) (res *CreateResult, err error) {
	ctx, span := s.startSpan(ctx, "Create", providerID)
	defer func() { endSpan(span, err) }()

	if err := w.Validate(); err != nil {
		return nil, err
	}
	if w.Duration() > MaxSingleBlockSpan {
		return nil, &ValidationError{Field: "end", Reason: "blocks may not span more than 30 days"}
	}
	if DateOf(w.Start.In(s.loc)).Before(s.today()) {
		return nil, &ValidationError{Field: "start", Reason: "must not be in the past"}
	}

	err = s.mutate(ctx, "create", providerID, func(ctx context.Context) error {
		if err := s.rejectConflicts(ctx, providerID, w); err != nil {
			return err
		}

		env := w
		var absorbed []*TimeBlock
		for {
			candidates, err := s.repo.ListMergeCandidates(ctx, providerID, env)
			if err != nil {
				return err
			}
			next, abs := Coalesce(w, candidates)
			if len(abs) == len(absorbed) {
				break
			}
			env, absorbed = next, abs
		}
		if env.Duration() > MaxSingleBlockSpan {
			return &ValidationError{Field: "end", Reason: "merging with adjacent blocks would span more than 30 days"}
		}

		block := &TimeBlock{
			ProviderID:        providerID,
			StartDateTime:     env.Start,
			EndDateTime:       env.End,
			RecurrencePattern: PatternNone,
			RecurrenceDays:    []int{},
			Notes:             mergeNotes(notes, absorbed),
		}

		ids := make([]uuid.UUID, 0, len(absorbed))
		for _, b := range absorbed {
			if err := s.repo.Delete(ctx, providerID, b.ID); err != nil {
				return err
			}
			ids = append(ids, b.ID)
		}
		if err := s.repo.Create(ctx, block); err != nil {
			return err
		}

		res = &CreateResult{Block: block, Merged: len(absorbed) > 0, MergedCount: len(absorbed)}
		if res.Merged {
			s.log.Debug().
				Str("provider_id", providerID).
				Str("block_id", block.ID.String()).
				Int("merged_count", res.MergedCount).
				Msg("time blocks merged")
			return s.emit(ctx, providerID, EventMerged, mergeEvent{ProviderID: providerID, Block: block, AbsorbedIDs: ids})
		}
		return s.emit(ctx, providerID, EventCreated, blockEvent{ProviderID: providerID, Block: block})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) createSeries(ctx context.Context, providerID string, in CreateInput) (res *CreateResult, err error) {
	ctx, span := s.startSpan(ctx, "Create", providerID)
	defer func() { endSpan(span, err) }()

	b := &TimeBlock{
		ProviderID:        providerID,
		StartDateTime:     in.Window.Start,
		EndDateTime:       in.Window.End,
		IsRecurring:       true,
		RecurrencePattern: in.RecurrencePattern,
		RecurrenceDays:    in.RecurrenceDays,
		RecurrenceEndDate: in.RecurrenceEndDate,
		Notes:             in.Notes,
	}
	b.normalize()
	if err := validateBlock(b, s.loc, true); err != nil {
		return nil, err
	}

	err = s.mutate(ctx, "create", providerID, func(ctx context.Context) error {
		if err := s.rejectSeriesConflicts(ctx, b); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, b); err != nil {
			return err
		}
		return s.emit(ctx, providerID, EventCreated, blockEvent{ProviderID: providerID, Block: b})
	})
	if err != nil {
		return nil, err
	}
	return &CreateResult{Block: b}, nil
}

// -- Whole-series mutations --

// UpdateSeries applies f to the stored block in place.
func (s *Service) UpdateSeries(ctx context.Context, providerID string, id uuid.UUID, f UpdateFields) (updated *TimeBlock, err error) {
	ctx, span := s.startSpan(ctx, "UpdateSeries", providerID)
	defer func() { endSpan(span, err) }()

	err = s.mutate(ctx, "update", providerID, func(ctx context.Context) error {
		cur, err := s.repo.GetByID(ctx, providerID, id)
		if err != nil {
			return err
		}

		next := cur.Clone()
		if f.StartDateTime != nil {
			next.StartDateTime = *f.StartDateTime
		}
		if f.EndDateTime != nil {
			next.EndDateTime = *f.EndDateTime
		}
		if f.IsRecurring != nil {
			next.IsRecurring = *f.IsRecurring
		}
		if f.RecurrencePattern != nil {
			next.RecurrencePattern = *f.RecurrencePattern
		}
		if f.RecurrenceDays != nil {
			next.RecurrenceDays = append([]int(nil), f.RecurrenceDays...)
		}
		if f.ClearEndDate {
			next.RecurrenceEndDate = nil
		} else if f.RecurrenceEndDate != nil {
			d := *f.RecurrenceEndDate
			next.RecurrenceEndDate = &d
		}
		if f.Notes != nil {
			n := *f.Notes
			next.Notes = &n
		}
		next.normalize()

		checkEndDate := f.StartDateTime != nil || f.RecurrenceEndDate != nil || f.IsRecurring != nil
		if err := validateBlock(next, s.loc, checkEndDate); err != nil {
			return err
		}

		if f.changesShape() {
			if next.IsRecurring {
				err = s.rejectSeriesConflicts(ctx, next)
			} else {
				err = s.rejectConflicts(ctx, providerID, next.Window())
			}
			if err != nil {
				return err
			}
		}

		if err := s.repo.Update(ctx, next); err != nil {
			return err
		}
		updated = next
		return s.emit(ctx, providerID, EventUpdated, blockEvent{ProviderID: providerID, Block: next})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteSeries removes the block and every occurrence derived from it.
func (s *Service) DeleteSeries(ctx context.Context, providerID string, id uuid.UUID) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteSeries", providerID)
	defer func() { endSpan(span, err) }()

	return s.mutate(ctx, "delete", providerID, func(ctx context.Context) error {
		if _, err := s.repo.GetByID(ctx, providerID, id); err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, providerID, id); err != nil {
			return err
		}
		return s.emit(ctx, providerID, EventDeleted, deleteEvent{ProviderID: providerID, BlockID: id})
	})
}

// -- Single-instance mutations --

// ApplyToInstance edits or deletes the occurrence of a recurring block on
// date by truncating the series, optionally inserting an exception block and
// spawning a tail series, all in one transaction.
func (s *Service) ApplyToInstance(ctx context.Context, providerID string, id uuid.UUID, date Date, action Action, edit *InstanceEdit) (result *SplitResult, err error) {
	ctx, span := s.startSpan(ctx, "Split", providerID)
	defer func() { endSpan(span, err) }()
	span.SetAttributes(
		attribute.String("block.id", id.String()),
		attribute.String("occurrence.date", date.String()),
		attribute.String("split.action", string(action)),
	)

	err = s.mutate(ctx, "split", providerID, func(ctx context.Context) error {
		orig, err := s.repo.GetByID(ctx, providerID, id)
		if err != nil {
			return err
		}
		plan, err := s.splitter.Plan(orig, date, action, edit)
		if err != nil {
			return err
		}

		for _, seg := range plan.Segments {
			if exc, ok := seg.(*Exception); ok {
				if err := s.rejectConflicts(ctx, providerID, exc.Block.Window()); err != nil {
					return err
				}
			}
		}

		res := &SplitResult{}
		evt := splitEvent{ProviderID: providerID, SourceBlockID: orig.ID, OccurrenceDate: date, Action: action}
		for _, seg := range plan.Segments {
			switch seg := seg.(type) {
			case *SeriesTruncation:
				if err := s.repo.Update(ctx, seg.Block); err != nil {
					return err
				}
				res.Truncated = seg.Block
			case *Exception:
				if err := s.repo.Create(ctx, seg.Block); err != nil {
					return err
				}
				res.Exception = seg.Block
				evt.ExceptionID = &seg.Block.ID
			case *TailSeries:
				if err := s.repo.Create(ctx, seg.Block); err != nil {
					return err
				}
				res.Tail = seg.Block
				evt.TailID = &seg.Block.ID
			}
		}

		result = res
		return s.emit(ctx, providerID, EventSplit, evt)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
