package timeblock

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/salonhub/availability/internal/domain/appointment"
	"github.com/salonhub/availability/internal/platform/outbox"
)

var errInjected = errors.New("injected failure")

// -- Mock Repository --

type mockRepo struct {
	blocks map[uuid.UUID]*TimeBlock
	// fail maps a method name to the error it returns on its next call.
	fail map[string]error
	// failAfter lets the named method succeed this many times first.
	failAfter map[string]int
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		blocks:    make(map[uuid.UUID]*TimeBlock),
		fail:      make(map[string]error),
		failAfter: make(map[string]int),
	}
}

func (m *mockRepo) injected(method string) error {
	err, ok := m.fail[method]
	if !ok {
		return nil
	}
	if n := m.failAfter[method]; n > 0 {
		m.failAfter[method] = n - 1
		return nil
	}
	delete(m.fail, method)
	return err
}

func (m *mockRepo) snapshot() map[uuid.UUID]*TimeBlock {
	out := make(map[uuid.UUID]*TimeBlock, len(m.blocks))
	for id, b := range m.blocks {
		out[id] = b.Clone()
	}
	return out
}

func (m *mockRepo) Create(_ context.Context, b *TimeBlock) error {
	if err := m.injected("Create"); err != nil {
		return err
	}
	b.ID = uuid.New()
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	m.blocks[b.ID] = b.Clone()
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, providerID string, id uuid.UUID) (*TimeBlock, error) {
	b, ok := m.blocks[id]
	if !ok || b.ProviderID != providerID {
		return nil, &NotFoundError{ID: id}
	}
	return b.Clone(), nil
}

func (m *mockRepo) Update(_ context.Context, b *TimeBlock) error {
	if err := m.injected("Update"); err != nil {
		return err
	}
	cur, ok := m.blocks[b.ID]
	if !ok || cur.ProviderID != b.ProviderID {
		return &NotFoundError{ID: b.ID}
	}
	b.UpdatedAt = time.Now()
	m.blocks[b.ID] = b.Clone()
	return nil
}

func (m *mockRepo) Delete(_ context.Context, providerID string, id uuid.UUID) error {
	if err := m.injected("Delete"); err != nil {
		return err
	}
	b, ok := m.blocks[id]
	if !ok || b.ProviderID != providerID {
		return &NotFoundError{ID: id}
	}
	delete(m.blocks, id)
	return nil
}

func (m *mockRepo) sorted(providerID string, keep func(*TimeBlock) bool) []*TimeBlock {
	var out []*TimeBlock
	for _, b := range m.blocks {
		if b.ProviderID == providerID && keep(b) {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDateTime.Equal(out[j].StartDateTime) {
			return out[i].StartDateTime.Before(out[j].StartDateTime)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (m *mockRepo) ListByProvider(_ context.Context, providerID string, limit, offset int) ([]*TimeBlock, int, error) {
	all := m.sorted(providerID, func(*TimeBlock) bool { return true })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockRepo) ListInRange(_ context.Context, providerID string, r Window) ([]*TimeBlock, error) {
	if err := m.injected("ListInRange"); err != nil {
		return nil, err
	}
	return m.sorted(providerID, func(b *TimeBlock) bool {
		if !b.IsRecurring {
			return b.Window().Overlaps(r)
		}
		return b.StartDateTime.Before(r.End)
	}), nil
}

func (m *mockRepo) ListMergeCandidates(_ context.Context, providerID string, w Window) ([]*TimeBlock, error) {
	return m.sorted(providerID, func(b *TimeBlock) bool {
		return !b.IsRecurring && b.Window().Touches(w)
	}), nil
}

// -- Mock Transaction Runner --

// mockTx restores the repository and recorded events when fn fails.
type mockTx struct {
	repo   *mockRepo
	events *mockEvents
	keys   []string
}

func (m *mockTx) WithLockedTx(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	m.keys = append(m.keys, key)
	saved := m.repo.snapshot()
	savedEvents := len(m.events.events)
	if err := fn(ctx); err != nil {
		m.repo.blocks = saved
		m.events.events = m.events.events[:savedEvents]
		return err
	}
	return nil
}

// -- Mock Appointments --

type mockAppts struct {
	items []*appointment.Appointment
	calls int
	err   error
}

func (m *mockAppts) add(providerID string, start, end time.Time, status string) *appointment.Appointment {
	a := &appointment.Appointment{
		ID:           uuid.NewString(),
		ProviderID:   providerID,
		CustomerName: "Dana Client",
		ServiceName:  "Haircut",
		Start:        start,
		End:          end,
		Status:       status,
	}
	m.items = append(m.items, a)
	return a
}

// ListActive deliberately returns canceled rows too so callers' filtering is
// exercised.
func (m *mockAppts) ListActive(_ context.Context, providerID string, start, end time.Time) ([]*appointment.Appointment, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var out []*appointment.Appointment
	for _, a := range m.items {
		if a.ProviderID == providerID && a.Overlaps(start, end) {
			out = append(out, a)
		}
	}
	return out, nil
}

// -- Mock Events --

type mockEvents struct {
	events []outbox.Event
}

func (m *mockEvents) Append(_ context.Context, evt outbox.Event) error {
	m.events = append(m.events, evt)
	return nil
}

func (m *mockEvents) types() []string {
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.EventType
	}
	return out
}

// -- Helpers --

const testProvider = "prov-1"

// testNow is the fixed clock of every service test.
var testNow = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

type testEnv struct {
	svc    *Service
	repo   *mockRepo
	tx     *mockTx
	appts  *mockAppts
	events *mockEvents
}

func newTestEnv(opts ...Option) *testEnv {
	repo := newMockRepo()
	events := &mockEvents{}
	tx := &mockTx{repo: repo, events: events}
	appts := &mockAppts{}
	base := []Option{
		WithClock(func() time.Time { return testNow }),
		WithEvents(events),
	}
	svc := NewService(repo, tx, appts, append(base, opts...)...)
	return &testEnv{svc: svc, repo: repo, tx: tx, appts: appts, events: events}
}

// at is a January 2025 instant in UTC.
func at(d, h, m int) time.Time {
	return time.Date(2025, time.January, d, h, m, 0, 0, time.UTC)
}

func jan(d int) Date {
	return Date{Year: 2025, Month: time.January, Day: d}
}

func strPtr(s string) *string { return &s }

func datePtr(d Date) *Date { return &d }

func dailySeries(start, end time.Time, endDate *Date) *TimeBlock {
	return &TimeBlock{
		ID:                uuid.New(),
		ProviderID:        testProvider,
		StartDateTime:     start,
		EndDateTime:       end,
		IsRecurring:       true,
		RecurrencePattern: PatternDaily,
		RecurrenceDays:    []int{},
		RecurrenceEndDate: endDate,
	}
}

func dates(occ []Occurrence) []Date {
	out := make([]Date, len(occ))
	for i, o := range occ {
		out[i] = o.OccurrenceDate
	}
	return out
}
