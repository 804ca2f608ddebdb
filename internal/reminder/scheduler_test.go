package reminder_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"complyflow/internal/domain"
	"complyflow/internal/events"
	"complyflow/internal/logging"
	"complyflow/internal/reminder"
	"complyflow/internal/storage"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakePlatform struct {
	mu         sync.Mutex
	permission string
	grant      string
	requests   int
	shown      []domain.Notification
	persistent []bool
}

func (p *fakePlatform) Permission(context.Context) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permission
}

func (p *fakePlatform) RequestPermission(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests++
	p.permission = p.grant
	return p.grant, nil
}

func (p *fakePlatform) Show(_ context.Context, n domain.Notification, persistent bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shown = append(p.shown, n)
	p.persistent = append(p.persistent, persistent)
	return nil
}

type fakeSink struct {
	mu    sync.Mutex
	items []domain.Notification
}

func (s *fakeSink) Record(_ context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, n)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

type harness struct {
	sched    *reminder.Scheduler
	clock    *clocktesting.FakeClock
	platform *fakePlatform
	sink     *fakeSink
	events   *events.Memory
}

func newHarness(t *testing.T, opts reminder.Options) harness {
	t.Helper()
	clk := clocktesting.NewFakeClock(base)
	platform := &fakePlatform{permission: reminder.PermissionGranted}
	sink := &fakeSink{}
	rec := &events.Memory{}
	s := reminder.New(storage.New(storage.NewMemory(), storage.WithLogger(logging.Discard())), opts, platform, sink)
	s.Clock = clk
	s.Events = rec
	s.Logger = logging.Discard()
	return harness{sched: s, clock: clk, platform: platform, sink: sink, events: rec}
}

func TestCheckFiresWithinWindow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, reminder.DefaultOptions())
	r, err := h.sched.Create(ctx, domain.Reminder{Title: "Review DPIA", Message: "Annual review", ScheduledAt: base, Metadata: map[string]string{"project_id": "p1"}})
	require.NoError(t, err)
	require.NotEmpty(t, r.ID)
	require.Equal(t, domain.PriorityMedium, r.Priority)

	h.clock.SetTime(base.Add(30 * time.Second))
	fired, err := h.sched.Check(ctx)
	require.NoError(t, err)
	require.Len(t, fired, 1)
	require.Equal(t, r.ID, fired[0].ID)

	list, err := h.sched.List(ctx, reminder.ListOptions{})
	require.NoError(t, err)
	require.Empty(t, list)

	require.Len(t, h.platform.shown, 1)
	require.False(t, h.platform.persistent[0])
	require.Equal(t, "Review DPIA", h.sink.items[0].Title)
	require.Equal(t, "reminder", h.sink.items[0].Type)
	require.Equal(t, r.ID, h.sink.items[0].Metadata["reminder_id"])
	require.Equal(t, "p1", h.sink.items[0].Metadata["project_id"])
	require.Equal(t, []string{"reminder.fired"}, h.events.Types())

	fired, err = h.sched.Check(ctx)
	require.NoError(t, err)
	require.Empty(t, fired)
	require.Equal(t, 1, h.sink.count())
}

func TestCheckSkipsMissedWindow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, reminder.DefaultOptions())
	_, err := h.sched.Create(ctx, domain.Reminder{Title: "Missed", ScheduledAt: base})
	require.NoError(t, err)

	h.clock.SetTime(base.Add(90 * time.Second))
	fired, err := h.sched.Check(ctx)
	require.NoError(t, err)
	require.Empty(t, fired)
	require.Zero(t, h.sink.count())

	list, err := h.sched.List(ctx, reminder.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)

	// without catch-up, resume drops it too
	fired, err = h.sched.Resume(ctx)
	require.NoError(t, err)
	require.Empty(t, fired)
}

func TestCheckIgnoresFutureReminders(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, reminder.DefaultOptions())
	_, err := h.sched.Create(ctx, domain.Reminder{Title: "Later", ScheduledAt: base.Add(time.Hour)})
	require.NoError(t, err)
	fired, err := h.sched.Check(ctx)
	require.NoError(t, err)
	require.Empty(t, fired)
}

func TestResumeCatchesUpOldestFirst(t *testing.T) {
	ctx := context.Background()
	opts := reminder.DefaultOptions()
	opts.CatchUp = reminder.CatchUp{Enabled: true, MaxAge: time.Hour, Limit: 2}
	h := newHarness(t, opts)

	for _, spec := range []struct {
		title string
		at    time.Time
	}{
		{"stale", base.Add(-2 * time.Hour)},
		{"late-1", base.Add(-50 * time.Minute)},
		{"late-2", base.Add(-40 * time.Minute)},
		{"late-3", base.Add(-30 * time.Minute)},
		{"due", base.Add(-10 * time.Second)},
	} {
		_, err := h.sched.Create(ctx, domain.Reminder{Title: spec.title, ScheduledAt: spec.at, Priority: domain.PriorityHigh})
		require.NoError(t, err)
	}

	// Check never catches up
	fired, err := h.sched.Check(ctx)
	require.NoError(t, err)
	require.Len(t, fired, 1)
	require.Equal(t, "due", fired[0].Title)

	fired, err = h.sched.Resume(ctx)
	require.NoError(t, err)
	require.Len(t, fired, 2)
	require.Equal(t, "late-1", fired[0].Title)
	require.Equal(t, "late-2", fired[1].Title)
	require.Equal(t, "true", h.sink.items[1].Metadata["late"])
	require.True(t, h.platform.persistent[1])

	list, err := h.sched.List(ctx, reminder.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "stale", list[0].Title)
	require.Equal(t, "late-3", list[1].Title)
}

func TestPermissionFlow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, reminder.DefaultOptions())
	h.platform.permission = reminder.PermissionDefault
	h.platform.grant = reminder.PermissionDenied

	_, err := h.sched.Create(ctx, domain.Reminder{Title: "One", ScheduledAt: base})
	require.NoError(t, err)
	_, err = h.sched.Check(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, h.platform.requests)
	require.Empty(t, h.platform.shown)
	require.Equal(t, 1, h.sink.count())

	_, err = h.sched.Create(ctx, domain.Reminder{Title: "Two", ScheduledAt: base})
	require.NoError(t, err)
	_, err = h.sched.Check(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, h.platform.requests)
	require.Equal(t, 2, h.sink.count())
}

func TestListOrderingAndFilters(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, reminder.DefaultOptions())
	for _, off := range []time.Duration{3 * time.Hour, -time.Hour, time.Hour, 2 * time.Hour} {
		_, err := h.sched.Create(ctx, domain.Reminder{Title: off.String(), ScheduledAt: base.Add(off)})
		require.NoError(t, err)
	}
	all, err := h.sched.List(ctx, reminder.ListOptions{})
	require.NoError(t, err)
	require.Equal(t, "-1h0m0s", all[0].Title)
	require.Equal(t, "3h0m0s", all[3].Title)

	upcoming, err := h.sched.List(ctx, reminder.ListOptions{UpcomingOnly: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	require.Equal(t, "1h0m0s", upcoming[0].Title)
	require.Equal(t, "2h0m0s", upcoming[1].Title)
}

func TestCreateAndDeleteErrors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, reminder.DefaultOptions())
	_, err := h.sched.Create(ctx, domain.Reminder{})
	require.Equal(t, domain.KindValidationFailed, domain.KindOf(err))
	_, err = h.sched.Create(ctx, domain.Reminder{Title: "x", ScheduledAt: base, Priority: "urgent"})
	require.Equal(t, domain.KindValidationFailed, domain.KindOf(err))

	r, err := h.sched.Create(ctx, domain.Reminder{ID: "fixed", Title: "x", ScheduledAt: base})
	require.NoError(t, err)
	_, err = h.sched.Create(ctx, domain.Reminder{ID: "fixed", Title: "y", ScheduledAt: base})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	require.NoError(t, h.sched.Delete(ctx, r.ID))
	require.ErrorIs(t, h.sched.Delete(ctx, r.ID), domain.ErrNotFound)
}

type brokenSet struct{ storage.Backend }

func (brokenSet) Set(context.Context, string, string) error { return errors.New("disk full") }

func TestFailedRemovalDoesNotFire(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	adapter := storage.New(mem, storage.WithLogger(logging.Discard()))
	require.NoError(t, adapter.Set(ctx, storage.RemindersKey, []domain.Reminder{{ID: "r1", Title: "x", ScheduledAt: base}}, storage.SetOptions{}))

	sink := &fakeSink{}
	s := reminder.New(storage.New(brokenSet{mem}, storage.WithLogger(logging.Discard())), reminder.DefaultOptions(), nil, sink)
	s.Clock = clocktesting.NewFakeClock(base)
	s.Logger = logging.Discard()

	_, err := s.Check(ctx)
	require.Equal(t, domain.KindStorageUnavailable, domain.KindOf(err))
	require.Zero(t, sink.count())
}

func TestStartRunsInitialSweepAndStops(t *testing.T) {
	ctx := context.Background()
	opts := reminder.DefaultOptions()
	opts.Interval = time.Hour
	h := newHarness(t, opts)
	_, err := h.sched.Create(ctx, domain.Reminder{Title: "on start", ScheduledAt: base.Add(-5 * time.Second)})
	require.NoError(t, err)

	require.NoError(t, h.sched.Start(ctx))
	require.Error(t, h.sched.Start(ctx))
	require.Equal(t, 1, h.sink.count())
	h.sched.Stop()
	h.sched.Stop()
}

type blockingPlatform struct {
	fakePlatform
	once    sync.Once
	asked   chan struct{}
	release chan struct{}
}

func (p *blockingPlatform) Permission(context.Context) string { return reminder.PermissionDefault }

func (p *blockingPlatform) RequestPermission(context.Context) (string, error) {
	p.once.Do(func() { close(p.asked) })
	<-p.release
	return reminder.PermissionDenied, nil
}

func TestStopDuringInitialSweep(t *testing.T) {
	ctx := context.Background()
	opts := reminder.DefaultOptions()
	opts.Interval = time.Hour
	h := newHarness(t, opts)
	platform := &blockingPlatform{asked: make(chan struct{}), release: make(chan struct{})}
	h.sched.Platform = platform
	_, err := h.sched.Create(ctx, domain.Reminder{Title: "slow", ScheduledAt: base.Add(-time.Second)})
	require.NoError(t, err)

	started := make(chan error, 1)
	go func() { started <- h.sched.Start(ctx) }()
	<-platform.asked
	h.sched.Stop()
	close(platform.release)

	select {
	case err := <-started:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
	h.sched.Stop()

	require.NoError(t, h.sched.Start(ctx))
	h.sched.Stop()
}
