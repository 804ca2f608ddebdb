package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"k8s.io/utils/clock"

	"complyflow/internal/domain"
	"complyflow/internal/events"
	"complyflow/internal/storage"
)

// Platform notification permission states.
const (
	PermissionDefault = "default"
	PermissionGranted = "granted"
	PermissionDenied  = "denied"
)

// Platform shows notifications outside the app, subject to user permission.
type Platform interface {
	Permission(ctx context.Context) string
	RequestPermission(ctx context.Context) (string, error)
	Show(ctx context.Context, n domain.Notification, persistent bool) error
}

// Sink stores the in-app record of a fired reminder.
type Sink interface {
	Record(ctx context.Context, n domain.Notification) error
}

type CatchUp struct {
	Enabled bool
	MaxAge  time.Duration
	Limit   int
}

type Options struct {
	Interval time.Duration
	Window   time.Duration
	CatchUp  CatchUp
}

func DefaultOptions() Options {
	return Options{
		Interval: time.Minute,
		Window:   60 * time.Second,
		CatchUp:  CatchUp{MaxAge: 24 * time.Hour, Limit: 10},
	}
}

type ListOptions struct {
	UpcomingOnly bool
	Limit        int
}

// Scheduler keeps reminders in storage and fires the ones that come due.
// Delivery is at most once: a reminder is removed before it is fired.
type Scheduler struct {
	Store    *storage.Adapter
	Platform Platform
	Sink     Sink
	Clock    clock.PassiveClock
	Events   events.Recorder
	Logger   *slog.Logger
	Options  Options

	mu       sync.Mutex
	cron     *cron.Cron
	cancel   context.CancelFunc
	lastTick time.Time
}

func New(store *storage.Adapter, opts Options, platform Platform, sink Sink) *Scheduler {
	return &Scheduler{
		Store:    store,
		Platform: platform,
		Sink:     sink,
		Clock:    clock.RealClock{},
		Logger:   slog.Default(),
		Options:  opts,
	}
}

func (s *Scheduler) now() time.Time {
	return s.Clock.Now().UTC()
}

func (s *Scheduler) load(ctx context.Context) ([]domain.Reminder, error) {
	list := []domain.Reminder{}
	if _, err := s.Store.Get(ctx, storage.RemindersKey, &list); err != nil {
		return nil, fmt.Errorf("load reminders: %w", err)
	}
	return list, nil
}

func (s *Scheduler) save(ctx context.Context, list []domain.Reminder) error {
	if err := s.Store.Set(ctx, storage.RemindersKey, list, storage.SetOptions{}); err != nil {
		return fmt.Errorf("save reminders: %w", err)
	}
	return nil
}

func (s *Scheduler) Create(ctx context.Context, r domain.Reminder) (domain.Reminder, error) {
	if err := domain.Check(r); err != nil {
		return domain.Reminder{}, err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Priority == "" {
		r.Priority = domain.PriorityMedium
	}
	r.ScheduledAt = r.ScheduledAt.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.load(ctx)
	if err != nil {
		return domain.Reminder{}, err
	}
	for _, existing := range list {
		if existing.ID == r.ID {
			return domain.Reminder{}, fmt.Errorf("reminder %s already exists: %w", r.ID, domain.ErrInvalidInput)
		}
	}
	if err := s.save(ctx, append(list, r)); err != nil {
		return domain.Reminder{}, err
	}
	return r, nil
}

// List returns reminders ordered by scheduled time.
func (s *Scheduler) List(ctx context.Context, opts ListOptions) ([]domain.Reminder, error) {
	s.mu.Lock()
	list, err := s.load(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].ScheduledAt.Before(list[j].ScheduledAt) })
	if opts.UpcomingOnly {
		now := s.now()
		upcoming := list[:0]
		for _, r := range list {
			if r.ScheduledAt.After(now) {
				upcoming = append(upcoming, r)
			}
		}
		list = upcoming
	}
	if opts.Limit > 0 && len(list) > opts.Limit {
		list = list[:opts.Limit]
	}
	return list, nil
}

func (s *Scheduler) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.load(ctx)
	if err != nil {
		return err
	}
	kept := list[:0]
	found := false
	for _, r := range list {
		if r.ID == id {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return fmt.Errorf("reminder %s: %w", id, domain.ErrNotFound)
	}
	return s.save(ctx, kept)
}

// Check fires reminders whose scheduled time passed no more than Window ago.
// Older reminders are left in place and never fired by Check.
func (s *Scheduler) Check(ctx context.Context) ([]domain.Reminder, error) {
	return s.sweep(ctx, false)
}

// Resume runs the sweep for a process that may have been suspended. With
// catch-up enabled it also fires overdue reminders younger than MaxAge,
// oldest first and at most Limit of them; otherwise it behaves like Check.
func (s *Scheduler) Resume(ctx context.Context) ([]domain.Reminder, error) {
	return s.sweep(ctx, s.Options.CatchUp.Enabled)
}

type firing struct {
	reminder domain.Reminder
	late     bool
}

func (s *Scheduler) sweep(ctx context.Context, catchUp bool) ([]domain.Reminder, error) {
	s.mu.Lock()
	list, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	now := s.now()
	due, kept := s.partition(list, now, catchUp)
	if len(due) > 0 {
		if err := s.save(ctx, kept); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	s.mu.Unlock()

	fired := make([]domain.Reminder, 0, len(due))
	for _, f := range due {
		s.fire(ctx, f, now)
		fired = append(fired, f.reminder)
	}
	return fired, nil
}

func (s *Scheduler) partition(list []domain.Reminder, now time.Time, catchUp bool) ([]firing, []domain.Reminder) {
	var (
		due  []firing
		late []firing
		kept []domain.Reminder
	)
	for _, r := range list {
		age := now.Sub(r.ScheduledAt)
		switch {
		case age >= 0 && age <= s.Options.Window:
			due = append(due, firing{reminder: r})
		case catchUp && age > s.Options.Window && age <= s.Options.CatchUp.MaxAge:
			late = append(late, firing{reminder: r, late: true})
		default:
			kept = append(kept, r)
		}
	}
	sort.SliceStable(late, func(i, j int) bool { return late[i].reminder.ScheduledAt.Before(late[j].reminder.ScheduledAt) })
	if limit := s.Options.CatchUp.Limit; limit > 0 && len(late) > limit {
		for _, f := range late[limit:] {
			kept = append(kept, f.reminder)
		}
		late = late[:limit]
	}
	if kept == nil {
		kept = []domain.Reminder{}
	}
	return append(late, due...), kept
}

func (s *Scheduler) fire(ctx context.Context, f firing, now time.Time) {
	r := f.reminder
	n := domain.Notification{
		ID:        uuid.NewString(),
		Title:     r.Title,
		Message:   r.Message,
		Type:      "reminder",
		Priority:  r.Priority,
		ActionURL: r.ActionURL,
		CreatedAt: now,
		Metadata:  map[string]string{"reminder_id": r.ID},
	}
	for k, v := range r.Metadata {
		n.Metadata[k] = v
	}
	if f.late {
		n.Metadata["late"] = "true"
	}
	logger := s.Logger.With("reminder_id", r.ID)

	if s.Platform != nil {
		perm := s.Platform.Permission(ctx)
		if perm == PermissionDefault {
			var err error
			perm, err = s.Platform.RequestPermission(ctx)
			if err != nil {
				logger.Warn("notification permission request failed", "error", err)
			}
		}
		if perm == PermissionGranted {
			persistent := r.Priority == domain.PriorityHigh || r.Priority == domain.PriorityCritical
			if err := s.Platform.Show(ctx, n, persistent); err != nil {
				logger.Warn("show notification failed", "error", err)
			}
		}
	}
	if s.Sink != nil {
		if err := s.Sink.Record(ctx, n); err != nil {
			logger.Warn("record notification failed", "error", err)
		}
	}
	events.Emit(ctx, s.Events, s.Logger, events.Entry{
		Type: "reminder.fired", EntityKind: "reminder", EntityID: r.ID,
		Payload: events.Payload{"late": f.late, "scheduled_at": r.ScheduledAt.Format(time.RFC3339)},
	})
	logger.Info("reminder fired", "late", f.late)
}

// Start runs one Resume sweep and then checks every Interval. A tick that
// arrives more than two intervals after the previous one is treated as a
// resume from suspension.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cron != nil {
		s.mu.Unlock()
		return errors.New("reminder scheduler already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))
	spec := "@every " + s.Options.Interval.String()
	if _, err := c.AddFunc(spec, func() { s.tick(ctx) }); err != nil {
		s.mu.Unlock()
		cancel()
		return fmt.Errorf("schedule reminder check %q: %w", spec, err)
	}
	s.cron, s.cancel = c, cancel
	s.lastTick = s.now()
	s.mu.Unlock()

	if _, err := s.Resume(ctx); err != nil {
		s.Logger.Warn("initial reminder sweep failed", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Stop ran during the sweep.
	if s.cron != c {
		return nil
	}
	c.Start()
	s.Logger.Info("reminder scheduler started", "interval", s.Options.Interval, "catch_up", s.Options.CatchUp.Enabled)
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	s.mu.Lock()
	gap := now.Sub(s.lastTick)
	s.lastTick = now
	s.mu.Unlock()

	var err error
	if gap > 2*s.Options.Interval {
		s.Logger.Info("reminder ticks resumed after a gap", "gap", gap)
		_, err = s.Resume(ctx)
	} else {
		_, err = s.Check(ctx)
	}
	if err != nil {
		s.Logger.Warn("reminder check failed", "error", err)
	}
}

// Stop halts the timer and waits for a running check to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	cancel()
	s.Logger.Info("reminder scheduler stopped")
}
