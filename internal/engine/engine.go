package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"k8s.io/utils/clock"

	"complyflow/internal/config"
	"complyflow/internal/db"
	"complyflow/internal/domain"
	"complyflow/internal/events"
	"complyflow/internal/evidence"
	"complyflow/internal/migrate"
	"complyflow/internal/notify"
	"complyflow/internal/project"
	"complyflow/internal/reminder"
	"complyflow/internal/settings"
	"complyflow/internal/storage"
	"complyflow/internal/workflow"
)

// Engine holds every service of one workspace, sharing a storage adapter.
type Engine struct {
	Config    *config.Config
	DB        *sql.DB
	Store     *storage.Adapter
	Events    events.Writer
	Workflows *workflow.Table
	Progress  *workflow.Tracker
	Projects  *project.Manager
	Reminders *reminder.Scheduler
	Inbox     *notify.Inbox
	Bus       *notify.Bus
	Evidence  *evidence.Vault
	Settings  *settings.Settings
	Logger    *slog.Logger

	closers []func() error
}

type Options struct {
	Workspace string
	Config    *config.Config
	Logger    *slog.Logger
	Clock     clock.PassiveClock
	// Out receives console notifications; defaults to stderr.
	Out io.Writer
	// Backend replaces the configured storage backend.
	Backend storage.Backend
}

// Open connects the configured backend, runs migrations and wires the services.
// Activity events always go to the workspace SQLite database, or to a private
// in-memory one for the memory backend.
func Open(ctx context.Context, opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	e := &Engine{Config: cfg, Logger: logger}

	conn, err := db.Open(db.Config{Workspace: opts.Workspace, Memory: cfg.Storage.Backend == "memory"})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	e.closers = append(e.closers, conn.Close)
	if err := migrate.Migrate(ctx, conn); err != nil {
		e.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e.DB = conn
	e.Events = events.Writer{DB: conn, Now: clk.Now}

	backend := opts.Backend
	if backend == nil {
		if backend, err = e.openBackend(ctx, conn, clk); err != nil {
			e.Close()
			return nil, err
		}
	}
	e.Store = storage.New(backend,
		storage.WithClock(clk),
		storage.WithLogger(logger.With("module", "storage")),
		storage.WithDiagnostics(func(d storage.Diagnostic) {
			logger.Warn("storage failure", "op", d.Op, "key", d.Key, "error", d.Err)
		}),
	)

	table, err := workflow.LoadFile(cfg.Workflows.File)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("load workflows: %w", err)
	}
	e.Workflows = table
	e.Progress = workflow.NewTracker(table, e.Store, cfg.Workflows.ProgressScope)
	e.Progress.Clock, e.Progress.Events, e.Progress.Logger = clk, e.Events, logger.With("module", "workflow")

	e.Projects = project.New(e.Store)
	e.Projects.Clock, e.Projects.Events, e.Projects.Logger = clk, e.Events, logger.With("module", "project")

	e.Inbox = notify.NewInbox(e.Store, cfg.Notifications.InboxCap)
	e.Inbox.Clock = clk
	e.Bus = notify.NewBus(logger.With("module", "bus"))
	e.closers = append(e.closers, e.Bus.Close)

	platform := notify.Multi{
		notify.NewConsole(out, cfg.Notifications.Desktop),
		notify.NewWebhook(cfg.Notifications.Webhooks),
	}
	e.Reminders = reminder.New(e.Store, reminder.Options{
		Interval: cfg.Reminders.Interval,
		Window:   cfg.Reminders.Window,
		CatchUp: reminder.CatchUp{
			Enabled: cfg.Reminders.CatchUp.Enabled,
			MaxAge:  cfg.Reminders.CatchUp.MaxAge,
			Limit:   cfg.Reminders.CatchUp.Limit,
		},
	}, platform, e.Inbox)
	e.Reminders.Clock, e.Reminders.Events, e.Reminders.Logger = clk, e.Events, logger.With("module", "reminder")

	e.Evidence = evidence.New(e.Store)
	e.Evidence.Clock, e.Evidence.Events, e.Evidence.Logger = clk, e.Events, logger.With("module", "evidence")

	e.Settings = settings.New(e.Store, cfg.App.DefaultMode)
	e.Settings.Events, e.Settings.Logger = e.Events, logger.With("module", "settings")
	return e, nil
}

func (e *Engine) openBackend(ctx context.Context, conn *sql.DB, clk clock.PassiveClock) (storage.Backend, error) {
	st := e.Config.Storage
	switch st.Backend {
	case "memory":
		return storage.NewMemory(), nil
	case "sqlite", "":
		return storage.SQLite{DB: conn, Now: clk.Now}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: st.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis %s: %w", st.RedisAddr, err)
		}
		e.closers = append(e.closers, client.Close)
		return storage.NewRedis(client, st.RedisPrefix), nil
	case "postgres":
		pg, err := storage.ConnectPostgres(ctx, st.PostgresDSN)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, func() error { pg.Close(); return nil })
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", st.Backend)
	}
}

// RelayNotifications routes fired reminders through the bus into the inbox
// until ctx is done.
func (e *Engine) RelayNotifications(ctx context.Context) (<-chan struct{}, error) {
	done, err := e.Bus.Relay(ctx, e.Inbox)
	if err != nil {
		return nil, err
	}
	e.Reminders.Sink = e.Bus
	return done, nil
}

// LinkTaskEvidence links an evidence item and a task on both sides: the task's
// evidence list and the item's linked tasks. An empty projectID means the
// current project.
func (e *Engine) LinkTaskEvidence(ctx context.Context, projectID, taskID, evidenceID, actorID string) (domain.Project, domain.EvidenceItem, error) {
	if projectID == "" {
		cur, err := e.Projects.Current(ctx)
		if err != nil {
			return domain.Project{}, domain.EvidenceItem{}, err
		}
		projectID = cur.ID
	}
	if _, err := e.Evidence.Get(ctx, evidenceID); err != nil {
		return domain.Project{}, domain.EvidenceItem{}, err
	}
	if _, err := e.Projects.Task(ctx, projectID, taskID); err != nil {
		return domain.Project{}, domain.EvidenceItem{}, err
	}
	it, err := e.Evidence.LinkTask(ctx, evidenceID, taskID, actorID)
	if err != nil {
		return domain.Project{}, domain.EvidenceItem{}, err
	}
	p, err := e.Projects.AddEvidence(ctx, projectID, taskID, evidenceID, actorID)
	if err != nil {
		return domain.Project{}, domain.EvidenceItem{}, err
	}
	return p, it, nil
}

// Close releases connections in reverse order of acquisition.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
