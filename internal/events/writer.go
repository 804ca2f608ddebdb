package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"complyflow/internal/domain"
)

type Payload map[string]any

// Entry is an activity record before it is stored.
type Entry struct {
	Type       string
	EntityKind string
	EntityID   string
	ActorID    string
	Payload    Payload
}

type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Emit records e on r and logs instead of failing; activity is best effort.
func Emit(ctx context.Context, r Recorder, logger *slog.Logger, e Entry) {
	if r == nil {
		return
	}
	if e.ActorID == "" {
		e.ActorID = "system"
	}
	if err := r.Record(ctx, e); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("record activity failed", "type", e.Type, "entity_id", e.EntityID, "error", err)
	}
}

// Writer appends entries to the events table.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

func (w Writer) Record(ctx context.Context, e Entry) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	payload := e.Payload
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = w.DB.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), e.Type, e.EntityKind, nullable(e.EntityID), e.ActorID, string(data))
	return err
}

type Filter struct {
	Limit      int
	Type       string
	EntityKind string
	EntityID   string
}

// Latest returns the newest events first.
func (w Writer) Latest(ctx context.Context, f Filter) ([]domain.Event, error) {
	var (
		clauses []string
		args    []any
	)
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit)
	rows, err := w.DB.QueryContext(ctx, `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events `+where+` ORDER BY id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// Memory keeps entries in process.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *Memory) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

// Types returns the recorded event types in order.
func (m *Memory) Types() []string {
	var types []string
	for _, e := range m.Entries() {
		types = append(types, e.Type)
	}
	return types
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
