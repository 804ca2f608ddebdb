package evidence

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"complyflow/internal/domain"
	"complyflow/internal/events"
	"complyflow/internal/storage"
)

// Audit actions.
const (
	ActionUploaded   = "uploaded"
	ActionUpdated    = "updated"
	ActionLinkedTask = "linked_task"
	ActionViewed     = "viewed"
	ActionDownloaded = "downloaded"
)

// Vault stores evidence items under a single key with an append-only audit trail per item.
type Vault struct {
	Store  *storage.Adapter
	Clock  clock.PassiveClock
	Events events.Recorder
	Logger *slog.Logger

	mu sync.Mutex
}

func New(store *storage.Adapter) *Vault {
	return &Vault{Store: store, Clock: clock.RealClock{}, Logger: slog.Default()}
}

type AddInput struct {
	Name        string   `json:"name" validate:"required"`
	Type        string   `json:"type" validate:"required,oneof=policy procedure assessment training technical legal"`
	Category    string   `json:"category,omitempty"`
	Description string   `json:"description,omitempty"`
	SizeBytes   int64    `json:"size_bytes,omitempty" validate:"gte=0"`
	Tags        []string `json:"tags,omitempty"`
	LinkedTasks []string `json:"linked_tasks,omitempty"`
	Frameworks  []string `json:"frameworks,omitempty"`
}

// UpdateInput changes the non-nil fields.
type UpdateInput struct {
	Name        *string  `json:"name,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Description *string  `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Frameworks  []string `json:"frameworks,omitempty"`
}

type Filter struct {
	Type      string
	Framework string
	Tag       string
	// Query matches name, description or category, case-insensitively.
	Query string
}

func (f Filter) match(it domain.EvidenceItem) bool {
	if f.Type != "" && it.Type != f.Type {
		return false
	}
	if f.Framework != "" && !slices.Contains(it.Frameworks, f.Framework) {
		return false
	}
	if f.Tag != "" && !slices.Contains(it.Tags, f.Tag) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		text := strings.ToLower(it.Name + " " + it.Description + " " + it.Category)
		if !strings.Contains(text, q) {
			return false
		}
	}
	return true
}

func (v *Vault) load(ctx context.Context) ([]domain.EvidenceItem, error) {
	items := []domain.EvidenceItem{}
	if _, err := v.Store.Get(ctx, storage.EvidenceKey, &items); err != nil {
		return nil, fmt.Errorf("load evidence: %w", err)
	}
	return items, nil
}

func (v *Vault) save(ctx context.Context, items []domain.EvidenceItem) error {
	if err := v.Store.Set(ctx, storage.EvidenceKey, items, storage.SetOptions{Compress: true}); err != nil {
		return fmt.Errorf("save evidence: %w", err)
	}
	return nil
}

func (v *Vault) Add(ctx context.Context, in AddInput, actorID string) (domain.EvidenceItem, error) {
	if err := domain.Check(in); err != nil {
		return domain.EvidenceItem{}, err
	}
	now := v.Clock.Now().UTC()
	it := domain.EvidenceItem{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Type:         in.Type,
		Category:     in.Category,
		Description:  in.Description,
		UploadedAt:   now,
		LastModified: now,
		UploadedBy:   actorID,
		Tags:         nonNil(in.Tags),
		LinkedTasks:  nonNil(in.LinkedTasks),
		Frameworks:   nonNil(in.Frameworks),
		AuditTrail:   []domain.AuditEntry{{Action: ActionUploaded, User: actorID, Timestamp: now}},
	}
	if in.SizeBytes > 0 {
		it.FileSize = humanize.Bytes(uint64(in.SizeBytes))
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	items, err := v.load(ctx)
	if err != nil {
		return domain.EvidenceItem{}, err
	}
	if err := v.save(ctx, append(items, it)); err != nil {
		return domain.EvidenceItem{}, err
	}
	events.Emit(ctx, v.Events, v.Logger, events.Entry{
		Type: "evidence.added", EntityKind: "evidence", EntityID: it.ID, ActorID: actorID,
		Payload: events.Payload{"name": it.Name, "type": it.Type},
	})
	return it, nil
}

func (v *Vault) Get(ctx context.Context, id string) (domain.EvidenceItem, error) {
	v.mu.Lock()
	items, err := v.load(ctx)
	v.mu.Unlock()
	if err != nil {
		return domain.EvidenceItem{}, err
	}
	for _, it := range items {
		if it.ID == id {
			return it, nil
		}
	}
	return domain.EvidenceItem{}, fmt.Errorf("evidence %s: %w", id, domain.ErrNotFound)
}

// List returns matching items, most recently modified first.
func (v *Vault) List(ctx context.Context, f Filter) ([]domain.EvidenceItem, error) {
	v.mu.Lock()
	items, err := v.load(ctx)
	v.mu.Unlock()
	if err != nil {
		return nil, err
	}
	res := []domain.EvidenceItem{}
	for _, it := range items {
		if f.match(it) {
			res = append(res, it)
		}
	}
	slices.SortStableFunc(res, func(a, b domain.EvidenceItem) int {
		return b.LastModified.Compare(a.LastModified)
	})
	return res, nil
}

func (v *Vault) Update(ctx context.Context, id string, in UpdateInput, actorID string) (domain.EvidenceItem, error) {
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return domain.EvidenceItem{}, domain.ValidationError{Errors: []string{"name is required"}}
	}
	var changed []string
	return v.mutate(ctx, id, actorID, ActionUpdated, func(it *domain.EvidenceItem) error {
		if in.Name != nil {
			it.Name = *in.Name
			changed = append(changed, "name")
		}
		if in.Category != nil {
			it.Category = *in.Category
			changed = append(changed, "category")
		}
		if in.Description != nil {
			it.Description = *in.Description
			changed = append(changed, "description")
		}
		if in.Tags != nil {
			it.Tags = slices.Clone(in.Tags)
			changed = append(changed, "tags")
		}
		if in.Frameworks != nil {
			it.Frameworks = slices.Clone(in.Frameworks)
			changed = append(changed, "frameworks")
		}
		it.LastModified = v.Clock.Now().UTC()
		return nil
	}, func() string { return strings.Join(changed, ",") })
}

// LinkTask records that the item supports taskID. Linking twice keeps one link.
func (v *Vault) LinkTask(ctx context.Context, id, taskID, actorID string) (domain.EvidenceItem, error) {
	if strings.TrimSpace(taskID) == "" {
		return domain.EvidenceItem{}, fmt.Errorf("task id is empty: %w", domain.ErrInvalidInput)
	}
	return v.mutate(ctx, id, actorID, ActionLinkedTask, func(it *domain.EvidenceItem) error {
		if !slices.Contains(it.LinkedTasks, taskID) {
			it.LinkedTasks = append(it.LinkedTasks, taskID)
		}
		return nil
	}, func() string { return taskID })
}

// RecordAccess appends a viewed or downloaded audit entry.
func (v *Vault) RecordAccess(ctx context.Context, id, action, actorID string) (domain.EvidenceItem, error) {
	if action != ActionViewed && action != ActionDownloaded {
		return domain.EvidenceItem{}, fmt.Errorf("access action %q: %w", action, domain.ErrInvalidInput)
	}
	return v.mutate(ctx, id, actorID, action, func(*domain.EvidenceItem) error { return nil }, nil)
}

func (v *Vault) mutate(ctx context.Context, id, actorID, action string, fn func(*domain.EvidenceItem) error, details func() string) (domain.EvidenceItem, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	items, err := v.load(ctx)
	if err != nil {
		return domain.EvidenceItem{}, err
	}
	i := slices.IndexFunc(items, func(it domain.EvidenceItem) bool { return it.ID == id })
	if i < 0 {
		return domain.EvidenceItem{}, fmt.Errorf("evidence %s: %w", id, domain.ErrNotFound)
	}
	it := items[i]
	it.Tags = slices.Clone(it.Tags)
	it.LinkedTasks = slices.Clone(it.LinkedTasks)
	it.AuditTrail = slices.Clone(it.AuditTrail)
	if err := fn(&it); err != nil {
		return domain.EvidenceItem{}, err
	}
	entry := domain.AuditEntry{Action: action, User: actorID, Timestamp: v.Clock.Now().UTC()}
	if details != nil {
		entry.Details = details()
	}
	it.AuditTrail = append(it.AuditTrail, entry)
	items[i] = it
	if err := v.save(ctx, items); err != nil {
		return domain.EvidenceItem{}, err
	}
	return it, nil
}

func (v *Vault) Delete(ctx context.Context, id, actorID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	items, err := v.load(ctx)
	if err != nil {
		return err
	}
	kept := slices.DeleteFunc(slices.Clone(items), func(it domain.EvidenceItem) bool { return it.ID == id })
	if len(kept) == len(items) {
		return fmt.Errorf("evidence %s: %w", id, domain.ErrNotFound)
	}
	if err := v.save(ctx, kept); err != nil {
		return err
	}
	events.Emit(ctx, v.Events, v.Logger, events.Entry{
		Type: "evidence.deleted", EntityKind: "evidence", EntityID: id, ActorID: actorID,
	})
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}
