package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"complyflow/internal/domain"
	"complyflow/internal/storage"
)

const DefaultInboxCap = 200

// Inbox is the in-app notification list, newest first.
type Inbox struct {
	Store *storage.Adapter
	Cap   int
	Clock clock.PassiveClock

	mu sync.Mutex
}

func NewInbox(store *storage.Adapter, capacity int) *Inbox {
	if capacity <= 0 {
		capacity = DefaultInboxCap
	}
	return &Inbox{Store: store, Cap: capacity, Clock: clock.RealClock{}}
}

type ListOptions struct {
	UnreadOnly bool
	Limit      int
}

func (in *Inbox) load(ctx context.Context) ([]domain.Notification, error) {
	list := []domain.Notification{}
	if _, err := in.Store.Get(ctx, storage.NotificationsKey, &list); err != nil {
		return nil, fmt.Errorf("load notifications: %w", err)
	}
	return list, nil
}

func (in *Inbox) save(ctx context.Context, list []domain.Notification) error {
	if err := in.Store.Set(ctx, storage.NotificationsKey, list, storage.SetOptions{Compress: true}); err != nil {
		return fmt.Errorf("save notifications: %w", err)
	}
	return nil
}

// Record prepends n, dropping the oldest entries beyond Cap.
func (in *Inbox) Record(ctx context.Context, n domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = in.Clock.Now().UTC()
	}
	if n.Priority == "" {
		n.Priority = domain.PriorityMedium
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	list, err := in.load(ctx)
	if err != nil {
		return err
	}
	list = append([]domain.Notification{n}, list...)
	if len(list) > in.Cap {
		list = list[:in.Cap]
	}
	return in.save(ctx, list)
}

func (in *Inbox) List(ctx context.Context, opts ListOptions) ([]domain.Notification, error) {
	in.mu.Lock()
	list, err := in.load(ctx)
	in.mu.Unlock()
	if err != nil {
		return nil, err
	}
	res := []domain.Notification{}
	for _, n := range list {
		if opts.UnreadOnly && n.Read {
			continue
		}
		res = append(res, n)
		if opts.Limit > 0 && len(res) == opts.Limit {
			break
		}
	}
	return res, nil
}

func (in *Inbox) UnreadCount(ctx context.Context) (int, error) {
	unread, err := in.List(ctx, ListOptions{UnreadOnly: true})
	return len(unread), err
}

func (in *Inbox) MarkRead(ctx context.Context, id string) error {
	return in.mutate(ctx, func(list []domain.Notification) ([]domain.Notification, error) {
		for i := range list {
			if list[i].ID == id {
				list[i].Read = true
				return list, nil
			}
		}
		return nil, fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
	})
}

// MarkAllRead marks every notification read and returns how many changed.
func (in *Inbox) MarkAllRead(ctx context.Context) (int, error) {
	changed := 0
	err := in.mutate(ctx, func(list []domain.Notification) ([]domain.Notification, error) {
		for i := range list {
			if !list[i].Read {
				list[i].Read = true
				changed++
			}
		}
		return list, nil
	})
	return changed, err
}

func (in *Inbox) Delete(ctx context.Context, id string) error {
	return in.mutate(ctx, func(list []domain.Notification) ([]domain.Notification, error) {
		for i := range list {
			if list[i].ID == id {
				return append(list[:i], list[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
	})
}

func (in *Inbox) mutate(ctx context.Context, fn func([]domain.Notification) ([]domain.Notification, error)) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	list, err := in.load(ctx)
	if err != nil {
		return err
	}
	list, err = fn(list)
	if err != nil {
		return err
	}
	return in.save(ctx, list)
}
