package settings

import (
	"context"
	"fmt"
	"log/slog"

	"complyflow/internal/domain"
	"complyflow/internal/events"
	"complyflow/internal/storage"
)

// App modes.
const (
	ModeSolo = "solo"
	ModeTeam = "team"
)

// ModeKey holds the persisted app mode.
var ModeKey = storage.AppKey("mode")

type Settings struct {
	Store       *storage.Adapter
	DefaultMode string
	Events      events.Recorder
	Logger      *slog.Logger
}

func New(store *storage.Adapter, defaultMode string) *Settings {
	if defaultMode == "" {
		defaultMode = ModeSolo
	}
	return &Settings{Store: store, DefaultMode: defaultMode, Logger: slog.Default()}
}

// Mode returns the stored mode, or the default when none was chosen.
func (s *Settings) Mode(ctx context.Context) (string, error) {
	var mode string
	ok, err := s.Store.Get(ctx, ModeKey, &mode)
	if err != nil {
		return "", fmt.Errorf("load app mode: %w", err)
	}
	if !ok || (mode != ModeSolo && mode != ModeTeam) {
		return s.DefaultMode, nil
	}
	return mode, nil
}

func (s *Settings) SetMode(ctx context.Context, mode, actorID string) error {
	if mode != ModeSolo && mode != ModeTeam {
		return fmt.Errorf("app mode %q must be solo or team: %w", mode, domain.ErrInvalidInput)
	}
	if err := s.Store.Set(ctx, ModeKey, mode, storage.SetOptions{}); err != nil {
		return fmt.Errorf("save app mode: %w", err)
	}
	events.Emit(ctx, s.Events, s.Logger, events.Entry{
		Type: "settings.mode.updated", EntityKind: "settings", EntityID: "mode", ActorID: actorID,
		Payload: events.Payload{"mode": mode},
	})
	return nil
}
