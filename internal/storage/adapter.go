package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"k8s.io/utils/clock"

	"complyflow/internal/domain"
)

const (
	// values longer than this are "compressed" when SetOptions.Compress is set
	compressThreshold = 1000
	envelopeVersion   = 1
)

type SetOptions struct {
	// Encrypt base64-obfuscates the payload. It is not encryption.
	Encrypt  bool
	Compress bool
	TTL      time.Duration
}

// Diagnostic describes a failed storage operation.
type Diagnostic struct {
	Op  string
	Key string
	Err error
}

// envelope wraps every stored value. Marker distinguishes envelopes from
// stored JSON objects written without one.
type envelope struct {
	Marker     int    `json:"$cf"`
	Data       string `json:"data"`
	Expires    int64  `json:"expires,omitempty"`
	Encrypted  bool   `json:"encrypted,omitempty"`
	Compressed bool   `json:"compressed,omitempty"`
}

// Adapter serializes values onto a Backend with optional obfuscation and TTL.
type Adapter struct {
	backend Backend
	clock   clock.PassiveClock
	logger  *slog.Logger
	onDiag  func(Diagnostic)
}

type Option func(*Adapter)

func WithClock(c clock.PassiveClock) Option {
	return func(a *Adapter) { a.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// WithDiagnostics registers a hook invoked for every failed operation.
func WithDiagnostics(fn func(Diagnostic)) Option {
	return func(a *Adapter) { a.onDiag = fn }
}

func New(b Backend, opts ...Option) *Adapter {
	a := &Adapter{
		backend: b,
		clock:   clock.RealClock{},
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Set serializes value and writes it under key.
func (a *Adapter) Set(ctx context.Context, key string, value any, opts SetOptions) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return a.fail("encode", key, err)
	}
	env := envelope{Marker: envelopeVersion, Data: string(raw)}
	if opts.Compress && len(env.Data) > compressThreshold {
		env.Data = base64.StdEncoding.EncodeToString([]byte(env.Data))
		env.Compressed = true
	}
	if opts.Encrypt {
		env.Data = base64.StdEncoding.EncodeToString([]byte(env.Data))
		env.Encrypted = true
	}
	if opts.TTL > 0 {
		env.Expires = a.clock.Now().Add(opts.TTL).UnixMilli()
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return a.fail("encode", key, err)
	}
	if err := a.backend.Set(ctx, key, string(payload)); err != nil {
		return a.fail("set", key, err)
	}
	return nil
}

// Get decodes the value under key into dst. It reports false and leaves dst
// untouched when the key is missing or expired; expired entries are removed.
func (a *Adapter) Get(ctx context.Context, key string, dst any) (bool, error) {
	raw, ok, err := a.backend.Get(ctx, key)
	if err != nil {
		return false, a.fail("get", key, err)
	}
	if !ok {
		return false, nil
	}
	text, expired, err := a.unwrap(raw)
	if err != nil {
		return false, a.fail("decode", key, err)
	}
	if expired {
		if err := a.backend.Delete(ctx, key); err != nil {
			return false, a.fail("expire", key, err)
		}
		return false, nil
	}
	if err := json.Unmarshal([]byte(text), dst); err != nil {
		return false, a.fail("decode", key, err)
	}
	return true, nil
}

func (a *Adapter) Remove(ctx context.Context, key string) error {
	if err := a.backend.Delete(ctx, key); err != nil {
		return a.fail("remove", key, err)
	}
	return nil
}

func (a *Adapter) Clear(ctx context.Context) error {
	if err := a.backend.Clear(ctx); err != nil {
		return a.fail("clear", "", err)
	}
	return nil
}

func (a *Adapter) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := a.backend.Keys(ctx, prefix)
	if err != nil {
		return nil, a.fail("keys", prefix, err)
	}
	return keys, nil
}

func (a *Adapter) unwrap(raw string) (string, bool, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return raw, false, nil
	}
	var env envelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil || env.Marker == 0 {
		// a plain JSON object written without an envelope
		return raw, false, nil
	}
	if env.Expires > 0 && a.clock.Now().UnixMilli() >= env.Expires {
		return "", true, nil
	}
	text := env.Data
	if env.Encrypted {
		b, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return "", false, fmt.Errorf("deobfuscate: %w", err)
		}
		text = string(b)
	}
	if env.Compressed {
		b, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return "", false, fmt.Errorf("decompress: %w", err)
		}
		text = string(b)
	}
	return text, false, nil
}

func (a *Adapter) fail(op, key string, err error) error {
	a.logger.Warn("storage operation failed", "op", op, "key", key, "error", err)
	if a.onDiag != nil {
		a.onDiag(Diagnostic{Op: op, Key: key, Err: err})
	}
	return fmt.Errorf("%s %q: %w: %w", op, key, domain.ErrStorageUnavailable, err)
}
