package domain

import (
	"errors"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInvalidInput       = errors.New("invalid input")
)

// ValidationError carries one message per failing rule.
type ValidationError struct {
	Errors []string
}

func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// Error kinds reported to callers.
const (
	KindOK                 = "ok"
	KindValidationFailed   = "validation_failed"
	KindNotFound           = "not_found"
	KindStorageUnavailable = "storage_unavailable"
	KindInvalidInput       = "invalid_input"
	KindInternal           = "internal"
)

// KindOf classifies err so callers can tell failure causes apart.
func KindOf(err error) string {
	if err == nil {
		return KindOK
	}
	var ve ValidationError
	switch {
	case errors.As(err, &ve):
		return KindValidationFailed
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrStorageUnavailable):
		return KindStorageUnavailable
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	default:
		return KindInternal
	}
}
