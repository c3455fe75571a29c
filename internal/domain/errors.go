package domain

import (
	"context"
	"errors"
	"fmt"
	"net"

	"gorm.io/gorm"
)

var (
	ErrInvalidTemplate = errors.New("Invalid template")
	ErrUnauthorized    = errors.New("Unauthorized")
	ErrNotFound        = errors.New("Not found")
	ErrValidation      = errors.New("Validation failed")
	// ErrStaleWrite is reserved: concurrent snapshot writes are not detected at the store.
	ErrStaleWrite = errors.New("Stale write")
	ErrTransient  = errors.New("Backend unreachable or timed out")

	ErrBusy     = errors.New("Session is switching templates")
	ErrNotReady = errors.New("Session is not ready")
	ErrClosed   = errors.New("Session is closed")
)

// DeleteStepError reports which step of a cascading client delete failed.
// Every step is a delete-if-exists, so the whole delete can be retried.
type DeleteStepError struct {
	Step string
	Err  error
}

func (e *DeleteStepError) Error() string {
	return fmt.Sprintf("delete client: step %q failed: %v", e.Step, e.Err)
}

func (e *DeleteStepError) Unwrap() error { return e.Err }

// ClassifyStoreError maps gorm and transport errors onto the taxonomy.
// what names the missing entity for not-found errors ("client", "template").
func ClassifyStoreError(err error, what string) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w: %v", what, ErrTransient, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w: %v", what, ErrTransient, err)
	}
	return err
}
