package driven

import (
	"context"
	"errors"

	"github.com/otpgate/otpgate/internal/domain/model"
)

// ErrStatusNotFound indicates no status record exists for the session id.
var ErrStatusNotFound = errors.New("status record not found")

// StatusStore defines the driven port for status snapshot persistence.
// Upsert applies a partial patch to the single row keyed by sessionID,
// creating it if absent. Get returns ErrStatusNotFound when no row exists.
type StatusStore interface {
	Upsert(ctx context.Context, sessionID string, patch model.StatusPatch) error
	Get(ctx context.Context, sessionID string) (*model.StatusRecord, error)
}
