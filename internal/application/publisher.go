package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/otpgate/otpgate/internal/domain/model"
	"github.com/otpgate/otpgate/internal/domain/port/driven"
)

// StatusPublisher wraps the status store: it stamps every patch with the
// current time and writes it under the single well-known session id. A
// heartbeat loop writes an empty patch at a fixed interval so external
// observers can distinguish "process alive but transport silent" from
// "process crashed".
type StatusPublisher struct {
	store     driven.StatusStore
	sessionID string
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewStatusPublisher creates a publisher for the given session id with the
// given heartbeat interval.
func NewStatusPublisher(store driven.StatusStore, sessionID string, interval time.Duration, logger *slog.Logger) *StatusPublisher {
	return &StatusPublisher{
		store:     store,
		sessionID: sessionID,
		interval:  interval,
		now:       time.Now,
		logger:    logger,
	}
}

// Publish stamps patch with the current time and writes it to the status store.
func (p *StatusPublisher) Publish(ctx context.Context, patch model.StatusPatch) error {
	patch.HeartbeatAt = p.now().UTC()
	return p.store.Upsert(ctx, p.sessionID, patch)
}

// Heartbeat writes a heartbeat-only update, leaving connection state untouched.
func (p *StatusPublisher) Heartbeat(ctx context.Context) error {
	return p.Publish(ctx, model.StatusPatch{})
}

// Snapshot returns the current status record.
func (p *StatusPublisher) Snapshot(ctx context.Context) (*model.StatusRecord, error) {
	return p.store.Get(ctx, p.sessionID)
}

// Run drives the heartbeat on the configured interval until the context is
// canceled. Heartbeat failures are logged and do not stop the loop.
func (p *StatusPublisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("heartbeat stopped")
			return
		case <-ticker.C:
			if err := p.Heartbeat(ctx); err != nil {
				p.logger.Error("heartbeat write failed", "error", err)
			}
		}
	}
}
