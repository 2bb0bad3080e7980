package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/otpgate/otpgate/internal/domain/model"
	"github.com/otpgate/otpgate/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.StatusStore = (*StatusRepo)(nil)

// StatusRepo is the SQLite implementation of the StatusStore port interface.
// It maintains a single row per session id, overwritten in place.
type StatusRepo struct {
	db *DB
}

// NewStatusRepo creates a new StatusRepo.
func NewStatusRepo(db *DB) *StatusRepo {
	return &StatusRepo{db: db}
}

// Upsert applies a partial patch to the status row for sessionID, creating the
// row if it does not exist. Nil patch fields leave existing columns untouched;
// a pointer to the empty string stores NULL (used to clear qr_code and
// last_error on state transitions).
func (r *StatusRepo) Upsert(ctx context.Context, sessionID string, patch model.StatusPatch) error {
	status := string(model.StateConnecting)
	if patch.Status != nil {
		status = string(*patch.Status)
	}

	sets := []string{"heartbeat_at = excluded.heartbeat_at"}
	if patch.Status != nil {
		sets = append(sets, "status = excluded.status")
	}
	if patch.QRCode != nil {
		sets = append(sets, "qr_code = excluded.qr_code")
	}
	if patch.ConnectedNumber != nil {
		sets = append(sets, "connected_number = excluded.connected_number")
	}
	if patch.LastConnectedAt != nil {
		sets = append(sets, "last_connected_at = excluded.last_connected_at")
	}
	if patch.LastError != nil {
		sets = append(sets, "last_error = excluded.last_error")
	}

	query := fmt.Sprintf(`INSERT INTO session_status
		(session_id, status, qr_code, connected_number, last_connected_at, last_error, heartbeat_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET %s`, strings.Join(sets, ", "))

	_, err := r.db.Writer.ExecContext(ctx, query,
		sessionID,
		status,
		nullableStr(patch.QRCode),
		nullableStr(patch.ConnectedNumber),
		nullableTime(patch.LastConnectedAt),
		nullableStr(patch.LastError),
		patch.HeartbeatAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert status %q: %w", sessionID, err)
	}
	return nil
}

// Get returns the status row for sessionID, or driven.ErrStatusNotFound when
// no row exists.
func (r *StatusRepo) Get(ctx context.Context, sessionID string) (*model.StatusRecord, error) {
	const query = `SELECT status, qr_code, connected_number, last_connected_at, last_error, heartbeat_at
		FROM session_status WHERE session_id = ?`

	var (
		status          string
		qrCode          sql.NullString
		connectedNumber sql.NullString
		lastConnectedAt sql.NullString
		lastError       sql.NullString
		heartbeatAt     string
	)
	err := r.db.Reader.QueryRowContext(ctx, query, sessionID).Scan(
		&status, &qrCode, &connectedNumber, &lastConnectedAt, &lastError, &heartbeatAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, driven.ErrStatusNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get status %q: %w", sessionID, err)
	}

	rec := &model.StatusRecord{
		SessionID:       sessionID,
		Status:          model.SessionState(status),
		QRCode:          qrCode.String,
		ConnectedNumber: connectedNumber.String,
		LastError:       lastError.String,
	}

	if rec.HeartbeatAt, err = parseTimestamp(heartbeatAt); err != nil {
		return nil, fmt.Errorf("parse heartbeat_at for %q: %w", sessionID, err)
	}
	if lastConnectedAt.Valid {
		ts, err := parseTimestamp(lastConnectedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_connected_at for %q: %w", sessionID, err)
		}
		rec.LastConnectedAt = &ts
	}

	return rec, nil
}

// nullableStr maps a patch string pointer to a sql value: nil and
// pointer-to-empty both store NULL.
func nullableStr(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

// nullableTime maps a patch time pointer to a stored RFC3339 string or NULL.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTimestamp reads timestamps written by Upsert.
func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
