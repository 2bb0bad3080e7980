package model

import "time"

// SessionState represents the lifecycle state of the messaging session.
type SessionState string

const (
	StateConnecting   SessionState = "connecting"
	StateConnected    SessionState = "connected"
	StateDisconnected SessionState = "disconnected"
)

// StatusRecord is the externally observable connection status snapshot.
// A single row exists per session id and is overwritten in place.
type StatusRecord struct {
	SessionID       string
	Status          SessionState
	QRCode          string // data URI of the pairing QR; empty when none is active
	ConnectedNumber string
	LastConnectedAt *time.Time
	LastError       string
	HeartbeatAt     time.Time
}

// StatusPatch is a partial update applied to the status record. Nil fields
// are left untouched. For the string fields a pointer to the empty string
// clears the stored value (maps to SQL NULL), which is how a connected
// transition removes the QR code.
type StatusPatch struct {
	Status          *SessionState
	QRCode          *string
	ConnectedNumber *string
	LastConnectedAt *time.Time
	LastError       *string

	// HeartbeatAt is stamped by the StatusPublisher on every write.
	HeartbeatAt time.Time
}
