package model

// Event is the tagged union of transport lifecycle events consumed by the
// connection state machine. Keeping the union in the domain layer lets the
// state machine be tested without a live transport.
type Event interface {
	isEvent()
}

// QREvent signals that the transport issued a new pairing code for operator
// display. Code is the raw pairing payload to be rendered as a QR image.
type QREvent struct {
	Code string
}

// OpenEvent signals a confirmed transport-level open with the authenticated
// identity's canonical number.
type OpenEvent struct {
	Number string
}

// CloseEvent signals the transport connection closed. The socket instance is
// dead after this event; recovery requires constructing a new one.
type CloseEvent struct {
	Code      int
	LoggedOut bool
}

// AuthFailureEvent signals the transport rejected the session credentials.
type AuthFailureEvent struct {
	Reason string
}

// CredsUpdateEvent signals the transport rotated the local credential bundle
// and the remote copy must be re-synced.
type CredsUpdateEvent struct{}

func (QREvent) isEvent()          {}
func (OpenEvent) isEvent()        {}
func (CloseEvent) isEvent()       {}
func (AuthFailureEvent) isEvent() {}
func (CredsUpdateEvent) isEvent() {}
