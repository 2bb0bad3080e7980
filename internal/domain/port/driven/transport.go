package driven

import (
	"context"
	"errors"

	"github.com/otpgate/otpgate/internal/domain/model"
)

// ErrNotConnected indicates a send was attempted without an authenticated
// transport socket.
var ErrNotConnected = errors.New("transport not connected")

// Socket is one live transport connection. At most one instance exists at a
// time; it is owned exclusively by the session controller, which is the only
// component permitted to construct or terminate one.
type Socket interface {
	// Authenticated reports whether the socket holds a paired, logged-in session.
	Authenticated() bool

	// Send normalizes the recipient into the transport's addressing scheme
	// and delivers the text message. No automatic retry on failure.
	Send(ctx context.Context, recipient, text string) error

	// Logout invalidates the session on the transport side.
	Logout(ctx context.Context) error

	// Disconnect tears the connection down and releases the socket's
	// resources. Safe to call more than once.
	Disconnect()
}

// Transport constructs sockets bound to a local credential directory.
// Dial wires the given handler to the socket's lifecycle events and initiates
// the connection; the handler may be invoked until Disconnect returns.
type Transport interface {
	Dial(ctx context.Context, credentialDir string, handler func(model.Event)) (Socket, error)
}
