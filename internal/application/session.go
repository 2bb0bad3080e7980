package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/otpgate/otpgate/internal/domain/model"
	"github.com/otpgate/otpgate/internal/domain/port/driven"
)

// Control actions accepted by the session controller.
const (
	ActionRestart      = "restart"
	ActionLogout       = "logout"
	ActionClearSession = "clear_session"
)

// ErrUnknownAction indicates a control action outside the accepted set.
var ErrUnknownAction = errors.New("unknown control action")

// SessionController is the single entry point for external commands and
// message sends. It owns the one active transport socket: no other component
// may construct, terminate, or hold a long-lived reference to it.
//
// Every socket gets a monotonically increasing generation. Status publishes
// are tagged with the generation of the socket they originate from and
// discarded once a newer socket exists, so stale async completions cannot
// overwrite the newest state.
type SessionController struct {
	transport driven.Transport
	bridge    *CredentialBridge
	pub       *StatusPublisher
	logger    *slog.Logger

	mu     sync.Mutex
	socket driven.Socket
	gen    atomic.Uint64
}

// NewSessionController creates a controller. No socket exists until Start.
func NewSessionController(transport driven.Transport, bridge *CredentialBridge, pub *StatusPublisher, logger *slog.Logger) *SessionController {
	return &SessionController{
		transport: transport,
		bridge:    bridge,
		pub:       pub,
		logger:    logger,
	}
}

// Start loads the credential bundle, dials a new transport socket bound to
// the local credential folder, and records it as the single active instance.
// On dial failure it publishes a disconnected status and returns the error;
// the process keeps running so a later restart can recover.
func (c *SessionController) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked(ctx)
}

// startLocked settles any previous socket, then dials a new one. Callers
// hold c.mu.
func (c *SessionController) startLocked(ctx context.Context) error {
	c.teardownLocked(ctx, false)

	gen := c.gen.Add(1)

	// Best-effort: a failed remote load degrades to a fresh pairing flow
	// rather than blocking startup.
	if err := c.bridge.Load(ctx); err != nil {
		c.logger.Error("credential load failed", "error", err)
	}

	machine := NewConnMachine(gen, c.bridge, c.publish, c.logger)
	sock, err := c.transport.Dial(ctx, c.bridge.Dir(), func(evt model.Event) {
		machine.Handle(context.Background(), evt)
	})
	if err != nil {
		c.publish(ctx, gen, model.StatusPatch{
			Status:    statePtr(model.StateDisconnected),
			QRCode:    clearField(),
			LastError: ptrTo("failed to start"),
		})
		return fmt.Errorf("dial transport: %w", err)
	}

	c.socket = sock
	c.publish(ctx, gen, model.StatusPatch{
		Status:    statePtr(model.StateConnecting),
		QRCode:    clearField(),
		LastError: clearField(),
	})
	c.logger.Info("transport socket started", "generation", gen)
	return nil
}

// SendMessage forwards text to recipient over the active socket. It fails
// with driven.ErrNotConnected when no authenticated socket exists; transport
// send failures are recorded in last_error and returned to the caller with
// no automatic retry.
func (c *SessionController) SendMessage(ctx context.Context, recipient, text string) error {
	c.mu.Lock()
	sock := c.socket
	gen := c.gen.Load()
	c.mu.Unlock()

	if sock == nil || !sock.Authenticated() {
		return driven.ErrNotConnected
	}

	if err := sock.Send(ctx, recipient, text); err != nil {
		msg := err.Error()
		c.publish(ctx, gen, model.StatusPatch{LastError: &msg})
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Control executes a session lifecycle command. After any action completes,
// at most one socket instance is live; the previous socket's teardown fully
// settles before a new one is dialed.
func (c *SessionController) Control(ctx context.Context, action string) error {
	switch action {
	case ActionRestart:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.startLocked(ctx)

	case ActionLogout:
		c.mu.Lock()
		defer c.mu.Unlock()
		c.teardownLocked(ctx, true)
		if err := c.bridge.Clear(ctx); err != nil {
			return err
		}
		c.publish(ctx, c.gen.Load(), model.StatusPatch{
			Status:    statePtr(model.StateDisconnected),
			QRCode:    clearField(),
			LastError: ptrTo("Logged out"),
		})
		return nil

	case ActionClearSession:
		c.mu.Lock()
		defer c.mu.Unlock()
		c.teardownLocked(ctx, true)
		if err := c.bridge.Clear(ctx); err != nil {
			c.logger.Error("credential clear failed", "error", err)
		}
		return c.startLocked(ctx)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

// Shutdown settles the active socket without logging out, for process exit.
func (c *SessionController) Shutdown(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked(ctx, false)
}

// teardownLocked disconnects and drops the current socket, bumping the
// generation so in-flight callbacks from it become stale. Callers hold c.mu.
func (c *SessionController) teardownLocked(ctx context.Context, logout bool) {
	if c.socket == nil {
		return
	}

	if logout {
		if err := c.socket.Logout(ctx); err != nil {
			c.logger.Error("transport logout failed", "error", err)
		}
	}

	c.socket.Disconnect()
	c.socket = nil
	c.gen.Add(1)
}

// publish writes a status patch unless the generation has been superseded.
// Publish failures are logged, never propagated.
func (c *SessionController) publish(ctx context.Context, gen uint64, patch model.StatusPatch) {
	if current := c.gen.Load(); gen != current {
		c.logger.Debug("discarding stale status publish", "generation", gen, "current", current)
		return
	}
	if err := c.pub.Publish(ctx, patch); err != nil {
		c.logger.Error("status publish failed", "error", err)
	}
}

func ptrTo(s string) *string {
	return &s
}
