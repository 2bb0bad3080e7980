package application

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/otpgate/otpgate/internal/domain/model"
)

// publishFunc applies a status patch tagged with the socket generation it
// belongs to. Implementations discard patches from superseded generations.
type publishFunc func(ctx context.Context, gen uint64, patch model.StatusPatch)

// ConnMachine is the connection state machine for one socket instance. It
// interprets transport lifecycle events and drives status transitions:
// connecting -> connected -> disconnected, with disconnected terminal for
// the instance. All publishes are best-effort; a publish failure never
// propagates back into the transport.
type ConnMachine struct {
	gen     uint64
	bridge  *CredentialBridge
	publish publishFunc
	logger  *slog.Logger
}

// NewConnMachine creates a machine serving the socket with the given
// generation tag.
func NewConnMachine(gen uint64, bridge *CredentialBridge, publish publishFunc, logger *slog.Logger) *ConnMachine {
	return &ConnMachine{
		gen:     gen,
		bridge:  bridge,
		publish: publish,
		logger:  logger,
	}
}

// Handle processes one transport event. It is invoked from the transport's
// event dispatch goroutine; heavy work (QR encoding, credential sync) happens
// inline, which also keeps rotation handling serialized per session.
func (m *ConnMachine) Handle(ctx context.Context, evt model.Event) {
	switch e := evt.(type) {
	case model.QREvent:
		img, err := qrImageDataURI(e.Code)
		if err != nil {
			m.logger.Error("qr image encoding failed", "error", err)
			return
		}
		m.publish(ctx, m.gen, model.StatusPatch{
			Status:    statePtr(model.StateConnecting),
			QRCode:    &img,
			LastError: clearField(),
		})

	case model.OpenEvent:
		now := time.Now().UTC()
		m.logger.Info("transport connected", "number", e.Number)
		m.publish(ctx, m.gen, model.StatusPatch{
			Status:          statePtr(model.StateConnected),
			ConnectedNumber: &e.Number,
			LastConnectedAt: &now,
			QRCode:          clearField(),
			LastError:       clearField(),
		})

	case model.CloseEvent:
		reason := fmt.Sprintf("Connection closed (%d)", e.Code)
		if e.LoggedOut {
			reason = "Logged out"
		}
		m.logger.Info("transport closed", "reason", reason)
		m.publish(ctx, m.gen, model.StatusPatch{
			Status:    statePtr(model.StateDisconnected),
			QRCode:    clearField(),
			LastError: &reason,
		})

	case model.AuthFailureEvent:
		m.logger.Error("transport auth failure", "reason", e.Reason)
		m.publish(ctx, m.gen, model.StatusPatch{
			Status:    statePtr(model.StateDisconnected),
			QRCode:    clearField(),
			LastError: &e.Reason,
		})

	case model.CredsUpdateEvent:
		if err := m.bridge.Sync(ctx); err != nil {
			m.logger.Error("credential sync failed", "error", err)
		}
	}
}

// qrImageDataURI renders the pairing code as a PNG data URI for direct use
// in an <img> tag.
func qrImageDataURI(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

func statePtr(s model.SessionState) *model.SessionState {
	return &s
}

// clearField returns the patch value that stores NULL for a string column.
func clearField() *string {
	empty := ""
	return &empty
}
