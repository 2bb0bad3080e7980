// Package whatsapp implements the Transport driven port on top of the
// whatsmeow WhatsApp Web client library.
package whatsapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"github.com/otpgate/otpgate/internal/domain/model"
	"github.com/otpgate/otpgate/internal/domain/port/driven"
)

// sessionDBName is the whatsmeow device store file inside the credential
// folder. The -wal/-shm sidecar files belong to the same credential bundle.
const sessionDBName = "session.db"

// Compile-time interface satisfaction checks.
var (
	_ driven.Transport = (*Transport)(nil)
	_ driven.Socket    = (*socket)(nil)
)

// Transport dials whatsmeow-backed sockets bound to a credential directory.
type Transport struct {
	logger *slog.Logger
}

// NewTransport creates a Transport.
func NewTransport(logger *slog.Logger) *Transport {
	return &Transport{logger: logger}
}

// Dial opens the device store inside credentialDir, constructs a whatsmeow
// client with lifecycle events mapped onto handler, and initiates the
// connection. When no paired device exists the pairing QR flow starts and
// handler receives QR events until the operator links a device.
func (t *Transport) Dial(ctx context.Context, credentialDir string, handler func(model.Event)) (driven.Socket, error) {
	dbPath := filepath.Join(credentialDir, sessionDBName)
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	db.SetMaxOpenConns(1)

	container := sqlstore.NewWithDB(db, "sqlite3", waLog.Noop)
	if err := container.Upgrade(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("upgrade session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load device: %w", err)
	}

	client := whatsmeow.NewClient(device, waLog.Stdout("whatsapp", "WARN", false))
	// The state machine treats disconnected as terminal per socket; the
	// session controller owns reconnection by constructing a new socket.
	client.EnableAutoReconnect = false
	client.AddEventHandler(eventMapper(client, handler, t.logger))

	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("open qr channel: %w", err)
		}
		go forwardQRItems(qrChan, handler)
	}

	if err := client.Connect(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}

	return &socket{client: client, db: db}, nil
}

// eventMapper translates whatsmeow events into the domain event union.
func eventMapper(client *whatsmeow.Client, handler func(model.Event), logger *slog.Logger) func(any) {
	return func(raw any) {
		switch evt := raw.(type) {
		case *events.Connected:
			number := ""
			if client.Store.ID != nil {
				number = client.Store.ID.User
			}
			handler(model.OpenEvent{Number: number})
			// The device store was just written (noise keys, server tokens);
			// mirror it while the connection is fresh.
			handler(model.CredsUpdateEvent{})
		case *events.PairSuccess:
			logger.Info("device paired", "jid", evt.ID.String())
			handler(model.CredsUpdateEvent{})
		case *events.LoggedOut:
			handler(model.CloseEvent{Code: int(evt.Reason), LoggedOut: true})
		case *events.StreamReplaced:
			handler(model.CloseEvent{Code: 440})
		case *events.Disconnected:
			handler(model.CloseEvent{Code: 0})
		case *events.ConnectFailure:
			if evt.Reason == events.ConnectFailureLoggedOut {
				handler(model.CloseEvent{Code: int(evt.Reason), LoggedOut: true})
				return
			}
			reason := fmt.Sprintf("connection failure (%d)", int(evt.Reason))
			if evt.Message != "" {
				reason = fmt.Sprintf("connection failure (%d): %s", int(evt.Reason), evt.Message)
			}
			handler(model.AuthFailureEvent{Reason: reason})
		case *events.ClientOutdated:
			handler(model.AuthFailureEvent{Reason: "client version rejected by server"})
		}
	}
}

// forwardQRItems drains the pairing channel, surfacing each fresh code as a
// QR event. Success is not forwarded here; PairSuccess and Connected arrive
// through the regular event handler.
func forwardQRItems(qrChan <-chan whatsmeow.QRChannelItem, handler func(model.Event)) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			handler(model.QREvent{Code: item.Code})
		case "success":
		case "timeout":
			handler(model.AuthFailureEvent{Reason: "pairing timed out"})
		default:
			if item.Error != nil {
				handler(model.AuthFailureEvent{Reason: fmt.Sprintf("pairing failed: %v", item.Error)})
			}
		}
	}
}

// socket wraps one live whatsmeow client plus its device store connection.
type socket struct {
	client *whatsmeow.Client
	db     *sql.DB
	once   sync.Once
}

// Authenticated reports whether the socket holds a paired, logged-in session.
func (s *socket) Authenticated() bool {
	return s.client.IsLoggedIn()
}

// Send normalizes recipient into a WhatsApp JID and delivers text as a plain
// conversation message.
func (s *socket) Send(ctx context.Context, recipient, text string) error {
	jid, err := normalizeRecipient(recipient)
	if err != nil {
		return err
	}

	_, err = s.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return fmt.Errorf("send to %s: %w", jid.User, err)
	}
	return nil
}

// Logout invalidates the session on the WhatsApp side.
func (s *socket) Logout(ctx context.Context) error {
	if err := s.client.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Disconnect tears down the connection and closes the device store. Safe to
// call more than once.
func (s *socket) Disconnect() {
	s.once.Do(func() {
		s.client.Disconnect()
		_ = s.db.Close()
	})
}
