package application

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otpgate/otpgate/internal/domain/model"
)

// patchRecorder captures generation-tagged publishes in order.
type patchRecorder struct {
	gens    []uint64
	patches []model.StatusPatch
}

func (r *patchRecorder) publish(_ context.Context, gen uint64, patch model.StatusPatch) {
	r.gens = append(r.gens, gen)
	r.patches = append(r.patches, patch)
}

func (r *patchRecorder) last() model.StatusPatch {
	return r.patches[len(r.patches)-1]
}

func newTestMachine(t *testing.T, rec *patchRecorder) (*ConnMachine, *mockObjectStore) {
	t.Helper()
	store := newMockObjectStore()
	bridge := NewCredentialBridge(store, filepath.Join(t.TempDir(), "auth_state"), "session", testLogger())
	return NewConnMachine(7, bridge, rec.publish, testLogger()), store
}

func TestMachine_QREventPublishesConnectingWithImage(t *testing.T) {
	rec := &patchRecorder{}
	machine, _ := newTestMachine(t, rec)

	machine.Handle(context.Background(), model.QREvent{Code: "2@abcdef,ghijkl,mnop"})

	require.Len(t, rec.patches, 1)
	patch := rec.last()
	require.NotNil(t, patch.Status)
	assert.Equal(t, model.StateConnecting, *patch.Status)
	require.NotNil(t, patch.QRCode)
	assert.True(t, strings.HasPrefix(*patch.QRCode, "data:image/png;base64,"))
	require.NotNil(t, patch.LastError)
	assert.Empty(t, *patch.LastError)
	assert.Equal(t, uint64(7), rec.gens[0])
}

func TestMachine_OpenEventClearsQRInstantly(t *testing.T) {
	rec := &patchRecorder{}
	machine, _ := newTestMachine(t, rec)
	ctx := context.Background()

	machine.Handle(ctx, model.QREvent{Code: "2@abc"})
	machine.Handle(ctx, model.OpenEvent{Number: "491711234567"})

	patch := rec.last()
	require.NotNil(t, patch.Status)
	assert.Equal(t, model.StateConnected, *patch.Status)
	require.NotNil(t, patch.QRCode)
	assert.Empty(t, *patch.QRCode, "qr_code must be cleared the instant status becomes connected")
	require.NotNil(t, patch.ConnectedNumber)
	assert.Equal(t, "491711234567", *patch.ConnectedNumber)
	require.NotNil(t, patch.LastConnectedAt)
}

// QR is non-null exactly while the most recent event was QR and no
// subsequent open/close has occurred.
func TestMachine_QRVisibilityAcrossEventSequences(t *testing.T) {
	tests := []struct {
		name   string
		events []model.Event
		wantQR bool
	}{
		{name: "single qr", events: []model.Event{model.QREvent{Code: "a"}}, wantQR: true},
		{name: "qr then open", events: []model.Event{model.QREvent{Code: "a"}, model.OpenEvent{Number: "1555"}}, wantQR: false},
		{name: "qr then close", events: []model.Event{model.QREvent{Code: "a"}, model.CloseEvent{Code: 428}}, wantQR: false},
		{name: "qr open qr", events: []model.Event{model.QREvent{Code: "a"}, model.OpenEvent{}, model.QREvent{Code: "b"}}, wantQR: true},
		{name: "qr qr", events: []model.Event{model.QREvent{Code: "a"}, model.QREvent{Code: "b"}}, wantQR: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &patchRecorder{}
			machine, _ := newTestMachine(t, rec)
			for _, evt := range tt.events {
				machine.Handle(context.Background(), evt)
			}

			patch := rec.last()
			require.NotNil(t, patch.QRCode)
			if tt.wantQR {
				assert.NotEmpty(t, *patch.QRCode)
			} else {
				assert.Empty(t, *patch.QRCode)
			}
		})
	}
}

func TestMachine_CloseReasonClassification(t *testing.T) {
	tests := []struct {
		name      string
		event     model.CloseEvent
		wantError string
	}{
		{name: "explicit logout", event: model.CloseEvent{Code: 401, LoggedOut: true}, wantError: "Logged out"},
		{name: "stream replaced", event: model.CloseEvent{Code: 440}, wantError: "Connection closed (440)"},
		{name: "plain drop", event: model.CloseEvent{Code: 0}, wantError: "Connection closed (0)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &patchRecorder{}
			machine, _ := newTestMachine(t, rec)

			machine.Handle(context.Background(), tt.event)

			patch := rec.last()
			require.NotNil(t, patch.Status)
			assert.Equal(t, model.StateDisconnected, *patch.Status)
			require.NotNil(t, patch.LastError)
			assert.Equal(t, tt.wantError, *patch.LastError)
		})
	}
}

func TestMachine_AuthFailurePublishesDisconnected(t *testing.T) {
	rec := &patchRecorder{}
	machine, _ := newTestMachine(t, rec)

	machine.Handle(context.Background(), model.AuthFailureEvent{Reason: "connection failure (403)"})

	patch := rec.last()
	require.NotNil(t, patch.Status)
	assert.Equal(t, model.StateDisconnected, *patch.Status)
	require.NotNil(t, patch.LastError)
	assert.Equal(t, "connection failure (403)", *patch.LastError)
}

func TestMachine_CredsUpdateSyncsBundle(t *testing.T) {
	rec := &patchRecorder{}
	machine, store := newTestMachine(t, rec)
	require.NoError(t, os.MkdirAll(machine.bridge.Dir(), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(machine.bridge.Dir(), "creds.json"), []byte("rotated"), 0o600))

	machine.Handle(context.Background(), model.CredsUpdateEvent{})

	assert.Equal(t, []byte("rotated"), store.objects["session/creds.json"])
	assert.Empty(t, rec.patches, "credential rotation publishes no status change")
}
