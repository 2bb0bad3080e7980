package application

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock object store ---

type mockObjectStore struct {
	// remote object contents keyed by object key.
	objects map[string][]byte

	ensureErr   error
	listErr     error
	downloadErr map[string]error // per-key download failures
	uploadErr   map[string]error // per-key upload failures
	removeErr   error

	// uploadHook, when set, runs at the top of every Upload call.
	uploadHook func(key string)

	uploads   []string
	downloads []string
	removed   []string
}

func newMockObjectStore() *mockObjectStore {
	return &mockObjectStore{
		objects:     map[string][]byte{},
		downloadErr: map[string]error{},
		uploadErr:   map[string]error{},
	}
}

func (m *mockObjectStore) EnsureBucket(_ context.Context) error {
	return m.ensureErr
}

func (m *mockObjectStore) List(_ context.Context, prefix string) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	keys := []string{}
	for key := range m.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (m *mockObjectStore) Download(_ context.Context, key, localPath string) error {
	if err := m.downloadErr[key]; err != nil {
		return err
	}
	m.downloads = append(m.downloads, key)
	return os.WriteFile(localPath, m.objects[key], 0o600)
}

func (m *mockObjectStore) Upload(_ context.Context, key, localPath string) error {
	if m.uploadHook != nil {
		m.uploadHook(key)
	}
	if err := m.uploadErr[key]; err != nil {
		return err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	m.objects[key] = data
	m.uploads = append(m.uploads, key)
	return nil
}

func (m *mockObjectStore) RemovePrefix(_ context.Context, prefix string) error {
	if m.removeErr != nil {
		return m.removeErr
	}
	for key := range m.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(m.objects, key)
			m.removed = append(m.removed, key)
		}
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestBridge(t *testing.T, store *mockObjectStore) *CredentialBridge {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "auth_state")
	return NewCredentialBridge(store, dir, "session", testLogger())
}

// --- Load ---

func TestBridge_LoadEmptyRemoteIsNotAFailure(t *testing.T) {
	store := newMockObjectStore()
	bridge := newTestBridge(t, store)

	err := bridge.Load(context.Background())

	require.NoError(t, err)
	assert.DirExists(t, bridge.Dir())
}

func TestBridge_LoadDownloadsRemoteEntries(t *testing.T) {
	store := newMockObjectStore()
	store.objects["session/creds.json"] = []byte(`{"me":"x"}`)
	store.objects["session/session.db"] = []byte("sqlite")
	bridge := newTestBridge(t, store)

	require.NoError(t, bridge.Load(context.Background()))

	data, err := os.ReadFile(filepath.Join(bridge.Dir(), "creds.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"me":"x"}`, string(data))
	assert.FileExists(t, filepath.Join(bridge.Dir(), "session.db"))
}

func TestBridge_LoadContinuesPastSingleDownloadFailure(t *testing.T) {
	store := newMockObjectStore()
	store.objects["session/creds.json"] = []byte("a")
	store.objects["session/keys.json"] = []byte("b")
	store.downloadErr["session/creds.json"] = errors.New("network hiccup")
	bridge := newTestBridge(t, store)

	require.NoError(t, bridge.Load(context.Background()))

	assert.NoFileExists(t, filepath.Join(bridge.Dir(), "creds.json"))
	assert.FileExists(t, filepath.Join(bridge.Dir(), "keys.json"))
}

func TestBridge_LoadToleratesRemoteStoreFailure(t *testing.T) {
	store := newMockObjectStore()
	store.ensureErr = errors.New("remote unavailable")
	bridge := newTestBridge(t, store)

	// Remote failures degrade to "no prior session", never abort startup.
	require.NoError(t, bridge.Load(context.Background()))
	assert.DirExists(t, bridge.Dir())
}

// --- Sync ---

func TestBridge_SyncUploadsAllLocalFiles(t *testing.T) {
	store := newMockObjectStore()
	bridge := newTestBridge(t, store)
	require.NoError(t, os.MkdirAll(bridge.Dir(), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(bridge.Dir(), "creds.json"), []byte("c"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(bridge.Dir(), "session.db"), []byte("s"), 0o600))

	require.NoError(t, bridge.Sync(context.Background()))

	assert.Equal(t, []byte("c"), store.objects["session/creds.json"])
	assert.Equal(t, []byte("s"), store.objects["session/session.db"])
}

func TestBridge_SyncContinuesPastSingleUploadFailure(t *testing.T) {
	store := newMockObjectStore()
	store.uploadErr["session/creds.json"] = errors.New("rejected")
	bridge := newTestBridge(t, store)
	require.NoError(t, os.MkdirAll(bridge.Dir(), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(bridge.Dir(), "creds.json"), []byte("c"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(bridge.Dir(), "keys.json"), []byte("k"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(bridge.Dir(), "app.json"), []byte("a"), 0o600))

	require.NoError(t, bridge.Sync(context.Background()))

	// The failed file is reported, not thrown; the other two still land.
	assert.NotContains(t, store.objects, "session/creds.json")
	assert.Contains(t, store.objects, "session/keys.json")
	assert.Contains(t, store.objects, "session/app.json")
}

func TestBridge_SyncOverwritesExistingKey(t *testing.T) {
	store := newMockObjectStore()
	bridge := newTestBridge(t, store)
	require.NoError(t, os.MkdirAll(bridge.Dir(), 0o700))
	path := filepath.Join(bridge.Dir(), "creds.json")

	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o600))
	require.NoError(t, bridge.Sync(context.Background()))
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o600))
	require.NoError(t, bridge.Sync(context.Background()))

	// Upsert: same key updated in place, no duplicate objects.
	assert.Equal(t, []byte("v2"), store.objects["session/creds.json"])
	assert.Len(t, store.objects, 1)
}

func TestBridge_ConcurrentSyncsDoNotOverlap(t *testing.T) {
	store := newMockObjectStore()
	bridge := newTestBridge(t, store)
	require.NoError(t, os.MkdirAll(bridge.Dir(), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(bridge.Dir(), "creds.json"), []byte("c"), 0o600))

	var uploads atomic.Int32
	firstEntered := make(chan struct{})
	release := make(chan struct{})
	store.uploadHook = func(string) {
		if uploads.Add(1) == 1 {
			close(firstEntered)
			<-release
		}
	}

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		assert.NoError(t, bridge.Sync(context.Background()))
	}()
	<-firstEntered

	secondDone := make(chan struct{})
	go func() {
		defer close(secondDone)
		assert.NoError(t, bridge.Sync(context.Background()))
	}()

	// With the first upload parked mid-flight, the second Sync must not
	// have started uploading the same key.
	select {
	case <-secondDone:
		t.Fatal("second Sync finished while the first was still uploading")
	case <-time.After(50 * time.Millisecond):
	}
	assert.EqualValues(t, 1, uploads.Load())

	close(release)
	<-firstDone
	<-secondDone
	assert.EqualValues(t, 2, uploads.Load())
}

// --- Clear ---

func TestBridge_ClearRemovesLocalAndRemote(t *testing.T) {
	store := newMockObjectStore()
	store.objects["session/creds.json"] = []byte("c")
	bridge := newTestBridge(t, store)
	require.NoError(t, os.MkdirAll(bridge.Dir(), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(bridge.Dir(), "creds.json"), []byte("c"), 0o600))

	require.NoError(t, bridge.Clear(context.Background()))

	assert.Empty(t, store.objects)
	assert.NoDirExists(t, bridge.Dir())
}

func TestBridge_ClearIsIdempotent(t *testing.T) {
	store := newMockObjectStore()
	bridge := newTestBridge(t, store)

	require.NoError(t, bridge.Clear(context.Background()))
	require.NoError(t, bridge.Clear(context.Background()))

	// A fresh load after clearing yields an empty folder and empty listing.
	require.NoError(t, bridge.Load(context.Background()))
	entries, err := os.ReadDir(bridge.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
