// Package application contains use-case orchestration services.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/otpgate/otpgate/internal/domain/port/driven"
)

// CredentialBridge moves the credential bundle between the local folder
// (write-through cache) and the remote object store (durable source of
// truth). Both copies converge over time; there is no cross-file atomicity.
type CredentialBridge struct {
	store  driven.ObjectStore
	dir    string
	prefix string
	logger *slog.Logger

	// syncMu serializes Sync calls: remote upload ordering for the same key
	// is otherwise not guaranteed across overlapping credential rotations.
	syncMu sync.Mutex
}

// NewCredentialBridge creates a bridge for the given local folder and remote
// prefix.
func NewCredentialBridge(store driven.ObjectStore, dir, prefix string, logger *slog.Logger) *CredentialBridge {
	return &CredentialBridge{
		store:  store,
		dir:    dir,
		prefix: prefix,
		logger: logger,
	}
}

// Dir returns the local credential folder path.
func (b *CredentialBridge) Dir() string {
	return b.dir
}

// Load ensures the local folder and remote container exist, then downloads
// every remote entry under the session prefix into the folder, overwriting
// local copies. An empty or missing remote listing means "no prior session".
// A single failed download is logged and skipped so initialization can
// proceed with the rest of the bundle.
func (b *CredentialBridge) Load(ctx context.Context) error {
	if err := os.MkdirAll(b.dir, 0o700); err != nil {
		return fmt.Errorf("create credential folder: %w", err)
	}

	if err := b.store.EnsureBucket(ctx); err != nil {
		b.logger.Error("ensure remote container failed", "error", err)
		return nil
	}

	keys, err := b.store.List(ctx, b.prefix+"/")
	if err != nil {
		b.logger.Error("list remote credentials failed", "prefix", b.prefix, "error", err)
		return nil
	}

	var downloaded, failed int
	for _, key := range keys {
		// Keys are flat under the prefix; Base also defends against any
		// path separators a foreign writer may have put in a key.
		local := filepath.Join(b.dir, filepath.Base(key))
		if err := b.store.Download(ctx, key, local); err != nil {
			b.logger.Error("credential download failed", "key", key, "error", err)
			failed++
			continue
		}
		downloaded++
	}

	b.logger.Info("credential bundle loaded",
		"remote_entries", len(keys),
		"downloaded", downloaded,
		"failed", failed,
	)
	return nil
}

// Sync uploads every file currently in the local folder to the remote prefix
// with upsert semantics. Calls are serialized; a failed upload is logged and
// does not prevent the remaining uploads.
func (b *CredentialBridge) Sync(ctx context.Context) error {
	b.syncMu.Lock()
	defer b.syncMu.Unlock()

	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return fmt.Errorf("read credential folder: %w", err)
	}

	var uploaded, failed int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		key := b.prefix + "/" + name
		if err := b.store.Upload(ctx, key, filepath.Join(b.dir, name)); err != nil {
			b.logger.Error("credential upload failed", "key", key, "error", err)
			failed++
			continue
		}
		uploaded++
	}

	b.logger.Info("credential bundle synced", "uploaded", uploaded, "failed", failed)
	return nil
}

// Clear deletes the entire remote prefix in one batch and removes the local
// folder recursively. Safe to call when neither exists.
func (b *CredentialBridge) Clear(ctx context.Context) error {
	if err := b.store.RemovePrefix(ctx, b.prefix+"/"); err != nil {
		b.logger.Error("remote credential removal failed", "prefix", b.prefix, "error", err)
	}

	if err := os.RemoveAll(b.dir); err != nil {
		return fmt.Errorf("remove credential folder: %w", err)
	}

	b.logger.Info("credential bundle cleared", "prefix", b.prefix)
	return nil
}
