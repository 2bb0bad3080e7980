package driven

import "context"

// ObjectStore defines the driven port for the remote credential mirror.
// Keys are flat object names; the credential bridge maps local file names to
// keys under a session prefix.
type ObjectStore interface {
	// EnsureBucket creates the backing container if it does not exist.
	// "Already exists" is not an error.
	EnsureBucket(ctx context.Context) error

	// List returns all object keys under the given prefix. An empty result
	// is not an error.
	List(ctx context.Context, prefix string) ([]string, error)

	// Download fetches the object at key into localPath, overwriting any
	// existing file.
	Download(ctx context.Context, key, localPath string) error

	// Upload stores the file at localPath under key with upsert semantics.
	Upload(ctx context.Context, key, localPath string) error

	// RemovePrefix deletes every object under the given prefix in one batch.
	// Safe to call when no objects exist.
	RemovePrefix(ctx context.Context, prefix string) error
}
