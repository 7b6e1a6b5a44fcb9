package storage

import "context"

// The four logical keys of the persisted namespace. They cross-
// reference each other (dirents name inode numbers, the mount table
// names device paths), so a consistent snapshot writes all four in
// one atomic PutAll.
const (
	KeyInodes      = "inodes"
	KeyDirectories = "directories"
	KeyMeta        = "meta"
	KeyMounts      = "mounts"
)

// SnapshotKeys lists the keys a complete snapshot must carry.
var SnapshotKeys = []string{KeyInodes, KeyDirectories, KeyMeta, KeyMounts}

// Store is the durable key-value adapter the kernel persists
// snapshots to. Implementations must make PutAll atomic: either every
// entry lands or none does.
type Store interface {
	// Put stores a single value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Get returns the value under key, or (nil, false, nil) when absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// PutAll stores every entry atomically.
	PutAll(ctx context.Context, entries map[string][]byte) error

	// Close releases the backing resources.
	Close() error
}
