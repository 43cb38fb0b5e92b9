// Package blobstore provides durable object storage for file content,
// pluggable between a local-disk backend and an S3 backend. Objects are
// addressed by the keys Key builds; the local backend stores each object in
// a file named by the hex SHA-256 of its key (under a subdirectory named by
// that name's first two characters), not in a workspace/path tree.
package blobstore

import "context"

// Store is the durable object storage contract the Virtual Filesystem
// writes content hashes through. Keys are caller-supplied (workspace id +
// normalized path + version hash), never generated by the store.
type Store interface {
	// Put writes content under key, overwriting any existing object.
	Put(ctx context.Context, key string, content []byte) error
	// Get reads the object at key, or ErrNotExist if absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the object at key; deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error
	// Exists reports whether an object is present at key.
	Exists(ctx context.Context, key string) (bool, error)
}

// ErrNotExist is returned by Get when the key has no object.
var ErrNotExist = errNotExist{}

type errNotExist struct{}

func (errNotExist) Error() string { return "blobstore: object does not exist" }

// Key builds the canonical blob key for a file version:
// "{workspace_id}{normalized_path}@{hash}", so every immutable version
// keeps its own object.
func Key(workspaceID, normalizedPath, hash string) string {
	return workspaceID + normalizedPath + "@" + hash
}
