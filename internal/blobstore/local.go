package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Local is a disk-backed Store rooted at a base directory, the development
// and test default backend. Watch can start an fsnotify watcher over its
// root; NewLocal does not start one.
type Local struct {
	root string

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	onChange func(key string)
}

// NewLocal creates (if absent) the root directory and returns a Local store.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: mkdir root: %w", err)
	}
	return &Local{root: root}, nil
}

func (l *Local) path(key string) string {
	// key values are generated internally by blobstore.Key, never taken
	// directly from request paths, so this is not a traversal vector; we
	// still hex-encode the key's hash, filed under a subdirectory named by
	// its first two characters, so the layout does not mirror the key.
	sum := sha256.Sum256([]byte(key))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(l.root, name[:2], name)
}

func (l *Local) Put(ctx context.Context, key string, content []byte) error {
	p := l.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("blobstore: mkdir: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("blobstore: write: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("blobstore: rename: %w", err)
	}
	return nil
}

func (l *Local) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(l.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("blobstore: read: %w", err)
	}
	return data, nil
}

func (l *Local) Delete(ctx context.Context, key string) error {
	err := os.Remove(l.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("blobstore: delete: %w", err)
	}
	return nil
}

func (l *Local) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(l.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("blobstore: stat: %w", err)
	}
	return true, nil
}

// Watch starts an fsnotify watcher over the store root and invokes onChange
// with the on-disk path of every write/create/remove event observed under
// it; object files are named by the SHA-256 of their key, so that path is
// not the blob key. No caller in this repository starts it. It
// returns a stop function.
func (l *Local) Watch(onChange func(path string)) (stop func() error, err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("blobstore: new watcher: %w", err)
	}
	if err := addRecursive(w, l.root); err != nil {
		w.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) != 0 {
					onChange(ev.Name)
				}
			case <-w.Errors:
				// surfaced to callers via onChange being a no-op here;
				// the watcher keeps running on transient errors.
			case <-done:
				return
			}
		}
	}()

	return func() error {
		close(done)
		return w.Close()
	}, nil
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(p)
		}
		return nil
	})
}
