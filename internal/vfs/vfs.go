// Package vfs implements the Virtual Filesystem: a path-addressed,
// versioned, soft-deletable file store over a Postgres catalog and a
// pluggable blob store.
package vfs

import (
	"context"

	"github.com/clawdesk/clawbench/internal/domain"
)

// FileEntry is one row returned by List: a File plus the metadata the
// ls/find tools need without a second round trip.
type FileEntry struct {
	File      domain.File
	Size      int64
	UpdatedAt string
}

// EditOp is one of the two mutation shapes edit accepts.
type EditOp struct {
	// Replace mode: Old must match exactly once in current content.
	Old, New string
	IsReplace bool

	// Insert mode: zero-indexed line to insert before.
	InsertLine    int
	InsertContent string
}

// Store is the Virtual Filesystem contract consumed by the Tool Catalog and
// the Chat Actor's message-persistence path.
type Store interface {
	Resolve(ctx context.Context, workspaceID, path string) (*domain.File, error)
	// ResolveByID looks up a File by its catalog id, for attachment
	// resolution which references files by id, not path.
	ResolveByID(ctx context.Context, workspaceID, fileID string) (*domain.File, error)
	List(ctx context.Context, workspaceID, path string, recursive bool) ([]FileEntry, error)
	ReadContent(ctx context.Context, file *domain.File) ([]byte, *domain.FileVersion, error)
	// ReadVersion returns a specific pinned version's content, for
	// attachments pinned to a version id.
	ReadVersion(ctx context.Context, file *domain.File, versionID string) (*domain.FileVersion, error)
	Write(ctx context.Context, workspaceID, path string, content []byte, author string) (*domain.File, *domain.FileVersion, error)
	Edit(ctx context.Context, workspaceID, path string, op EditOp, author string, expectedHash string) (*domain.FileVersion, error)
	Rm(ctx context.Context, workspaceID, path string) error
	Mv(ctx context.Context, workspaceID, src, dst string) (*domain.File, error)
	Touch(ctx context.Context, workspaceID, path string) (*domain.File, error)
	Mkdir(ctx context.Context, workspaceID, path string) (*domain.File, error)
}
