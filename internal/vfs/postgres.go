package vfs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clawdesk/clawbench/internal/blobstore"
	"github.com/clawdesk/clawbench/internal/domain"
	"github.com/clawdesk/clawbench/internal/errs"
)

// PGStore is the Postgres+blobstore-backed Virtual Filesystem: the catalog
// rows live in Postgres, version content is mirrored to the blob store.
type PGStore struct {
	pool  *pgxpool.Pool
	blobs blobstore.Store
}

func NewPGStore(pool *pgxpool.Pool, blobs blobstore.Store) *PGStore {
	return &PGStore{pool: pool, blobs: blobs}
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// fileTypeForPath assigns the catalog type a freshly created file gets from
// its path: ".plan" files are Plan files, everything else a Document.
func fileTypeForPath(path string) domain.FileType {
	if strings.HasSuffix(path, ".plan") {
		return domain.FileTypePlan
	}
	return domain.FileTypeDocument
}

func scanFile(row pgx.Row) (*domain.File, error) {
	var f domain.File
	var parentID *string
	var deletedAt *time.Time
	err := row.Scan(&f.ID, &f.WorkspaceID, &f.Path, &f.Name, &f.Slug, &f.Type,
		&f.IsVirtual, &f.IsRemote, &f.Permission, &parentID,
		&f.CreatedAt, &f.UpdatedAt, &deletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.New(errs.NotFound, "file not found")
	}
	if err != nil {
		return nil, fmt.Errorf("vfs: scan file: %w", err)
	}
	f.ParentID = parentID
	f.DeletedAt = deletedAt
	return &f, nil
}

const fileColumns = `id, workspace_id, path, name, slug, file_type, is_virtual, is_remote, permission, parent_id, created_at, updated_at, deleted_at`

func (s *PGStore) Resolve(ctx context.Context, workspaceID, path string) (*domain.File, error) {
	norm := Normalize(path)
	if norm == "/" {
		return s.rootFolder(ctx, workspaceID)
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM files WHERE workspace_id=$1 AND path=$2 AND deleted_at IS NULL`,
		workspaceID, norm)
	return scanFile(row)
}

func (s *PGStore) ResolveByID(ctx context.Context, workspaceID, fileID string) (*domain.File, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM files WHERE workspace_id=$1 AND id=$2 AND deleted_at IS NULL`,
		workspaceID, fileID)
	return scanFile(row)
}

func (s *PGStore) ReadVersion(ctx context.Context, file *domain.File, versionID string) (*domain.FileVersion, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, file_id, version_no, author, branch, content, app_data, hash, created_at
		 FROM file_versions WHERE file_id=$1 AND id=$2`, file.ID, versionID)
	var v domain.FileVersion
	err := row.Scan(&v.ID, &v.FileID, &v.VersionNo, &v.Author, &v.Branch, &v.Content, &v.AppData, &v.Hash, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.New(errs.NotFound, "version not found")
	}
	if err != nil {
		return nil, fmt.Errorf("vfs: read version: %w", err)
	}
	return &v, nil
}

// rootFolder returns a synthetic root folder; the root itself is never a
// catalog row (there is nothing to own its own parent reference).
func (s *PGStore) rootFolder(ctx context.Context, workspaceID string) (*domain.File, error) {
	return &domain.File{
		ID:          "root:" + workspaceID,
		WorkspaceID: workspaceID,
		Path:        "/",
		Name:        "/",
		Type:        domain.FileTypeFolder,
		IsVirtual:   true,
	}, nil
}

func (s *PGStore) List(ctx context.Context, workspaceID, path string, recursive bool) ([]FileEntry, error) {
	file, err := s.Resolve(ctx, workspaceID, path)
	if err != nil {
		return nil, err
	}
	if !file.IsFolder() {
		return nil, errs.New(errs.Validation, "path does not resolve to a folder")
	}

	var rows pgx.Rows
	if recursive {
		prefix := file.Path
		if prefix == "/" {
			prefix = ""
		}
		rows, err = s.pool.Query(ctx,
			`SELECT `+fileColumns+` FROM files
			 WHERE workspace_id=$1 AND deleted_at IS NULL AND path LIKE $2 || '/%'
			 ORDER BY path`, workspaceID, prefix)
	} else if file.Path == "/" {
		rows, err = s.pool.Query(ctx,
			`SELECT `+fileColumns+` FROM files WHERE workspace_id=$1 AND deleted_at IS NULL AND parent_id IS NULL ORDER BY path`,
			workspaceID)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+fileColumns+` FROM files WHERE workspace_id=$1 AND deleted_at IS NULL AND parent_id=$2 ORDER BY path`,
			workspaceID, file.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("vfs: list query: %w", err)
	}
	defer rows.Close()

	var out []FileEntry
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		size, updatedAt, _ := s.latestVersionMeta(ctx, f.ID)
		out = append(out, FileEntry{File: *f, Size: size, UpdatedAt: updatedAt})
	}
	return out, rows.Err()
}

func (s *PGStore) latestVersionMeta(ctx context.Context, fileID string) (int64, string, error) {
	var size int64
	var updatedAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT length(content), created_at FROM file_versions
		 WHERE file_id=$1 AND branch=$2 ORDER BY version_no DESC LIMIT 1`,
		fileID, domain.MainBranch).Scan(&size, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", err
	}
	return size, updatedAt.Format(time.RFC3339), nil
}

func (s *PGStore) latestVersion(ctx context.Context, fileID string) (*domain.FileVersion, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, file_id, version_no, author, branch, content, app_data, hash, created_at
		 FROM file_versions WHERE file_id=$1 AND branch=$2 ORDER BY version_no DESC LIMIT 1`,
		fileID, domain.MainBranch)
	var v domain.FileVersion
	err := row.Scan(&v.ID, &v.FileID, &v.VersionNo, &v.Author, &v.Branch, &v.Content, &v.AppData, &v.Hash, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vfs: latest version: %w", err)
	}
	return &v, nil
}

// ReadContent returns the latest-version content of a non-folder file. If
// the catalog lacks a version but the blob exists, it is auto-healed
// (imported) before returning.
func (s *PGStore) ReadContent(ctx context.Context, file *domain.File) ([]byte, *domain.FileVersion, error) {
	if file.IsFolder() {
		return nil, nil, errs.New(errs.Validation, "cannot read content of a folder")
	}
	v, err := s.latestVersion(ctx, file.ID)
	if err != nil {
		return nil, nil, err
	}
	if v == nil {
		key := blobstore.Key(file.WorkspaceID, file.Path, "")
		if ok, _ := s.blobs.Exists(ctx, key); ok {
			data, err := s.blobs.Get(ctx, key)
			if err != nil {
				return nil, nil, errs.Wrap(errs.Storage, err, "read blob during auto-heal")
			}
			healed, err := s.appendVersion(ctx, file.ID, data, "auto-heal")
			if err != nil {
				return nil, nil, err
			}
			return data, healed, nil
		}
		return nil, nil, errs.New(errs.NotFound, "file has no content version")
	}
	return v.Content, v, nil
}

func (s *PGStore) appendVersion(ctx context.Context, fileID string, content []byte, author string) (*domain.FileVersion, error) {
	var nextNo int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(version_no), 0) + 1 FROM file_versions WHERE file_id=$1 AND branch=$2`,
		fileID, domain.MainBranch).Scan(&nextNo)
	if err != nil {
		return nil, fmt.Errorf("vfs: next version no: %w", err)
	}

	v := &domain.FileVersion{
		ID:        uuid.Must(uuid.NewV7()).String(),
		FileID:    fileID,
		VersionNo: nextNo,
		Author:    author,
		Branch:    domain.MainBranch,
		Content:   content,
		Hash:      contentHash(content),
		CreatedAt: time.Now(),
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO file_versions (id, file_id, version_no, author, branch, content, hash, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		v.ID, v.FileID, v.VersionNo, v.Author, v.Branch, v.Content, v.Hash, v.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("vfs: insert version: %w", err)
	}
	return v, nil
}

// Write creates or versions a file, auto-creating intermediate folders.
func (s *PGStore) Write(ctx context.Context, workspaceID, path string, content []byte, author string) (*domain.File, *domain.FileVersion, error) {
	norm := Normalize(path)
	if norm == "/" {
		return nil, nil, errs.New(errs.Validation, "cannot write to the root folder")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("vfs: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	parentID, err := s.ensureFoldersTx(ctx, tx, workspaceID, norm)
	if err != nil {
		return nil, nil, err
	}

	var file *domain.File
	row := tx.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE workspace_id=$1 AND path=$2 AND deleted_at IS NULL`, workspaceID, norm)
	file, err = scanFile(row)
	if err != nil && errs.KindOf(err) != errs.NotFound {
		return nil, nil, err
	}
	if file == nil {
		file = &domain.File{
			ID:          uuid.Must(uuid.NewV7()).String(),
			WorkspaceID: workspaceID,
			Path:        norm,
			Name:        Base(norm),
			Slug:        Base(norm),
			Type:        fileTypeForPath(norm),
			Permission:  domain.PermissionOwner,
			ParentID:    parentID,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO files (id, workspace_id, path, name, slug, file_type, is_virtual, is_remote, permission, parent_id, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$6,false,false,$7,$8,$9,$9)`,
			file.ID, file.WorkspaceID, file.Path, file.Name, file.Slug, file.Type, file.Permission, file.ParentID, file.CreatedAt)
		if err != nil {
			return nil, nil, fmt.Errorf("vfs: insert file: %w", err)
		}
	} else if file.IsFolder() {
		return nil, nil, errs.New(errs.InvalidKind, "folders are not writable")
	}

	version, err := s.appendVersionTx(ctx, tx, file.ID, content, author)
	if err != nil {
		return nil, nil, err
	}

	if err := s.putBlob(ctx, workspaceID, norm, version.Hash, content); err != nil {
		return nil, nil, err
	}

	_, err = tx.Exec(ctx, `UPDATE files SET updated_at=now() WHERE id=$1`, file.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("vfs: touch updated_at: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("vfs: commit: %w", err)
	}
	return file, version, nil
}

func (s *PGStore) appendVersionTx(ctx context.Context, tx pgx.Tx, fileID string, content []byte, author string) (*domain.FileVersion, error) {
	var nextNo int64
	err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(version_no), 0) + 1 FROM file_versions WHERE file_id=$1 AND branch=$2`,
		fileID, domain.MainBranch).Scan(&nextNo)
	if err != nil {
		return nil, fmt.Errorf("vfs: next version no: %w", err)
	}
	v := &domain.FileVersion{
		ID:        uuid.Must(uuid.NewV7()).String(),
		FileID:    fileID,
		VersionNo: nextNo,
		Author:    author,
		Branch:    domain.MainBranch,
		Content:   content,
		Hash:      contentHash(content),
		CreatedAt: time.Now(),
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO file_versions (id, file_id, version_no, author, branch, content, hash, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		v.ID, v.FileID, v.VersionNo, v.Author, v.Branch, v.Content, v.Hash, v.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("vfs: insert version: %w", err)
	}
	return v, nil
}

// putBlob stores a version's content under its immutable hash key and
// refreshes the empty-hash "latest" slot, which is what ReadContent's
// auto-heal import reads when the catalog lacks a version row.
func (s *PGStore) putBlob(ctx context.Context, workspaceID, path, hash string, content []byte) error {
	if err := s.blobs.Put(ctx, blobstore.Key(workspaceID, path, hash), content); err != nil {
		return errs.Wrap(errs.Storage, err, "write blob")
	}
	if err := s.blobs.Put(ctx, blobstore.Key(workspaceID, path, ""), content); err != nil {
		return errs.Wrap(errs.Storage, err, "write latest blob")
	}
	return nil
}

// ensureFoldersTx creates any missing ancestor folders of path, returning
// the immediate parent's id (nil for a top-level file).
func (s *PGStore) ensureFoldersTx(ctx context.Context, tx pgx.Tx, workspaceID, path string) (*string, error) {
	var parentID *string
	for _, folder := range Ancestors(path) {
		row := tx.QueryRow(ctx, `SELECT id FROM files WHERE workspace_id=$1 AND path=$2 AND deleted_at IS NULL`, workspaceID, folder)
		var id string
		err := row.Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			id = uuid.Must(uuid.NewV7()).String()
			_, err = tx.Exec(ctx,
				`INSERT INTO files (id, workspace_id, path, name, slug, file_type, is_virtual, is_remote, permission, parent_id, created_at, updated_at)
				 VALUES ($1,$2,$3,$4,$5,'folder',false,false,'owner',$6,now(),now())`,
				id, workspaceID, folder, Base(folder), Base(folder), parentID)
			if err != nil {
				return nil, fmt.Errorf("vfs: create ancestor folder %s: %w", folder, err)
			}
		} else if err != nil {
			return nil, fmt.Errorf("vfs: lookup ancestor folder: %w", err)
		}
		parentID = &id
	}
	return parentID, nil
}

// Edit applies a Replace or Insert mutation, optionally as a CAS against
// expectedHash.
func (s *PGStore) Edit(ctx context.Context, workspaceID, path string, op EditOp, author string, expectedHash string) (*domain.FileVersion, error) {
	file, err := s.Resolve(ctx, workspaceID, path)
	if err != nil {
		return nil, err
	}
	if file.IsFolder() {
		return nil, errs.New(errs.InvalidKind, "cannot edit a folder")
	}
	if file.IsVirtual {
		return nil, errs.New(errs.Validation, "cannot edit a virtual file")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("vfs: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the file's version history for the duration of the CAS check +
	// append so two concurrent edits can't both observe the same latest hash.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, file.ID); err != nil {
		return nil, fmt.Errorf("vfs: advisory lock: %w", err)
	}

	var latest domain.FileVersion
	row := tx.QueryRow(ctx,
		`SELECT id, file_id, version_no, author, branch, content, app_data, hash, created_at
		 FROM file_versions WHERE file_id=$1 AND branch=$2 ORDER BY version_no DESC LIMIT 1`,
		file.ID, domain.MainBranch)
	err = row.Scan(&latest.ID, &latest.FileID, &latest.VersionNo, &latest.Author, &latest.Branch,
		&latest.Content, &latest.AppData, &latest.Hash, &latest.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.New(errs.NotFound, "file has no content to edit")
	}
	if err != nil {
		return nil, fmt.Errorf("vfs: scan latest version: %w", err)
	}

	if expectedHash != "" && expectedHash != latest.Hash {
		return nil, errs.New(errs.Conflict, "edit conflicts with a newer version")
	}

	newContent, err := applyEdit(string(latest.Content), op)
	if err != nil {
		return nil, err
	}

	v, err := s.appendVersionTx(ctx, tx, file.ID, []byte(newContent), author)
	if err != nil {
		return nil, err
	}
	if err := s.putBlob(ctx, workspaceID, file.Path, v.Hash, []byte(newContent)); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `UPDATE files SET updated_at=now() WHERE id=$1`, file.ID); err != nil {
		return nil, fmt.Errorf("vfs: touch updated_at: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("vfs: commit: %w", err)
	}
	return v, nil
}

// applyEdit implements the two edit shapes: Replace requires old to match
// exactly once; Insert is 0-indexed and bounds-checked.
func applyEdit(content string, op EditOp) (string, error) {
	if op.IsReplace {
		count := strings.Count(content, op.Old)
		if count == 0 {
			return "", errs.New(errs.Validation, "old text not found in file")
		}
		if count > 1 {
			return "", errs.New(errs.Validation, "old text matches more than once; provide more context")
		}
		return strings.Replace(content, op.Old, op.New, 1), nil
	}

	lines := strings.Split(content, "\n")
	if op.InsertLine < 0 || op.InsertLine > len(lines) {
		return "", errs.New(errs.Validation, "insert_line out of bounds")
	}
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:op.InsertLine]...)
	out = append(out, op.InsertContent)
	out = append(out, lines[op.InsertLine:]...)
	return strings.Join(out, "\n"), nil
}

func (s *PGStore) Rm(ctx context.Context, workspaceID, path string) error {
	file, err := s.Resolve(ctx, workspaceID, path)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE files SET deleted_at=now() WHERE id=$1 AND deleted_at IS NULL`, file.ID)
	if err != nil {
		return fmt.Errorf("vfs: rm: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.New(errs.NotFound, "file already deleted")
	}
	return nil
}

func (s *PGStore) Mv(ctx context.Context, workspaceID, src, dst string) (*domain.File, error) {
	srcFile, err := s.Resolve(ctx, workspaceID, src)
	if err != nil {
		return nil, err
	}
	dstNorm := Normalize(dst)
	if _, err := s.Resolve(ctx, workspaceID, dstNorm); err == nil {
		return nil, errs.New(errs.AlreadyExists, "destination already exists")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("vfs: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	parentID, err := s.ensureFoldersTx(ctx, tx, workspaceID, dstNorm)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `UPDATE files SET path=$1, name=$2, slug=$2, parent_id=$3, updated_at=now() WHERE id=$4`,
		dstNorm, Base(dstNorm), parentID, srcFile.ID)
	if err != nil {
		return nil, fmt.Errorf("vfs: mv: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("vfs: commit: %w", err)
	}

	srcFile.Path = dstNorm
	srcFile.Name = Base(dstNorm)
	srcFile.ParentID = parentID
	return srcFile, nil
}

func (s *PGStore) Touch(ctx context.Context, workspaceID, path string) (*domain.File, error) {
	file, err := s.Resolve(ctx, workspaceID, path)
	if err == nil {
		_, err = s.pool.Exec(ctx, `UPDATE files SET updated_at=now() WHERE id=$1`, file.ID)
		if err != nil {
			return nil, fmt.Errorf("vfs: touch: %w", err)
		}
		file.UpdatedAt = time.Now()
		return file, nil
	}
	if errs.KindOf(err) != errs.NotFound {
		return nil, err
	}
	file, _, err = s.Write(ctx, workspaceID, path, []byte{}, "system")
	return file, err
}

func (s *PGStore) Mkdir(ctx context.Context, workspaceID, path string) (*domain.File, error) {
	norm := Normalize(path)
	if norm == "/" {
		return s.rootFolder(ctx, workspaceID)
	}
	if existing, err := s.Resolve(ctx, workspaceID, norm); err == nil {
		if !existing.IsFolder() {
			return nil, errs.New(errs.InvalidKind, "path exists and is not a folder")
		}
		return existing, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("vfs: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Ancestors(norm+"/_") yields every folder from the root down to and
	// including norm itself, since Ancestors excludes only the final
	// segment of its argument.
	parent, err := s.ensureFoldersTx(ctx, tx, workspaceID, norm+"/_")
	if err != nil {
		return nil, err
	}

	id := uuid.Must(uuid.NewV7()).String()
	_, err = tx.Exec(ctx,
		`INSERT INTO files (id, workspace_id, path, name, slug, file_type, is_virtual, is_remote, permission, parent_id, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,'folder',false,false,'owner',$6,now(),now())
		 ON CONFLICT DO NOTHING`,
		id, workspaceID, norm, Base(norm), Base(norm), parent)
	if err != nil {
		return nil, fmt.Errorf("vfs: mkdir: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("vfs: commit: %w", err)
	}
	return s.Resolve(ctx, workspaceID, norm)
}
