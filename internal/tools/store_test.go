package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clawdesk/clawbench/internal/domain"
	"github.com/clawdesk/clawbench/internal/errs"
	"github.com/clawdesk/clawbench/internal/vfs"
)

// memStore is an in-memory vfs.Store for exercising tools without a live
// Postgres catalog. It mirrors the contract surface the tools depend on:
// normalized paths, folder rejection, latest-version hashes, and CAS edits.
type memStore struct {
	files map[string]map[string]*memFile // workspace -> path -> file
}

type memFile struct {
	file     domain.File
	versions []*domain.FileVersion
}

func newMemStore() *memStore {
	return &memStore{files: make(map[string]map[string]*memFile)}
}

func memHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func (s *memStore) ws(workspaceID string) map[string]*memFile {
	m, ok := s.files[workspaceID]
	if !ok {
		m = make(map[string]*memFile)
		s.files[workspaceID] = m
	}
	return m
}

// seed inserts a file with one version directly, bypassing Write's
// folder/virtual checks, so tests can stage virtual files and folders.
func (s *memStore) seed(workspaceID, path string, ft domain.FileType, virtual bool, content string) *memFile {
	norm := vfs.Normalize(path)
	f := &memFile{file: domain.File{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Path:        norm,
		Name:        vfs.Base(norm),
		Slug:        vfs.Base(norm),
		Type:        ft,
		IsVirtual:   virtual,
		Permission:  domain.PermissionOwner,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}}
	if ft != domain.FileTypeFolder {
		s.appendVersion(f, []byte(content), "seed")
	}
	s.ws(workspaceID)[norm] = f
	return f
}

func (s *memStore) appendVersion(f *memFile, content []byte, author string) *domain.FileVersion {
	v := &domain.FileVersion{
		ID:        uuid.NewString(),
		FileID:    f.file.ID,
		VersionNo: int64(len(f.versions) + 1),
		Author:    author,
		Branch:    domain.MainBranch,
		Content:   content,
		Hash:      memHash(content),
		CreatedAt: time.Now(),
	}
	f.versions = append(f.versions, v)
	return v
}

func (s *memStore) latest(f *memFile) *domain.FileVersion {
	if len(f.versions) == 0 {
		return nil
	}
	return f.versions[len(f.versions)-1]
}

func (s *memStore) Resolve(ctx context.Context, workspaceID, path string) (*domain.File, error) {
	norm := vfs.Normalize(path)
	if norm == "/" {
		return &domain.File{ID: "root:" + workspaceID, WorkspaceID: workspaceID, Path: "/", Name: "/", Type: domain.FileTypeFolder, IsVirtual: true}, nil
	}
	f, ok := s.ws(workspaceID)[norm]
	if !ok {
		return nil, errs.New(errs.NotFound, "file not found")
	}
	cp := f.file
	return &cp, nil
}

func (s *memStore) ResolveByID(ctx context.Context, workspaceID, fileID string) (*domain.File, error) {
	for _, f := range s.ws(workspaceID) {
		if f.file.ID == fileID {
			cp := f.file
			return &cp, nil
		}
	}
	return nil, errs.New(errs.NotFound, "file not found")
}

func (s *memStore) List(ctx context.Context, workspaceID, path string, recursive bool) ([]vfs.FileEntry, error) {
	root, err := s.Resolve(ctx, workspaceID, path)
	if err != nil {
		return nil, err
	}
	if !root.IsFolder() {
		return nil, errs.New(errs.Validation, "path does not resolve to a folder")
	}
	prefix := root.Path
	if prefix == "/" {
		prefix = ""
	}

	var out []vfs.FileEntry
	for p, f := range s.ws(workspaceID) {
		if !strings.HasPrefix(p, prefix+"/") {
			continue
		}
		if !recursive && strings.Contains(strings.TrimPrefix(p, prefix+"/"), "/") {
			continue
		}
		var size int64
		updated := ""
		if v := s.latest(f); v != nil {
			size = int64(len(v.Content))
			updated = v.CreatedAt.Format(time.RFC3339)
		}
		out = append(out, vfs.FileEntry{File: f.file, Size: size, UpdatedAt: updated})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File.Path < out[j].File.Path })
	return out, nil
}

func (s *memStore) ReadContent(ctx context.Context, file *domain.File) ([]byte, *domain.FileVersion, error) {
	if file.IsFolder() {
		return nil, nil, errs.New(errs.Validation, "cannot read content of a folder")
	}
	f, ok := s.ws(file.WorkspaceID)[file.Path]
	if !ok {
		return nil, nil, errs.New(errs.NotFound, "file not found")
	}
	v := s.latest(f)
	if v == nil {
		return nil, nil, errs.New(errs.NotFound, "file has no content version")
	}
	return v.Content, v, nil
}

func (s *memStore) ReadVersion(ctx context.Context, file *domain.File, versionID string) (*domain.FileVersion, error) {
	f, ok := s.ws(file.WorkspaceID)[file.Path]
	if !ok {
		return nil, errs.New(errs.NotFound, "file not found")
	}
	for _, v := range f.versions {
		if v.ID == versionID {
			return v, nil
		}
	}
	return nil, errs.New(errs.NotFound, "version not found")
}

func (s *memStore) Write(ctx context.Context, workspaceID, path string, content []byte, author string) (*domain.File, *domain.FileVersion, error) {
	norm := vfs.Normalize(path)
	if norm == "/" {
		return nil, nil, errs.New(errs.Validation, "cannot write to the root folder")
	}
	f, ok := s.ws(workspaceID)[norm]
	if !ok {
		ft := domain.FileTypeDocument
		if strings.HasSuffix(norm, ".plan") {
			ft = domain.FileTypePlan
		}
		f = s.seed(workspaceID, norm, ft, false, "")
		f.versions = nil
	}
	if f.file.IsFolder() {
		return nil, nil, errs.New(errs.InvalidKind, "folders are not writable")
	}
	v := s.appendVersion(f, content, author)
	cp := f.file
	return &cp, v, nil
}

func (s *memStore) Edit(ctx context.Context, workspaceID, path string, op vfs.EditOp, author string, expectedHash string) (*domain.FileVersion, error) {
	norm := vfs.Normalize(path)
	f, ok := s.ws(workspaceID)[norm]
	if !ok {
		return nil, errs.New(errs.NotFound, "file not found")
	}
	if f.file.IsFolder() {
		return nil, errs.New(errs.InvalidKind, "cannot edit a folder")
	}
	if f.file.IsVirtual {
		return nil, errs.New(errs.Validation, "cannot edit a virtual file")
	}
	latest := s.latest(f)
	if latest == nil {
		return nil, errs.New(errs.NotFound, "file has no content to edit")
	}
	if expectedHash != "" && expectedHash != latest.Hash {
		return nil, errs.New(errs.Conflict, "edit conflicts with a newer version")
	}

	content := string(latest.Content)
	var next string
	if op.IsReplace {
		switch strings.Count(content, op.Old) {
		case 0:
			return nil, errs.New(errs.Validation, "old text not found in file")
		case 1:
			next = strings.Replace(content, op.Old, op.New, 1)
		default:
			return nil, errs.New(errs.Validation, "old text matches more than once; provide more context")
		}
	} else {
		lines := strings.Split(content, "\n")
		if op.InsertLine < 0 || op.InsertLine > len(lines) {
			return nil, errs.New(errs.Validation, "insert_line out of bounds")
		}
		joined := make([]string, 0, len(lines)+1)
		joined = append(joined, lines[:op.InsertLine]...)
		joined = append(joined, op.InsertContent)
		joined = append(joined, lines[op.InsertLine:]...)
		next = strings.Join(joined, "\n")
	}
	return s.appendVersion(f, []byte(next), author), nil
}

func (s *memStore) Rm(ctx context.Context, workspaceID, path string) error {
	norm := vfs.Normalize(path)
	if _, ok := s.ws(workspaceID)[norm]; !ok {
		return errs.New(errs.NotFound, "file not found")
	}
	delete(s.ws(workspaceID), norm)
	return nil
}

func (s *memStore) Mv(ctx context.Context, workspaceID, src, dst string) (*domain.File, error) {
	srcNorm, dstNorm := vfs.Normalize(src), vfs.Normalize(dst)
	f, ok := s.ws(workspaceID)[srcNorm]
	if !ok {
		return nil, errs.New(errs.NotFound, "file not found")
	}
	if _, exists := s.ws(workspaceID)[dstNorm]; exists {
		return nil, errs.New(errs.AlreadyExists, "destination already exists")
	}
	delete(s.ws(workspaceID), srcNorm)
	f.file.Path = dstNorm
	f.file.Name = vfs.Base(dstNorm)
	s.ws(workspaceID)[dstNorm] = f
	cp := f.file
	return &cp, nil
}

func (s *memStore) Touch(ctx context.Context, workspaceID, path string) (*domain.File, error) {
	norm := vfs.Normalize(path)
	if f, ok := s.ws(workspaceID)[norm]; ok {
		f.file.UpdatedAt = time.Now()
		cp := f.file
		return &cp, nil
	}
	file, _, err := s.Write(ctx, workspaceID, norm, []byte{}, "system")
	return file, err
}

func (s *memStore) Mkdir(ctx context.Context, workspaceID, path string) (*domain.File, error) {
	norm := vfs.Normalize(path)
	if f, ok := s.ws(workspaceID)[norm]; ok {
		if !f.file.IsFolder() {
			return nil, errs.New(errs.InvalidKind, "path exists and is not a folder")
		}
		cp := f.file
		return &cp, nil
	}
	f := s.seed(workspaceID, norm, domain.FileTypeFolder, false, "")
	cp := f.file
	return &cp, nil
}

var _ vfs.Store = (*memStore)(nil)

func seedLines(n int, format string) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf(format, i+1)
	}
	return strings.Join(lines, "\n")
}
