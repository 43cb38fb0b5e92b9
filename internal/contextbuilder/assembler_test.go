package contextbuilder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawdesk/clawbench/internal/domain"
	"github.com/clawdesk/clawbench/internal/errs"
	"github.com/clawdesk/clawbench/internal/vfs"
)

type fakeHistory struct {
	messages []domain.ChatMessage
}

func (f *fakeHistory) Messages(ctx context.Context, chatID string) ([]domain.ChatMessage, error) {
	return f.messages, nil
}

type fakeFile struct {
	file     domain.File
	versions []*domain.FileVersion
}

// fakeFiles is a minimal vfs.Store covering the attachment-resolution
// surface the Assembler uses; everything else fails NotFound.
type fakeFiles struct {
	byID map[string]*fakeFile
}

func newFakeFiles() *fakeFiles { return &fakeFiles{byID: make(map[string]*fakeFile)} }

func (s *fakeFiles) add(id, workspaceID, path, content string) *fakeFile {
	sum := sha256.Sum256([]byte(content))
	f := &fakeFile{
		file: domain.File{ID: id, WorkspaceID: workspaceID, Path: path, Name: vfs.Base(path), Type: domain.FileTypeDocument},
		versions: []*domain.FileVersion{{
			ID: id + ":v1", FileID: id, VersionNo: 1, Branch: domain.MainBranch,
			Content: []byte(content), Hash: hex.EncodeToString(sum[:]),
		}},
	}
	s.byID[id] = f
	return f
}

func (s *fakeFiles) addVersion(id, content string) *domain.FileVersion {
	f := s.byID[id]
	sum := sha256.Sum256([]byte(content))
	v := &domain.FileVersion{
		ID: id + ":v2", FileID: id, VersionNo: int64(len(f.versions) + 1), Branch: domain.MainBranch,
		Content: []byte(content), Hash: hex.EncodeToString(sum[:]),
	}
	f.versions = append(f.versions, v)
	return v
}

func (s *fakeFiles) ResolveByID(ctx context.Context, workspaceID, fileID string) (*domain.File, error) {
	f, ok := s.byID[fileID]
	if !ok {
		return nil, errs.New(errs.NotFound, "file not found")
	}
	cp := f.file
	return &cp, nil
}

func (s *fakeFiles) ReadContent(ctx context.Context, file *domain.File) ([]byte, *domain.FileVersion, error) {
	f, ok := s.byID[file.ID]
	if !ok || len(f.versions) == 0 {
		return nil, nil, errs.New(errs.NotFound, "no content")
	}
	v := f.versions[len(f.versions)-1]
	return v.Content, v, nil
}

func (s *fakeFiles) ReadVersion(ctx context.Context, file *domain.File, versionID string) (*domain.FileVersion, error) {
	f, ok := s.byID[file.ID]
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

func (s *fakeFiles) Resolve(ctx context.Context, workspaceID, path string) (*domain.File, error) {
	return nil, errs.New(errs.NotFound, "not implemented")
}
func (s *fakeFiles) List(ctx context.Context, workspaceID, path string, recursive bool) ([]vfs.FileEntry, error) {
	return nil, errs.New(errs.NotFound, "not implemented")
}
func (s *fakeFiles) Write(ctx context.Context, workspaceID, path string, content []byte, author string) (*domain.File, *domain.FileVersion, error) {
	return nil, nil, errs.New(errs.NotFound, "not implemented")
}
func (s *fakeFiles) Edit(ctx context.Context, workspaceID, path string, op vfs.EditOp, author string, expectedHash string) (*domain.FileVersion, error) {
	return nil, errs.New(errs.NotFound, "not implemented")
}
func (s *fakeFiles) Rm(ctx context.Context, workspaceID, path string) error {
	return errs.New(errs.NotFound, "not implemented")
}
func (s *fakeFiles) Mv(ctx context.Context, workspaceID, src, dst string) (*domain.File, error) {
	return nil, errs.New(errs.NotFound, "not implemented")
}
func (s *fakeFiles) Touch(ctx context.Context, workspaceID, path string) (*domain.File, error) {
	return nil, errs.New(errs.NotFound, "not implemented")
}
func (s *fakeFiles) Mkdir(ctx context.Context, workspaceID, path string) (*domain.File, error) {
	return nil, errs.New(errs.NotFound, "not implemented")
}

var _ vfs.Store = (*fakeFiles)(nil)

func userMsg(content string, attachments ...domain.Attachment) domain.ChatMessage {
	return domain.ChatMessage{Role: domain.RoleUser, Content: content, Metadata: domain.MessageMetadata{Attachments: attachments}}
}

func TestBuildRegionOrderAndContent(t *testing.T) {
	files := newFakeFiles()
	files.add("f1", "ws1", "/doc.md", "doc content")
	history := &fakeHistory{messages: []domain.ChatMessage{
		userMsg("look at this", domain.Attachment{FileID: "f1"}),
		{Role: domain.RoleAssistant, Content: "looking"},
	}}

	a := NewAssembler(history, files)
	prompt, err := a.Build(context.Background(), "ws1", "chat1", "You are helpful.", 4000)
	require.NoError(t, err)

	personaIdx := strings.Index(prompt, "You are helpful.")
	fileIdx := strings.Index(prompt, "<file_context>File: /doc.md\ndoc content</file_context>")
	historyIdx := strings.Index(prompt, "User: look at this\nAssistant: looking")

	require.GreaterOrEqual(t, personaIdx, 0)
	require.Greater(t, fileIdx, personaIdx)
	require.Greater(t, historyIdx, fileIdx)
}

func TestBuildWorkspaceIsolation(t *testing.T) {
	files := newFakeFiles()
	files.add("f1", "ws1", "/mine.md", "mine")
	files.add("f2", "ws2", "/theirs.md", "theirs")
	history := &fakeHistory{messages: []domain.ChatMessage{
		userMsg("both", domain.Attachment{FileID: "f1"}, domain.Attachment{FileID: "f2"}),
	}}

	a := NewAssembler(history, files)
	prompt, err := a.Build(context.Background(), "ws1", "chat1", "persona", 4000)
	require.NoError(t, err)

	assert.Contains(t, prompt, "/mine.md")
	assert.NotContains(t, prompt, "theirs")
}

func TestBuildDedupeKeepsLatestOccurrence(t *testing.T) {
	files := newFakeFiles()
	files.add("f1", "ws1", "/doc.md", "content")
	history := &fakeHistory{messages: []domain.ChatMessage{
		userMsg("first mention", domain.Attachment{FileID: "f1"}),
		userMsg("second mention", domain.Attachment{FileID: "f1"}),
	}}

	a := NewAssembler(history, files)
	prompt, err := a.Build(context.Background(), "ws1", "chat1", "persona", 4000)
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(prompt, "<file_context>File: /doc.md"))
}

func TestBuildPinnedVersion(t *testing.T) {
	files := newFakeFiles()
	files.add("f1", "ws1", "/doc.md", "old content")
	files.addVersion("f1", "new content")
	pinned := "f1:v1"
	history := &fakeHistory{messages: []domain.ChatMessage{
		userMsg("pinned", domain.Attachment{FileID: "f1", VersionID: &pinned}),
	}}

	a := NewAssembler(history, files)
	prompt, err := a.Build(context.Background(), "ws1", "chat1", "persona", 4000)
	require.NoError(t, err)

	assert.Contains(t, prompt, "old content")
	assert.NotContains(t, prompt, "new content")
}

func TestBuildHistoryTruncatesOldestFirst(t *testing.T) {
	history := &fakeHistory{}
	for i := 0; i < 200; i++ {
		history.messages = append(history.messages,
			domain.ChatMessage{Role: domain.RoleUser, Content: strings.Repeat("x", 90) + " msg"})
	}
	history.messages = append(history.messages,
		domain.ChatMessage{Role: domain.RoleUser, Content: "the final newest message"})

	a := NewAssembler(history, newFakeFiles())
	prompt, err := a.Build(context.Background(), "ws1", "chat1", "persona", 500)
	require.NoError(t, err)

	assert.Contains(t, prompt, "the final newest message")
	assert.LessOrEqual(t, len(prompt), 500*5)
}

// Heavy load: a 400-char persona, 500 ~100-char messages, and 20
// attachments of 1MB each against a 4,000-token budget.
func TestBuildBoundedUnderHeavyLoad(t *testing.T) {
	files := newFakeFiles()
	big := strings.Repeat("z", 1<<20)
	history := &fakeHistory{}
	for i := 0; i < 500; i++ {
		msg := domain.ChatMessage{Role: domain.RoleUser, Content: strings.Repeat("m", 96) + " end"}
		if i < 20 {
			id := fmt.Sprintf("f%02d", i)
			files.add(id, "ws1", "/big"+id+".txt", big)
			msg.Metadata.Attachments = []domain.Attachment{{FileID: id}}
		}
		history.messages = append(history.messages, msg)
	}

	persona := strings.Repeat("p", 400)
	a := NewAssembler(history, files)
	prompt, err := a.Build(context.Background(), "ws1", "chat1", persona, 4000)
	require.NoError(t, err)

	assert.LessOrEqual(t, len(prompt), 20_000, "output must stay within budget*5 chars")
	assert.Contains(t, prompt, persona, "persona is always present")
	assert.Contains(t, prompt, "<file_context>File: /big", "at least one (truncated) file fragment is present")
	assert.Contains(t, prompt, "User: ", "history region is present")
	assert.Contains(t, prompt, "[truncated]", "oversized attachment is truncated, not dropped")
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("abc"))
	assert.Equal(t, 1, estimateTokens("abcd"))
	assert.Equal(t, 2, estimateTokens("abcde"))
}

func TestCapFileFragment(t *testing.T) {
	short := "<file_context>File: /a\nshort</file_context>"
	assert.Equal(t, short, capFileFragment(short, 4000))

	long := "<file_context>File: /a\n" + strings.Repeat("x", 100_000) + "</file_context>"
	capped := capFileFragment(long, 4000)
	assert.LessOrEqual(t, len(capped), 4000/2*charsPerToken)
	assert.True(t, strings.HasSuffix(capped, "[truncated]</file_context>"))
}
