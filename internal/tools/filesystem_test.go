package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawdesk/clawbench/internal/domain"
)

func newTestRegistry(store *memStore) *Registry {
	reg := NewRegistry()
	RegisterFilesystemTools(reg, store)
	RegisterCatTool(reg, store)
	RegisterGrepTool(reg, store)
	RegisterGlobAndFindTools(reg, store)
	RegisterMemoryTools(reg, store)
	RegisterPlanTools(reg, store)
	return reg
}

func run(t *testing.T, reg *Registry, name Name, args map[string]any) Result {
	t.Helper()
	res, err := reg.Dispatch(context.Background(), name, Invocation{
		WorkspaceID: "ws1",
		UserID:      "u1",
		Args:        args,
	}, nil)
	require.NoError(t, err)
	return res
}

func TestReadReturnsHashAndTotalLines(t *testing.T) {
	store := newMemStore()
	store.seed("ws1", "/notes.md", domain.FileTypeDocument, false, "one\ntwo\nthree\nfour\nfive")
	reg := newTestRegistry(store)

	res := run(t, reg, ToolRead, map[string]any{"path": "/notes.md"})
	require.True(t, res.Success(), res.Err)

	payload := res.ForUser.(map[string]any)
	assert.Equal(t, 5, payload["total_lines"])
	assert.Equal(t, memHash([]byte("one\ntwo\nthree\nfour\nfive")), payload["hash"])
	assert.Equal(t, "one\ntwo\nthree\nfour\nfive", res.ForLLM)
}

func TestReadLineSlices(t *testing.T) {
	store := newMemStore()
	store.seed("ws1", "/notes.md", domain.FileTypeDocument, false, "one\ntwo\nthree\nfour\nfive")
	reg := newTestRegistry(store)

	res := run(t, reg, ToolRead, map[string]any{"path": "/notes.md", "offset": float64(1), "limit": float64(2)})
	assert.Equal(t, "two\nthree", res.ForLLM)

	// Negative offset reads from the end.
	res = run(t, reg, ToolRead, map[string]any{"path": "/notes.md", "offset": float64(-2)})
	assert.Equal(t, "four\nfive", res.ForLLM)
}

func TestReadRejectsFolder(t *testing.T) {
	store := newMemStore()
	store.seed("ws1", "/docs", domain.FileTypeFolder, false, "")
	reg := newTestRegistry(store)

	res := run(t, reg, ToolRead, map[string]any{"path": "/docs"})
	assert.False(t, res.Success())
	assert.Contains(t, res.Err, "folder")
}

func TestWriteRejectsVirtualFile(t *testing.T) {
	store := newMemStore()
	store.seed("ws1", "/chats/c1", domain.FileTypeChat, true, "{}")
	reg := newTestRegistry(store)

	res := run(t, reg, ToolWrite, map[string]any{"path": "/chats/c1", "content": "x"})
	assert.False(t, res.Success())
	assert.Contains(t, res.Err, "virtual")
}

func TestVirtualFileIsStillReadable(t *testing.T) {
	store := newMemStore()
	store.seed("ws1", "/chats/c1", domain.FileTypeChat, true, "chat log")
	reg := newTestRegistry(store)

	res := run(t, reg, ToolRead, map[string]any{"path": "/chats/c1"})
	require.True(t, res.Success(), res.Err)
	assert.Equal(t, "chat log", res.ForLLM)
}

func TestEditRejectsVirtualAndFolder(t *testing.T) {
	store := newMemStore()
	store.seed("ws1", "/chats/c1", domain.FileTypeChat, true, "{}")
	store.seed("ws1", "/docs", domain.FileTypeFolder, false, "")
	reg := newTestRegistry(store)

	res := run(t, reg, ToolEdit, map[string]any{"path": "/chats/c1", "old": "{}", "new": "x"})
	assert.False(t, res.Success())
	assert.Contains(t, res.Err, "virtual")

	res = run(t, reg, ToolEdit, map[string]any{"path": "/docs", "old": "a", "new": "b"})
	assert.False(t, res.Success())
	assert.Contains(t, res.Err, "folder")
}

func TestEditCASConflictThenRetry(t *testing.T) {
	store := newMemStore()
	store.seed("ws1", "/doc.md", domain.FileTypeDocument, false, "v1 content")
	reg := newTestRegistry(store)

	// Client A reads at hash H1.
	readRes := run(t, reg, ToolRead, map[string]any{"path": "/doc.md"})
	h1 := readRes.ForUser.(map[string]any)["hash"].(string)

	// Client B writes, producing H2.
	writeRes := run(t, reg, ToolWrite, map[string]any{"path": "/doc.md", "content": "v2 content"})
	require.True(t, writeRes.Success(), writeRes.Err)
	h2 := writeRes.ForUser.(map[string]any)["hash"].(string)
	require.NotEqual(t, h1, h2)

	// A's stale edit conflicts.
	res := run(t, reg, ToolEdit, map[string]any{"path": "/doc.md", "old": "v2", "new": "v3", "last_read_hash": h1})
	assert.False(t, res.Success())
	assert.Contains(t, res.Err, "conflict")

	// A re-reads and retries with the fresh hash.
	res = run(t, reg, ToolEdit, map[string]any{"path": "/doc.md", "old": "v2", "new": "v3", "last_read_hash": h2})
	require.True(t, res.Success(), res.Err)
	h3 := res.ForUser.(map[string]any)["hash"].(string)
	assert.NotEqual(t, h2, h3)

	final := run(t, reg, ToolRead, map[string]any{"path": "/doc.md"})
	assert.Equal(t, "v3 content", final.ForLLM)
}

func TestEditInsertMode(t *testing.T) {
	store := newMemStore()
	store.seed("ws1", "/doc.md", domain.FileTypeDocument, false, "a\nc")
	reg := newTestRegistry(store)

	res := run(t, reg, ToolEdit, map[string]any{"path": "/doc.md", "insert_line": float64(1), "insert_content": "b"})
	require.True(t, res.Success(), res.Err)

	final := run(t, reg, ToolRead, map[string]any{"path": "/doc.md"})
	assert.Equal(t, "a\nb\nc", final.ForLLM)
}

func TestReadMultipleFilesIndependentFailures(t *testing.T) {
	store := newMemStore()
	store.seed("ws1", "/a.md", domain.FileTypeDocument, false, "alpha")
	reg := newTestRegistry(store)

	res := run(t, reg, ToolReadMultipleFiles, map[string]any{"paths": []any{"/a.md", "/missing.md"}})
	require.True(t, res.Success(), res.Err)

	raw, err := json.Marshal(res.ForUser)
	require.NoError(t, err)
	var entries []struct {
		Path  string `json:"path"`
		OK    bool   `json:"ok"`
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &entries))
	require.Len(t, entries, 2)
	assert.True(t, entries[0].OK)
	assert.Equal(t, "alpha", entries[0].Text)
	assert.False(t, entries[1].OK)
	assert.NotEmpty(t, entries[1].Error)
}

func TestMvAndRm(t *testing.T) {
	store := newMemStore()
	store.seed("ws1", "/a.md", domain.FileTypeDocument, false, "alpha")
	store.seed("ws1", "/b.md", domain.FileTypeDocument, false, "beta")
	reg := newTestRegistry(store)

	// mv onto an existing destination fails.
	res := run(t, reg, ToolMv, map[string]any{"src": "/a.md", "dst": "/b.md"})
	assert.False(t, res.Success())

	res = run(t, reg, ToolMv, map[string]any{"src": "/a.md", "dst": "/c.md"})
	require.True(t, res.Success(), res.Err)

	res = run(t, reg, ToolRead, map[string]any{"path": "/c.md"})
	assert.Equal(t, "alpha", res.ForLLM)

	res = run(t, reg, ToolRm, map[string]any{"path": "/c.md"})
	require.True(t, res.Success(), res.Err)

	res = run(t, reg, ToolRead, map[string]any{"path": "/c.md"})
	assert.False(t, res.Success())
}

func TestTouchRejectsVirtualFile(t *testing.T) {
	store := newMemStore()
	store.seed("ws1", "/chats/c1", domain.FileTypeChat, true, "{}")
	reg := newTestRegistry(store)

	res := run(t, reg, ToolTouch, map[string]any{"path": "/chats/c1"})
	assert.False(t, res.Success())
	assert.Contains(t, res.Err, "virtual")

	// A fresh path is still creatable.
	res = run(t, reg, ToolTouch, map[string]any{"path": "/new.md"})
	require.True(t, res.Success(), res.Err)
}

func TestFileInfo(t *testing.T) {
	store := newMemStore()
	store.seed("ws1", "/a.md", domain.FileTypeDocument, false, "alpha")
	reg := newTestRegistry(store)

	res := run(t, reg, ToolFileInfo, map[string]any{"path": "/a.md"})
	require.True(t, res.Success(), res.Err)
	info := res.ForUser.(map[string]any)
	assert.Equal(t, memHash([]byte("alpha")), info["hash"])
	assert.Equal(t, 5, info["size"])
}

func TestWorkspaceIsolation(t *testing.T) {
	store := newMemStore()
	store.seed("ws1", "/mine.md", domain.FileTypeDocument, false, "mine")
	store.seed("ws2", "/theirs.md", domain.FileTypeDocument, false, "theirs")
	reg := newTestRegistry(store)

	// ws1's recursive listing, grep, and glob never surface ws2 files.
	res := run(t, reg, ToolLs, map[string]any{"path": "/", "recursive": true})
	require.True(t, res.Success(), res.Err)
	assert.NotContains(t, res.ForLLM, "theirs")

	res = run(t, reg, ToolGrep, map[string]any{"pattern": "theirs"})
	require.True(t, res.Success(), res.Err)
	assert.Empty(t, res.ForUser)

	res = run(t, reg, ToolGlob, map[string]any{"pattern": "/*.md"})
	require.True(t, res.Success(), res.Err)
	assert.NotContains(t, res.ForLLM, "theirs")
}
