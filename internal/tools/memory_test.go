package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawdesk/clawbench/internal/domain"
)

func TestParseFrontmatter(t *testing.T) {
	content := "---\ntitle: Standup notes\ntags: [work, daily]\ncategory: meetings\nupdated_at: 2026-07-01\n---\nbody line 1\nbody line 2"
	rec := parseFrontmatter("/memories/user/standup.md", content)

	assert.Equal(t, "Standup notes", rec.Title)
	assert.Equal(t, []string{"work", "daily"}, rec.Tags)
	assert.Equal(t, "meetings", rec.Category)
	assert.Equal(t, "2026-07-01", rec.UpdatedAt)
	assert.Equal(t, "body line 1\nbody line 2", rec.Body)
}

func TestParseFrontmatterQuotedTags(t *testing.T) {
	rec := parseFrontmatter("/m", "---\ntags: [\"a\", 'b']\n---\nx")
	assert.Equal(t, []string{"a", "b"}, rec.Tags)
}

func TestParseFrontmatterNoBlock(t *testing.T) {
	rec := parseFrontmatter("/m", "just a plain body")
	assert.Empty(t, rec.Title)
	assert.Equal(t, "just a plain body", rec.Body)
}

func TestParseFrontmatterUnterminated(t *testing.T) {
	content := "---\ntitle: never closed\nbody-ish text"
	rec := parseFrontmatter("/m", content)
	// An unterminated block is not frontmatter; the whole content is body.
	assert.Empty(t, rec.Title)
	assert.Equal(t, content, rec.Body)
}

func TestParseFrontmatterIgnoresUnknownKeys(t *testing.T) {
	rec := parseFrontmatter("/m", "---\ntitle: t\nmystery: value\nnot a pair\n---\nb")
	assert.Equal(t, "t", rec.Title)
	assert.Equal(t, "b", rec.Body)
}

func TestMemoryListScopes(t *testing.T) {
	store := newMemStore()
	store.seed("ws1", "/memories/user", domain.FileTypeFolder, false, "")
	store.seed("ws1", "/memories/global", domain.FileTypeFolder, false, "")
	store.seed("ws1", "/memories/user/a.md", domain.FileTypeDocument, false, "---\ntitle: Mine\n---\nm")
	store.seed("ws1", "/memories/global/b.md", domain.FileTypeDocument, false, "---\ntitle: Shared\n---\ns")
	reg := newTestRegistry(store)

	res := run(t, reg, ToolMemoryList, map[string]any{})
	require.True(t, res.Success(), res.Err)
	recs := res.ForUser.([]memoryRecord)
	require.Len(t, recs, 2)

	res = run(t, reg, ToolMemoryList, map[string]any{"scope": "user"})
	require.True(t, res.Success(), res.Err)
	recs = res.ForUser.([]memoryRecord)
	require.Len(t, recs, 1)
	assert.Equal(t, "Mine", recs[0].Title)
}

func TestMemoryRead(t *testing.T) {
	store := newMemStore()
	store.seed("ws1", "/memories/user/a.md", domain.FileTypeDocument, false, "---\ntitle: Mine\ntags: [x]\n---\nthe body")
	reg := newTestRegistry(store)

	res := run(t, reg, ToolMemoryRead, map[string]any{"path": "/memories/user/a.md"})
	require.True(t, res.Success(), res.Err)
	assert.Equal(t, "the body", res.ForLLM)
	rec := res.ForUser.(memoryRecord)
	assert.Equal(t, "Mine", rec.Title)
	assert.Equal(t, []string{"x"}, rec.Tags)
}
