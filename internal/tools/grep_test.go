package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawdesk/clawbench/internal/domain"
)

func TestGrepDefaultCap(t *testing.T) {
	store := newMemStore()
	store.seed("ws1", "/big.txt", domain.FileTypeDocument, false, seedLines(80, "match %d"))
	reg := newTestRegistry(store)

	res := run(t, reg, ToolGrep, map[string]any{"pattern": "match"})
	require.True(t, res.Success(), res.Err)
	matches := res.ForUser.([]grepMatch)
	assert.Len(t, matches, defaultGrepLimit)
}

func TestGrepLimitZeroUnlimited(t *testing.T) {
	store := newMemStore()
	store.seed("ws1", "/big.txt", domain.FileTypeDocument, false, seedLines(80, "match %d"))
	reg := newTestRegistry(store)

	res := run(t, reg, ToolGrep, map[string]any{"pattern": "match", "limit": float64(0)})
	require.True(t, res.Success(), res.Err)
	matches := res.ForUser.([]grepMatch)
	assert.Len(t, matches, 80)
}

func TestGrepContextArrays(t *testing.T) {
	store := newMemStore()
	store.seed("ws1", "/ctx.txt", domain.FileTypeDocument, false, "one\ntwo\nTARGET\nfour\nfive")
	reg := newTestRegistry(store)

	res := run(t, reg, ToolGrep, map[string]any{"pattern": "TARGET", "context": float64(2)})
	require.True(t, res.Success(), res.Err)
	matches := res.ForUser.([]grepMatch)
	require.Len(t, matches, 1)

	m := matches[0]
	assert.Equal(t, "/ctx.txt", m.Path)
	assert.Equal(t, 3, m.LineNo)
	assert.Equal(t, []string{"one", "two"}, m.BeforeContext)
	assert.Equal(t, []string{"four", "five"}, m.AfterContext)
}

func TestGrepAsymmetricContext(t *testing.T) {
	store := newMemStore()
	store.seed("ws1", "/ctx.txt", domain.FileTypeDocument, false, "one\ntwo\nTARGET\nfour\nfive")
	reg := newTestRegistry(store)

	res := run(t, reg, ToolGrep, map[string]any{
		"pattern":        "TARGET",
		"before_context": float64(1),
		"after_context":  float64(2),
	})
	require.True(t, res.Success(), res.Err)
	matches := res.ForUser.([]grepMatch)
	require.Len(t, matches, 1)
	assert.Equal(t, []string{"two"}, matches[0].BeforeContext)
	assert.Equal(t, []string{"four", "five"}, matches[0].AfterContext)
}

func TestGrepPathPattern(t *testing.T) {
	store := newMemStore()
	store.seed("ws1", "/a.go", domain.FileTypeDocument, false, "needle")
	store.seed("ws1", "/a.md", domain.FileTypeDocument, false, "needle")
	reg := newTestRegistry(store)

	res := run(t, reg, ToolGrep, map[string]any{"pattern": "needle", "path_pattern": "/*.go"})
	require.True(t, res.Success(), res.Err)
	matches := res.ForUser.([]grepMatch)
	require.Len(t, matches, 1)
	assert.Equal(t, "/a.go", matches[0].Path)
}

func TestGrepInvalidRegex(t *testing.T) {
	reg := newTestRegistry(newMemStore())
	res := run(t, reg, ToolGrep, map[string]any{"pattern": "("})
	assert.False(t, res.Success())
	assert.Contains(t, res.Err, "invalid regex")
}
