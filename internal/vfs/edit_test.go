package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawdesk/clawbench/internal/errs"
)

func TestApplyEditReplace(t *testing.T) {
	got, err := applyEdit("hello world", EditOp{IsReplace: true, Old: "world", New: "there"})
	require.NoError(t, err)
	assert.Equal(t, "hello there", got)
}

func TestApplyEditReplaceNotFound(t *testing.T) {
	_, err := applyEdit("hello world", EditOp{IsReplace: true, Old: "missing", New: "x"})
	require.Error(t, err)
	assert.Equal(t, errs.Validation, errs.KindOf(err))
}

func TestApplyEditReplaceAmbiguous(t *testing.T) {
	_, err := applyEdit("aaa bbb aaa", EditOp{IsReplace: true, Old: "aaa", New: "x"})
	require.Error(t, err)
	assert.Equal(t, errs.Validation, errs.KindOf(err))
	assert.Contains(t, err.Error(), "more than once")
}

func TestApplyEditReplaceOnlyFirstOfUnique(t *testing.T) {
	// A multi-line old string still has to match exactly once as a block.
	content := "line1\nline2\nline3"
	got, err := applyEdit(content, EditOp{IsReplace: true, Old: "line2\nline3", New: "rest"})
	require.NoError(t, err)
	assert.Equal(t, "line1\nrest", got)
}

func TestApplyEditInsert(t *testing.T) {
	content := "a\nb\nc"

	got, err := applyEdit(content, EditOp{InsertLine: 0, InsertContent: "first"})
	require.NoError(t, err)
	assert.Equal(t, "first\na\nb\nc", got)

	got, err = applyEdit(content, EditOp{InsertLine: 1, InsertContent: "between"})
	require.NoError(t, err)
	assert.Equal(t, "a\nbetween\nb\nc", got)

	// Inserting at len(lines) appends.
	got, err = applyEdit(content, EditOp{InsertLine: 3, InsertContent: "last"})
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\nlast", got)
}

func TestApplyEditInsertOutOfBounds(t *testing.T) {
	for _, line := range []int{-1, 4} {
		_, err := applyEdit("a\nb\nc", EditOp{InsertLine: line, InsertContent: "x"})
		require.Error(t, err, "insert_line %d", line)
		assert.Equal(t, errs.Validation, errs.KindOf(err))
	}
}

func TestContentHashDeterministic(t *testing.T) {
	h1 := contentHash([]byte("content"))
	h2 := contentHash([]byte("content"))
	h3 := contentHash([]byte("content "))
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64) // hex sha-256
}
