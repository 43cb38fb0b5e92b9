package chatstore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawdesk/clawbench/internal/domain"
)

func TestMetadataRoundTrip(t *testing.T) {
	versionID := "v1"
	meta := domain.MessageMetadata{
		Attachments: []domain.Attachment{{FileID: "f1", VersionID: &versionID}},
		ToolCalls:   []domain.ToolCallRecord{{Name: "ls", Args: map[string]any{"path": "/"}}},
		Usage:       &domain.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}

	raw, err := json.Marshal(meta)
	require.NoError(t, err)

	var decoded domain.MessageMetadata
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, meta.Attachments, decoded.Attachments)
	assert.Equal(t, meta.ToolCalls[0].Name, decoded.ToolCalls[0].Name)
	assert.Equal(t, *meta.Usage, *decoded.Usage)
}
