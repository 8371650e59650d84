package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulator_TextAndThinking(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(StreamChunk{Type: ChunkThinking, Text: "considering "})
	acc.Add(StreamChunk{Type: ChunkThinking, Text: "options"})
	acc.Add(StreamChunk{Type: ChunkText, Text: "Here are "})
	acc.Add(StreamChunk{Type: ChunkText, Text: "your accounts."})
	acc.Add(StreamChunk{Type: ChunkUsage, Usage: &Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}})

	resp := acc.Response()
	assert.Equal(t, "Here are your accounts.", resp.Message.Content)
	assert.Equal(t, "considering options", resp.Message.Reasoning)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.False(t, acc.HasToolCalls())
}

func TestAccumulator_ToolCallFragmentsByIndex(t *testing.T) {
	acc := NewAccumulator()
	// two interleaved calls arriving as fragments
	acc.Add(StreamChunk{Type: ChunkToolCall, ToolCall: &ToolCallDelta{Index: 0, ID: "c1", Name: "admob_get_report"}})
	acc.Add(StreamChunk{Type: ChunkToolCall, ToolCall: &ToolCallDelta{Index: 1, ID: "c2", Name: "admob_list_apps"}})
	acc.Add(StreamChunk{Type: ChunkToolCall, ToolCall: &ToolCallDelta{Index: 0, ArgsFragment: `{"account_id":`}})
	acc.Add(StreamChunk{Type: ChunkToolCall, ToolCall: &ToolCallDelta{Index: 1, ArgsFragment: `{"account_id":"pub-1"}`}})
	acc.Add(StreamChunk{Type: ChunkToolCall, ToolCall: &ToolCallDelta{Index: 0, ArgsFragment: `"pub-2"}`}})

	require.True(t, acc.HasToolCalls())
	resp := acc.Response()
	require.Len(t, resp.Message.ToolCalls, 2)
	assert.Equal(t, "c1", resp.Message.ToolCalls[0].ID)
	assert.Equal(t, `{"account_id":"pub-2"}`, resp.Message.ToolCalls[0].Arguments)
	assert.Equal(t, `{"account_id":"pub-1"}`, resp.Message.ToolCalls[1].Arguments)
}

func TestAccumulator_SparseIndexPadding(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(StreamChunk{Type: ChunkToolCall, ToolCall: &ToolCallDelta{Index: 2, ID: "c3", Name: "late"}})

	resp := acc.Response()
	require.Len(t, resp.Message.ToolCalls, 3)
	assert.Equal(t, "c3", resp.Message.ToolCalls[2].ID)
}
