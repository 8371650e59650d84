package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revpilot-ai/server/internal/agent/model"
	"github.com/revpilot-ai/server/internal/llm"
)

func TestMemoryConversationRepository_RoundTrip(t *testing.T) {
	r := NewMemoryConversationRepository()
	ctx := context.Background()

	require.NoError(t, r.AddMessage(ctx, "t1", llm.UserMessage("which accounts do I have?")))
	require.NoError(t, r.AddMessage(ctx, "t1", llm.AssistantMessage("You have three accounts.", nil)))
	require.NoError(t, r.AddMessage(ctx, "t2", llm.UserMessage("unrelated thread")))

	hist, err := r.LoadHistory(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, hist.Messages, 2)
	assert.Equal(t, llm.RoleUser, hist.Messages[0].Role)
	assert.Equal(t, "You have three accounts.", hist.Messages[1].Content)

	count, err := r.GetMessageCount(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMemoryConversationRepository_LoadIsDetached(t *testing.T) {
	r := NewMemoryConversationRepository()
	ctx := context.Background()
	require.NoError(t, r.AddMessage(ctx, "t1", llm.UserMessage("original")))

	hist, err := r.LoadHistory(ctx, "t1")
	require.NoError(t, err)
	hist.Messages[0].Content = "mutated"

	again, err := r.LoadHistory(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "original", again.Messages[0].Content)
}

func TestMemoryConversationRepository_Clear(t *testing.T) {
	r := NewMemoryConversationRepository()
	ctx := context.Background()
	require.NoError(t, r.AddMessage(ctx, "t1", llm.UserMessage("hello")))

	require.NoError(t, r.ClearHistory(ctx, "t1"))

	count, err := r.GetMessageCount(ctx, "t1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryCheckpointStore_LatestWins(t *testing.T) {
	s := NewMemoryCheckpointStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &model.Checkpoint{
		ThreadID: "t1", Node: "router", Step: 0,
		State: &model.GraphState{ThreadID: "t1", UserQuery: "q"},
	}))
	require.NoError(t, s.Put(ctx, &model.Checkpoint{
		ThreadID: "t1", Node: "specialist", Step: 2,
		State: &model.GraphState{ThreadID: "t1", UserQuery: "q"},
	}))

	cp, err := s.Latest(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "specialist", cp.Node)
	assert.Equal(t, 2, cp.Step)
	assert.False(t, cp.CreatedAt.IsZero())
}

func TestMemoryCheckpointStore_UnknownThread(t *testing.T) {
	s := NewMemoryCheckpointStore()

	cp, err := s.Latest(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestMemoryCheckpointStore_StoredStateIsDetached(t *testing.T) {
	s := NewMemoryCheckpointStore()
	ctx := context.Background()

	state := &model.GraphState{ThreadID: "t1", UserQuery: "original"}
	require.NoError(t, s.Put(ctx, &model.Checkpoint{ThreadID: "t1", Node: "router", State: state}))

	state.UserQuery = "mutated after put"

	cp, err := s.Latest(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "original", cp.State.UserQuery)
}

func TestMemoryCheckpointStore_RequiresThreadID(t *testing.T) {
	s := NewMemoryCheckpointStore()
	assert.Error(t, s.Put(context.Background(), &model.Checkpoint{}))
	assert.Error(t, s.Put(context.Background(), nil))
}
