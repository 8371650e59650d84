package graph

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revpilot-ai/server/internal/agent/approval"
	"github.com/revpilot-ai/server/internal/agent/entities"
	"github.com/revpilot-ai/server/internal/agent/model"
	"github.com/revpilot-ai/server/internal/agent/repo"
	"github.com/revpilot-ai/server/internal/agent/tools"
	"github.com/revpilot-ai/server/internal/llm"
)

// scriptedModel replays canned responses in order, repeating the last one
// when the script runs out. Scripts are written as raw chunk sequences so
// both Generate and Stream exercise the same accumulation path.
type scriptedModel struct {
	mu       sync.Mutex
	script   [][]llm.StreamChunk
	next     int
	requests []llm.Request
	err      error
}

func (m *scriptedModel) take(req llm.Request) []llm.StreamChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.script) == 0 {
		return nil
	}
	idx := m.next
	if idx >= len(m.script) {
		idx = len(m.script) - 1
	}
	m.next++
	return m.script[idx]
}

func (m *scriptedModel) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	acc := llm.NewAccumulator()
	for _, chunk := range m.take(req) {
		acc.Add(chunk)
	}
	return acc.Response(), nil
}

func (m *scriptedModel) Stream(ctx context.Context, req llm.Request) (<-chan llm.StreamChunk, <-chan error) {
	chunks := make(chan llm.StreamChunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		if m.err != nil {
			errs <- m.err
			return
		}
		for _, chunk := range m.take(req) {
			chunks <- chunk
		}
	}()
	return chunks, errs
}

var _ llm.ChatModel = (*scriptedModel)(nil)

func textScript(lines ...string) [][]llm.StreamChunk {
	var script [][]llm.StreamChunk
	for _, line := range lines {
		script = append(script, []llm.StreamChunk{{Type: llm.ChunkText, Text: line}})
	}
	return script
}

func toolCallChunks(id, name, args string) []llm.StreamChunk {
	return []llm.StreamChunk{
		{Type: llm.ChunkToolCall, ToolCall: &llm.ToolCallDelta{Index: 0, ID: id, Name: name, ArgsFragment: args}},
	}
}

// countingInvoker wraps the mock invoker and records every executed call.
type countingInvoker struct {
	inner tools.Invoker
	mu    sync.Mutex
	calls []struct {
		Name string
		Args map[string]any
	}
}

func (c *countingInvoker) ExecuteTool(ctx context.Context, name string, args map[string]any) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, struct {
		Name string
		Args map[string]any
	}{name, args})
	c.mu.Unlock()
	return c.inner.ExecuteTool(ctx, name, args)
}

type testHarness struct {
	runner      Runner
	router      *scriptedModel
	specialist  *scriptedModel
	verifier    *scriptedModel
	invoker     *countingInvoker
	checkpoints *repo.MemoryCheckpointStore
	approvals   *approval.MemoryStore
	convo       *repo.MemoryConversationRepository
}

func newHarness(t *testing.T, verifierEnabled bool) *testHarness {
	t.Helper()

	registry := tools.NewRegistry()
	require.NoError(t, tools.RegisterBuiltins(registry))

	h := &testHarness{
		router:      &scriptedModel{script: textScript("THINKING: platform question\nROUTE: admob_inventory")},
		specialist:  &scriptedModel{},
		verifier:    &scriptedModel{script: textScript("VERDICT: complete")},
		invoker:     &countingInvoker{inner: tools.NewMockInvoker()},
		checkpoints: repo.NewMemoryCheckpointStore(),
		approvals:   approval.NewMemoryStore(),
		convo:       repo.NewMemoryConversationRepository(),
	}

	runner, err := BuildGraph(context.Background(), Config{
		Verifier:         model.VerifierModelConfig{Enabled: verifierEnabled},
		Validation:       model.ValidationConfig{Mode: "strict"},
		Conversation:     conversationConfig(),
		ConversationRepo: h.convo,
		Checkpoints:      h.checkpoints,
		Approvals:        h.approvals,
		Entities: &entities.StaticService{Snapshot: entities.Snapshot{
			Accounts: tools.MockAccounts,
			Apps:     tools.MockApps,
		}},
		Registry:        registry,
		Invoker:         h.invoker,
		RouterModel:     h.router,
		SpecialistModel: h.specialist,
		VerifierModel:   h.verifier,
	})
	require.NoError(t, err)
	h.runner = runner
	return h
}

func conversationConfig() model.ConversationConfig {
	cfg := model.ConversationConfig{RecentTurns: 6}
	cfg.Tools.MaxCalls = 10
	return cfg
}

func testInput(query string) model.QueryInput {
	return model.QueryInput{
		ThreadID:    "thread-1",
		Query:       query,
		UserID:      "user-001",
		ContextMode: "strict",
	}
}

func TestGraph_SafeReadFlow(t *testing.T) {
	h := newHarness(t, false)
	h.specialist.script = [][]llm.StreamChunk{
		toolCallChunks("call-1", "admob_list_accounts", `{}`),
		{{Type: llm.ChunkText, Text: "You have three connected accounts."}},
	}

	result, err := h.runner.Invoke(context.Background(), testInput("which accounts do I have?"))
	require.NoError(t, err)

	assert.False(t, result.Suspended)
	assert.Equal(t, "You have three connected accounts.", result.Response)
	require.Len(t, h.invoker.calls, 1)
	assert.Equal(t, "admob_list_accounts", h.invoker.calls[0].Name)

	// a read never needs approval
	_, err = h.approvals.Get(context.Background(), "anything")
	assert.ErrorIs(t, err, approval.ErrNotFound)

	// the completed exchange is persisted
	count, err := h.convo.GetMessageCount(context.Background(), "thread-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestGraph_DangerousCallSuspendsBeforeExecution(t *testing.T) {
	h := newHarness(t, false)
	h.specialist.script = [][]llm.StreamChunk{
		toolCallChunks("call-1", "admob_create_ad_unit",
			`{"app_id":"ca-app-pub-1122334455667788~1234567890","name":"Bonus","format":"rewarded"}`),
		{{Type: llm.ChunkText, Text: "Created the ad unit."}},
	}

	result, err := h.runner.Invoke(context.Background(), testInput("create a rewarded ad unit"))
	require.NoError(t, err)

	require.True(t, result.Suspended)
	require.NotNil(t, result.Approval)
	assert.Equal(t, "admob_create_ad_unit", result.Approval.ToolName)
	assert.Empty(t, h.invoker.calls, "suspension must precede any side effect")

	// the approval record is durably created
	pending, err := h.approvals.Get(context.Background(), result.Approval.ApprovalID)
	require.NoError(t, err)
	assert.Nil(t, pending.Resolution)

	// nothing is persisted for an unfinished turn
	count, err := h.convo.GetMessageCount(context.Background(), "thread-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGraph_ResumeApprovedExecutesOnceWithModifiedArgs(t *testing.T) {
	h := newHarness(t, false)
	h.specialist.script = [][]llm.StreamChunk{
		toolCallChunks("call-1", "admob_create_ad_unit",
			`{"app_id":"ca-app-pub-1122334455667788~1234567890","name":"Bonus","format":"rewarded"}`),
		{{Type: llm.ChunkText, Text: "Created the ad unit."}},
	}

	suspended, err := h.runner.Invoke(context.Background(), testInput("create a rewarded ad unit"))
	require.NoError(t, err)
	require.True(t, suspended.Suspended)

	modified := map[string]any{
		"app_id": "ca-app-pub-1122334455667788~1234567890",
		"name":   "Bonus Coins",
		"format": "rewarded",
	}
	require.NoError(t, h.runner.ResolveApproval(context.Background(), suspended.Approval.ApprovalID, true, modified))

	result, err := h.runner.Resume(context.Background(), "thread-1", model.ApprovalResult{
		Approved:     true,
		ModifiedArgs: modified,
	})
	require.NoError(t, err)

	assert.False(t, result.Suspended)
	assert.Equal(t, "Created the ad unit.", result.Response)
	require.Len(t, h.invoker.calls, 1, "the approved call executes exactly once")
	assert.Equal(t, "Bonus Coins", h.invoker.calls[0].Args["name"], "reviewed arguments replace the originals")
}

func TestGraph_ResumeDeniedNeverExecutes(t *testing.T) {
	h := newHarness(t, false)
	h.specialist.script = [][]llm.StreamChunk{
		toolCallChunks("call-1", "admob_create_ad_unit",
			`{"app_id":"ca-app-pub-1122334455667788~1234567890","name":"Bonus","format":"rewarded"}`),
		{{Type: llm.ChunkText, Text: "Understood, I won't create it."}},
	}

	suspended, err := h.runner.Invoke(context.Background(), testInput("create a rewarded ad unit"))
	require.NoError(t, err)
	require.True(t, suspended.Suspended)

	result, err := h.runner.Resume(context.Background(), "thread-1", model.ApprovalResult{Approved: false})
	require.NoError(t, err)

	assert.False(t, result.Suspended)
	assert.Empty(t, h.invoker.calls, "a denied call must never reach the invoker")
	assert.Equal(t, "Understood, I won't create it.", result.Response)

	cp, err := h.checkpoints.Latest(context.Background(), "thread-1")
	require.NoError(t, err)
	call := cp.State.FindToolCall("call-1")
	require.NotNil(t, call)
	assert.Equal(t, model.ApprovalDenied, call.ApprovalStatus)
	require.NotNil(t, call.Result)
	assert.Contains(t, *call.Result, "approval_denied")
}

func TestGraph_ValidationBlocksUnknownEntity(t *testing.T) {
	h := newHarness(t, false)
	h.specialist.script = [][]llm.StreamChunk{
		toolCallChunks("call-1", "admob_get_report",
			`{"account_id":"pub-9999888877776666","start_date":"2026-08-01","end_date":"2026-08-31"}`),
		{{Type: llm.ChunkText, Text: "That account isn't connected; did you mean Peak Games?"}},
	}

	result, err := h.runner.Invoke(context.Background(), testInput("report for pub-9999888877776666"))
	require.NoError(t, err)

	assert.Empty(t, h.invoker.calls, "validation failures must not execute")
	assert.False(t, result.Suspended)

	cp, err := h.checkpoints.Latest(context.Background(), "thread-1")
	require.NoError(t, err)
	call := cp.State.FindToolCall("call-1")
	require.NotNil(t, call)
	require.NotNil(t, call.Result)
	assert.Contains(t, *call.Result, "entity_validation_failed")
}

func TestGraph_RouterFailureFallsBackToGeneral(t *testing.T) {
	h := newHarness(t, false)
	h.router.err = errors.New("router backend down")
	h.specialist.script = textScript("Happy to help with monetization questions.")

	result, err := h.runner.Invoke(context.Background(), testInput("hello"))
	require.NoError(t, err)
	assert.Equal(t, "Happy to help with monetization questions.", result.Response)

	cp, err := h.checkpoints.Latest(context.Background(), "thread-1")
	require.NoError(t, err)
	require.NotNil(t, cp.State.Routing)
	assert.Equal(t, "general", cp.State.Routing.Service)
	assert.Contains(t, cp.State.Routing.Rationale, "router backend down")
}

func TestGraph_SpecialistFailureApologises(t *testing.T) {
	h := newHarness(t, false)
	h.specialist.err = errors.New("model quota exceeded")

	result, err := h.runner.Invoke(context.Background(), testInput("which accounts do I have?"))
	require.NoError(t, err)

	assert.NotEmpty(t, result.Err)
	assert.NotEmpty(t, result.Response, "failures still produce a user-facing message")
}

func TestGraph_VerificationRetryIsBounded(t *testing.T) {
	h := newHarness(t, true)
	h.verifier.script = textScript("VERDICT: incomplete\nHINT: missing the requested date range")
	h.specialist.script = [][]llm.StreamChunk{
		toolCallChunks("call-1", "admob_list_accounts", `{}`),
		{{Type: llm.ChunkText, Text: "Here is a partial answer."}},
	}

	result, err := h.runner.Invoke(context.Background(), testInput("which accounts do I have?"))
	require.NoError(t, err)

	// a perpetually unsatisfied verifier still terminates with best effort
	assert.Equal(t, "Here is a partial answer.", result.Response)

	cp, err := h.checkpoints.Latest(context.Background(), "thread-1")
	require.NoError(t, err)
	assert.Equal(t, model.MaxVerificationRetries, cp.State.VerificationRetryCount)
}

func TestGraph_StreamDeliversEvents(t *testing.T) {
	h := newHarness(t, false)
	h.specialist.script = [][]llm.StreamChunk{
		{
			{Type: llm.ChunkThinking, Text: "checking accounts"},
			{Type: llm.ChunkText, Text: "You have three accounts."},
		},
	}

	events, err := h.runner.Stream(context.Background(), testInput("which accounts do I have?"))
	require.NoError(t, err)

	seen := map[model.EventType]bool{}
	for ev := range events {
		seen[ev.Type] = true
	}
	assert.True(t, seen[model.EventRouting])
	assert.True(t, seen[model.EventThinking])
	assert.True(t, seen[model.EventContent])
	assert.True(t, seen[model.EventFinal])
	assert.True(t, seen[model.EventDone])
}
