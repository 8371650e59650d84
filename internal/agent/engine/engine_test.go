package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revpilot-ai/server/internal/agent/model"
	"github.com/revpilot-ai/server/internal/agent/repo"
)

func recordingNode(log *[]string, name string) NodeFunc {
	return func(ctx context.Context, s *model.GraphState) (NodeResult, error) {
		*log = append(*log, name)
		return Continue(), nil
	}
}

func TestEngine_LinearRun(t *testing.T) {
	store := repo.NewMemoryCheckpointStore()
	e := New(store, 0)

	var log []string
	require.NoError(t, e.AddNode("a", recordingNode(&log, "a")))
	require.NoError(t, e.AddNode("b", recordingNode(&log, "b")))
	require.NoError(t, e.AddEdge(Start, "a"))
	require.NoError(t, e.AddEdge("a", "b"))
	require.NoError(t, e.AddEdge("b", End))
	require.NoError(t, e.Compile())

	state := model.NewGraphState("t1", "q", model.UserContext{})
	outcome, err := e.Run(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, log)
	assert.False(t, outcome.Suspended)

	cp, err := store.Latest(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, End, cp.Node)
	assert.False(t, cp.Suspended)
}

func TestEngine_BranchRouting(t *testing.T) {
	e := New(repo.NewMemoryCheckpointStore(), 0)

	var log []string
	require.NoError(t, e.AddNode("decide", recordingNode(&log, "decide")))
	require.NoError(t, e.AddNode("left", recordingNode(&log, "left")))
	require.NoError(t, e.AddNode("right", recordingNode(&log, "right")))
	require.NoError(t, e.AddEdge(Start, "decide"))
	require.NoError(t, e.AddBranch("decide", func(ctx context.Context, s *model.GraphState) string {
		if s.UserQuery == "go-left" {
			return "left"
		}
		return "right"
	}))
	require.NoError(t, e.AddEdge("left", End))
	require.NoError(t, e.AddEdge("right", End))
	require.NoError(t, e.Compile())

	_, err := e.Run(context.Background(), model.NewGraphState("t1", "go-left", model.UserContext{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"decide", "left"}, log)
}

func TestEngine_SuspendAndResumeApproved(t *testing.T) {
	store := repo.NewMemoryCheckpointStore()
	e := New(store, 0)

	var executedArgs map[string]any
	executor := func(ctx context.Context, s *model.GraphState) (NodeResult, error) {
		call := s.NextPendingToolCall()
		if call == nil {
			return Continue(), nil
		}
		if call.IsDangerous && call.ApprovalStatus == "" {
			req := &model.ApprovalRequest{ApprovalID: "ap-1", ToolName: call.Name, ToolCallID: call.ID}
			update := *call
			update.ApprovalStatus = model.ApprovalPending
			s.UpsertToolCall(update)
			s.PendingApproval = req
			return Suspend(req), nil
		}
		executedArgs = call.Args
		result := "done"
		update := *call
		update.Result = &result
		s.UpsertToolCall(update)
		return Continue(), nil
	}

	require.NoError(t, e.AddNode("executor", executor))
	require.NoError(t, e.AddEdge(Start, "executor"))
	require.NoError(t, e.AddBranch("executor", func(ctx context.Context, s *model.GraphState) string {
		if s.NextPendingToolCall() != nil {
			return "executor"
		}
		return End
	}))
	require.NoError(t, e.Compile())

	state := model.NewGraphState("t1", "q", model.UserContext{})
	state.UpsertToolCall(model.ToolCall{
		ID: "call-1", Name: "admob_create_ad_unit",
		Args:        map[string]any{"name": "Original"},
		IsDangerous: true,
	})

	outcome, err := e.Run(context.Background(), state)
	require.NoError(t, err)
	require.True(t, outcome.Suspended)
	require.NotNil(t, outcome.Interrupt)
	assert.Equal(t, "ap-1", outcome.Interrupt.ApprovalID)
	assert.Nil(t, executedArgs, "no side effect may occur before the decision")

	cp, err := store.Latest(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, cp.Suspended)
	assert.Equal(t, "executor", cp.Node)

	resumed, err := e.Resume(context.Background(), "t1", model.ApprovalResult{
		Approved:     true,
		ModifiedArgs: map[string]any{"name": "Reviewed"},
	})
	require.NoError(t, err)
	assert.False(t, resumed.Suspended)
	require.NotNil(t, executedArgs)
	assert.Equal(t, "Reviewed", executedArgs["name"], "modified arguments replace the originals")

	call := resumed.State.FindToolCall("call-1")
	require.NotNil(t, call)
	assert.True(t, call.Done())
	assert.Equal(t, model.ApprovalApproved, call.ApprovalStatus)
}

func TestEngine_ResumeDenied(t *testing.T) {
	store := repo.NewMemoryCheckpointStore()
	e := New(store, 0)

	invoked := false
	executor := func(ctx context.Context, s *model.GraphState) (NodeResult, error) {
		call := s.NextPendingToolCall()
		if call == nil {
			return Continue(), nil
		}
		switch call.ApprovalStatus {
		case "":
			req := &model.ApprovalRequest{ApprovalID: "ap-1", ToolName: call.Name, ToolCallID: call.ID}
			update := *call
			update.ApprovalStatus = model.ApprovalPending
			s.UpsertToolCall(update)
			s.PendingApproval = req
			return Suspend(req), nil
		case model.ApprovalDenied:
			result := "denied"
			update := *call
			update.Result = &result
			s.UpsertToolCall(update)
			return Continue(), nil
		default:
			invoked = true
			return Continue(), nil
		}
	}

	require.NoError(t, e.AddNode("executor", executor))
	require.NoError(t, e.AddEdge(Start, "executor"))
	require.NoError(t, e.AddEdge("executor", End))
	require.NoError(t, e.Compile())

	state := model.NewGraphState("t1", "q", model.UserContext{})
	state.UpsertToolCall(model.ToolCall{ID: "call-1", Name: "admob_create_ad_unit", IsDangerous: true})

	outcome, err := e.Run(context.Background(), state)
	require.NoError(t, err)
	require.True(t, outcome.Suspended)

	resumed, err := e.Resume(context.Background(), "t1", model.ApprovalResult{Approved: false, TimedOut: true})
	require.NoError(t, err)
	assert.False(t, invoked, "a denied call must never execute")

	call := resumed.State.FindToolCall("call-1")
	require.NotNil(t, call)
	assert.Equal(t, model.ApprovalDenied, call.ApprovalStatus)
	assert.Equal(t, "timed_out", call.DenialReason)
}

func TestEngine_ResumeRequiresSuspendedThread(t *testing.T) {
	e := New(repo.NewMemoryCheckpointStore(), 0)
	require.NoError(t, e.AddNode("a", recordingNode(&[]string{}, "a")))
	require.NoError(t, e.AddEdge(Start, "a"))
	require.NoError(t, e.AddEdge("a", End))
	require.NoError(t, e.Compile())

	_, err := e.Resume(context.Background(), "missing", model.ApprovalResult{Approved: true})
	assert.Error(t, err)

	_, err = e.Run(context.Background(), model.NewGraphState("t1", "q", model.UserContext{}))
	require.NoError(t, err)
	_, err = e.Resume(context.Background(), "t1", model.ApprovalResult{Approved: true})
	assert.Error(t, err, "a completed thread is not resumable")
}

func TestEngine_NodeErrorTerminates(t *testing.T) {
	store := repo.NewMemoryCheckpointStore()
	e := New(store, 0)

	require.NoError(t, e.AddNode("boom", func(ctx context.Context, s *model.GraphState) (NodeResult, error) {
		return Continue(), errors.New("backend exploded")
	}))
	require.NoError(t, e.AddEdge(Start, "boom"))
	require.NoError(t, e.AddEdge("boom", End))
	require.NoError(t, e.Compile())

	outcome, err := e.Run(context.Background(), model.NewGraphState("t1", "q", model.UserContext{}))
	require.NoError(t, err, "node failures become state, not run errors")
	assert.Equal(t, "backend exploded", outcome.State.Error)
	assert.NotEmpty(t, outcome.State.Response)
}

func TestEngine_RecursionLimit(t *testing.T) {
	e := New(repo.NewMemoryCheckpointStore(), 5)

	require.NoError(t, e.AddNode("loop", func(ctx context.Context, s *model.GraphState) (NodeResult, error) {
		return Continue(), nil
	}))
	require.NoError(t, e.AddEdge(Start, "loop"))
	require.NoError(t, e.AddEdge("loop", "loop"))
	require.NoError(t, e.Compile())

	outcome, err := e.Run(context.Background(), model.NewGraphState("t1", "q", model.UserContext{}))
	require.NoError(t, err)
	assert.Contains(t, outcome.State.Error, "recursion limit")
	assert.LessOrEqual(t, outcome.Steps, 5)
}

func TestEngine_CompileValidation(t *testing.T) {
	e := New(repo.NewMemoryCheckpointStore(), 0)
	assert.Error(t, e.Compile(), "entry edge is required")

	require.NoError(t, e.AddNode("a", recordingNode(&[]string{}, "a")))
	require.NoError(t, e.AddEdge(Start, "a"))
	assert.Error(t, e.Compile(), "every node needs an outgoing edge")

	require.NoError(t, e.AddEdge("a", End))
	assert.NoError(t, e.Compile())
}
