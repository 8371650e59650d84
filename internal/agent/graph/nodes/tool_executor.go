package nodes

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/revpilot-ai/server/internal/agent/approval"
	"github.com/revpilot-ai/server/internal/agent/engine"
	"github.com/revpilot-ai/server/internal/agent/model"
	"github.com/revpilot-ai/server/internal/agent/tools"
	"github.com/revpilot-ai/server/internal/agent/validate"
	"github.com/revpilot-ai/server/internal/llm"
	logx "github.com/revpilot-ai/server/pkg/logger"
)

const (
	deniedResultMessage   = "The user denied this operation. It was not executed. Acknowledge the denial and do not retry."
	timedOutResultMessage = "The approval request timed out and was treated as denied. The operation was not executed."
)

// ToolExecutorDeps wires the tool executor node.
type ToolExecutorDeps struct {
	Registry       *tools.Registry
	Validator      *validate.Validator
	Approvals      approval.Store
	Invoker        tools.Invoker
	ValidationMode string
}

// NewToolExecutorNode processes exactly one pending tool call per invocation.
// A dangerous call without an approval decision suspends the graph before any
// side effect occurs; validation and execution happen only on the safe or
// approved path. Every outcome, including denial and failure, is recorded as
// a tool result so the specialist can explain it.
func NewToolExecutorNode(deps ToolExecutorDeps) engine.NodeFunc {
	return func(ctx context.Context, s *model.GraphState) (engine.NodeResult, error) {
		pending := s.NextPendingToolCall()
		if pending == nil {
			return engine.Continue(), nil
		}
		call := *pending

		if call.IsDangerous {
			switch call.ApprovalStatus {
			case model.ApprovalApproved:
				// Decision already delivered, fall through to execution.
			case model.ApprovalDenied:
				finishDenied(ctx, s, call)
				return engine.Continue(), nil
			default:
				return suspendForApproval(ctx, deps, s, call)
			}
		}

		if res := validateCall(deps, s, &call); !res.OK {
			finishValidationFailure(ctx, s, call, res)
			return engine.Continue(), nil
		}

		execute(ctx, deps, s, call)
		return engine.Continue(), nil
	}
}

func suspendForApproval(ctx context.Context, deps ToolExecutorDeps, s *model.GraphState, call model.ToolCall) (engine.NodeResult, error) {
	req := &model.ApprovalRequest{
		ApprovalID: uuid.NewString(),
		ToolName:   call.Name,
		ToolArgs:   call.Args,
		ToolCallID: call.ID,
	}
	if cfg, ok := deps.Registry.Get(call.Name); ok {
		req.ParamSchema = cfg.Parameters
	}

	if err := deps.Approvals.Create(ctx, *req); err != nil {
		// Fail safe: if the approval record cannot be persisted the call is
		// not executed.
		logx.Error().Err(err).
			Str("thread_id", s.ThreadID).
			Str("tool_name", call.Name).
			Msg("Failed to create approval request")
		finishFailure(ctx, s, call, "approval_unavailable",
			"the approval workflow is unavailable, so this operation was not executed")
		return engine.Continue(), nil
	}

	call.ApprovalStatus = model.ApprovalPending
	call.ApprovalID = req.ApprovalID
	s.UpsertToolCall(call)
	s.PendingApproval = req
	s.RecordToolEvent(call.ID, "awaiting_approval", req.ApprovalID)

	logx.Info().
		Str("thread_id", s.ThreadID).
		Str("tool_name", call.Name).
		Str("approval_id", req.ApprovalID).
		Msg("Dangerous tool call requires approval; suspending")

	emit(ctx, model.StreamEvent{
		Type:       model.EventApprovalRequired,
		ThreadID:   s.ThreadID,
		ToolName:   call.Name,
		ToolCallID: call.ID,
		ApprovalID: req.ApprovalID,
		Args:       call.Args,
	})
	return engine.Suspend(req), nil
}

func finishDenied(ctx context.Context, s *model.GraphState, call model.ToolCall) {
	msg := deniedResultMessage
	if call.DenialReason == "timed_out" {
		msg = timedOutResultMessage
	}
	result := toolFailureResult("approval_denied", call.Name, msg)
	call.Result = &result
	s.UpsertToolCall(call)
	s.AppendMessages(llm.ToolMessage(call.ID, call.Name, result))
	s.RecordToolEvent(call.ID, model.ApprovalDenied, call.DenialReason)

	logx.Info().
		Str("thread_id", s.ThreadID).
		Str("tool_name", call.Name).
		Str("reason", call.DenialReason).
		Msg("Tool call denied; not executed")

	emit(ctx, model.StreamEvent{
		Type:       model.EventToolDenied,
		ThreadID:   s.ThreadID,
		ToolName:   call.Name,
		ToolCallID: call.ID,
		Result:     msg,
	})
}

func validateCall(deps ToolExecutorDeps, s *model.GraphState, call *model.ToolCall) validate.Result {
	mode := s.UserContext.ContextMode
	if mode == "" {
		mode = deps.ValidationMode
	}
	return deps.Validator.Validate(call.Name, call.Args, s.UserContext.Accounts, s.UserContext.Apps, mode)
}

func finishValidationFailure(ctx context.Context, s *model.GraphState, call model.ToolCall, res validate.Result) {
	payload := map[string]any{
		"error":   "entity_validation_failed",
		"tool":    call.Name,
		"message": res.Message,
		"errors":  res.Errors,
	}
	result, err := json.Marshal(payload)
	if err != nil {
		result = []byte(toolFailureResult("entity_validation_failed", call.Name, res.Message))
	}
	out := string(result)
	call.Result = &out
	s.UpsertToolCall(call)
	s.AppendMessages(llm.ToolMessage(call.ID, call.Name, out))
	s.RecordToolEvent(call.ID, "failed", "entity_validation")

	logx.Warn().
		Str("thread_id", s.ThreadID).
		Str("tool_name", call.Name).
		Msg("Tool call blocked by entity validation")

	emit(ctx, model.StreamEvent{
		Type:       model.EventToolResult,
		ThreadID:   s.ThreadID,
		ToolName:   call.Name,
		ToolCallID: call.ID,
		Result:     out,
	})
}

func finishFailure(ctx context.Context, s *model.GraphState, call model.ToolCall, code, message string) {
	result := toolFailureResult(code, call.Name, message)
	call.Result = &result
	s.UpsertToolCall(call)
	s.AppendMessages(llm.ToolMessage(call.ID, call.Name, result))
	s.RecordToolEvent(call.ID, "failed", code)

	emit(ctx, model.StreamEvent{
		Type:       model.EventToolResult,
		ThreadID:   s.ThreadID,
		ToolName:   call.Name,
		ToolCallID: call.ID,
		Result:     result,
	})
}

func execute(ctx context.Context, deps ToolExecutorDeps, s *model.GraphState, call model.ToolCall) {
	emit(ctx, model.StreamEvent{
		Type:       model.EventToolCallStarted,
		ThreadID:   s.ThreadID,
		ToolName:   call.Name,
		ToolCallID: call.ID,
		Args:       call.Args,
	})

	out, err := deps.Invoker.ExecuteTool(ctx, call.Name, call.Args)
	if err != nil {
		logx.Warn().Err(err).
			Str("thread_id", s.ThreadID).
			Str("tool_name", call.Name).
			Msg("Tool execution failed")
		finishFailure(ctx, s, call, "execution_failed", err.Error())
		return
	}

	call.Result = &out
	s.UpsertToolCall(call)
	s.AppendMessages(llm.ToolMessage(call.ID, call.Name, out))
	s.RecordToolEvent(call.ID, "executed", "")

	// A successful mutation may have changed the entity set the grounding
	// snapshot was built from.
	if cfg, ok := deps.Registry.Get(call.Name); ok && cfg.Category != tools.CategoryRead {
		s.NeedsEntityRefresh = true
	}

	logx.Info().
		Str("thread_id", s.ThreadID).
		Str("tool_name", call.Name).
		Bool("dangerous", call.IsDangerous).
		Msg("Tool executed")

	emit(ctx, model.StreamEvent{
		Type:       model.EventToolResult,
		ThreadID:   s.ThreadID,
		ToolName:   call.Name,
		ToolCallID: call.ID,
		Result:     truncate(out, 2000),
	})
}
