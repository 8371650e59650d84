package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/revpilot-ai/server/internal/agent/engine"
	"github.com/revpilot-ai/server/internal/agent/model"
	"github.com/revpilot-ai/server/internal/llm"
	logx "github.com/revpilot-ai/server/pkg/logger"
)

const streamBufferSize = 64

type graphRunner struct {
	cfg    *Config
	engine *engine.Engine
}

var _ Runner = (*graphRunner)(nil)

func (r *graphRunner) Invoke(ctx context.Context, in model.QueryInput) (*TurnResult, error) {
	state, err := newTurnState(in)
	if err != nil {
		return nil, err
	}

	outcome, err := r.engine.Run(ctx, state)
	if err != nil {
		return nil, err
	}
	return r.finishTurn(ctx, outcome), nil
}

func (r *graphRunner) Stream(ctx context.Context, in model.QueryInput) (<-chan model.StreamEvent, error) {
	state, err := newTurnState(in)
	if err != nil {
		return nil, err
	}

	events := make(chan model.StreamEvent, streamBufferSize)
	go func() {
		defer close(events)
		emitter := &chanEmitter{ch: events}

		outcome, err := r.engine.Run(model.WithEmitter(ctx, emitter), state)
		if err != nil {
			emitter.Emit(model.StreamEvent{Type: model.EventError, ThreadID: state.ThreadID, Err: err.Error()})
			emitter.Emit(model.StreamEvent{Type: model.EventDone, ThreadID: state.ThreadID})
			return
		}
		r.finishTurn(ctx, outcome)
		emitter.Emit(model.StreamEvent{Type: model.EventDone, ThreadID: state.ThreadID})
	}()
	return events, nil
}

func (r *graphRunner) Resume(ctx context.Context, threadID string, result model.ApprovalResult) (*TurnResult, error) {
	if threadID == "" {
		return nil, fmt.Errorf("thread id is required")
	}

	outcome, err := r.engine.Resume(ctx, threadID, result)
	if err != nil {
		return nil, err
	}
	return r.finishTurn(ctx, outcome), nil
}

func (r *graphRunner) ResolveApproval(ctx context.Context, approvalID string, approved bool, modifiedArgs map[string]any) error {
	return r.cfg.Approvals.Resolve(ctx, approvalID, approved, modifiedArgs)
}

// finishTurn persists the completed exchange and shapes the public result.
// A suspended turn is not persisted yet; its exchange lands when the resumed
// run completes.
func (r *graphRunner) finishTurn(ctx context.Context, outcome *engine.Outcome) *TurnResult {
	state := outcome.State
	result := &TurnResult{
		ThreadID:  state.ThreadID,
		Response:  state.Response,
		Suspended: outcome.Suspended,
		Approval:  outcome.Interrupt,
		Usage:     state.Usage,
		Err:       state.Error,
	}
	if outcome.Suspended {
		return result
	}

	r.persistExchange(ctx, state)
	return result
}

func (r *graphRunner) persistExchange(ctx context.Context, state *model.GraphState) {
	if state.Response == "" {
		return
	}
	if err := r.cfg.ConversationRepo.AddMessage(ctx, state.ThreadID, llm.UserMessage(state.UserQuery)); err != nil {
		logx.Warn().Err(err).Str("thread_id", state.ThreadID).Msg("Failed to persist user message")
		return
	}
	if err := r.cfg.ConversationRepo.AddMessage(ctx, state.ThreadID, llm.AssistantMessage(state.Response, nil)); err != nil {
		logx.Warn().Err(err).Str("thread_id", state.ThreadID).Msg("Failed to persist assistant message")
	}
}

func newTurnState(in model.QueryInput) (*model.GraphState, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, fmt.Errorf("query is empty")
	}
	threadID := in.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}
	return model.NewGraphState(threadID, in.Query, in.UserContext()), nil
}

// chanEmitter bridges node events onto the stream channel. A full buffer
// drops the event rather than stalling graph progress.
type chanEmitter struct {
	ch      chan model.StreamEvent
	dropped int
}

func (e *chanEmitter) Emit(ev model.StreamEvent) {
	select {
	case e.ch <- ev:
	default:
		e.dropped++
		if e.dropped == 1 {
			logx.Warn().Str("thread_id", ev.ThreadID).Msg("Stream buffer full; dropping events")
		}
	}
}

var _ model.EventEmitter = (*chanEmitter)(nil)
