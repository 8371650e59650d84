// Package engine runs a directed node graph over a shared GraphState with
// conditional edges, per-step checkpointing, and suspend/resume semantics.
// Suspension is a tagged node result, not control-flow by panic: a node
// returns either Continue or Suspend, and the dispatch loop matches on the
// tag, persists state, and hands control back to the caller.
package engine

import (
	"context"
	"fmt"

	"github.com/revpilot-ai/server/internal/agent/model"
	logx "github.com/revpilot-ai/server/pkg/logger"
)

// Reserved node names.
const (
	Start = "__start__"
	End   = "__end__"
)

const defaultRecursionLimit = 25

// NodeResult is the tagged result of one node invocation.
type NodeResult struct {
	interrupt *model.ApprovalRequest
}

// Continue signals normal completion; routing proceeds via edges/branches.
func Continue() NodeResult {
	return NodeResult{}
}

// Suspend signals that the graph must checkpoint and return to the caller,
// carrying the interrupt payload surfaced to the human.
func Suspend(req *model.ApprovalRequest) NodeResult {
	return NodeResult{interrupt: req}
}

// Suspended reports whether the result carries an interrupt.
func (r NodeResult) Suspended() bool {
	return r.interrupt != nil
}

// Interrupt returns the interrupt payload, or nil.
func (r NodeResult) Interrupt() *model.ApprovalRequest {
	return r.interrupt
}

// NodeFunc is the contract every node implements: mutate the state, return a
// tagged result. Expected failures become state data; a returned error is
// graph-fatal and short-circuits the turn.
type NodeFunc func(ctx context.Context, s *model.GraphState) (NodeResult, error)

// BranchFunc picks the next node from state. It must be deterministic given
// state so replay after resume takes the same path.
type BranchFunc func(ctx context.Context, s *model.GraphState) string

// Outcome is the result of running (or resuming) a graph turn.
type Outcome struct {
	State     *model.GraphState
	Suspended bool
	Interrupt *model.ApprovalRequest
	Steps     int
}

// Engine is a compiled node graph. Construction is not concurrency-safe;
// a compiled engine is safe for concurrent turns because all per-turn data
// lives in GraphState.
type Engine struct {
	entry          string
	nodes          map[string]NodeFunc
	edges          map[string]string
	branches       map[string]BranchFunc
	checkpoints    model.CheckpointStore
	recursionLimit int
	compiled       bool
}

// New creates an empty engine persisting through the given checkpoint store.
func New(checkpoints model.CheckpointStore, recursionLimit int) *Engine {
	if recursionLimit <= 0 {
		recursionLimit = defaultRecursionLimit
	}
	return &Engine{
		nodes:          make(map[string]NodeFunc),
		edges:          make(map[string]string),
		branches:       make(map[string]BranchFunc),
		checkpoints:    checkpoints,
		recursionLimit: recursionLimit,
	}
}

// AddNode registers a node under a unique name.
func (e *Engine) AddNode(name string, fn NodeFunc) error {
	if name == Start || name == End {
		return fmt.Errorf("node name %q is reserved", name)
	}
	if _, exists := e.nodes[name]; exists {
		return fmt.Errorf("node %q already added", name)
	}
	e.nodes[name] = fn
	return nil
}

// AddEdge registers a static transition. Start as `from` sets the entry node.
func (e *Engine) AddEdge(from, to string) error {
	if from == Start {
		e.entry = to
		return nil
	}
	if _, exists := e.edges[from]; exists {
		return fmt.Errorf("edge from %q already added", from)
	}
	e.edges[from] = to
	return nil
}

// AddBranch registers a conditional transition. A branch takes precedence
// over a static edge from the same node.
func (e *Engine) AddBranch(from string, fn BranchFunc) error {
	if _, exists := e.branches[from]; exists {
		return fmt.Errorf("branch from %q already added", from)
	}
	e.branches[from] = fn
	return nil
}

// Compile validates the graph shape.
func (e *Engine) Compile() error {
	if e.entry == "" {
		return fmt.Errorf("no entry edge from START")
	}
	if _, ok := e.nodes[e.entry]; !ok {
		return fmt.Errorf("entry node %q not registered", e.entry)
	}
	for from, to := range e.edges {
		if _, ok := e.nodes[from]; !ok {
			return fmt.Errorf("edge source %q not registered", from)
		}
		if to != End {
			if _, ok := e.nodes[to]; !ok {
				return fmt.Errorf("edge target %q not registered", to)
			}
		}
	}
	for from := range e.branches {
		if _, ok := e.nodes[from]; !ok {
			return fmt.Errorf("branch source %q not registered", from)
		}
	}
	for name := range e.nodes {
		_, hasEdge := e.edges[name]
		_, hasBranch := e.branches[name]
		if !hasEdge && !hasBranch {
			return fmt.Errorf("node %q has no outgoing edge or branch", name)
		}
	}
	e.compiled = true
	return nil
}

// Run executes a fresh turn from the entry node.
func (e *Engine) Run(ctx context.Context, state *model.GraphState) (*Outcome, error) {
	if !e.compiled {
		return nil, fmt.Errorf("engine not compiled")
	}
	return e.run(ctx, state, e.entry, 0)
}

// Resume reloads the latest checkpoint for the thread, applies the approval
// result to the suspended tool call, and continues from exactly the node the
// graph suspended at, as if the interrupt call had returned that value.
func (e *Engine) Resume(ctx context.Context, threadID string, result model.ApprovalResult) (*Outcome, error) {
	if !e.compiled {
		return nil, fmt.Errorf("engine not compiled")
	}

	cp, err := e.checkpoints.Latest(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if cp == nil {
		return nil, fmt.Errorf("no checkpoint for thread %s", threadID)
	}
	if !cp.Suspended || cp.State == nil || cp.State.PendingApproval == nil {
		return nil, fmt.Errorf("thread %s is not suspended", threadID)
	}

	state := cp.State
	applyApprovalResult(state, result)

	logx.Debug().
		Str("thread_id", threadID).
		Str("node", cp.Node).
		Int("step", cp.Step).
		Bool("approved", result.Approved).
		Msg("Resuming suspended graph")

	return e.run(ctx, state, cp.Node, cp.Step)
}

// applyApprovalResult maps the human decision onto the suspended call.
// Modified arguments are substituted before execution proceeds.
func applyApprovalResult(state *model.GraphState, result model.ApprovalResult) {
	pending := state.PendingApproval
	state.PendingApproval = nil

	call := state.FindToolCall(pending.ToolCallID)
	if call == nil {
		logx.Warn().Str("tool_call_id", pending.ToolCallID).Msg("Suspended tool call missing from state")
		return
	}

	update := *call
	if result.Approved {
		update.ApprovalStatus = model.ApprovalApproved
		if result.ModifiedArgs != nil {
			update.Args = result.ModifiedArgs
		}
		state.UpsertToolCall(update)
		state.RecordToolEvent(update.ID, model.ApprovalApproved, "")
		return
	}

	update.ApprovalStatus = model.ApprovalDenied
	detail := "declined"
	if result.TimedOut {
		detail = "timed_out"
	}
	update.DenialReason = detail
	state.UpsertToolCall(update)
	state.RecordToolEvent(update.ID, model.ApprovalDenied, detail)
}

func (e *Engine) run(ctx context.Context, state *model.GraphState, node string, step int) (*Outcome, error) {
	for {
		if node == End {
			e.checkpoint(ctx, state, End, step, false)
			return &Outcome{State: state, Steps: step}, nil
		}

		if step >= e.recursionLimit {
			logx.Warn().
				Str("thread_id", state.ThreadID).
				Int("step", step).
				Msg("Recursion limit reached; terminating turn")
			state.Error = fmt.Sprintf("recursion limit (%d) reached", e.recursionLimit)
			if state.Response == "" {
				state.Response = "I'm sorry, I couldn't finish processing this request. Please try again."
			}
			e.checkpoint(ctx, state, End, step, false)
			return &Outcome{State: state, Steps: step}, nil
		}

		fn, ok := e.nodes[node]
		if !ok {
			return nil, fmt.Errorf("unknown node %q", node)
		}

		step++
		res, err := fn(ctx, state)
		if err != nil {
			// Graph-fatal: nothing raises across a node boundary uncaught.
			logx.Error().Err(err).
				Str("thread_id", state.ThreadID).
				Str("node", node).
				Msg("Node failed; terminating turn")
			state.Error = err.Error()
			if state.Response == "" {
				state.Response = "I'm sorry, something went wrong while processing your request."
			}
			e.checkpoint(ctx, state, End, step, false)
			return &Outcome{State: state, Steps: step}, nil
		}

		if res.Suspended() {
			// The checkpoint records the suspended node itself so resume
			// re-enters it with the approval decision already applied.
			e.checkpoint(ctx, state, node, step, true)
			return &Outcome{
				State:     state,
				Suspended: true,
				Interrupt: res.Interrupt(),
				Steps:     step,
			}, nil
		}

		next := e.next(ctx, state, node)
		e.checkpoint(ctx, state, next, step, false)
		node = next
	}
}

func (e *Engine) next(ctx context.Context, state *model.GraphState, node string) string {
	if branch, ok := e.branches[node]; ok {
		return branch(ctx, state)
	}
	if to, ok := e.edges[node]; ok {
		return to
	}
	return End
}

func (e *Engine) checkpoint(ctx context.Context, state *model.GraphState, next string, step int, suspended bool) {
	if e.checkpoints == nil {
		return
	}
	err := e.checkpoints.Put(ctx, &model.Checkpoint{
		ThreadID:  state.ThreadID,
		Step:      step,
		Node:      next,
		Suspended: suspended,
		State:     state,
	})
	if err != nil {
		// A failed checkpoint does not abort the in-flight turn; it only
		// degrades resumability, which is already lost if we abort.
		logx.Error().Err(err).
			Str("thread_id", state.ThreadID).
			Int("step", step).
			Msg("Failed to persist checkpoint")
	}
}
