// Package approval holds the durable record of pending approval requests and
// their resolutions. The request that creates an approval, the request that
// resolves it, and the request that resumes the graph are three independent,
// possibly concurrent call sites; the store is the single authoritative owner
// of resolution so exactly one resolution wins.
package approval

import (
	"context"
	"errors"
	"time"

	"github.com/revpilot-ai/server/internal/agent/model"
	"github.com/revpilot-ai/server/internal/llm"
)

var (
	// ErrNotFound indicates the approval id is unknown.
	ErrNotFound = errors.New("approval not found")
	// ErrAlreadyResolved indicates a duplicate resolution; the first one
	// stands and the duplicate had no effect.
	ErrAlreadyResolved = errors.New("approval already resolved")
	// ErrDuplicateID indicates an approval id reuse attempt.
	ErrDuplicateID = errors.New("approval id already exists")
)

// Resolution is the recorded human decision for one approval.
type Resolution struct {
	Approved     bool           `json:"approved"`
	ModifiedArgs map[string]any `json:"modified_args,omitempty"`
	ResolvedAt   time.Time      `json:"resolved_at"`
}

// PendingApproval is the durable record of one approval request.
type PendingApproval struct {
	ApprovalID  string                        `json:"approval_id"`
	ToolName    string                        `json:"tool_name"`
	ToolArgs    map[string]any                `json:"tool_args"`
	ToolCallID  string                        `json:"tool_call_id"`
	ParamSchema map[string]*llm.ParameterInfo `json:"param_schema,omitempty"`
	CreatedAt   time.Time                     `json:"created_at"`
	Resolution  *Resolution                   `json:"resolution,omitempty"`
}

// Store is the approval boundary. An approval id is never reused; a resolved
// approval is not re-resolvable.
type Store interface {
	// Create records a new pending approval.
	Create(ctx context.Context, req model.ApprovalRequest) error

	// Get returns the approval record, resolved or not.
	Get(ctx context.Context, approvalID string) (*PendingApproval, error)

	// Resolve records the human decision. The first resolution wins;
	// duplicates return ErrAlreadyResolved and change nothing.
	Resolve(ctx context.Context, approvalID string, approved bool, modifiedArgs map[string]any) error

	// Wait blocks until the approval is resolved or the timeout elapses.
	// A timeout yields a denial result with TimedOut set, distinguishing
	// "timed out" from "user declined".
	Wait(ctx context.Context, approvalID string, timeout time.Duration) (*model.ApprovalResult, error)
}

func toResult(r *Resolution) *model.ApprovalResult {
	return &model.ApprovalResult{
		Approved:     r.Approved,
		ModifiedArgs: r.ModifiedArgs,
	}
}

func timedOutResult() *model.ApprovalResult {
	return &model.ApprovalResult{Approved: false, TimedOut: true}
}
