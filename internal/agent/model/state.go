package model

import (
	"time"

	"github.com/revpilot-ai/server/internal/llm"
)

// Approval status values for a dangerous tool call.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalDenied   = "denied"
)

// Verification status values for the synthesizer quality gate.
const (
	VerificationUnchecked  = ""
	VerificationIncomplete = "incomplete"
	VerificationComplete   = "complete"
)

// MaxVerificationRetries bounds the verify-retry loop back through the
// specialist before falling through to best-effort synthesis.
const MaxVerificationRetries = 2

// ToolCall tracks one tool invocation through its lifecycle. Result is nil
// exactly while the call is pending; once set the call is immutable.
type ToolCall struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Args           map[string]any `json:"args"`
	Result         *string        `json:"result,omitempty"`
	IsDangerous    bool           `json:"is_dangerous"`
	ApprovalStatus string         `json:"approval_status,omitempty"`
	ApprovalID     string         `json:"approval_id,omitempty"`
	DenialReason   string         `json:"denial_reason,omitempty"` // declined | timed_out
}

// Done reports whether the call has a recorded result.
func (c *ToolCall) Done() bool {
	return c.Result != nil
}

// ApprovalRequest describes a dangerous call awaiting a human decision.
type ApprovalRequest struct {
	ApprovalID  string                        `json:"approval_id"`
	ToolName    string                        `json:"tool_name"`
	ToolArgs    map[string]any                `json:"tool_args"`
	ToolCallID  string                        `json:"tool_call_id"`
	ParamSchema map[string]*llm.ParameterInfo `json:"param_schema,omitempty"`
}

// ApprovalResult is the human decision delivered on resume.
type ApprovalResult struct {
	Approved     bool           `json:"approved"`
	ModifiedArgs map[string]any `json:"modified_args,omitempty"`
	TimedOut     bool           `json:"timed_out,omitempty"`
}

// Account is the normalised shape of a connected platform account.
type Account struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`       // admob | ad_manager
	Identifier string `json:"identifier"` // pub-XXXX or network code
	Enabled    bool   `json:"enabled"`
}

// App is the normalised shape of an app nested under an AdMob account.
type App struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	AccountID  string `json:"account_id"`
	Identifier string `json:"identifier"` // ca-app-pub-XXXX~YYYY
	Platform   string `json:"platform"`
	Enabled    bool   `json:"enabled"`
}

// UserContext carries the caller's identity and entity grounding snapshot.
type UserContext struct {
	UserID          string    `json:"user_id"`
	OrganizationID  string    `json:"organization_id"`
	Accounts        []Account `json:"accounts,omitempty"`
	Apps            []App     `json:"apps,omitempty"`
	ContextMode     string    `json:"context_mode"` // strict | soft
	EnabledAccounts []string  `json:"enabled_accounts,omitempty"`
}

// Routing is set once per turn by the router and treated as read-only once
// the specialist begins.
type Routing struct {
	Service       string `json:"service"`
	Capability    string `json:"capability"`
	ExecutionPath string `json:"execution_path,omitempty"`
	Rationale     string `json:"rationale,omitempty"`
}

// ToolEvent is one entry of the append-only tool lifecycle audit log. The
// mutable ToolCalls map keeps only last-write-wins per id, so transitions are
// recorded here.
type ToolEvent struct {
	ToolCallID string    `json:"tool_call_id"`
	Phase      string    `json:"phase"` // pending | awaiting_approval | approved | denied | executed | failed
	Detail     string    `json:"detail,omitempty"`
	At         time.Time `json:"at"`
}

// GraphState is the single record threaded through every node invocation for
// one turn. It must stay structurally serializable: no live clients or
// channels are ever embedded, so a checkpoint can round-trip through JSON.
type GraphState struct {
	ThreadID  string        `json:"thread_id"`
	UserQuery string        `json:"user_query"`
	Messages  []llm.Message `json:"messages,omitempty"`

	UserContext UserContext `json:"user_context"`
	Routing     *Routing    `json:"routing,omitempty"`

	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolEvents []ToolEvent `json:"tool_events,omitempty"`

	PendingApproval    *ApprovalRequest `json:"pending_approval,omitempty"`
	NeedsEntityRefresh bool             `json:"needs_entity_refresh,omitempty"`

	Response        string `json:"response,omitempty"`
	PartialResponse string `json:"partial_response,omitempty"`

	VerificationStatus     string `json:"verification_status,omitempty"`
	VerificationHint       string `json:"verification_hint,omitempty"`
	VerificationRetryCount int    `json:"verification_retry_count,omitempty"`

	Usage llm.Usage `json:"usage"`

	// Error is the terminal failure marker; once set, every branch must route
	// to completion, never loop.
	Error string `json:"error,omitempty"`
}

// NewGraphState constructs a fresh per-turn state carrying over only the
// persisted conversation identity.
func NewGraphState(threadID, query string, userCtx UserContext) *GraphState {
	return &GraphState{
		ThreadID:    threadID,
		UserQuery:   query,
		UserContext: userCtx,
	}
}

// AppendMessages merges node output into the history by concatenation,
// never replacement.
func (s *GraphState) AppendMessages(msgs ...llm.Message) {
	s.Messages = append(s.Messages, msgs...)
}

// UpsertToolCall merges a tool call update by id: the most recent update wins
// per id so a call transitioning pending->approved->executed never produces
// duplicate entries.
func (s *GraphState) UpsertToolCall(update ToolCall) {
	for i := range s.ToolCalls {
		if s.ToolCalls[i].ID == update.ID {
			s.ToolCalls[i] = update
			return
		}
	}
	s.ToolCalls = append(s.ToolCalls, update)
}

// FindToolCall returns the call with the given id, or nil.
func (s *GraphState) FindToolCall(id string) *ToolCall {
	for i := range s.ToolCalls {
		if s.ToolCalls[i].ID == id {
			return &s.ToolCalls[i]
		}
	}
	return nil
}

// NextPendingToolCall returns the first call without a result, in emission
// order, or nil when none remain.
func (s *GraphState) NextPendingToolCall() *ToolCall {
	for i := range s.ToolCalls {
		if !s.ToolCalls[i].Done() {
			return &s.ToolCalls[i]
		}
	}
	return nil
}

// RecordToolEvent appends one lifecycle transition to the audit log.
func (s *GraphState) RecordToolEvent(toolCallID, phase, detail string) {
	s.ToolEvents = append(s.ToolEvents, ToolEvent{
		ToolCallID: toolCallID,
		Phase:      phase,
		Detail:     detail,
		At:         time.Now().UTC(),
	})
}

// AddUsage accumulates token usage from one model invocation.
func (s *GraphState) AddUsage(u *llm.Usage) {
	if u == nil {
		return
	}
	s.Usage.PromptTokens += u.PromptTokens
	s.Usage.CompletionTokens += u.CompletionTokens
	s.Usage.TotalTokens += u.TotalTokens
}

// MergeToolCalls folds updates into base by id, last write wins per id.
// Entries new to base are appended in update order.
func MergeToolCalls(base, updates []ToolCall) []ToolCall {
	merged := make([]ToolCall, len(base))
	copy(merged, base)

	for _, u := range updates {
		replaced := false
		for i := range merged {
			if merged[i].ID == u.ID {
				merged[i] = u
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, u)
		}
	}
	return merged
}
