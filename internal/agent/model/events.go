package model

import "context"

// EventType discriminates the typed stream events consumed by a UI layer.
type EventType string

const (
	EventRouting          EventType = "routing"
	EventSpecialist       EventType = "specialist"
	EventThinking         EventType = "thinking"
	EventContent          EventType = "content"
	EventToolCallStarted  EventType = "tool_call_started"
	EventToolResult       EventType = "tool_result"
	EventApprovalRequired EventType = "tool_approval_required"
	EventToolDenied       EventType = "tool_denied"
	EventFinal            EventType = "final"
	EventError            EventType = "error"
	EventDone             EventType = "done"
)

// StreamEvent is one unit of the streaming boundary. Fields beyond Type are
// populated per event kind.
type StreamEvent struct {
	Type       EventType      `json:"type"`
	ThreadID   string         `json:"thread_id,omitempty"`
	Service    string         `json:"service,omitempty"`
	Capability string         `json:"capability,omitempty"`
	Text       string         `json:"text,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ApprovalID string         `json:"approval_id,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	Result     string         `json:"result,omitempty"`
	Err        string         `json:"error,omitempty"`
}

// EventEmitter receives stream events during a turn. Emission must never
// block graph progress indefinitely; implementations buffer or drop.
type EventEmitter interface {
	Emit(event StreamEvent)
}

// NopEmitter discards all events.
type NopEmitter struct{}

func (NopEmitter) Emit(StreamEvent) {}

type emitterKey struct{}

// WithEmitter attaches a per-turn emitter to the context. The emitter is
// carried on the context rather than baked into node construction so one
// compiled graph can serve blocking and streaming callers concurrently.
func WithEmitter(ctx context.Context, e EventEmitter) context.Context {
	return context.WithValue(ctx, emitterKey{}, e)
}

// EmitterFrom returns the context emitter, or NopEmitter when none is set.
func EmitterFrom(ctx context.Context) EventEmitter {
	if e, ok := ctx.Value(emitterKey{}).(EventEmitter); ok && e != nil {
		return e
	}
	return NopEmitter{}
}
