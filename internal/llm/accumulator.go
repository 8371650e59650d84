package llm

import "strings"

// Accumulator assembles streaming chunks into a complete response. Tool call
// fragments are accumulated by index and only finalised once the stream
// completes, because partial argument JSON is not independently parseable.
type Accumulator struct {
	content   strings.Builder
	reasoning strings.Builder
	toolCalls []ToolCall
	usage     *Usage
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Add folds one chunk into the accumulated state.
func (a *Accumulator) Add(chunk StreamChunk) {
	switch chunk.Type {
	case ChunkText:
		a.content.WriteString(chunk.Text)
	case ChunkThinking:
		a.reasoning.WriteString(chunk.Text)
	case ChunkToolCall:
		if chunk.ToolCall != nil {
			a.accumulateToolCall(*chunk.ToolCall)
		}
	case ChunkUsage:
		if chunk.Usage != nil {
			a.usage = chunk.Usage
		}
	}
}

func (a *Accumulator) accumulateToolCall(delta ToolCallDelta) {
	for len(a.toolCalls) <= delta.Index {
		a.toolCalls = append(a.toolCalls, ToolCall{})
	}

	tc := &a.toolCalls[delta.Index]
	if delta.ID != "" {
		tc.ID += delta.ID
	}
	if delta.Name != "" {
		tc.Name += delta.Name
	}
	if delta.ArgsFragment != "" {
		tc.Arguments += delta.ArgsFragment
	}
}

// HasToolCalls reports whether any tool call fragments were seen.
func (a *Accumulator) HasToolCalls() bool {
	return len(a.toolCalls) > 0
}

// Response returns the accumulated message and usage.
func (a *Accumulator) Response() *Response {
	msg := Message{
		Role:      RoleAssistant,
		Content:   a.content.String(),
		Reasoning: a.reasoning.String(),
	}
	if len(a.toolCalls) > 0 {
		msg.ToolCalls = make([]ToolCall, len(a.toolCalls))
		copy(msg.ToolCalls, a.toolCalls)
	}
	return &Response{Message: msg, Usage: a.usage}
}
