// Package llm defines the provider-neutral chat model boundary. Every provider
// adapter normalises its wire shapes into these types so downstream graph nodes
// consume one uniform stream regardless of provider quirks.
package llm

import "context"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message represents one conversation turn.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	Reasoning  string     `json:"reasoning,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall represents a complete function call emitted by the assistant.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message.
func AssistantMessage(content string, toolCalls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: toolCalls}
}

// ToolMessage builds a tool-result message bound to a prior tool call.
func ToolMessage(toolCallID, name, result string) Message {
	return Message{Role: RoleTool, ToolCallID: toolCallID, Name: name, Content: result}
}

// ParameterInfo describes a single tool parameter.
type ParameterInfo struct {
	Type     string `json:"type" yaml:"type"`
	Desc     string `json:"desc" yaml:"desc"`
	Required bool   `json:"required" yaml:"required"`
}

// ToolDef is the schema a tool exposes to the model.
type ToolDef struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	Parameters  map[string]*ParameterInfo `json:"parameters,omitempty"`
}

// Request carries one chat completion invocation.
type Request struct {
	Messages    []Message
	Tools       []ToolDef
	Temperature float32
	MaxTokens   int
}

// Usage reports token consumption for one model invocation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChunkType discriminates the stream chunk variants.
type ChunkType string

const (
	ChunkText     ChunkType = "text"
	ChunkThinking ChunkType = "thinking"
	ChunkToolCall ChunkType = "tool_call"
	ChunkUsage    ChunkType = "usage"
)

// StreamChunk is one incremental unit of model output. Exactly one of the
// payload fields is meaningful for a given Type.
type StreamChunk struct {
	Type     ChunkType
	Text     string
	ToolCall *ToolCallDelta
	Usage    *Usage
}

// ToolCallDelta carries an incremental fragment of a function call. ID and
// Name usually arrive in the first fragment for an index; argument JSON is
// accumulated across fragments and is not independently parseable.
type ToolCallDelta struct {
	Index        int
	ID           string
	Name         string
	ArgsFragment string
}

// Response is the fully accumulated result of one model invocation.
type Response struct {
	Message Message
	Usage   *Usage
}

// ChatModel is the opaque LLM boundary consumed by graph nodes.
type ChatModel interface {
	// Generate runs one blocking completion.
	Generate(ctx context.Context, req Request) (*Response, error)
	// Stream runs one completion and emits chunks as they arrive. The chunk
	// channel is closed when the stream completes; a terminal failure is
	// delivered on the error channel.
	Stream(ctx context.Context, req Request) (<-chan StreamChunk, <-chan error)
}
