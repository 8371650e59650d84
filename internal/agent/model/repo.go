package model

import (
	"context"
	"time"

	"github.com/revpilot-ai/server/internal/llm"
)

type ConversationRepository interface {
	// AddMessage appends a message to the conversation history for the thread
	AddMessage(ctx context.Context, threadID string, message llm.Message) error

	// LoadHistory retrieves the conversation history for a thread
	LoadHistory(ctx context.Context, threadID string) (*ConversationHistory, error)

	// ClearHistory removes all conversation history for a thread
	ClearHistory(ctx context.Context, threadID string) error

	// GetMessageCount returns the number of messages in the conversation
	GetMessageCount(ctx context.Context, threadID string) (int, error)
}

// ConversationHistory represents loaded conversation data with metadata.
type ConversationHistory struct {
	ThreadID string
	Messages []llm.Message
}

// Checkpoint is one durable snapshot of graph execution for a thread. The
// latest checkpoint is the authoritative resumable state.
type Checkpoint struct {
	ThreadID  string      `json:"thread_id"`
	Step      int         `json:"step"`
	Node      string      `json:"node"` // next node to run when resuming
	Suspended bool        `json:"suspended"`
	State     *GraphState `json:"state"`
	CreatedAt time.Time   `json:"created_at"`
}

type CheckpointStore interface {
	// Put persists a checkpoint as the latest for its thread.
	Put(ctx context.Context, cp *Checkpoint) error

	// Latest returns the most recent checkpoint for the thread, or nil when
	// the thread has none.
	Latest(ctx context.Context, threadID string) (*Checkpoint, error)
}
