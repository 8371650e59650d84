package repo

import (
	"context"
	"sync"

	"github.com/revpilot-ai/server/internal/agent/model"
	"github.com/revpilot-ai/server/internal/llm"
)

// MemoryConversationRepository keeps conversation history in process memory.
// Used by tests and single-process demos; everything else goes through Redis.
type MemoryConversationRepository struct {
	mu       sync.Mutex
	messages map[string][]llm.Message
}

func NewMemoryConversationRepository() *MemoryConversationRepository {
	return &MemoryConversationRepository{messages: make(map[string][]llm.Message)}
}

func (r *MemoryConversationRepository) AddMessage(ctx context.Context, threadID string, message llm.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[threadID] = append(r.messages[threadID], message)
	return nil
}

func (r *MemoryConversationRepository) LoadHistory(ctx context.Context, threadID string) (*model.ConversationHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := make([]llm.Message, len(r.messages[threadID]))
	copy(msgs, r.messages[threadID])
	return &model.ConversationHistory{ThreadID: threadID, Messages: msgs}, nil
}

func (r *MemoryConversationRepository) ClearHistory(ctx context.Context, threadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messages, threadID)
	return nil
}

func (r *MemoryConversationRepository) GetMessageCount(ctx context.Context, threadID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages[threadID]), nil
}

var _ model.ConversationRepository = (*MemoryConversationRepository)(nil)
