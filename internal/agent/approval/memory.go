package approval

import (
	"context"
	"sync"
	"time"

	"github.com/revpilot-ai/server/internal/agent/model"
	logx "github.com/revpilot-ai/server/pkg/logger"
)

type memoryEntry struct {
	record *PendingApproval
	done   chan struct{}
}

// MemoryStore is a lock-protected in-process approval store for
// single-process deployments and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry)}
}

func (s *MemoryStore) Create(ctx context.Context, req model.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[req.ApprovalID]; exists {
		return ErrDuplicateID
	}
	s.entries[req.ApprovalID] = &memoryEntry{
		record: &PendingApproval{
			ApprovalID:  req.ApprovalID,
			ToolName:    req.ToolName,
			ToolArgs:    req.ToolArgs,
			ToolCallID:  req.ToolCallID,
			ParamSchema: req.ParamSchema,
			CreatedAt:   time.Now().UTC(),
		},
		done: make(chan struct{}),
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, approvalID string) (*PendingApproval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[approvalID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *e.record
	return &clone, nil
}

func (s *MemoryStore) Resolve(ctx context.Context, approvalID string, approved bool, modifiedArgs map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[approvalID]
	if !ok {
		return ErrNotFound
	}
	if e.record.Resolution != nil {
		logx.Warn().Str("approval_id", approvalID).Msg("Duplicate approval resolution ignored")
		return ErrAlreadyResolved
	}

	e.record.Resolution = &Resolution{
		Approved:     approved,
		ModifiedArgs: modifiedArgs,
		ResolvedAt:   time.Now().UTC(),
	}
	close(e.done)
	return nil
}

func (s *MemoryStore) Wait(ctx context.Context, approvalID string, timeout time.Duration) (*model.ApprovalResult, error) {
	s.mu.Lock()
	e, ok := s.entries[approvalID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-e.done:
		s.mu.Lock()
		res := e.record.Resolution
		s.mu.Unlock()
		return toResult(res), nil
	case <-timer.C:
		return timedOutResult(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var _ Store = (*MemoryStore)(nil)
