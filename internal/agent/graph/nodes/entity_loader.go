package nodes

import (
	"context"

	"github.com/revpilot-ai/server/internal/agent/engine"
	"github.com/revpilot-ai/server/internal/agent/entities"
	"github.com/revpilot-ai/server/internal/agent/model"
	logx "github.com/revpilot-ai/server/pkg/logger"
)

// Invalidator is implemented by entity services with a cache layer.
type Invalidator interface {
	Invalidate(ctx context.Context, userID, organizationID string) error
}

// EntityLoaderDeps wires the entity loader node.
type EntityLoaderDeps struct {
	Loader  *entities.Loader
	Service entities.Service
}

// NewEntityLoaderNode populates the user's entity snapshot. Loading is best
// effort: an unavailable entity backend degrades the turn to no grounding
// instead of failing it. A set refresh flag busts the cache first so entities
// created earlier in the turn become visible.
func NewEntityLoaderNode(deps EntityLoaderDeps) engine.NodeFunc {
	return func(ctx context.Context, s *model.GraphState) (engine.NodeResult, error) {
		uc := &s.UserContext
		if uc.UserID == "" {
			return engine.Continue(), nil
		}

		if s.NeedsEntityRefresh {
			if inv, ok := deps.Service.(Invalidator); ok {
				if err := inv.Invalidate(ctx, uc.UserID, uc.OrganizationID); err != nil {
					logx.Warn().Err(err).Str("user_id", uc.UserID).Msg("Failed to invalidate entity cache")
				}
			}
		} else if len(uc.Accounts) > 0 {
			// Already loaded this turn and nothing changed.
			return engine.Continue(), nil
		}

		snapshot, err := deps.Loader.Load(ctx, uc.UserID, uc.OrganizationID)
		if err != nil {
			logx.Warn().Err(err).
				Str("thread_id", s.ThreadID).
				Str("user_id", uc.UserID).
				Msg("Entity loading failed; continuing without grounding")
			s.NeedsEntityRefresh = false
			return engine.Continue(), nil
		}

		uc.Accounts = snapshot.Accounts
		uc.Apps = snapshot.Apps
		s.NeedsEntityRefresh = false

		logx.Debug().
			Str("thread_id", s.ThreadID).
			Int("accounts", len(uc.Accounts)).
			Int("apps", len(uc.Apps)).
			Msg("Loaded entity snapshot")
		return engine.Continue(), nil
	}
}
