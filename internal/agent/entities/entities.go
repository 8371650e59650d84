// Package entities loads the caller's connected accounts and apps and builds
// the grounding context that keeps the model from hallucinating ids.
package entities

import (
	"context"
	"fmt"
	"strings"

	"github.com/revpilot-ai/server/internal/agent/model"
	logx "github.com/revpilot-ai/server/pkg/logger"
)

// Snapshot is the normalised result of one entity fetch.
type Snapshot struct {
	Accounts []model.Account `json:"accounts"`
	Apps     []model.App     `json:"apps"`
}

// Service is the read-only entity service boundary. Absence of data is not an
// error.
type Service interface {
	GetEntities(ctx context.Context, userID, organizationID string) (*Snapshot, error)
}

// StaticService serves a fixed snapshot; used by the demo driver and tests.
type StaticService struct {
	Snapshot Snapshot
}

func (s *StaticService) GetEntities(ctx context.Context, userID, organizationID string) (*Snapshot, error) {
	clone := Snapshot{
		Accounts: append([]model.Account(nil), s.Snapshot.Accounts...),
		Apps:     append([]model.App(nil), s.Snapshot.Apps...),
	}
	return &clone, nil
}

const defaultMaxAppsPerAccount = 10

// Loader fetches entities and renders grounding prompts.
type Loader struct {
	service           Service
	maxAppsPerAccount int
}

// NewLoader creates a loader over the entity service.
func NewLoader(service Service, cfg model.EntityConfig) *Loader {
	max := cfg.MaxAppsPerAccount
	if max <= 0 {
		max = defaultMaxAppsPerAccount
	}
	return &Loader{service: service, maxAppsPerAccount: max}
}

// Load fetches the caller's entities. A missing user id short-circuits to an
// empty snapshot without error: grounding is a best-effort enhancement, not a
// hard dependency.
func (l *Loader) Load(ctx context.Context, userID, organizationID string) (*Snapshot, error) {
	if strings.TrimSpace(userID) == "" {
		logx.Debug().Msg("No user id; skipping entity load")
		return &Snapshot{}, nil
	}

	snap, err := l.service.GetEntities(ctx, userID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("get entities: %w", err)
	}
	if snap == nil {
		return &Snapshot{}, nil
	}

	logx.Debug().
		Str("user_id", userID).
		Int("account_count", len(snap.Accounts)).
		Int("app_count", len(snap.Apps)).
		Msg("Loaded entity snapshot")
	return snap, nil
}

// BuildGroundingPrompt renders a natural-language enumeration of the valid
// entities with the mode instruction. This is the generation-time
// anti-hallucination defense; the validator repeats the check at execution
// time on purpose.
func (l *Loader) BuildGroundingPrompt(uc model.UserContext) string {
	if len(uc.Accounts) == 0 {
		return "The user has no connected monetization accounts. Do not invent account or app identifiers."
	}

	strict := uc.ContextMode == "strict"

	var b strings.Builder
	b.WriteString("Connected accounts and apps (the ONLY valid identifiers):\n")

	for _, acct := range uc.Accounts {
		disabled := strict && !accountEnabled(uc, acct)
		fmt.Fprintf(&b, "- %s account %q, id %s", acct.Type, acct.Name, acct.Identifier)
		if disabled {
			b.WriteString(" (DISABLED - not in scope)")
		}
		b.WriteString("\n")

		apps := appsForAccount(uc.Apps, acct.ID)
		shown := apps
		if len(shown) > l.maxAppsPerAccount {
			shown = shown[:l.maxAppsPerAccount]
		}
		for _, app := range shown {
			fmt.Fprintf(&b, "    - app %q (%s), id %s", app.Name, app.Platform, app.Identifier)
			if disabled {
				b.WriteString(" (DISABLED - not in scope)")
			}
			b.WriteString("\n")
		}
		if extra := len(apps) - len(shown); extra > 0 {
			fmt.Fprintf(&b, "    ... and %d more apps\n", extra)
		}
	}

	if strict {
		b.WriteString("Never reference entities marked DISABLED and never use identifiers outside this list.")
	} else {
		b.WriteString("Prefer the entities listed above; identifiers outside this list may not be accessible.")
	}
	return b.String()
}

func accountEnabled(uc model.UserContext, acct model.Account) bool {
	if len(uc.EnabledAccounts) == 0 {
		return acct.Enabled
	}
	for _, id := range uc.EnabledAccounts {
		if id == acct.ID || id == acct.Identifier {
			return true
		}
	}
	return false
}

func appsForAccount(apps []model.App, accountID string) []model.App {
	var out []model.App
	for _, app := range apps {
		if app.AccountID == accountID {
			out = append(out, app)
		}
	}
	return out
}
