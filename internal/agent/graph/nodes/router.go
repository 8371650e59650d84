package nodes

import (
	"context"
	"sort"

	"github.com/revpilot-ai/server/internal/agent/engine"
	"github.com/revpilot-ai/server/internal/agent/graph/parsers"
	"github.com/revpilot-ai/server/internal/agent/graph/prompts"
	"github.com/revpilot-ai/server/internal/agent/model"
	"github.com/revpilot-ai/server/internal/llm"
	logx "github.com/revpilot-ai/server/pkg/logger"
)

// routeTable maps the router's category vocabulary onto service/capability
// pairs. Unknown categories fall back to the general assistant.
var routeTable = map[string]model.Routing{
	"admob_inventory":      {Service: "admob", Capability: "inventory"},
	"admob_reporting":      {Service: "admob", Capability: "reporting"},
	"admob_mediation":      {Service: "admob", Capability: "mediation"},
	"ad_manager_inventory": {Service: "ad_manager", Capability: "inventory"},
	"ad_manager_reporting": {Service: "ad_manager", Capability: "reporting"},
	"ad_manager_orders":    {Service: "ad_manager", Capability: "orders"},
	"general":              {Service: "general", Capability: "assistant"},
}

// RouteCategories returns the category vocabulary in stable order for the
// classification prompt.
func RouteCategories() []string {
	cats := make([]string, 0, len(routeTable))
	for c := range routeTable {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

func fallbackRoute(rationale string) *model.Routing {
	return &model.Routing{
		Service:       "general",
		Capability:    "assistant",
		ExecutionPath: "specialist",
		Rationale:     rationale,
	}
}

// RouterDeps wires the router node.
type RouterDeps struct {
	Model         llm.ChatModel
	ModelCfg      model.RouterModelConfig
	Conversations model.ConversationRepository
	RecentTurns   int
}

// NewRouterNode classifies the query into a service/capability route. The
// router must never fail the turn: classifier errors and unparseable output
// both fall back to the general route with the failure recorded as the
// rationale.
func NewRouterNode(deps RouterDeps) engine.NodeFunc {
	return func(ctx context.Context, s *model.GraphState) (engine.NodeResult, error) {
		s.Routing = classify(ctx, deps, s)

		logx.Info().
			Str("thread_id", s.ThreadID).
			Str("service", s.Routing.Service).
			Str("capability", s.Routing.Capability).
			Msg("Routed query")

		emit(ctx, model.StreamEvent{
			Type:       model.EventRouting,
			ThreadID:   s.ThreadID,
			Service:    s.Routing.Service,
			Capability: s.Routing.Capability,
			Text:       s.Routing.Rationale,
		})
		return engine.Continue(), nil
	}
}

func classify(ctx context.Context, deps RouterDeps, s *model.GraphState) *model.Routing {
	msgs := []llm.Message{llm.SystemMessage(prompts.RenderRouterSystem(RouteCategories()))}
	if history := renderHistory(recentHistory(ctx, deps.Conversations, s.ThreadID, deps.RecentTurns)); history != "" {
		msgs = append(msgs, llm.SystemMessage("Recent conversation:\n"+history))
	}
	msgs = append(msgs, llm.UserMessage(s.UserQuery))

	resp, err := deps.Model.Generate(ctx, llm.Request{
		Messages:    msgs,
		Temperature: deps.ModelCfg.Temperature,
		MaxTokens:   deps.ModelCfg.MaxTokens,
	})
	if err != nil {
		logx.Warn().Err(err).Str("thread_id", s.ThreadID).Msg("Router model failed; using fallback route")
		return fallbackRoute("router model unavailable: " + err.Error())
	}
	s.AddUsage(resp.Usage)

	parsed := parsers.ParseRouteResponse(resp.Message.Content)
	route, ok := routeTable[parsed.Category]
	if !ok {
		if parsed.Category != "" {
			logx.Warn().
				Str("thread_id", s.ThreadID).
				Str("category", parsed.Category).
				Msg("Router returned unknown category; using fallback route")
		}
		return fallbackRoute("unrecognised category: " + parsed.Category)
	}

	route.ExecutionPath = "specialist"
	route.Rationale = parsed.Thinking
	return &route
}
