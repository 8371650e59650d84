package nodes

import (
	"context"

	"github.com/google/uuid"

	"github.com/revpilot-ai/server/internal/agent/engine"
	"github.com/revpilot-ai/server/internal/agent/entities"
	"github.com/revpilot-ai/server/internal/agent/graph/prompts"
	"github.com/revpilot-ai/server/internal/agent/model"
	"github.com/revpilot-ai/server/internal/agent/tools"
	"github.com/revpilot-ai/server/internal/llm"
	logx "github.com/revpilot-ai/server/pkg/logger"
)

const toolBudgetNotice = "SYSTEM NOTICE: The tool call budget for this conversation turn is exhausted. " +
	"Do not request more tools. Produce your best final answer from the information already gathered."

// SpecialistDeps wires the specialist node.
type SpecialistDeps struct {
	Model         llm.ChatModel
	ModelCfg      model.SpecialistModelConfig
	Registry      *tools.Registry
	Loader        *entities.Loader
	Conversations model.ConversationRepository
	RecentTurns   int
	MaxToolCalls  int
	Filter        model.ToolFilterConfig
}

// NewSpecialistNode runs the domain model against the routed service with a
// filtered tool binding. Streaming output is forwarded as thinking and
// content events; tool call fragments are accumulated and only surfaced once
// the stream ends, because partial argument JSON is not parseable.
func NewSpecialistNode(deps SpecialistDeps) engine.NodeFunc {
	return func(ctx context.Context, s *model.GraphState) (engine.NodeResult, error) {
		routing := s.Routing
		if routing == nil {
			routing = fallbackRoute("specialist entered without routing")
			s.Routing = routing
		}
		s.VerificationStatus = model.VerificationUnchecked

		emit(ctx, model.StreamEvent{
			Type:       model.EventSpecialist,
			ThreadID:   s.ThreadID,
			Service:    routing.Service,
			Capability: routing.Capability,
		})

		seedMessages(ctx, deps, s)

		defs := boundTools(deps, s)
		if executedToolCalls(s) >= deps.MaxToolCalls && len(defs) > 0 {
			logx.Warn().
				Str("thread_id", s.ThreadID).
				Int("max_calls", deps.MaxToolCalls).
				Msg("Tool call budget exhausted; forcing final answer")
			s.AppendMessages(llm.SystemMessage(toolBudgetNotice))
			defs = nil
		}

		resp, err := streamCompletion(ctx, deps, s, llm.Request{
			Messages:    s.Messages,
			Tools:       defs,
			Temperature: deps.ModelCfg.Temperature,
			MaxTokens:   deps.ModelCfg.MaxTokens,
		})
		if err != nil {
			logx.Error().Err(err).Str("thread_id", s.ThreadID).Msg("Specialist model failed")
			s.Error = err.Error()
			s.Response = fallbackApology
			emit(ctx, model.StreamEvent{Type: model.EventError, ThreadID: s.ThreadID, Err: err.Error()})
			return engine.Continue(), nil
		}
		s.AddUsage(resp.Usage)
		s.AppendMessages(resp.Message)

		if len(resp.Message.ToolCalls) == 0 {
			s.PartialResponse = resp.Message.Content
			return engine.Continue(), nil
		}

		registerToolCalls(deps, s, resp.Message.ToolCalls)
		if resp.Message.Content != "" {
			s.PartialResponse = resp.Message.Content
		}
		return engine.Continue(), nil
	}
}

// seedMessages builds the message history on first entry and refreshes the
// system prompt on re-entry so grounding reflects the current entity
// snapshot.
func seedMessages(ctx context.Context, deps SpecialistDeps, s *model.GraphState) {
	system := llm.SystemMessage(prompts.RenderSpecialistSystem(prompts.SpecialistPromptData{
		Service:    s.Routing.Service,
		Capability: s.Routing.Capability,
		Grounding:  deps.Loader.BuildGroundingPrompt(s.UserContext),
	}))

	if len(s.Messages) == 0 {
		msgs := []llm.Message{system}
		msgs = append(msgs, recentHistory(ctx, deps.Conversations, s.ThreadID, deps.RecentTurns)...)
		msgs = append(msgs, llm.UserMessage(s.UserQuery))
		s.Messages = msgs
		return
	}
	if s.Messages[0].Role == llm.RoleSystem {
		s.Messages[0] = system
	}
}

func boundTools(deps SpecialistDeps, s *model.GraphState) []llm.ToolDef {
	if s.Routing.Service == "general" {
		return nil
	}
	selected := deps.Registry.SelectForRoute(
		s.Routing.Service,
		s.Routing.Capability,
		s.UserQuery,
		deps.Filter.MaxBound,
		deps.Filter.TopK,
	)
	defs := make([]llm.ToolDef, 0, len(selected))
	for _, t := range selected {
		defs = append(defs, t.ToolDef())
	}
	return defs
}

func executedToolCalls(s *model.GraphState) int {
	n := 0
	for i := range s.ToolCalls {
		if s.ToolCalls[i].Done() {
			n++
		}
	}
	return n
}

// streamCompletion consumes the model stream, forwarding thinking and content
// events as they arrive. Thinking is only forwarded before the first content
// chunk; a provider that interleaves late thinking gets it accumulated into
// the response but not re-streamed out of order.
func streamCompletion(ctx context.Context, deps SpecialistDeps, s *model.GraphState, req llm.Request) (*llm.Response, error) {
	chunks, errs := deps.Model.Stream(ctx, req)

	acc := llm.NewAccumulator()
	contentStarted := false
	for chunk := range chunks {
		acc.Add(chunk)
		switch chunk.Type {
		case llm.ChunkThinking:
			if !contentStarted && chunk.Text != "" {
				emit(ctx, model.StreamEvent{Type: model.EventThinking, ThreadID: s.ThreadID, Text: chunk.Text})
			}
		case llm.ChunkText:
			if chunk.Text != "" {
				contentStarted = true
				emit(ctx, model.StreamEvent{Type: model.EventContent, ThreadID: s.ThreadID, Text: chunk.Text})
			}
		}
	}
	if err := <-errs; err != nil {
		return nil, err
	}
	return acc.Response(), nil
}

// registerToolCalls turns accumulated tool call fragments into pending state
// entries. Calls missing an id get one synthesized so the approval and audit
// machinery can always key on it.
func registerToolCalls(deps SpecialistDeps, s *model.GraphState, calls []llm.ToolCall) {
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = uuid.NewString()
		}
		args, err := parseToolArgs(calls[i].Arguments)
		if err != nil {
			logx.Warn().Err(err).
				Str("thread_id", s.ThreadID).
				Str("tool_name", calls[i].Name).
				Msg("Discarding unparseable tool arguments")
			args = map[string]any{}
		}

		call := model.ToolCall{
			ID:          calls[i].ID,
			Name:        calls[i].Name,
			Args:        args,
			IsDangerous: deps.Registry.IsDangerous(calls[i].Name),
		}
		s.UpsertToolCall(call)
		s.RecordToolEvent(call.ID, model.ApprovalPending, call.Name)
	}

	// The assistant message appended by the caller carries the original
	// fragment ids; make sure synthesized ids are reflected there too.
	if len(s.Messages) > 0 {
		last := &s.Messages[len(s.Messages)-1]
		if last.Role == llm.RoleAssistant && len(last.ToolCalls) == len(calls) {
			last.ToolCalls = calls
		}
	}
}
