// Package nodes implements the graph nodes: router, entity loader,
// specialist, tool executor, and synthesizer. Every node follows the same
// contract: mutate the shared state, return a tagged result, and turn every
// expected failure into state data instead of an error.
package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/revpilot-ai/server/internal/agent/model"
	"github.com/revpilot-ai/server/internal/llm"
	logx "github.com/revpilot-ai/server/pkg/logger"
)

// Node names used when wiring the graph.
const (
	NodeRouter       = "router"
	NodeEntityLoader = "entity_loader"
	NodeSpecialist   = "specialist"
	NodeToolExecutor = "tool_executor"
	NodeSynthesizer  = "synthesizer"
)

const fallbackApology = "I'm sorry, I ran into a problem while processing your request. Please try again."

func emit(ctx context.Context, ev model.StreamEvent) {
	model.EmitterFrom(ctx).Emit(ev)
}

// recentHistory loads up to maxTurns of persisted user/assistant exchanges
// for the thread. Failures degrade to an empty history; a missing
// conversation must never block a turn.
func recentHistory(ctx context.Context, repo model.ConversationRepository, threadID string, maxTurns int) []llm.Message {
	if repo == nil || threadID == "" {
		return nil
	}

	history, err := repo.LoadHistory(ctx, threadID)
	if err != nil {
		logx.Warn().Err(err).Str("thread_id", threadID).Msg("Failed to load conversation history")
		return nil
	}
	if history == nil || len(history.Messages) == 0 {
		return nil
	}

	msgs := make([]llm.Message, 0, len(history.Messages))
	for _, m := range history.Messages {
		if m.Role == llm.RoleUser || m.Role == llm.RoleAssistant {
			msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
		}
	}

	if maxTurns > 0 && len(msgs) > maxTurns*2 {
		msgs = msgs[len(msgs)-maxTurns*2:]
	}
	return msgs
}

// renderHistory flattens an exchange list into prompt text.
func renderHistory(msgs []llm.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	var b strings.Builder
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleUser:
			b.WriteString("User: ")
		case llm.RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			continue
		}
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// parseToolArgs decodes accumulated argument JSON. Unparseable arguments come
// back as an error so the executor can fail the call with a structured result
// instead of executing with garbage.
func parseToolArgs(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("unparseable tool arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// toolFailureResult builds the structured error payload recorded as a tool
// result. It is always valid JSON so the model can read it back.
func toolFailureResult(code, toolName, message string) string {
	payload := map[string]any{
		"error":   code,
		"tool":    toolName,
		"message": message,
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, code)
	}
	return string(out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
