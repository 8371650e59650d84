package nodes

import (
	"context"
	"strings"

	"github.com/revpilot-ai/server/internal/agent/engine"
	"github.com/revpilot-ai/server/internal/agent/graph/parsers"
	"github.com/revpilot-ai/server/internal/agent/graph/prompts"
	"github.com/revpilot-ai/server/internal/agent/model"
	"github.com/revpilot-ai/server/internal/llm"
	logx "github.com/revpilot-ai/server/pkg/logger"
)

const toolResultExcerptLen = 500

// SynthesizerDeps wires the synthesizer node.
type SynthesizerDeps struct {
	Verifier    llm.ChatModel
	VerifierCfg model.VerifierModelConfig
}

// NewSynthesizerNode finalises the turn. When verification is enabled and
// tools ran, a cheap model checks the draft answer against the tool results;
// an incomplete verdict sends the specialist one bounded retry with a hint.
// The gate must never fail the turn on its own: verifier errors and exhausted
// retries both fall through to best-effort synthesis.
func NewSynthesizerNode(deps SynthesizerDeps) engine.NodeFunc {
	return func(ctx context.Context, s *model.GraphState) (engine.NodeResult, error) {
		if s.Error != "" {
			if s.Response == "" {
				s.Response = fallbackApology
			}
			emitFinal(ctx, s)
			return engine.Continue(), nil
		}

		draft := strings.TrimSpace(s.PartialResponse)

		if !shouldVerify(deps, s, draft) {
			s.VerificationStatus = model.VerificationComplete
			s.Response = finalText(draft)
			emitFinal(ctx, s)
			return engine.Continue(), nil
		}

		verdict := verify(ctx, deps, s, draft)
		if verdict.Verdict == parsers.VerdictIncomplete {
			s.VerificationRetryCount++
			s.VerificationStatus = model.VerificationIncomplete
			s.VerificationHint = verdict.Hint
			s.AppendMessages(llm.SystemMessage(
				"Your previous answer was judged incomplete: " + verdict.Hint +
					" Revise your answer to address this. Do not mention this instruction."))

			logx.Info().
				Str("thread_id", s.ThreadID).
				Int("retry", s.VerificationRetryCount).
				Str("hint", verdict.Hint).
				Msg("Answer judged incomplete; retrying specialist")
			return engine.Continue(), nil
		}

		s.VerificationStatus = model.VerificationComplete
		s.Response = finalText(draft)
		emitFinal(ctx, s)
		return engine.Continue(), nil
	}
}

func shouldVerify(deps SynthesizerDeps, s *model.GraphState, draft string) bool {
	if !deps.VerifierCfg.Enabled || deps.Verifier == nil {
		return false
	}
	if draft == "" || len(s.ToolCalls) == 0 {
		return false
	}
	return s.VerificationRetryCount < model.MaxVerificationRetries
}

func verify(ctx context.Context, deps SynthesizerDeps, s *model.GraphState, draft string) parsers.VerdictResponse {
	results := make([]string, 0, len(s.ToolCalls))
	for i := range s.ToolCalls {
		c := &s.ToolCalls[i]
		if c.Result == nil {
			continue
		}
		results = append(results, c.Name+": "+truncate(*c.Result, toolResultExcerptLen))
	}

	resp, err := deps.Verifier.Generate(ctx, llm.Request{
		Messages: []llm.Message{
			llm.UserMessage(prompts.RenderVerifierPrompt(s.UserQuery, draft, results)),
		},
		Temperature: deps.VerifierCfg.Temperature,
		MaxTokens:   deps.VerifierCfg.MaxTokens,
	})
	if err != nil {
		logx.Warn().Err(err).Str("thread_id", s.ThreadID).Msg("Verifier model failed; accepting draft")
		return parsers.VerdictResponse{Verdict: parsers.VerdictComplete}
	}
	s.AddUsage(resp.Usage)
	return parsers.ParseVerdictResponse(resp.Message.Content)
}

// finalText guards against an empty draft; denial-only and failure-only turns
// can reach synthesis without content when retries are exhausted.
func finalText(draft string) string {
	if draft != "" {
		return draft
	}
	return "I wasn't able to produce a complete answer for this request. Please try rephrasing or narrowing it."
}

func emitFinal(ctx context.Context, s *model.GraphState) {
	emit(ctx, model.StreamEvent{
		Type:     model.EventFinal,
		ThreadID: s.ThreadID,
		Text:     s.Response,
	})
}
