// Package gemini adapts the Google GenAI SDK to the internal chat model
// boundary. Gemini-specific shapes (thought parts, function-call parts,
// function-response parts) never leave this package.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/revpilot-ai/server/internal/llm"
	logx "github.com/revpilot-ai/server/pkg/logger"
)

const defaultThinkingBudget = 2000

// Config holds the configuration for one Gemini-backed chat model.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// ChatModel wraps a genai client for a single model name.
type ChatModel struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewChatModel creates a Gemini chat model client.
func NewChatModel(ctx context.Context, cfg Config) (*ChatModel, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	return &ChatModel{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// NewChatModelWithClient creates a model around an existing client so several
// models (router, specialist, verifier) can share one connection.
func NewChatModelWithClient(client *genai.Client, model string, temperature float32, maxTokens int) *ChatModel {
	return &ChatModel{client: client, model: model, temperature: temperature, maxTokens: maxTokens}
}

// NewClient creates a shared genai client from API key and optional base URL.
func NewClient(ctx context.Context, apiKey, baseURL string) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = baseURL
	}
	return genai.NewClient(ctx, clientCfg)
}

// Generate implements llm.ChatModel.
func (m *ChatModel) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	contents, config := m.convertRequest(req)

	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	acc := llm.NewAccumulator()
	addResponseChunks(acc, resp, &toolCallIndexer{})
	return acc.Response(), nil
}

// Stream implements llm.ChatModel.
func (m *ChatModel) Stream(ctx context.Context, req llm.Request) (<-chan llm.StreamChunk, <-chan error) {
	contents, config := m.convertRequest(req)

	chunks := make(chan llm.StreamChunk)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		indexer := &toolCallIndexer{}
		for resp, err := range m.client.Models.GenerateContentStream(ctx, m.model, contents, config) {
			if err != nil {
				errs <- fmt.Errorf("gemini stream: %w", err)
				return
			}
			for _, chunk := range responseChunks(resp, indexer) {
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
		}
	}()

	return chunks, errs
}

// toolCallIndexer assigns stable stream indexes to function calls, which
// Gemini delivers whole rather than as OpenAI-style deltas.
type toolCallIndexer struct {
	next int
}

func (x *toolCallIndexer) take() int {
	i := x.next
	x.next++
	return i
}

func (m *ChatModel) convertRequest(req llm.Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(m.temperature),
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  genai.Ptr(int32(defaultThinkingBudget)),
		},
	}
	if req.Temperature != 0 {
		config.Temperature = genai.Ptr(req.Temperature)
	}
	if m.maxTokens > 0 {
		config.MaxOutputTokens = int32(m.maxTokens)
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: convertToolDefs(req.Tools)}}
	}

	var contents []*genai.Content
	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.RoleSystem:
			// Gemini carries the system prompt out of band.
			if config.SystemInstruction == nil {
				config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: msg.Content}}}
			} else {
				config.SystemInstruction.Parts = append(config.SystemInstruction.Parts, &genai.Part{Text: msg.Content})
			}
		case llm.RoleUser:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		case llm.RoleAssistant:
			parts := make([]*genai.Part, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				args := map[string]any{}
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
						logx.Warn().Str("tool_name", tc.Name).Err(err).Msg("Unparseable tool call arguments in history")
					}
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: args,
				}})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
			}
		case llm.RoleTool:
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
					ID:       msg.ToolCallID,
					Name:     msg.Name,
					Response: map[string]any{"result": msg.Content},
				}}},
			})
		}
	}

	return contents, config
}

func convertToolDefs(defs []llm.ToolDef) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, def := range defs {
		schema := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: map[string]*genai.Schema{},
		}
		for name, p := range def.Parameters {
			schema.Properties[name] = &genai.Schema{
				Type:        convertParamType(p.Type),
				Description: p.Desc,
			}
			if p.Required {
				schema.Required = append(schema.Required, name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  schema,
		})
	}
	return decls
}

func convertParamType(t string) genai.Type {
	switch t {
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func addResponseChunks(acc *llm.Accumulator, resp *genai.GenerateContentResponse, indexer *toolCallIndexer) {
	for _, chunk := range responseChunks(resp, indexer) {
		acc.Add(chunk)
	}
}

// responseChunks flattens one response into normalized stream chunks. Thought
// parts precede content parts within a Gemini response, which preserves the
// thinking-before-content ordering downstream consumers rely on.
func responseChunks(resp *genai.GenerateContentResponse, indexer *toolCallIndexer) []llm.StreamChunk {
	var out []llm.StreamChunk
	if resp == nil {
		return out
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			switch {
			case part.FunctionCall != nil:
				args, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					logx.Warn().Str("tool_name", part.FunctionCall.Name).Err(err).Msg("Unmarshalable function call args")
					args = []byte("{}")
				}
				out = append(out, llm.StreamChunk{
					Type: llm.ChunkToolCall,
					ToolCall: &llm.ToolCallDelta{
						Index:        indexer.take(),
						ID:           part.FunctionCall.ID,
						Name:         part.FunctionCall.Name,
						ArgsFragment: string(args),
					},
				})
			case part.Thought:
				out = append(out, llm.StreamChunk{Type: llm.ChunkThinking, Text: part.Text})
			case part.Text != "":
				out = append(out, llm.StreamChunk{Type: llm.ChunkText, Text: part.Text})
			}
		}
	}
	if resp.UsageMetadata != nil {
		out = append(out, llm.StreamChunk{Type: llm.ChunkUsage, Usage: &llm.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}})
	}
	return out
}

var _ llm.ChatModel = (*ChatModel)(nil)
