// Package graph wires the conversational control plane: router, entity
// loader, specialist, tool executor, and synthesizer composed into a
// checkpointed engine with human-in-the-loop suspend/resume.
package graph

import (
	"context"
	"fmt"

	"github.com/revpilot-ai/server/internal/agent/approval"
	"github.com/revpilot-ai/server/internal/agent/engine"
	"github.com/revpilot-ai/server/internal/agent/entities"
	"github.com/revpilot-ai/server/internal/agent/graph/nodes"
	"github.com/revpilot-ai/server/internal/agent/model"
	"github.com/revpilot-ai/server/internal/agent/tools"
	"github.com/revpilot-ai/server/internal/agent/validate"
	"github.com/revpilot-ai/server/internal/llm"
	"github.com/revpilot-ai/server/internal/llm/gemini"
	logx "github.com/revpilot-ai/server/pkg/logger"
)

// TurnResult is the outcome of one Invoke or Resume.
type TurnResult struct {
	ThreadID  string                 `json:"thread_id"`
	Response  string                 `json:"response,omitempty"`
	Suspended bool                   `json:"suspended"`
	Approval  *model.ApprovalRequest `json:"approval,omitempty"`
	Usage     llm.Usage              `json:"usage"`
	Err       string                 `json:"error,omitempty"`
}

// Runner executes turns against the compiled graph.
type Runner interface {
	// Invoke runs one blocking turn. A suspended result carries the approval
	// request the caller must surface to a human.
	Invoke(ctx context.Context, in model.QueryInput) (*TurnResult, error)

	// Stream runs one turn, delivering events on the returned channel. The
	// channel closes after the done event.
	Stream(ctx context.Context, in model.QueryInput) (<-chan model.StreamEvent, error)

	// Resume continues a suspended turn with the human decision applied.
	Resume(ctx context.Context, threadID string, result model.ApprovalResult) (*TurnResult, error)

	// ResolveApproval records a decision in the approval store. Exactly one
	// resolution wins per approval id.
	ResolveApproval(ctx context.Context, approvalID string, approved bool, modifiedArgs map[string]any) error
}

// Config holds everything needed to compose the full graph end-to-end.
// RouterModel, SpecialistModel, and VerifierModel override the Gemini
// defaults when set; tests inject scripted models through them.
type Config struct {
	APIKey  string
	BaseURL string

	Router     model.RouterModelConfig
	Specialist model.SpecialistModelConfig
	Verifier   model.VerifierModelConfig

	Conversation model.ConversationConfig
	Validation   model.ValidationConfig
	Entity       model.EntityConfig
	Filter       model.ToolFilterConfig
	Run          model.GraphRunConfig

	ConversationRepo model.ConversationRepository
	Checkpoints      model.CheckpointStore
	Approvals        approval.Store
	Entities         entities.Service
	Registry         *tools.Registry
	Invoker          tools.Invoker

	RouterModel     llm.ChatModel
	SpecialistModel llm.ChatModel
	VerifierModel   llm.ChatModel
}

// GraphBuilder handles the construction of the agent conversation graph.
type GraphBuilder struct {
	cfg    *Config
	engine *engine.Engine
}

// BuildGraph validates the config, constructs missing chat models, and
// returns a Runner over the compiled graph.
func BuildGraph(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.ConversationRepo == nil {
		return nil, fmt.Errorf("conversation repo is nil")
	}
	if cfg.Checkpoints == nil {
		return nil, fmt.Errorf("checkpoint store is nil")
	}
	if cfg.Approvals == nil {
		return nil, fmt.Errorf("approval store is nil")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is nil")
	}
	if cfg.Invoker == nil {
		return nil, fmt.Errorf("tool invoker is nil")
	}
	if cfg.Entities == nil {
		cfg.Entities = &entities.StaticService{}
	}

	if err := buildChatModels(ctx, &cfg); err != nil {
		return nil, err
	}

	builder := &GraphBuilder{
		cfg:    &cfg,
		engine: engine.New(cfg.Checkpoints, cfg.Run.RecursionLimit),
	}
	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}
	if err := builder.engine.Compile(); err != nil {
		return nil, fmt.Errorf("compile graph: %w", err)
	}

	logx.Debug().Msg("Conversation graph built successfully")
	return &graphRunner{cfg: &cfg, engine: builder.engine}, nil
}

// buildChatModels fills in Gemini-backed models for any slot the caller left
// nil, sharing one client across all three.
func buildChatModels(ctx context.Context, cfg *Config) error {
	if cfg.RouterModel != nil && cfg.SpecialistModel != nil &&
		(cfg.VerifierModel != nil || !cfg.Verifier.Enabled) {
		return nil
	}

	client, err := gemini.NewClient(ctx, cfg.APIKey, cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("create gemini client: %w", err)
	}

	if cfg.RouterModel == nil {
		cfg.RouterModel = gemini.NewChatModelWithClient(client, cfg.Router.Model,
			cfg.Router.Temperature, cfg.Router.MaxTokens)
	}
	if cfg.SpecialistModel == nil {
		cfg.SpecialistModel = gemini.NewChatModelWithClient(client, cfg.Specialist.Model,
			cfg.Specialist.Temperature, cfg.Specialist.MaxTokens)
	}
	if cfg.VerifierModel == nil && cfg.Verifier.Enabled {
		cfg.VerifierModel = gemini.NewChatModelWithClient(client, cfg.Verifier.Model,
			cfg.Verifier.Temperature, cfg.Verifier.MaxTokens)
	}
	return nil
}

func (b *GraphBuilder) addNodes() error {
	cfg := b.cfg
	loader := entities.NewLoader(cfg.Entities, cfg.Entity)

	nodeFns := map[string]engine.NodeFunc{
		nodes.NodeRouter: nodes.NewRouterNode(nodes.RouterDeps{
			Model:         cfg.RouterModel,
			ModelCfg:      cfg.Router,
			Conversations: cfg.ConversationRepo,
			RecentTurns:   cfg.Conversation.RecentTurns,
		}),
		nodes.NodeEntityLoader: nodes.NewEntityLoaderNode(nodes.EntityLoaderDeps{
			Loader:  loader,
			Service: cfg.Entities,
		}),
		nodes.NodeSpecialist: nodes.NewSpecialistNode(nodes.SpecialistDeps{
			Model:         cfg.SpecialistModel,
			ModelCfg:      cfg.Specialist,
			Registry:      cfg.Registry,
			Loader:        loader,
			Conversations: cfg.ConversationRepo,
			RecentTurns:   cfg.Conversation.RecentTurns,
			MaxToolCalls:  cfg.Conversation.Tools.MaxCalls,
			Filter:        cfg.Filter,
		}),
		nodes.NodeToolExecutor: nodes.NewToolExecutorNode(nodes.ToolExecutorDeps{
			Registry:       cfg.Registry,
			Validator:      validate.New(cfg.Validation),
			Approvals:      cfg.Approvals,
			Invoker:        cfg.Invoker,
			ValidationMode: cfg.Validation.Mode,
		}),
		nodes.NodeSynthesizer: nodes.NewSynthesizerNode(nodes.SynthesizerDeps{
			Verifier:    cfg.VerifierModel,
			VerifierCfg: cfg.Verifier,
		}),
	}

	for name, fn := range nodeFns {
		if err := b.engine.AddNode(name, fn); err != nil {
			return err
		}
	}
	return nil
}

func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{engine.Start, nodes.NodeRouter},
		{nodes.NodeRouter, nodes.NodeEntityLoader},
		{nodes.NodeEntityLoader, nodes.NodeSpecialist},
	}
	for _, edge := range edges {
		if err := b.engine.AddEdge(edge[0], edge[1]); err != nil {
			return err
		}
	}
	return nil
}

func (b *GraphBuilder) addBranches() error {
	if err := b.engine.AddBranch(nodes.NodeSpecialist, specialistBranch); err != nil {
		return err
	}
	if err := b.engine.AddBranch(nodes.NodeToolExecutor, toolExecutorBranch); err != nil {
		return err
	}
	return b.engine.AddBranch(nodes.NodeSynthesizer, synthesizerBranch)
}

// specialistBranch routes model output: errors terminate, pending tool calls
// go to execution, otherwise the draft goes to synthesis.
func specialistBranch(ctx context.Context, s *model.GraphState) string {
	switch {
	case s.Error != "":
		return nodes.NodeSynthesizer
	case s.Routing == nil:
		return nodes.NodeRouter
	case s.NextPendingToolCall() != nil:
		return nodes.NodeToolExecutor
	default:
		return nodes.NodeSynthesizer
	}
}

// toolExecutorBranch drains pending calls one at a time, detours through the
// entity loader after a mutation, and hands results back to the specialist.
func toolExecutorBranch(ctx context.Context, s *model.GraphState) string {
	switch {
	case s.Error != "":
		return nodes.NodeSynthesizer
	case s.NextPendingToolCall() != nil:
		return nodes.NodeToolExecutor
	case s.NeedsEntityRefresh:
		return nodes.NodeEntityLoader
	default:
		return nodes.NodeSpecialist
	}
}

// synthesizerBranch loops an incomplete answer back through the specialist;
// everything else ends the turn.
func synthesizerBranch(ctx context.Context, s *model.GraphState) string {
	if s.VerificationStatus == model.VerificationIncomplete &&
		s.VerificationRetryCount <= model.MaxVerificationRetries {
		return nodes.NodeSpecialist
	}
	return engine.End
}
