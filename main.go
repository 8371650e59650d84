package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/revpilot-ai/server/internal/agent/approval"
	"github.com/revpilot-ai/server/internal/agent/entities"
	"github.com/revpilot-ai/server/internal/agent/graph"
	"github.com/revpilot-ai/server/internal/agent/model"
	"github.com/revpilot-ai/server/internal/agent/repo"
	"github.com/revpilot-ai/server/internal/agent/tools"
	"github.com/revpilot-ai/server/internal/core"
	logx "github.com/revpilot-ai/server/pkg/logger"
	pkgredis "github.com/revpilot-ai/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the agent example,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	// Infrastructure
	Redis pkgredis.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Router       model.RouterModelConfig
	Specialist   model.SpecialistModelConfig
	Verifier     model.VerifierModelConfig
	Conversation model.ConversationConfig
	Approval     model.ApprovalConfig
	Validation   model.ValidationConfig
	Entity       model.EntityConfig
	Filter       model.ToolFilterConfig
	Run          model.GraphRunConfig
}

func main() {
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}
	logx.Init(logx.LoggerOpts{
		Environment: core.ParseEnvironment(envCfg.Environment),
		Level:       envCfg.LogLevel,
	})

	rdb, err := envCfg.Redis.New()
	if err != nil {
		log.Fatalf("Failed to initialise Redis client: %v", err)
	}
	defer rdb.Close()
	fmt.Println("Connected to Redis successfully")

	conversationTTL := mustDuration("CONVERSATION_TTL", envCfg.Conversation.TTL)
	approvalTTL := mustDuration("APPROVAL_TTL", envCfg.Approval.TTL)
	approvalWait := mustDuration("APPROVAL_WAIT_TIMEOUT", envCfg.Approval.WaitTimeout)
	entityCacheTTL := mustDuration("ENTITY_CACHE_TTL", envCfg.Entity.CacheTTL)

	// Tool surface: the built-in mock catalogs stand in for real AdMob and
	// Ad Manager connectors.
	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry); err != nil {
		log.Fatalf("Failed to register builtin tools: %v", err)
	}

	entityService := entities.NewCachedService(
		&entities.StaticService{Snapshot: entities.Snapshot{
			Accounts: tools.MockAccounts,
			Apps:     tools.MockApps,
		}},
		rdb, entityCacheTTL,
	)

	approvals := approval.NewRedisStore(rdb, approvalTTL)

	runner, err := graph.BuildGraph(ctx, graph.Config{
		APIKey:           envCfg.APIKey,
		BaseURL:          envCfg.BaseURL,
		Router:           envCfg.Router,
		Specialist:       envCfg.Specialist,
		Verifier:         envCfg.Verifier,
		Conversation:     envCfg.Conversation,
		Validation:       envCfg.Validation,
		Entity:           envCfg.Entity,
		Filter:           envCfg.Filter,
		Run:              envCfg.Run,
		ConversationRepo: repo.NewRedisConversationRepository(rdb, conversationTTL),
		Checkpoints:      repo.NewRedisCheckpointStore(rdb, approvalTTL, envCfg.Run.CheckpointHistory),
		Approvals:        approvals,
		Entities:         entityService,
		Registry:         registry,
		Invoker:          tools.NewMockInvoker(),
	})
	if err != nil {
		log.Fatalf("Failed to build graph: %v", err)
	}

	threadID := "demo-thread-001"
	input := func(query string) model.QueryInput {
		return model.QueryInput{
			ThreadID:       threadID,
			Query:          query,
			UserID:         "user-001",
			OrganizationID: "org-001",
			ContextMode:    envCfg.Validation.Mode,
		}
	}

	queries := []struct {
		description string
		query       string
	}{
		{
			description: "Safe read: list connected accounts",
			query:       "Which ad accounts do I have connected?",
		},
		{
			description: "Reporting question",
			query:       "How did my AdMob earnings look over the last 7 days?",
		},
		{
			description: "Dangerous write: create an ad unit (requires approval)",
			query:       "Create a new rewarded ad unit called \"Bonus Coins\" in my Peak Puzzle iOS app.",
		},
	}

	for i, q := range queries {
		fmt.Printf("\nTest %d: %s\n", i+1, q.description)
		fmt.Printf("Query: %q\n", q.query)

		result, err := runner.Invoke(ctx, input(q.query))
		if err != nil {
			log.Fatalf("Failed to invoke graph for test %d: %v", i+1, err)
		}

		if result.Suspended {
			result = approveAndResume(ctx, runner, approvals, result, approvalWait)
		}
		fmt.Printf("Response %d: %s\n", i+1, result.Response)
		fmt.Printf("Usage: %d prompt / %d completion tokens\n",
			result.Usage.PromptTokens, result.Usage.CompletionTokens)
		fmt.Println("------------------------------------------------")

		time.Sleep(500 * time.Millisecond)
	}

	fmt.Println("All graph tests completed successfully!")
}

// approveAndResume plays both sides of the approval hand-off: one goroutine
// resolves the request (standing in for a human UI), while the main flow
// blocks on the store's wait and resumes with whatever decision arrives. A
// wait that times out resumes as a denial.
func approveAndResume(ctx context.Context, runner graph.Runner, approvals approval.Store, suspended *graph.TurnResult, wait time.Duration) *graph.TurnResult {
	req := suspended.Approval
	fmt.Printf("Approval required for %s (approval id %s)\n", req.ToolName, req.ApprovalID)
	fmt.Printf("Arguments: %v\n", req.ToolArgs)
	fmt.Println("Approving...")

	go func() {
		if err := runner.ResolveApproval(ctx, req.ApprovalID, true, nil); err != nil {
			logx.Error().Err(err).Str("approval_id", req.ApprovalID).Msg("Failed to resolve approval")
		}
	}()

	decision, err := approvals.Wait(ctx, req.ApprovalID, wait)
	if err != nil {
		log.Fatalf("Failed waiting for approval decision: %v", err)
	}
	result, err := runner.Resume(ctx, suspended.ThreadID, *decision)
	if err != nil {
		log.Fatalf("Failed to resume after approval: %v", err)
	}
	return result
}

func mustDuration(name, value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Fatalf("Invalid %s '%s': %v", name, value, err)
	}
	return d
}
