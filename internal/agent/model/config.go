package model

// ================ Config ================
type ConversationConfig struct {
	TTL         string `envconfig:"CONVERSATION_TTL" default:"15m"`
	RecentTurns int    `envconfig:"CONVERSATION_RECENT_TURNS" default:"6"`
	Tools       struct {
		MaxCalls int `envconfig:"CONVERSATION_TOOL_MAX_CALLS" default:"10"`
	}
}

type RouterModelConfig struct {
	Model       string  `envconfig:"ROUTER_MODEL" default:"gemini-2.0-flash"`
	MaxTokens   int     `envconfig:"ROUTER_MAX_TOKENS" default:"300"`
	Temperature float32 `envconfig:"ROUTER_TEMPERATURE" default:"0.1"`
}

type SpecialistModelConfig struct {
	Model       string  `envconfig:"SPECIALIST_MODEL" default:"gemini-2.5-pro"`
	MaxTokens   int     `envconfig:"SPECIALIST_MAX_TOKENS" default:"4000"`
	Temperature float32 `envconfig:"SPECIALIST_TEMPERATURE" default:"0.4"`
}

type VerifierModelConfig struct {
	Enabled     bool    `envconfig:"VERIFIER_ENABLED" default:"true"`
	Model       string  `envconfig:"VERIFIER_MODEL" default:"gemini-2.0-flash"`
	MaxTokens   int     `envconfig:"VERIFIER_MAX_TOKENS" default:"500"`
	Temperature float32 `envconfig:"VERIFIER_TEMPERATURE" default:"0.0"`
}

type ApprovalConfig struct {
	WaitTimeout string `envconfig:"APPROVAL_WAIT_TIMEOUT" default:"2m"`
	TTL         string `envconfig:"APPROVAL_TTL" default:"24h"`
}

type ValidationConfig struct {
	Mode            string `envconfig:"VALIDATION_MODE" default:"strict"`
	MaxDepth        int    `envconfig:"VALIDATION_MAX_DEPTH" default:"5"`
	MaxAlternatives int    `envconfig:"VALIDATION_MAX_ALTERNATIVES" default:"5"`
}

type EntityConfig struct {
	CacheTTL          string `envconfig:"ENTITY_CACHE_TTL" default:"5m"`
	MaxAppsPerAccount int    `envconfig:"ENTITY_MAX_APPS_PER_ACCOUNT" default:"10"`
}

type ToolFilterConfig struct {
	MaxBound int `envconfig:"TOOL_FILTER_MAX_BOUND" default:"15"`
	TopK     int `envconfig:"TOOL_FILTER_TOP_K" default:"5"`
}

type GraphRunConfig struct {
	RecursionLimit    int `envconfig:"GRAPH_RECURSION_LIMIT" default:"25"`
	CheckpointHistory int `envconfig:"GRAPH_CHECKPOINT_HISTORY" default:"50"`
}
