package tools

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/revpilot-ai/server/internal/llm"
	logx "github.com/revpilot-ai/server/pkg/logger"
)

// Tool categories derived at classification time.
const (
	CategoryRead  = "read"
	CategoryWrite = "write"
	CategoryBatch = "batch"
)

// ToolConfig is one registry entry. Classification is computed once at
// registration and the entry is immutable thereafter.
type ToolConfig struct {
	Name            string                        `yaml:"name"`
	Description     string                        `yaml:"description"`
	Provider        string                        `yaml:"provider"`
	Category        string                        `yaml:"category"`
	IsDangerous     bool                          `yaml:"-"`
	Tags            []string                      `yaml:"tags"`
	RequiresAccount bool                          `yaml:"requires_account"`
	Parameters      map[string]*llm.ParameterInfo `yaml:"parameters"`
}

// ToolDef converts the registry entry into the model-facing schema.
func (t *ToolConfig) ToolDef() llm.ToolDef {
	return llm.ToolDef{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  t.Parameters,
	}
}

func (t *ToolConfig) hasTag(tag string) bool {
	for _, have := range t.Tags {
		if strings.EqualFold(have, tag) {
			return true
		}
	}
	return false
}

// providerPrefixes are stripped from tool names before verb matching so
// classification is stable across providers.
var providerPrefixes = []string{"admob_", "ad_manager_", "gam_"}

// dangerousNamePatterns match mutating verbs anchored at the start or end of
// the stripped tool name.
var dangerousNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^create_`),
	regexp.MustCompile(`^update_`),
	regexp.MustCompile(`^delete_`),
	regexp.MustCompile(`^remove_`),
	regexp.MustCompile(`^set_`),
	regexp.MustCompile(`^add_`),
	regexp.MustCompile(`^archive_`),
	regexp.MustCompile(`^activate_`),
	regexp.MustCompile(`^deactivate_`),
	regexp.MustCompile(`^pause_`),
	regexp.MustCompile(`_stop$`),
	regexp.MustCompile(`_delete$`),
	regexp.MustCompile(`_update$`),
	regexp.MustCompile(`_create$`),
}

// batchPrefixes are unconditionally dangerous: partial-success semantics make
// batch operations hard to reason about regardless of verb.
var batchPrefixes = []string{"batch_", "bulk_"}

// descriptionVerbPattern is the secondary signal, scanned over the first
// portion of the description.
var descriptionVerbPattern = regexp.MustCompile(`\b(creates?|updates?|deletes?|removes?|modif(?:y|ies)|archives?|stops?|pauses?|overwrites?)\b`)

const descriptionScanLen = 100

// Classification is the result of danger analysis for one tool.
type Classification struct {
	IsDangerous bool
	Category    string
}

// StripProviderPrefix removes a known provider prefix from a tool name.
func StripProviderPrefix(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	for _, p := range providerPrefixes {
		if strings.HasPrefix(lower, p) {
			return strings.TrimPrefix(lower, p)
		}
	}
	return lower
}

// Classify determines dangerousness from the tool name and description. A
// tool is dangerous if either signal fires: false positives cost an extra
// approval prompt, false negatives cost an unguarded write.
func Classify(name, description string) Classification {
	stripped := StripProviderPrefix(name)

	for _, p := range batchPrefixes {
		if strings.HasPrefix(stripped, p) {
			return Classification{IsDangerous: true, Category: CategoryBatch}
		}
	}

	for _, re := range dangerousNamePatterns {
		if re.MatchString(stripped) {
			return Classification{IsDangerous: true, Category: CategoryWrite}
		}
	}

	desc := strings.ToLower(description)
	if len(desc) > descriptionScanLen {
		desc = desc[:descriptionScanLen]
	}
	if descriptionVerbPattern.MatchString(desc) {
		return Classification{IsDangerous: true, Category: CategoryWrite}
	}

	return Classification{IsDangerous: false, Category: CategoryRead}
}

// Registry holds metadata for every externally invocable tool. It is a
// process-wide shared cache; entries are classified once at load time.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*ToolConfig
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*ToolConfig)}
}

// Register classifies and stores one tool. Re-registering a name is an error;
// classification is never re-evaluated per call.
func (r *Registry) Register(cfg ToolConfig) error {
	cfg.Name = strings.TrimSpace(cfg.Name)
	if cfg.Name == "" {
		return fmt.Errorf("tool name is required")
	}

	cls := Classify(cfg.Name, cfg.Description)
	cfg.IsDangerous = cls.IsDangerous
	if cfg.Category == "" {
		cfg.Category = cls.Category
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[cfg.Name]; exists {
		return fmt.Errorf("tool %q already registered", cfg.Name)
	}
	r.tools[cfg.Name] = &cfg

	logx.Debug().
		Str("tool_name", cfg.Name).
		Str("provider", cfg.Provider).
		Bool("is_dangerous", cfg.IsDangerous).
		Str("category", cfg.Category).
		Msg("Registered tool")
	return nil
}

// Get returns the registry entry for a tool name.
func (r *Registry) Get(name string) (*ToolConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// IsDangerous reports the cached danger classification for a tool name.
// Unknown tools are treated as dangerous.
func (r *Registry) IsDangerous(name string) bool {
	if t, ok := r.Get(name); ok {
		return t.IsDangerous
	}
	return true
}

// List returns all entries sorted by name.
func (r *Registry) List() []*ToolConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ToolConfig, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ForProvider returns all entries for one provider, sorted by name.
func (r *Registry) ForProvider(provider string) []*ToolConfig {
	var out []*ToolConfig
	for _, t := range r.List() {
		if strings.EqualFold(t.Provider, provider) {
			out = append(out, t)
		}
	}
	return out
}

// SelectForRoute returns the tool subset bound for one (service, capability)
// pair, bounded against over-binding. Selection is a two-layer filter:
// exact tag intersection first, keyword matching as fallback, then relevance
// ranking against the query when the filtered set still exceeds maxBound.
func (r *Registry) SelectForRoute(service, capability, query string, maxBound, topK int) []*ToolConfig {
	if maxBound <= 0 {
		maxBound = 15
	}
	if topK <= 0 {
		topK = 5
	}

	all := r.List()

	// Layer 1: exact tag intersection beats fuzzy matching.
	var selected []*ToolConfig
	for _, t := range all {
		if t.hasTag(service) && t.hasTag(capability) {
			selected = append(selected, t)
		}
	}

	// Layer 2: keyword fallback against name + description.
	if len(selected) == 0 {
		needle := strings.ToLower(capability)
		for _, t := range all {
			haystack := strings.ToLower(t.Name + " " + t.Description)
			if strings.Contains(haystack, needle) {
				selected = append(selected, t)
			}
		}
	}

	if len(selected) <= maxBound {
		return selected
	}

	ranked := rankByRelevance(selected, query)
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	logx.Debug().
		Str("service", service).
		Str("capability", capability).
		Int("candidates", len(selected)).
		Int("bound", len(ranked)).
		Msg("Tool set exceeded bound; kept top ranked")
	return ranked
}

// rankByRelevance orders tools by token overlap with the query, preserving a
// stable order for equal scores.
func rankByRelevance(candidates []*ToolConfig, query string) []*ToolConfig {
	queryTokens := tokenize(query)

	type scored struct {
		tool  *ToolConfig
		score int
		pos   int
	}
	list := make([]scored, 0, len(candidates))
	for i, t := range candidates {
		toolTokens := tokenize(t.Name + " " + t.Description)
		score := 0
		for tok := range queryTokens {
			if toolTokens[tok] {
				score++
			}
		}
		list = append(list, scored{tool: t, score: score, pos: i})
	}

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		return list[i].pos < list[j].pos
	})

	out := make([]*ToolConfig, len(list))
	for i, s := range list {
		out[i] = s.tool
	}
	return out
}

func tokenize(s string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	}) {
		if len(tok) > 2 {
			out[tok] = true
		}
	}
	return out
}
