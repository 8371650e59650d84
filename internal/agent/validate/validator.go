// Package validate checks that entity identifiers embedded in a proposed tool
// call refer to entities the caller actually has access to. It is the
// execution-time half of the anti-hallucination defense; prompt grounding is
// the generation-time half.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/revpilot-ai/server/internal/agent/model"
	logx "github.com/revpilot-ai/server/pkg/logger"
)

// Validation modes.
const (
	ModeStrict = "strict"
	ModeSoft   = "soft"
)

// Entity id types recognised by the scanner.
const (
	TypePublisher = "publisher_id"
	TypeApp       = "app_id"
	TypeAdUnit    = "ad_unit_id"
	TypeNetwork   = "network_code"
)

const (
	defaultMaxDepth        = 5
	defaultMaxAlternatives = 5
)

var (
	publisherPattern = regexp.MustCompile(`^(pub-)?\d{16}$`)
	appPattern       = regexp.MustCompile(`^ca-app-pub-\d{16}~\d+$`)
	adUnitPattern    = regexp.MustCompile(`^ca-app-pub-\d{16}/\d+$`)
	networkPattern   = regexp.MustCompile(`^\d{8,12}$`)
)

// paramNameTypes maps argument-name conventions to entity types.
var paramNameTypes = map[string]string{
	"account_id":   TypePublisher,
	"publisher_id": TypePublisher,
	"app_id":       TypeApp,
	"ad_unit_id":   TypeAdUnit,
	"network_code": TypeNetwork,
}

// Alternative is one friendly-named valid entity suggested in an error.
type Alternative struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EntityError is one structured validation failure.
type EntityError struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	Param        string        `json:"param,omitempty"`
	Message      string        `json:"message"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
}

// Result is the outcome of validating one tool call.
type Result struct {
	OK       bool
	Message  string
	Errors   []EntityError
	Warnings []string
}

// Validator checks tool arguments against the caller's available entities.
type Validator struct {
	maxDepth        int
	maxAlternatives int
}

// New creates a validator from config, applying defaults for zero values.
func New(cfg model.ValidationConfig) *Validator {
	v := &Validator{maxDepth: cfg.MaxDepth, maxAlternatives: cfg.MaxAlternatives}
	if v.maxDepth <= 0 {
		v.maxDepth = defaultMaxDepth
	}
	if v.maxAlternatives <= 0 {
		v.maxAlternatives = defaultMaxAlternatives
	}
	return v
}

type scanContext struct {
	accounts []model.Account
	apps     []model.App
	result   *Result
}

// Validate scans all string-valued arguments (recursively, bounded depth) for
// values shaped like entity ids and checks membership against the caller's
// entities. In strict mode a mismatch blocks; in soft mode it only logs.
func (v *Validator) Validate(toolName string, args map[string]any, accounts []model.Account, apps []model.App, mode string) Result {
	sc := &scanContext{accounts: accounts, apps: apps, result: &Result{OK: true}}

	v.scanMap(sc, args, 0)

	for _, w := range sc.result.Warnings {
		logx.Warn().Str("tool_name", toolName).Str("warning", w).Msg("Entity validation warning")
	}

	if len(sc.result.Errors) == 0 {
		return *sc.result
	}

	if mode != ModeStrict {
		for _, e := range sc.result.Errors {
			logx.Warn().
				Str("tool_name", toolName).
				Str("entity_id", e.ID).
				Str("entity_type", e.Type).
				Msg("Entity validation failed (soft mode, not blocking)")
		}
		sc.result.Errors = nil
		sc.result.OK = true
		return *sc.result
	}

	sc.result.OK = false
	sc.result.Message = formatErrors(sc.result.Errors)
	return *sc.result
}

func (v *Validator) scanMap(sc *scanContext, m map[string]any, depth int) {
	if depth >= v.maxDepth {
		return
	}
	for key, val := range m {
		v.scanValue(sc, key, val, depth)
	}
}

func (v *Validator) scanValue(sc *scanContext, param string, val any, depth int) {
	switch t := val.(type) {
	case string:
		v.checkString(sc, param, t)
	case map[string]any:
		v.scanMap(sc, t, depth+1)
	case []any:
		if depth+1 >= v.maxDepth {
			return
		}
		for _, item := range t {
			v.scanValue(sc, param, item, depth+1)
		}
	}
}

// checkString classifies a candidate value by parameter-name convention
// first, then by pattern match against the raw value.
func (v *Validator) checkString(sc *scanContext, param, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}

	idType, byName := paramNameTypes[strings.ToLower(param)]
	if !byName {
		switch {
		case appPattern.MatchString(value):
			idType = TypeApp
		case adUnitPattern.MatchString(value):
			idType = TypeAdUnit
		case publisherPattern.MatchString(value) && strings.HasPrefix(value, "pub-"):
			idType = TypePublisher
		default:
			return
		}
	}

	switch idType {
	case TypePublisher:
		if !publisherPattern.MatchString(value) && !v.matchesAccountID(sc, value) {
			return // not id-shaped; free text in an id-named param is the model's problem
		}
		v.checkPublisher(sc, param, value)
	case TypeApp:
		if byName || appPattern.MatchString(value) {
			v.checkApp(sc, param, value)
		}
	case TypeAdUnit:
		v.checkAdUnit(sc, param, value)
	case TypeNetwork:
		if networkPattern.MatchString(value) {
			v.checkNetwork(sc, param, value)
		}
	}
}

func (v *Validator) matchesAccountID(sc *scanContext, value string) bool {
	for _, a := range sc.accounts {
		if a.ID == value {
			return true
		}
	}
	return false
}

// normalizePublisher strips the optional pub- prefix for comparison.
func normalizePublisher(id string) string {
	return strings.TrimPrefix(strings.TrimSpace(id), "pub-")
}

func (v *Validator) checkPublisher(sc *scanContext, param, value string) {
	want := normalizePublisher(value)
	for _, a := range sc.accounts {
		if a.ID == value || normalizePublisher(a.Identifier) == want {
			return
		}
	}
	sc.result.Errors = append(sc.result.Errors, EntityError{
		ID:      value,
		Type:    TypePublisher,
		Param:   param,
		Message: fmt.Sprintf("account %q is not available to you", value),
		Alternatives: v.accountAlternatives(sc, "admob"),
	})
}

func (v *Validator) checkApp(sc *scanContext, param, value string) {
	for _, app := range sc.apps {
		if app.ID == value || app.Identifier == value {
			return
		}
	}
	sc.result.Errors = append(sc.result.Errors, EntityError{
		ID:      value,
		Type:    TypeApp,
		Param:   param,
		Message: fmt.Sprintf("app %q is not available to you", value),
		Alternatives: v.appAlternatives(sc),
	})
}

// checkAdUnit validates by matching the unit's publisher prefix against known
// app identifiers. A unit that cannot be definitively matched (derived or
// composite id) is allowed through with a warning rather than blocked.
func (v *Validator) checkAdUnit(sc *scanContext, param, value string) {
	if !adUnitPattern.MatchString(value) {
		sc.result.Warnings = append(sc.result.Warnings,
			fmt.Sprintf("ad unit id %q has an unrecognised shape; allowing", value))
		return
	}
	prefix := value[:strings.Index(value, "/")]
	for _, app := range sc.apps {
		if idx := strings.Index(app.Identifier, "~"); idx > 0 && app.Identifier[:idx] == prefix {
			return
		}
	}
	sc.result.Warnings = append(sc.result.Warnings,
		fmt.Sprintf("ad unit id %q could not be matched to a known app; allowing", value))
}

func (v *Validator) checkNetwork(sc *scanContext, param, value string) {
	for _, a := range sc.accounts {
		if a.Type == "ad_manager" && a.Identifier == value {
			return
		}
	}
	sc.result.Errors = append(sc.result.Errors, EntityError{
		ID:      value,
		Type:    TypeNetwork,
		Param:   param,
		Message: fmt.Sprintf("network code %q is not available to you", value),
		Alternatives: v.accountAlternatives(sc, "ad_manager"),
	})
}

func (v *Validator) accountAlternatives(sc *scanContext, accountType string) []Alternative {
	var out []Alternative
	for _, a := range sc.accounts {
		if accountType != "" && a.Type != accountType {
			continue
		}
		out = append(out, Alternative{ID: a.Identifier, Name: a.Name})
		if len(out) >= v.maxAlternatives {
			break
		}
	}
	return out
}

func (v *Validator) appAlternatives(sc *scanContext) []Alternative {
	var out []Alternative
	for _, app := range sc.apps {
		out = append(out, Alternative{ID: app.Identifier, Name: app.Name})
		if len(out) >= v.maxAlternatives {
			break
		}
	}
	return out
}

func formatErrors(errs []EntityError) string {
	var b strings.Builder
	b.WriteString("entity validation failed: ")
	for i, e := range errs {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(e.Message)
		if len(e.Alternatives) > 0 {
			b.WriteString(" (did you mean: ")
			for j, alt := range e.Alternatives {
				if j > 0 {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "%s %q", alt.Name, alt.ID)
			}
			b.WriteString(")")
		}
	}
	return b.String()
}
