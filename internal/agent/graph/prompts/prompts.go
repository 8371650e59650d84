package prompts

import (
	_ "embed"
	"fmt"
	"strings"
	"time"
)

//go:embed template/router_prompt.txt
var routerSystemPrompt string

//go:embed template/specialist_prompt.txt
var specialistSystemPrompt string

//go:embed template/verifier_prompt.txt
var verifierPrompt string

// RenderRouterSystem renders the router classification prompt with the valid
// category list.
func RenderRouterSystem(categories []string) string {
	var b strings.Builder
	for _, c := range categories {
		b.WriteString("- ")
		b.WriteString(c)
		b.WriteString("\n")
	}
	return strings.NewReplacer(
		"{categories}", strings.TrimRight(b.String(), "\n"),
	).Replace(routerSystemPrompt)
}

// SpecialistPromptData carries the pieces assembled into the specialist
// system prompt.
type SpecialistPromptData struct {
	Service             string
	Capability          string
	Grounding           string
	ServiceInstructions string
	PriorSummary        string
	Now                 time.Time
}

// RenderSpecialistSystem renders the specialist system prompt.
func RenderSpecialistSystem(data SpecialistPromptData) string {
	now := data.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	priorSummary := ""
	if data.PriorSummary != "" {
		priorSummary = "Summary of earlier conversation:\n" + data.PriorSummary
	}
	return strings.NewReplacer(
		"{service}", data.Service,
		"{capability}", data.Capability,
		"{current_date}", now.Format("2006-01-02"),
		"{grounding}", data.Grounding,
		"{service_instructions}", serviceInstructions(data.Service),
		"{prior_summary}", priorSummary,
	).Replace(specialistSystemPrompt)
}

// RenderVerifierPrompt renders the quality-gate verification prompt.
func RenderVerifierPrompt(query, answer string, toolResults []string) string {
	results := "none"
	if len(toolResults) > 0 {
		var b strings.Builder
		for i, r := range toolResults {
			fmt.Fprintf(&b, "%d. %s\n", i+1, r)
		}
		results = strings.TrimRight(b.String(), "\n")
	}
	return strings.NewReplacer(
		"{query}", query,
		"{answer}", answer,
		"{tool_results}", results,
	).Replace(verifierPrompt)
}

func serviceInstructions(service string) string {
	switch service {
	case "admob":
		return "AdMob specifics: publisher ids look like pub-XXXXXXXXXXXXXXXX, app ids like " +
			"ca-app-pub-XXXXXXXXXXXXXXXX~YYYYYYYYYY, and ad unit ids like " +
			"ca-app-pub-XXXXXXXXXXXXXXXX/ZZZZZZZZZZ. Reports are per publisher account; " +
			"mediation groups control network waterfalls."
	case "ad_manager":
		return "Ad Manager specifics: networks are identified by numeric network codes. " +
			"Orders contain line items; inventory is organised as ad units in a hierarchy."
	default:
		return "You are a general assistant for monetization questions. If the user needs " +
			"platform data you do not have tools for, say which platform area they should ask about."
	}
}
