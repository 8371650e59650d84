package parsers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRouteResponse_WellFormed(t *testing.T) {
	out := ParseRouteResponse("THINKING: user asks about earnings\nROUTE: admob_reporting")
	assert.Equal(t, "user asks about earnings", out.Thinking)
	assert.Equal(t, "admob_reporting", out.Category)
}

func TestParseRouteResponse_SurroundingNoise(t *testing.T) {
	content := "Sure! Here is my analysis.\n\n  THINKING: mediation question  \nROUTE: `admob_mediation`\nHope that helps."
	out := ParseRouteResponse(content)
	assert.Equal(t, "mediation question", out.Thinking)
	assert.Equal(t, "admob_mediation", out.Category)
}

func TestParseRouteResponse_GarbageYieldsEmptyCategory(t *testing.T) {
	for _, content := range []string{
		"",
		"I cannot classify this",
		"ROUTE: 12345!",
		"ROUTE: " + strings.Repeat("x", 200),
	} {
		out := ParseRouteResponse(content)
		assert.Empty(t, out.Category, "content %q", content)
	}
}

func TestParseRouteResponse_FirstMarkerWins(t *testing.T) {
	out := ParseRouteResponse("ROUTE: general\nROUTE: admob_reporting")
	assert.Equal(t, "general", out.Category)
}

func TestParseRouteResponse_OversizedInput(t *testing.T) {
	content := strings.Repeat("a", 20*1024) + "\nROUTE: general"
	out := ParseRouteResponse(content)
	// the marker lies beyond the size cap and is ignored
	assert.Empty(t, out.Category)
}

func TestParseVerdictResponse(t *testing.T) {
	out := ParseVerdictResponse("VERDICT: incomplete\nHINT: the answer ignores the requested date range")
	assert.Equal(t, VerdictIncomplete, out.Verdict)
	assert.Equal(t, "the answer ignores the requested date range", out.Hint)

	out = ParseVerdictResponse("VERDICT: complete")
	assert.Equal(t, VerdictComplete, out.Verdict)
	assert.Empty(t, out.Hint)
}

func TestParseVerdictResponse_GarbageIsComplete(t *testing.T) {
	for _, content := range []string{"", "no idea", "VERDICT: maybe", "HINT: orphan hint"} {
		out := ParseVerdictResponse(content)
		assert.Equal(t, VerdictComplete, out.Verdict, "content %q", content)
		assert.Empty(t, out.Hint)
	}
}
