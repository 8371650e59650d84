package parsers

import (
	"strings"

	logx "github.com/revpilot-ai/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen  = 16 * 1024
	maxCategoryLen = 64
)

// RouteResponse is the parsed two-line classification output.
type RouteResponse struct {
	Thinking string
	Category string
}

// ParseRouteResponse parses the strict router output format:
//
//	THINKING: <one line of rationale>
//	ROUTE: <category>
//
// It never fails hard: any unparseable input yields an empty Category, which
// the caller maps to the general fallback route. Lines may arrive in any
// order and with surrounding noise; only the markers are trusted.
func ParseRouteResponse(content string) RouteResponse {
	var out RouteResponse

	if content == "" {
		return out
	}
	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "route_parser").
			Int("orig_len", len(content)).
			Msg("router output truncated due to size limit")
		content = content[:maxContentLen]
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "THINKING:"):
			if out.Thinking == "" {
				out.Thinking = strings.TrimSpace(strings.TrimPrefix(line, "THINKING:"))
			}
		case strings.HasPrefix(line, "ROUTE:"):
			if out.Category == "" {
				out.Category = normalizeCategory(strings.TrimPrefix(line, "ROUTE:"))
			}
		}
	}

	return out
}

func normalizeCategory(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, "`\"'.")
	if len(s) > maxCategoryLen {
		return ""
	}
	// categories are snake_case identifiers; anything else is noise
	for _, r := range s {
		if (r < 'a' || r > 'z') && r != '_' {
			return ""
		}
	}
	return s
}
