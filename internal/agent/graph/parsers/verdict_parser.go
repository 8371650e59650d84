package parsers

import "strings"

// Verdict values emitted by the verification prompt.
const (
	VerdictComplete   = "complete"
	VerdictIncomplete = "incomplete"
)

// VerdictResponse is the parsed two-line verification output.
type VerdictResponse struct {
	Verdict string
	Hint    string
}

// ParseVerdictResponse parses the strict verifier output format:
//
//	VERDICT: complete|incomplete
//	HINT: <one line, only when incomplete>
//
// Like the route parser it never fails hard: anything unrecognisable yields
// VerdictComplete, because the quality gate must never block a turn on its
// own malfunction.
func ParseVerdictResponse(content string) VerdictResponse {
	out := VerdictResponse{Verdict: VerdictComplete}

	if content == "" {
		return out
	}
	if len(content) > maxContentLen {
		content = content[:maxContentLen]
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "VERDICT:"):
			v := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "VERDICT:")))
			v = strings.Trim(v, "`\"'.")
			if v == VerdictIncomplete {
				out.Verdict = VerdictIncomplete
			}
		case strings.HasPrefix(line, "HINT:"):
			if out.Hint == "" {
				out.Hint = strings.TrimSpace(strings.TrimPrefix(line, "HINT:"))
			}
		}
	}

	if out.Verdict == VerdictComplete {
		out.Hint = ""
	}
	return out
}
