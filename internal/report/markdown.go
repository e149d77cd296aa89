// Package report renders analysis results as Markdown comments and SARIF
// documents. Rendering is pure: the same result and mode always produce the
// same output.
package report

import (
	"fmt"
	"strings"

	"github.com/sustainabot/sustainabot/internal/domain/analysis"
)

// Mode controls how much of the report is shown and how it is framed.
type Mode string

const (
	// ModeAdvisor shows scores, violations and up to 5 recommendations.
	ModeAdvisor Mode = "advisor"
	// ModeConsultant shows the full picture with up to 10 recommendations.
	ModeConsultant Mode = "consultant"
	// ModeRegulator suppresses recommendations in favour of pass/fail framing.
	ModeRegulator Mode = "regulator"
)

// ParseMode converts a config string to a Mode, defaulting to advisor.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeConsultant, ModeRegulator:
		return Mode(s)
	default:
		return ModeAdvisor
	}
}

// recommendationCap returns how many recommendations the mode shows.
func recommendationCap(mode Mode) int {
	switch mode {
	case ModeConsultant:
		return 10
	case ModeRegulator:
		return 0
	default:
		return 5
	}
}

var severityMarkers = map[analysis.Severity]string{
	analysis.SeverityBlocking: "🚫",
	analysis.SeverityHigh:     "🔴",
	analysis.SeverityMedium:   "🟠",
	analysis.SeverityLow:      "🟡",
	analysis.SeverityInfo:     "ℹ️",
}

// Comment renders an analysis result as a Markdown PR/MR comment.
func Comment(result *analysis.Result, mode Mode) string {
	var b strings.Builder

	h := result.Health
	fmt.Fprintf(&b, "## 🌱 Sustainability Report\n\n")
	fmt.Fprintf(&b, "**Health Index: %.1f/100 (%s)**\n\n", h.Total, h.LetterGrade())
	fmt.Fprintf(&b, "| Dimension | Score |\n|---|---|\n")
	fmt.Fprintf(&b, "| Ecological | %.1f |\n", h.Eco)
	fmt.Fprintf(&b, "| Economic | %.1f |\n", h.Econ)
	fmt.Fprintf(&b, "| Quality | %.1f |\n", h.Quality)

	// Violations render unconditionally regardless of mode.
	if len(result.Violations) > 0 {
		fmt.Fprintf(&b, "\n### Policy Violations\n\n")
		for _, v := range result.Violations {
			marker := severityMarkers[v.Severity]
			if marker == "" {
				marker = "•"
			}
			fmt.Fprintf(&b, "- %s **%s** `%s`: %s\n", marker, v.Severity, v.Policy, v.Message)
			for _, s := range v.Suggestions {
				fmt.Fprintf(&b, "  - %s\n", s)
			}
		}
	}

	if mode == ModeRegulator {
		fmt.Fprintf(&b, "\n### Verdict\n\n")
		if result.Passed() {
			fmt.Fprintf(&b, "✅ **PASS** — no blocking policy violations.\n")
		} else {
			fmt.Fprintf(&b, "❌ **FAIL** — blocking policy violations must be resolved before merge.\n")
		}
	} else if capN := recommendationCap(mode); capN > 0 && len(result.Recommendations) > 0 {
		recs := result.Recommendations
		if len(recs) > capN {
			recs = recs[:capN]
		}
		fmt.Fprintf(&b, "\n### Recommendations\n\n")
		for i, r := range recs {
			fmt.Fprintf(&b, "%d. **%s**", i+1, r.Action)
			if r.Reason != "" {
				fmt.Fprintf(&b, " — %s", r.Reason)
			}
			fmt.Fprintf(&b, "\n")
		}
	}

	fmt.Fprintf(&b, "\n---\n*Posted by sustainabot in %s mode.*\n", mode)
	return b.String()
}
