package report

import (
	"strings"

	"github.com/sustainabot/sustainabot/internal/domain/analysis"
)

// ruleNamespace prefixes every SARIF ruleId derived from a policy name.
const ruleNamespace = "sustainabot/"

// SARIF document types for the 2.1.0 schema, limited to the fields this
// service emits.

type SARIFLog struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []SARIFRun `json:"runs"`
}

type SARIFRun struct {
	Tool    SARIFTool     `json:"tool"`
	Results []SARIFResult `json:"results"`
}

type SARIFTool struct {
	Driver SARIFDriver `json:"driver"`
}

type SARIFDriver struct {
	Name           string      `json:"name"`
	InformationURI string      `json:"informationUri,omitempty"`
	Rules          []SARIFRule `json:"rules"`
}

type SARIFRule struct {
	ID               string       `json:"id"`
	ShortDescription SARIFMessage `json:"shortDescription"`
}

type SARIFResult struct {
	RuleID  string       `json:"ruleId"`
	Level   string       `json:"level"`
	Message SARIFMessage `json:"message"`
}

type SARIFMessage struct {
	Text string `json:"text"`
}

// RuleID derives a deterministic SARIF rule id from a policy name:
// underscores become hyphens under a fixed namespace.
func RuleID(policy string) string {
	return ruleNamespace + strings.ReplaceAll(policy, "_", "-")
}

// sarifLevel maps violation severity to the SARIF level vocabulary.
// Blocking violations are errors; everything else is a warning.
func sarifLevel(s analysis.Severity) string {
	if s == analysis.SeverityBlocking {
		return "error"
	}
	return "warning"
}

// SARIF renders an analysis result as a SARIF 2.1.0 log.
func SARIF(result *analysis.Result) SARIFLog {
	rules := make([]SARIFRule, 0, len(result.Violations))
	seen := make(map[string]bool)
	results := make([]SARIFResult, 0, len(result.Violations))

	for _, v := range result.Violations {
		id := RuleID(v.Policy)
		if !seen[id] {
			seen[id] = true
			rules = append(rules, SARIFRule{
				ID:               id,
				ShortDescription: SARIFMessage{Text: v.Policy},
			})
		}
		results = append(results, SARIFResult{
			RuleID:  id,
			Level:   sarifLevel(v.Severity),
			Message: SARIFMessage{Text: v.Message},
		})
	}

	return SARIFLog{
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json",
		Version: "2.1.0",
		Runs: []SARIFRun{
			{
				Tool: SARIFTool{
					Driver: SARIFDriver{
						Name:  "sustainabot",
						Rules: rules,
					},
				},
				Results: results,
			},
		},
	}
}
