// Package analysis defines the data model exchanged with the Analysis
// Service: requests, results, the composite health index, and policy
// findings. Results are produced once per trigger and never merged across
// requests; every PR update gets a fresh full result.
package analysis

// DiffRequest asks for analysis of the change between two refs.
type DiffRequest struct {
	URL  string `json:"url"`
	Base string `json:"base"`
	Head string `json:"head"`
}

// RepositoryRequest asks for analysis of a whole repository at a ref.
type RepositoryRequest struct {
	URL string `json:"url"`
	Ref string `json:"ref"`
}

// Severity classifies violations and recommendation priorities.
type Severity string

const (
	SeverityBlocking Severity = "blocking"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// HealthIndex is the weighted composite of the ecological, economic and
// quality sub-scores, each on a 0-100 scale.
type HealthIndex struct {
	Eco     float64 `json:"eco_score"`
	Econ    float64 `json:"econ_score"`
	Quality float64 `json:"quality_score"`
	Total   float64 `json:"total"`
}

// LetterGrade maps the composite total to an A-F grade.
func (h HealthIndex) LetterGrade() string {
	switch {
	case h.Total >= 90:
		return "A"
	case h.Total >= 80:
		return "B"
	case h.Total >= 70:
		return "C"
	case h.Total >= 60:
		return "D"
	default:
		return "F"
	}
}

// PolicyViolation is a policy finding attached to a result.
type PolicyViolation struct {
	Entity      string   `json:"entity_id,omitempty"`
	Policy      string   `json:"policy"`
	Severity    Severity `json:"severity"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Recommendation is a ranked improvement suggestion.
type Recommendation struct {
	Action     string   `json:"action"`
	Reason     string   `json:"reason,omitempty"`
	Priority   Severity `json:"priority"`
	Confidence float64  `json:"confidence,omitempty"`
}

// Result is the full analysis outcome for one trigger. Immutable once
// produced.
type Result struct {
	Health          HealthIndex       `json:"health"`
	Violations      []PolicyViolation `json:"violations"`
	Recommendations []Recommendation  `json:"recommendations"`
}

// Passed reports whether the result carries no blocking violations; used by
// check-run conclusions and regulator-mode framing.
func (r *Result) Passed() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlocking {
			return false
		}
	}
	return true
}
