// Package fallback synthesizes rule-based substitute responses for when the
// remote AI service is unavailable, disabled, or rate limited. Classification
// is a fixed-priority keyword table: the first category whose keyword set
// matches the prompt wins, and a generic template covers everything else.
// Synthesis is deterministic, side-effect free, and always returns text.
package fallback

import "strings"

// Category identifies which rule produced the synthesized response.
type Category string

const (
	CategoryRouting      Category = "route-optimization"
	CategoryLoadMatching Category = "load-matching"
	CategoryDocument     Category = "document-generation"
	CategoryAnalysis     Category = "analysis-reporting"
	CategoryGeneric      Category = "generic"
)

type rule struct {
	category Category
	keywords []string
	template string
}

// rules is evaluated in order; earlier categories take priority when a prompt
// matches several keyword sets.
var rules = []rule{
	{
		category: CategoryRouting,
		keywords: []string{"route", "routing", "optimize", "optimization", "fuel", "mileage", "deadhead"},
		template: `Route guidance (generated locally, AI service unavailable):
- Prefer the lowest-mileage lane that keeps required rest stops intact.
- Consolidate stops within the same metro to cut deadhead miles.
- Re-check fuel prices along the corridor; divert only when savings exceed 3%.
- Flag any stop with a delivery window under 2 hours for dispatcher review.`,
	},
	{
		category: CategoryLoadMatching,
		keywords: []string{"load", "match", "carrier", "capacity", "truck", "lane", "freight"},
		template: `Load matching guidance (generated locally, AI service unavailable):
- Match by equipment type first, then by home-base proximity to the origin.
- Prefer carriers with an on-time score of 95% or better on this lane.
- Hold high-value loads for carriers with verified insurance on file.
- Escalate unmatched loads older than 4 hours to the dispatch board.`,
	},
	{
		category: CategoryDocument,
		keywords: []string{"document", "bol", "invoice", "contract", "agreement", "rate confirmation", "generate"},
		template: `Document checklist (generated locally, AI service unavailable):
- Use the standard template for this document type; do not improvise terms.
- Verify shipper, consignee, and carrier legal names against the system record.
- Include load reference, agreed rate, and accessorial terms verbatim.
- Route the draft to a broker for manual review before sending.`,
	},
	{
		category: CategoryAnalysis,
		keywords: []string{"analyze", "analysis", "report", "summary", "trend", "score", "forecast"},
		template: `Analysis summary (generated locally, AI service unavailable):
- Automated analysis is degraded; figures below come from rule-of-thumb heuristics.
- Compare this period against the trailing 4-week average before acting.
- Treat any deviation beyond 15% as worth a manual data pull.
- Re-run this request once the AI service recovers for a full narrative.`,
	},
}

const genericTemplate = `The AI assistant is temporarily unavailable. This is an automated interim response:
- Your request was received and no action has been lost.
- For time-critical freight decisions, contact your dispatcher directly.
- Retry this request in a few minutes for a full AI-generated answer.`

// Classify returns the category whose keyword set first matches prompt.
// Matching is a case-insensitive substring check.
func Classify(prompt string) Category {
	lowered := strings.ToLower(prompt)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lowered, kw) {
				return r.category
			}
		}
	}
	return CategoryGeneric
}

// Synthesize produces the substitute response for prompt. It never fails and
// never returns empty content.
func Synthesize(prompt string) (Category, string) {
	category := Classify(prompt)
	for _, r := range rules {
		if r.category == category {
			return category, r.template
		}
	}
	return CategoryGeneric, genericTemplate
}
