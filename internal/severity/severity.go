// Package severity assigns a severity tier to raw findings. Classification is
// a pure function of (platform, category, resolved query text) so identical
// inputs always produce identical tiers.
package severity

import "strings"

// Tier is the severity bucket of a finding.
type Tier string

const (
	High   Tier = "high"
	Medium Tier = "medium"
	Low    Tier = "low"
)

// highSeverityKeywords force a finding to High whenever one of them appears
// anywhere in the resolved query text, regardless of category.
var highSeverityKeywords = []string{
	"password", "secret", "key", "token", "credential", "auth", "ssh",
}

// Per-platform category tables. Matched case-insensitively against the exact
// category name.
var categoryTiers = map[string]map[string]Tier{
	"google": {
		"credentials":            High,
		"secrets":                High,
		"passwords":              High,
		"private keys":           High,
		"information disclosure": Low,
		"technology detection":   Low,
	},
	"github": {
		"credentials":   High,
		"secrets":       High,
		"api keys":      High,
		"tokens":        High,
		"information":   Low,
		"documentation": Low,
	},
}

// Classify maps a finding's platform, category and resolved dork text to a
// tier. Precedence: keyword override > category table > Medium default.
func Classify(platform, category, dorkText string) Tier {
	lowered := strings.ToLower(dorkText)
	for _, kw := range highSeverityKeywords {
		if strings.Contains(lowered, kw) {
			return High
		}
	}

	if table, ok := categoryTiers[strings.ToLower(platform)]; ok {
		if tier, ok := table[strings.ToLower(category)]; ok {
			return tier
		}
	}

	return Medium
}

// Valid reports whether s names a known tier. Used when humans re-grade
// results through the API.
func Valid(s string) bool {
	switch Tier(s) {
	case High, Medium, Low:
		return true
	}
	return false
}
