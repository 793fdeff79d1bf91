package categorize

import (
	"regexp"
	"strings"

	"kharcha/internal/core"
)

// patternRule associates a category name with a keyword pattern.
type patternRule struct {
	category string
	pattern  *regexp.Regexp
}

// fallbackRules is an ordered table evaluated first-match-wins. The order
// is part of the contract: it keeps fallback categorization deterministic,
// so new rules go at the end and existing ones never move.
var fallbackRules = []patternRule{
	{"Food", regexp.MustCompile(`(?i)\b(lunch|dinner|breakfast|brunch|snack|food|meal|restaurant|cafe|coffee|tea|chai|pizza|burger|biryani)\b`)},
	{"Groceries", regexp.MustCompile(`(?i)\b(grocery|groceries|vegetable|vegetables|fruit|fruits|milk|supermarket|kirana)\b`)},
	{"Transport", regexp.MustCompile(`(?i)\b(uber|ola|taxi|cab|auto|bus|train|metro|fuel|petrol|diesel|parking|toll)\b`)},
	{"Shopping", regexp.MustCompile(`(?i)\b(shopping|clothes|clothing|shoes|amazon|flipkart|dress|shirt|jeans)\b`)},
	{"Entertainment", regexp.MustCompile(`(?i)\b(movie|cinema|netflix|spotify|game|games|concert|show)\b`)},
	{"Bills", regexp.MustCompile(`(?i)\b(bill|bills|electricity|water|internet|wifi|recharge|rent|subscription)\b`)},
	{"Health", regexp.MustCompile(`(?i)\b(doctor|medicine|medicines|pharmacy|hospital|clinic|gym)\b`)},
	{"Travel", regexp.MustCompile(`(?i)\b(flight|hotel|hostel|ticket|tickets|visa|booking|airbnb)\b`)},
}

// fallbackResolve is the deterministic categorization path: the fixed
// pattern table first, then a substring match against the live category
// names, then "Other" at the lowest confidence.
func fallbackResolve(text string, names []string) (string, core.Provenance) {
	for _, rule := range fallbackRules {
		if rule.pattern.MatchString(text) {
			return rule.category, core.Provenance{Method: MethodPattern, Confidence: confidencePattern}
		}
	}

	lower := strings.ToLower(text)
	for _, name := range names {
		if name == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(name)) {
			return name, core.Provenance{Method: MethodName, Confidence: confidenceName}
		}
	}

	return fallbackCategory, core.Provenance{Method: MethodDefault, Confidence: confidenceDefault}
}
