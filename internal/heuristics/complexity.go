package heuristics

import (
	"regexp"
	"strings"

	"github.com/tencentyun-labs/cognigate/internal/types"
)

var (
	sentenceSplit  = regexp.MustCompile(`[.!?]+`)
	conditionalRe  = regexp.MustCompile(`(?i)\b(if|unless|in case|provided that|assuming)\b`)
	multiCriteriaRe = regexp.MustCompile(`(?i)\b(both|either|whichever|depending on)\b`)
	codeRe         = regexp.MustCompile(`[A-Z]{2,}-?\d+`)
	numberRe       = regexp.MustCompile(`\d+`)
	properNounRe   = regexp.MustCompile(`\b[A-Z][a-z]+\b`)
	multiPartConnectorRe = regexp.MustCompile(`(?i)\b(and also|additionally|as well as)\b`)
	listMarkerRe   = regexp.MustCompile(`(?m)^\s*(\d+[.)]|[-*•])\s`)
)

// intentPatterns is evaluated in precedence order VERIFY > DECISION > ACTION
// > INFO_SEEK; the first matching entry wins (§4.6.1).
var intentPatterns = []struct {
	intent  types.Intent
	pattern *regexp.Regexp
}{
	{types.IntentVerify, regexp.MustCompile(`(?i)\b(is it true|can you confirm|verify|double[- ]check|correct me if)\b`)},
	{types.IntentDecision, regexp.MustCompile(`(?i)\b(should I|which (is|one)|what('s| is) better|recommend|vs\.?|versus)\b`)},
	{types.IntentAction, regexp.MustCompile(`(?i)\b(please|can you|could you|set up|configure|create|cancel|update|reset|install)\b`)},
}

var urgencyPatterns = []struct {
	urgency types.Urgency
	pattern *regexp.Regexp
}{
	{types.UrgencyUrgent, regexp.MustCompile(`(?i)\b(asap|immediately|urgent|emergency|right now|critical)\b`)},
	{types.UrgencyHigh, regexp.MustCompile(`(?i)\b(soon|today|high priority|blocking|can't wait)\b`)},
	{types.UrgencyMedium, regexp.MustCompile(`(?i)\b(this week|when you can|fairly soon)\b`)},
}

// Analyze implements the Complexity Analyzer of §4.6.1: a pure function of
// the query text, bounded to [0,1] scores with documented precedence rules
// for intent and urgency classification.
func Analyze(text string) types.ComplexityResult {
	sentences := nonEmptyParts(sentenceSplit.Split(text, -1))
	words := strings.Fields(text)

	// baseComplexity keeps even a single short sentence off the floor: a
	// one-sentence query is never "zero complexity" to answer, it just
	// doesn't compound with conditionals/criteria/length the way a longer
	// one does (§8 scenario 3 requires complexity ∈ [0.1, 0.35] for a
	// 7-word, single-sentence ACTION query).
	const baseComplexity = 0.1
	score := baseComplexity
	score += clamp01(float64(len(sentences)-1) * 0.1)
	if conditionalRe.MatchString(text) {
		score += 0.2
	}
	if multiCriteriaRe.MatchString(text) {
		score += 0.2
	}
	score += clamp01(float64(len(words)) / 200.0 * 0.3)
	score = clamp01(score)

	intent := types.IntentInfoSeek
	for _, p := range intentPatterns {
		if p.pattern.MatchString(text) {
			intent = p.intent
			break
		}
	}

	specificity := 0.0
	specificity += clamp01(float64(len(codeRe.FindAllString(text, -1))) * 0.2)
	specificity += clamp01(float64(len(numberRe.FindAllString(text, -1))) * 0.1)
	specificity += clamp01(float64(len(properNounRe.FindAllString(text, -1))) * 0.1)
	specificity = clamp01(specificity)

	urgency := types.UrgencyLow
	for _, p := range urgencyPatterns {
		if p.pattern.MatchString(text) {
			urgency = p.urgency
			break
		}
	}

	multiPart := strings.Count(text, "?") > 1 ||
		multiPartConnectorRe.MatchString(text) ||
		listMarkerRe.MatchString(text)

	return types.ComplexityResult{
		ComplexityScore: score,
		Intent:          intent,
		Specificity:     specificity,
		Urgency:         urgency,
		MultiPart:       multiPart,
	}
}

func nonEmptyParts(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
