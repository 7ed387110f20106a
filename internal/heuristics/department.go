package heuristics

import (
	"strings"

	"github.com/tencentyun-labs/cognigate/internal/types"
)

// DepartmentSignals maps a department slug to the keyword set that counts as
// a "matched signal" for that department, per §4.6.2. Tenants may override
// this via their own catalog; this is the default set shipped alongside
// types.DefaultDepartments.
var DepartmentSignals = map[string][]string{
	"it":         {"password", "vpn", "laptop", "network", "server", "login", "software", "hardware", "wifi"},
	"sales":      {"quote", "deal", "lead", "pipeline", "customer", "discount", "contract", "crm"},
	"support":    {"ticket", "issue", "bug", "broken", "error", "help", "troubleshoot", "down"},
	"finance":    {"invoice", "budget", "expense", "payroll", "reimbursement", "tax", "payment"},
	"hr":         {"vacation", "leave", "benefits", "onboarding", "payroll", "policy", "hiring"},
	"legal":      {"contract", "compliance", "nda", "liability", "terms", "regulation"},
	"operations": {"shipment", "inventory", "logistics", "supply", "warehouse", "vendor"},
}

// Infer implements the Department Context Analyzer of §4.6.2: for each
// configured department, score = matched keywords / department signal
// count, then normalize to a probability distribution. primary is "general"
// if the max score is below 0.2.
func Infer(text string, keywords []string, signals map[string][]string) types.DepartmentInference {
	if signals == nil {
		signals = DepartmentSignals
	}
	lowerText := strings.ToLower(text)
	terms := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		terms[strings.ToLower(k)] = true
	}

	raw := make(map[string]float64, len(signals))
	total := 0.0
	for dept, sigs := range signals {
		if len(sigs) == 0 {
			continue
		}
		matched := 0
		for _, s := range sigs {
			if terms[s] || strings.Contains(lowerText, s) {
				matched++
			}
		}
		score := float64(matched) / float64(len(sigs))
		raw[dept] = score
		total += score
	}

	dist := make(map[string]float64, len(raw))
	if total == 0 {
		return types.DepartmentInference{Primary: types.GeneralDepartment, Distribution: dist}
	}
	primary := types.GeneralDepartment
	maxScore := 0.0
	for dept, score := range raw {
		dist[dept] = score / total
		if dist[dept] > maxScore {
			maxScore = dist[dept]
			primary = dept
		}
	}
	if maxScore < 0.2 {
		primary = types.GeneralDepartment
	}
	return types.DepartmentInference{Primary: primary, Distribution: dist}
}
