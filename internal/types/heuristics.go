package types

// Intent is the classified purpose of a query, per §4.6.1.
type Intent string

const (
	IntentInfoSeek Intent = "INFO_SEEK"
	IntentAction   Intent = "ACTION"
	IntentDecision Intent = "DECISION"
	IntentVerify   Intent = "VERIFY"
)

// Urgency is the classified time-pressure of a query.
type Urgency string

const (
	UrgencyLow    Urgency = "LOW"
	UrgencyMedium Urgency = "MEDIUM"
	UrgencyHigh   Urgency = "HIGH"
	UrgencyUrgent Urgency = "URGENT"
)

// SessionPattern is the Pattern Detector's classification of a session's
// recent query shape, per §4.6.3.
type SessionPattern string

const (
	PatternExploratory             SessionPattern = "EXPLORATORY"
	PatternFocused                 SessionPattern = "FOCUSED"
	PatternTroubleshootEscalation  SessionPattern = "TROUBLESHOOTING_ESCALATION"
	PatternOnboarding              SessionPattern = "ONBOARDING"
	PatternMixed                   SessionPattern = "MIXED"
	PatternSingleQuery             SessionPattern = "SINGLE_QUERY"
)

// ComplexityResult is the output of the Complexity Analyzer (§4.6.1).
type ComplexityResult struct {
	ComplexityScore float64 `json:"complexity_score"`
	Intent          Intent  `json:"intent"`
	Specificity     float64 `json:"specificity"`
	Urgency         Urgency `json:"urgency"`
	MultiPart       bool    `json:"multi_part"`
}

// DepartmentInference is the output of the Department Context Analyzer
// (§4.6.2): a probability distribution over the tenant's department slugs.
type DepartmentInference struct {
	Primary           string             `json:"primary_department"`
	Distribution      map[string]float64 `json:"distribution"`
}

// PatternResult is the output of the Pattern Detector (§4.6.3).
type PatternResult struct {
	Pattern    SessionPattern    `json:"pattern"`
	Confidence float64           `json:"confidence"`
	QueryCount int               `json:"query_count"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// HeuristicsResult bundles the three stateless analyzers' outputs for a
// single query, produced concurrently with the cheap regex classifier in the
// RESOLVE step of the Cognitive Pipeline.
type HeuristicsResult struct {
	Complexity ComplexityResult
	Department DepartmentInference
}

// TrendReport is the output of the Trend & Anomaly Detector (§4.6.4).
type TrendReport struct {
	WindowHours      int                `json:"window_hours"`
	PeakHourByDept   map[string]int     `json:"peak_hour_by_department"`
	EmergingTopics   []string           `json:"emerging_topics"`
	Anomalies        []string           `json:"anomalies"`
}
