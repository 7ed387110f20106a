package heuristics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

func TestAnalyzeIntentPrecedence(t *testing.T) {
	r := Analyze("Can you confirm this is correct, or should I verify it myself?")
	assert.Equal(t, types.IntentVerify, r.Intent)
}

func TestAnalyzeUrgencyPrecedence(t *testing.T) {
	r := Analyze("This is urgent, I need it ASAP but it can also wait this week.")
	assert.Equal(t, types.UrgencyUrgent, r.Urgency)
}

func TestAnalyzeMultiPart(t *testing.T) {
	r := Analyze("What time does it open? And also, is parking available?")
	assert.True(t, r.MultiPart)
}

func TestAnalyzeResetPasswordComplexityBand(t *testing.T) {
	r := Analyze("How do I reset my password ASAP?")
	assert.Equal(t, types.IntentAction, r.Intent)
	assert.Equal(t, types.UrgencyUrgent, r.Urgency)
	assert.False(t, r.MultiPart)
	assert.GreaterOrEqual(t, r.ComplexityScore, 0.1)
	assert.LessOrEqual(t, r.ComplexityScore, 0.35)
}

func TestInferDepartmentFallsBackToGeneral(t *testing.T) {
	inf := Infer("tell me a joke", nil, DepartmentSignals)
	assert.Equal(t, types.GeneralDepartment, inf.Primary)
}

func TestInferDepartmentMatchesIT(t *testing.T) {
	inf := Infer("my vpn login keeps failing on my laptop", nil, DepartmentSignals)
	assert.Equal(t, "it", inf.Primary)
}

type fakeReader struct {
	records []types.QueryRecord
}

func (f fakeReader) RecentQueries(ctx context.Context, userEmail, sessionID string, n int) ([]types.QueryRecord, error) {
	return f.records, nil
}

func TestPatternDetectorSingleQuery(t *testing.T) {
	d := NewPatternDetector(fakeReader{records: []types.QueryRecord{{}}})
	result, err := d.Detect(context.Background(), "a@example.com", "s1")
	assert.NoError(t, err)
	assert.Equal(t, types.PatternSingleQuery, result.Pattern)
}

func TestPatternDetectorEscalation(t *testing.T) {
	records := []types.QueryRecord{
		{FrustrationSignals: 1}, {FrustrationSignals: 2}, {},
	}
	d := NewPatternDetector(fakeReader{records: records})
	result, err := d.Detect(context.Background(), "a@example.com", "s1")
	assert.NoError(t, err)
	assert.Equal(t, types.PatternTroubleshootEscalation, result.Pattern)
}
