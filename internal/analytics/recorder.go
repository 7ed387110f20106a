package analytics

import (
	"context"

	"github.com/tencentyun-labs/cognigate/internal/types"
)

// RecentQueries adapts the Storage Backend's RecentQueryRecords to the
// heuristics.SessionQueryReader interface, so the Pattern Detector (C6)
// depends on the Analytics Recorder rather than directly on storage.
func (r *Recorder) RecentQueries(ctx context.Context, userEmail, sessionID string, n int) ([]types.QueryRecord, error) {
	return r.backend.RecentQueryRecords(ctx, userEmail, sessionID, n)
}
