package analytics

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/tencentyun-labs/cognigate/internal/heuristics"
	"github.com/tencentyun-labs/cognigate/internal/logger"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

// TrendScheduler runs the Trend & Anomaly Detector (§4.6.4) on an hourly
// cron schedule per tenant, grounded on the teacher's go.mod inclusion of
// robfig/cron for periodic background jobs distinct from the per-request
// worker pools used elsewhere.
type TrendScheduler struct {
	cron    *cron.Cron
	reader  func(ctx context.Context, tenantID string, windowHours int) (recent, historical []types.QueryRecord, err error)
	onTrend func(tenantID string, report types.TrendReport)
}

func NewTrendScheduler(
	reader func(ctx context.Context, tenantID string, windowHours int) (recent, historical []types.QueryRecord, err error),
	onTrend func(tenantID string, report types.TrendReport),
) *TrendScheduler {
	return &TrendScheduler{cron: cron.New(), reader: reader, onTrend: onTrend}
}

// ScheduleTenant registers the hourly detection job for one tenant; callers
// add/remove tenants as the catalog changes.
func (s *TrendScheduler) ScheduleTenant(tenantID string, windowHours int) (cron.EntryID, error) {
	return s.cron.AddFunc("@hourly", func() {
		ctx := context.Background()
		recent, historical, err := s.reader(ctx, tenantID, windowHours)
		if err != nil {
			logger.Warn(ctx, "analytics: trend window read failed",
				map[string]interface{}{"tenant_id": tenantID, "error": err.Error()})
			return
		}
		report := heuristics.DetectTrends(recent, historical, windowHours)
		s.onTrend(tenantID, report)
	})
}

func (s *TrendScheduler) Unschedule(id cron.EntryID) { s.cron.Remove(id) }

func (s *TrendScheduler) Start() { s.cron.Start() }
func (s *TrendScheduler) Stop()  { s.cron.Stop() }
