package client

import (
	"context"
	"time"

	"github.com/adhocore/gronx"

	"github.com/freitascorp/agentsdk/pkg/logger"
)

// ScheduleRewindSweep starts an optional background housekeeping loop
// (off by default, never started unless the host calls this) that checks
// cronExpr every minute and, when due, issues an mcp_status control
// request as a liveness probe — a wedged backend that never answers will
// time out (spec §5's 30s control timeout), which this sweep logs as an
// early warning before the host notices a stalled session. Stops when ctx
// is cancelled.
//
// This keeps github.com/adhocore/gronx exercised the way the teacher uses
// it for scheduled reminders, applied here to session housekeeping
// instead (SPEC_FULL.md §2, DESIGN.md).
func (c *Client) ScheduleRewindSweep(ctx context.Context, cronExpr string) {
	go func() {
		gron := gronx.New()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				due, err := gron.IsDue(cronExpr)
				if err != nil {
					logger.WarnCF("client", "invalid rewind-sweep cron expression", map[string]any{"error": err.Error()})
					return
				}
				if !due {
					continue
				}
				if _, err := c.MCPStatus(ctx); err != nil {
					logger.WarnCF("client", "rewind-sweep liveness probe failed", map[string]any{"error": err.Error()})
				}
			}
		}
	}()
}
