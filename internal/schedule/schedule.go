// Package schedule runs the daily laporan rollup at a fixed wall-clock
// time.
package schedule

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Rollup is the job the scheduler invokes; satisfied by the service layer.
type Rollup interface {
	RunDailyRollup(ctx context.Context) error
}

// StartDailyRollup schedules spec (standard cron syntax) and returns the
// running scheduler. Overlapping runs are skipped rather than queued; the
// job itself is idempotent, so a skipped run is recovered by the next one.
func StartDailyRollup(spec string, job Rollup) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := job.RunDailyRollup(ctx); err != nil {
			log.Printf("[schedule] WARN: daily rollup failed: %v", err)
			return
		}
		log.Printf("[schedule] daily rollup completed")
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
