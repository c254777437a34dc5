package reconcile

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	appLog "chorecal/internal/log"
)

// Schedule runs PullAndMerge on the given standard cron spec until ctx is
// done. Overlapping runs are skipped.
func (r *Reconciler) Schedule(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(spec, func() {
		// failures are logged and kept in Status
		_ = r.PullAndMerge(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	c.Start()
	appLog.Info("scheduled remote pull", "cron", spec)

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return c, nil
}
