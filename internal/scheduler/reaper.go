package scheduler

import (
	"context"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	"github.com/craftbase/task-scheduler/internal/store"
	"github.com/craftbase/task-scheduler/pkg/metrics"
)

const reaperSweepInterval = time.Minute

// Reaper releases leases whose holder never came back, typically a worker
// that crashed between assignment and its terminal store mutation. Without
// it such rows would stay leased forever.
type Reaper struct {
	store     store.Store
	clock     Clock
	olderThan time.Duration
}

func NewReaper(s store.Store, clock Clock, olderThan time.Duration) *Reaper {
	return &Reaper{
		store:     s,
		clock:     clock,
		olderThan: olderThan,
	}
}

func (r *Reaper) Run(ctx context.Context) {
	logger := zap.S().Named("reaper")
	logger.Infof("starting lease reaper (threshold: %s)", r.olderThan)

	ticker := jitterbug.New(reaperSweepInterval, &jitterbug.Norm{Stdev: time.Second})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping lease reaper")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	logger := zap.S().Named("reaper")

	released, err := r.store.Job().ReleaseExpired(ctx, r.clock.Now().Add(-r.olderThan))
	if err != nil {
		logger.Errorf("releasing expired leases: %v", err)
		return
	}
	if released > 0 {
		logger.Warnf("released %d expired lease(s)", released)
		metrics.AddLeasesReapedTotalMetric(released)
	}
}
