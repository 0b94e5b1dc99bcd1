package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	"github.com/craftbase/task-scheduler/internal/config"
	"github.com/craftbase/task-scheduler/internal/events"
	"github.com/craftbase/task-scheduler/internal/store"
	"github.com/craftbase/task-scheduler/internal/tasks"
	"github.com/craftbase/task-scheduler/pkg/metrics"
)

// Coordinator turns calendar ticks into worker invocations. Each tick leases
// up to batch-size ready jobs in priority order and hands them to the worker
// pool. Ticks never overlap: the next poll is scheduled a fixed (jittered)
// delay after the previous one finished.
type Coordinator struct {
	store    store.Store
	registry *tasks.Registry
	pool     *WorkerPool
	worker   *Worker
	clock    Clock
	jitter   jitterbug.Jitter

	pollInterval           time.Duration
	batchSize              int
	waitForTasksOnShutdown bool
	awaitTermination       time.Duration
}

func NewCoordinator(cfg *config.Config, s store.Store, registry *tasks.Registry, pool *WorkerPool, clock Clock, producer *events.EventProducer) *Coordinator {
	return &Coordinator{
		store:                  s,
		registry:               registry,
		pool:                   pool,
		worker:                 NewWorker(s, registry, clock, producer),
		clock:                  clock,
		jitter:                 &jitterbug.Norm{Stdev: 50 * time.Millisecond},
		pollInterval:           cfg.Scheduler.PollInterval,
		batchSize:              cfg.Scheduler.BatchSize,
		waitForTasksOnShutdown: cfg.Scheduler.WaitForTasksOnShutdown,
		awaitTermination:       cfg.Scheduler.AwaitTermination,
	}
}

// Run polls until ctx is canceled, then shuts the worker pool down according
// to the configured shutdown policy. Leased-but-unfinished jobs stay leased
// in the store.
func (c *Coordinator) Run(ctx context.Context) {
	logger := zap.S().Named("coordinator")
	logger.Infof("starting job coordinator (poll interval: %s, batch size: %d)", c.pollInterval, c.batchSize)

	// With a graceful shutdown the in-flight workers keep their store access
	// after ctx is canceled; an abrupt one cancels them mid-transaction.
	execCtx := ctx
	if c.waitForTasksOnShutdown {
		execCtx = context.WithoutCancel(ctx)
	}

	timer := time.NewTimer(c.jitter.Jitter(c.pollInterval))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping job coordinator")
			c.pool.Shutdown(c.waitForTasksOnShutdown, c.awaitTermination)
			return
		case <-timer.C:
			c.tick(ctx, execCtx)
			timer.Reset(c.jitter.Jitter(c.pollInterval))
		}
	}
}

// tick runs one poll cycle. Per-job failures never abort the batch; a store
// failure on the candidate query ends the tick early.
func (c *Coordinator) tick(ctx context.Context, execCtx context.Context) {
	logger := zap.S().Named("coordinator")
	logger.Debugf("checking for unassigned jobs (batch size: %d)...", c.batchSize)

	// The candidate query holds its row locks only for the duration of this
	// transaction; assignment happens per job afterwards.
	txCtx, err := c.store.NewTransactionContext(ctx)
	if err != nil {
		logger.Errorf("opening transaction for candidate query: %v", err)
		return
	}
	unassignedJobs, err := c.store.Job().GetUnassigned(txCtx, c.clock.Now(), c.batchSize)
	if err != nil {
		logger.Errorf("querying unassigned jobs: %v", err)
		if _, rbErr := store.Rollback(txCtx); rbErr != nil {
			logger.Errorf("rolling back candidate query: %v", rbErr)
		}
		return
	}
	if _, err := store.Commit(txCtx); err != nil {
		logger.Errorf("committing candidate query: %v", err)
		return
	}

	if len(unassignedJobs) == 0 {
		logger.Debug("no unassigned jobs found")
		return
	}

	logger.Infof("found %d unassigned job(s)", len(unassignedJobs))

	for _, job := range unassignedJobs {
		workerID := uuid.New()
		assignedJob, err := c.store.Job().Assign(ctx, job.ID, workerID, c.clock.Now())
		if err != nil {
			logger.Errorf("error assigning job %s: %v", job.ID, err)
			metrics.IncreaseAssignFailedTotalMetric()
			if derr := c.store.Job().DecrementRetries(ctx, job.ID); derr != nil {
				logger.Errorf("error decrementing retry attempts for job %s: %v", job.ID, derr)
			}
			continue
		}

		logger.Infof("assigned job %s to worker %s", assignedJob.ID, workerID)
		metrics.IncreaseJobsLeasedTotalMetric()

		leased := *assignedJob
		if err := c.pool.Submit(func() { c.worker.Execute(execCtx, leased) }); err != nil {
			// The worker will never run; give the lease back so a later
			// tick can try again.
			logger.Warnf("worker pool rejected job %s: %v", job.ID, err)
			if rerr := c.store.Job().Release(ctx, job.ID); rerr != nil {
				logger.Errorf("error releasing rejected job %s: %v", job.ID, rerr)
			}
		}
	}
}
