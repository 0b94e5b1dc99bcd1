package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/craftbase/task-scheduler/internal/events"
	"github.com/craftbase/task-scheduler/internal/store"
	"github.com/craftbase/task-scheduler/internal/store/model"
	"github.com/craftbase/task-scheduler/internal/tasks"
	"github.com/craftbase/task-scheduler/pkg/metrics"
)

// errTaskRaised marks failures coming out of the task body (or an invalid
// returned context). They roll back like store conflicts but are never
// classified as fatal: the lease is released so the job can run again.
var errTaskRaised = errors.New("task raised")

// Worker runs exactly one leased job to its next persisted state. All store
// mutations for the job happen inside one transaction; on failure the
// transaction is discarded. After a task error or a transient conflict the
// lease is released on a best-effort basis; after a fatal store error it is
// left in place for the reaper.
type Worker struct {
	store    store.Store
	registry *tasks.Registry
	clock    Clock
	producer *events.EventProducer
}

func NewWorker(s store.Store, registry *tasks.Registry, clock Clock, producer *events.EventProducer) *Worker {
	return &Worker{
		store:    s,
		registry: registry,
		clock:    clock,
		producer: producer,
	}
}

// Execute processes a single leased job. It never returns an error: every
// failure is compensated here so nothing cascades back into the coordinator.
func (w *Worker) Execute(ctx context.Context, job model.Job) {
	logger := zap.S().Named("worker")
	logger.Infof("invoking task %s for job %s", job.AssignedTaskName, job.ID)

	task, found := w.registry.Get(job.AssignedTaskName)

	txCtx, err := w.store.NewTransactionContext(ctx)
	if err != nil {
		logger.Errorf("job %s: opening transaction: %v", job.ID, err)
		w.releaseBestEffort(ctx, job.ID)
		return
	}

	result, err := w.execute(txCtx, job, task, found)
	if err != nil {
		logger.Errorf("job %s: execution failed, transaction will be rolled back: %v", job.ID, err)
		if _, rbErr := store.Rollback(txCtx); rbErr != nil {
			logger.Errorf("job %s: rollback failed: %v", job.ID, rbErr)
		}
		if errors.Is(err, errTaskRaised) || errors.Is(err, store.ErrTransientConflict) {
			w.releaseBestEffort(ctx, job.ID)
		} else {
			// Fatal store error: leave the lease in place, the reaper
			// releases it once it expires.
			logger.Errorf("job %s: fatal store error, lease left for the reaper", job.ID)
		}
		metrics.IncreaseTaskExecutionsTotalMetric(metrics.ResultFailed)
		return
	}

	if _, err := store.Commit(txCtx); err != nil {
		logger.Errorf("job %s: commit failed, releasing job lock: %v", job.ID, err)
		w.releaseBestEffort(ctx, job.ID)
		metrics.IncreaseTaskExecutionsTotalMetric(metrics.ResultFailed)
		return
	}

	metrics.IncreaseTaskExecutionsTotalMetric(result)
	w.emit(result, job)
}

func (w *Worker) execute(txCtx context.Context, job model.Job, task tasks.Task, found bool) (string, error) {
	logger := zap.S().Named("worker")

	if !found {
		logger.Errorf("no task registered to process job %s", job.ID)
		if err := w.store.Job().Release(txCtx, job.ID); err != nil {
			return "", err
		}
		return metrics.ResultReleased, nil
	}

	// The store's time filter already guards this, but a second check keeps
	// clock skew and long batches from starting a task early.
	if job.AssignedTaskStartTime.After(w.clock.Now()) {
		logger.Debugf("task start time not reached yet for job %s", job.ID)
		if err := w.store.Job().Release(txCtx, job.ID); err != nil {
			return "", err
		}
		return metrics.ResultReleased, nil
	}

	execution, err := tasks.NewBuilder().
		WithJobData(job.JobData).
		WithTaskName(job.AssignedTaskName).
		WithStartTime(job.AssignedTaskStartTime).
		WithPriority(job.Priority).
		WithStatus(tasks.StatusStarted).
		Build()
	if err != nil {
		return "", fmt.Errorf("%w: building execution context: %v", errTaskRaised, err)
	}

	response, err := task.Execute(txCtx, execution)
	if err != nil {
		return "", fmt.Errorf("%w: task %s: %v", errTaskRaised, job.AssignedTaskName, err)
	}

	switch response.Status() {
	case tasks.StatusCompleted:
		if err := w.store.Job().Delete(txCtx, job.ID); err != nil {
			return "", err
		}
		return metrics.ResultCompleted, nil
	case tasks.StatusInProgress:
		if w.canRetry(task, response, job) {
			return w.performRetry(txCtx, job, task)
		}
		return w.advance(txCtx, job, response)
	default:
		return "", fmt.Errorf("%w: task %s returned invalid execution status %q", errTaskRaised, job.AssignedTaskName, response.Status())
	}
}

// canRetry holds when the task asked for a retry, the job still has retry
// attempts left, and the task declares a retry schedule.
func (w *Worker) canRetry(task tasks.Task, response tasks.ExecutionContext, job model.Job) bool {
	retryable, ok := task.(tasks.Retryable)
	hasSchedule := ok && len(retryable.RetryDelaysSeconds()) > 0

	zap.S().Named("worker").Debugf("checking if task is retryable, jobID:%s, shouldRetry:%t, retryAttemptsRemaining:%d, hasRetrySchedule:%t",
		job.ID, response.ShouldRetry(), job.RetryAttemptsRemaining, hasSchedule)

	return response.ShouldRetry() && job.RetryAttemptsRemaining > 0 && hasSchedule
}

// performRetry pushes the job's start time out by the next delay in the
// task's schedule and burns one retry attempt. With schedule [10,20,30] and
// 3 attempts remaining the delays come out 10s, 20s, 30s.
func (w *Worker) performRetry(txCtx context.Context, job model.Job, task tasks.Task) (string, error) {
	delays := task.(tasks.Retryable).RetryDelaysSeconds()
	remaining := job.RetryAttemptsRemaining

	index := len(delays) - remaining
	if index < 0 {
		index = 0
	}
	nextStartTime := w.clock.Now().Add(time.Duration(delays[index]) * time.Second)

	zap.S().Named("worker").Infof("scheduling retry, jobID: %s, retryAttemptsRemaining: %d, nextStartTime: %s",
		job.ID, remaining, nextStartTime)

	if err := w.store.Job().ScheduleRetry(txCtx, job.ID, nextStartTime, remaining-1); err != nil {
		return "", err
	}
	if err := w.store.Job().Release(txCtx, job.ID); err != nil {
		return "", err
	}
	return metrics.ResultRetryScheduled, nil
}

func (w *Worker) advance(txCtx context.Context, job model.Job, response tasks.ExecutionContext) (string, error) {
	// Preserve the current counter when the task rescheduled itself; refresh
	// it from the registry when the workflow moves to a different task.
	remaining := job.RetryAttemptsRemaining
	if response.TaskName() != job.AssignedTaskName {
		remaining = w.registry.RetryAttemptsFor(response.TaskName())
	}

	if err := w.store.Job().UpdateData(txCtx, job.ID, response.JobData()); err != nil {
		return "", err
	}
	if err := w.store.Job().AdvanceTask(txCtx, job.ID, response.TaskName(), response.StartTime(), remaining); err != nil {
		return "", err
	}
	if err := w.store.Job().Release(txCtx, job.ID); err != nil {
		return "", err
	}
	return metrics.ResultAdvanced, nil
}

func (w *Worker) releaseBestEffort(ctx context.Context, id uuid.UUID) {
	if err := w.store.Job().Release(ctx, id); err != nil {
		zap.S().Named("worker").Errorf("failed to release job lock for job %s: %v", id, err)
	}
}

func (w *Worker) emit(result string, job model.Job) {
	if w.producer == nil {
		return
	}

	var kind string
	switch result {
	case metrics.ResultCompleted:
		kind = events.JobCompletedKind
	case metrics.ResultAdvanced:
		kind = events.JobAdvancedKind
	case metrics.ResultRetryScheduled:
		kind = events.JobRetryScheduledKind
	default:
		return
	}

	workerID := ""
	if job.WorkerID != nil {
		workerID = job.WorkerID.String()
	}
	payload, err := json.Marshal(events.JobEvent{
		JobID:     job.ID,
		TaskName:  job.AssignedTaskName,
		WorkerID:  workerID,
		Timestamp: w.clock.Now(),
	})
	if err != nil {
		return
	}
	if err := w.producer.Write(context.Background(), kind, bytes.NewReader(payload)); err != nil {
		zap.S().Named("worker").Debugf("failed to emit %s event for job %s: %v", kind, job.ID, err)
	}
}
