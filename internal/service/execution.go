package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/craftbase/task-scheduler/internal/store"
	"github.com/craftbase/task-scheduler/internal/store/model"
	"github.com/craftbase/task-scheduler/internal/tasks"
)

// ExecutionService turns execution contexts into persisted jobs. It is the
// single inbound seam collaborators use to hand work to the scheduler.
type ExecutionService struct {
	store    store.Store
	registry *tasks.Registry
}

func NewExecutionService(s store.Store, registry *tasks.Registry) *ExecutionService {
	return &ExecutionService{
		store:    s,
		registry: registry,
	}
}

// SubmitWith inserts a new unleased job built from the given context. The
// retry counter starts at the registry's retry depth for the task name and
// the priority falls back to the default when the context leaves it unset.
func (s *ExecutionService) SubmitWith(ctx context.Context, execution tasks.ExecutionContext) (*model.Job, error) {
	retryAttemptsRemaining := s.registry.RetryAttemptsFor(execution.TaskName())

	priority := execution.Priority()
	if priority == 0 {
		priority = model.DefaultPriority
	}

	job := model.Job{
		ID:                     uuid.New(),
		AssignedTaskName:       execution.TaskName(),
		AssignedTaskStartTime:  execution.StartTime(),
		JobData:                execution.JobData(),
		RetryAttemptsRemaining: retryAttemptsRemaining,
		Priority:               priority,
	}
	if err := job.Validate(); err != nil {
		return nil, NewErrInvalidJob(err.Error())
	}

	created, err := s.store.Job().Create(ctx, job)
	if err != nil {
		zap.S().Named("execution_service").Errorf("failed to insert job for task %s: %v", execution.TaskName(), err)
		return nil, err
	}

	zap.S().Named("execution_service").Infof("submitted job %s for task %s (priority %d, retries %d)",
		created.ID, created.AssignedTaskName, created.Priority, created.RetryAttemptsRemaining)
	return created, nil
}

// GetJob fetches a single job row.
func (s *ExecutionService) GetJob(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	return job, nil
}

// ListJobs returns all jobs ordered the way the coordinator leases them.
func (s *ExecutionService) ListJobs(ctx context.Context) (model.JobList, error) {
	return s.store.Job().List(ctx)
}
