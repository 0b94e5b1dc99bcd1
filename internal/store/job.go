package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/craftbase/task-scheduler/internal/store/model"
)

// Job exposes the atomic operations the scheduler core needs from the jobs
// table, nothing more. Every operation participates in the ambient
// transaction when the context carries one; otherwise it runs standalone.
type Job interface {
	// GetUnassigned returns up to limit rows with no lease whose start time
	// has passed, ordered by priority then start time. The rows are read
	// under a pessimistic write lock so concurrent pollers cannot lease the
	// same row twice.
	GetUnassigned(ctx context.Context, now time.Time, limit int) (model.JobList, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Job, error)
	List(ctx context.Context) (model.JobList, error)
	Create(ctx context.Context, job model.Job) (*model.Job, error)
	Assign(ctx context.Context, id uuid.UUID, workerID uuid.UUID, now time.Time) (*model.Job, error)
	DecrementRetries(ctx context.Context, id uuid.UUID) error
	UpdateData(ctx context.Context, id uuid.UUID, data []byte) error
	AdvanceTask(ctx context.Context, id uuid.UUID, taskName string, startTime time.Time, retryAttemptsRemaining int) error
	ScheduleRetry(ctx context.Context, id uuid.UUID, startTime time.Time, retryAttemptsRemaining int) error
	Release(ctx context.Context, id uuid.UUID) error
	ReleaseExpired(ctx context.Context, lockedBefore time.Time) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
	InitialMigration() error
}

type JobStore struct {
	db *gorm.DB
}

// Make sure we conform to Job interface
var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (s *JobStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.Job{})
}

func (s *JobStore) GetUnassigned(ctx context.Context, now time.Time, limit int) (model.JobList, error) {
	var jobs model.JobList

	query := s.getDB(ctx).
		Where("worker_id IS NULL AND assigned_task_start_time <= ?", now).
		Order("priority ASC, assigned_task_start_time ASC").
		Limit(limit)
	// sqlite has no row locks; the serialized writer gives the same guarantee there.
	if s.getDB(ctx).Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	if result := query.Find(&jobs); result.Error != nil {
		return nil, fmt.Errorf("querying unassigned jobs: %w", translateError(result.Error))
	}
	return jobs, nil
}

func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	var job model.Job
	result := s.getDB(ctx).First(&job, "job_id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying job: %w", translateError(result.Error))
	}
	return &job, nil
}

func (s *JobStore) List(ctx context.Context) (model.JobList, error) {
	var jobs model.JobList
	result := s.getDB(ctx).Order("priority ASC, assigned_task_start_time ASC").Find(&jobs)
	if result.Error != nil {
		return nil, fmt.Errorf("listing jobs: %w", translateError(result.Error))
	}
	return jobs, nil
}

func (s *JobStore) Create(ctx context.Context, job model.Job) (*model.Job, error) {
	if result := s.getDB(ctx).Create(&job); result.Error != nil {
		return nil, fmt.Errorf("creating job: %w", translateError(result.Error))
	}
	return &job, nil
}

func (s *JobStore) Assign(ctx context.Context, id uuid.UUID, workerID uuid.UUID, now time.Time) (*model.Job, error) {
	result := s.getDB(ctx).Model(&model.Job{}).
		Where("job_id = ?", id).
		Updates(map[string]interface{}{"worker_id": workerID, "worker_lock_time": now})
	if result.Error != nil {
		return nil, fmt.Errorf("assigning job: %w", translateError(result.Error))
	}
	if result.RowsAffected == 0 {
		return nil, ErrRecordNotFound
	}
	return s.Get(ctx, id)
}

func (s *JobStore) DecrementRetries(ctx context.Context, id uuid.UUID) error {
	result := s.getDB(ctx).Model(&model.Job{}).
		Where("job_id = ? AND retry_attempts_remaining > 0", id).
		Update("retry_attempts_remaining", gorm.Expr("retry_attempts_remaining - 1"))
	if result.Error != nil {
		return fmt.Errorf("decrementing job retries: %w", translateError(result.Error))
	}
	if result.RowsAffected == 0 {
		// the counter may already be zero; only an absent row is an error
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *JobStore) UpdateData(ctx context.Context, id uuid.UUID, data []byte) error {
	result := s.getDB(ctx).Model(&model.Job{}).Where("job_id = ?", id).Update("job_data", data)
	if result.Error != nil {
		return fmt.Errorf("updating job data: %w", translateError(result.Error))
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *JobStore) AdvanceTask(ctx context.Context, id uuid.UUID, taskName string, startTime time.Time, retryAttemptsRemaining int) error {
	result := s.getDB(ctx).Model(&model.Job{}).
		Where("job_id = ?", id).
		Updates(map[string]interface{}{
			"assigned_task_name":       taskName,
			"assigned_task_start_time": startTime,
			"retry_attempts_remaining": retryAttemptsRemaining,
		})
	if result.Error != nil {
		return fmt.Errorf("advancing job task: %w", translateError(result.Error))
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *JobStore) ScheduleRetry(ctx context.Context, id uuid.UUID, startTime time.Time, retryAttemptsRemaining int) error {
	result := s.getDB(ctx).Model(&model.Job{}).
		Where("job_id = ?", id).
		Updates(map[string]interface{}{
			"assigned_task_start_time": startTime,
			"retry_attempts_remaining": retryAttemptsRemaining,
		})
	if result.Error != nil {
		return fmt.Errorf("scheduling job retry: %w", translateError(result.Error))
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *JobStore) Release(ctx context.Context, id uuid.UUID) error {
	result := s.getDB(ctx).Model(&model.Job{}).
		Where("job_id = ?", id).
		Updates(map[string]interface{}{"worker_id": nil, "worker_lock_time": nil})
	if result.Error != nil {
		return fmt.Errorf("releasing job: %w", translateError(result.Error))
	}
	return nil
}

func (s *JobStore) ReleaseExpired(ctx context.Context, lockedBefore time.Time) (int64, error) {
	result := s.getDB(ctx).Model(&model.Job{}).
		Where("worker_id IS NOT NULL AND worker_lock_time < ?", lockedBefore).
		Updates(map[string]interface{}{"worker_id": nil, "worker_lock_time": nil})
	if result.Error != nil {
		return 0, fmt.Errorf("releasing expired leases: %w", translateError(result.Error))
	}
	return result.RowsAffected, nil
}

func (s *JobStore) Delete(ctx context.Context, id uuid.UUID) error {
	result := s.getDB(ctx).Delete(&model.Job{}, "job_id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("deleting job: %w", translateError(result.Error))
	}
	return nil
}

func (s *JobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
