package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// DefaultPriority is assigned to jobs created without an explicit priority.
	DefaultPriority = 10

	MinPriority = 1
	MaxPriority = 10
)

// Job is the sole persisted entity of the scheduler. A row represents one
// unit of work in some state of its lifecycle: unleased and waiting, leased
// by a worker, or gone once completed. The lease is the (WorkerID,
// WorkerLockTime) pair; both are set or both are null.
type Job struct {
	ID                     uuid.UUID  `gorm:"primaryKey;column:job_id;type:uuid"`
	WorkerID               *uuid.UUID `gorm:"column:worker_id;type:uuid;index:jobs_lease_idx,priority:1"`
	WorkerLockTime         *time.Time `gorm:"column:worker_lock_time"`
	AssignedTaskName       string     `gorm:"column:assigned_task_name;not null"`
	AssignedTaskStartTime  time.Time  `gorm:"column:assigned_task_start_time;not null;index:jobs_lease_idx,priority:3"`
	JobData                []byte     `gorm:"column:job_data;type:jsonb"`
	RetryAttemptsRemaining int        `gorm:"column:retry_attempts_remaining;not null"`
	Priority               int        `gorm:"column:priority;not null;default:10;index:jobs_lease_idx,priority:2"`
}

type JobList []Job

func (Job) TableName() string {
	return "jobs"
}

// BeforeCreate fills in the generated fields and rejects rows that would
// break the table invariants.
func (j *Job) BeforeCreate(_ *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.Priority == 0 {
		j.Priority = DefaultPriority
	}
	return j.Validate()
}

func (j *Job) Validate() error {
	if j.Priority < MinPriority || j.Priority > MaxPriority {
		return fmt.Errorf("job priority must be between %d and %d, got %d", MinPriority, MaxPriority, j.Priority)
	}
	if j.RetryAttemptsRemaining < 0 {
		return fmt.Errorf("job retry attempts remaining must not be negative, got %d", j.RetryAttemptsRemaining)
	}
	if j.AssignedTaskName == "" {
		return fmt.Errorf("job assigned task name must not be empty")
	}
	if j.AssignedTaskStartTime.IsZero() {
		return fmt.Errorf("job assigned task start time must be set")
	}
	if (j.WorkerID == nil) != (j.WorkerLockTime == nil) {
		return fmt.Errorf("job worker id and worker lock time must both be set or both be absent")
	}
	return nil
}

// Leased reports whether the row currently carries a worker lease.
func (j *Job) Leased() bool {
	return j.WorkerID != nil && j.WorkerLockTime != nil
}

func (j Job) String() string {
	val, _ := json.Marshal(j)
	return string(val)
}
