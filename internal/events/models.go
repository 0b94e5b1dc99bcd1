package events

import (
	"time"

	"github.com/google/uuid"
)

// JobEvent is the payload of the job lifecycle events. The worker emits one
// after committing a completion, a workflow advance or a retry; leases,
// releases and failed executions emit none.
type JobEvent struct {
	JobID     uuid.UUID `json:"job_id"`
	TaskName  string    `json:"task_name"`
	WorkerID  string    `json:"worker_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
