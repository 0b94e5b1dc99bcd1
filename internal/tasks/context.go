package tasks

import (
	"encoding/json"
	"errors"
	"time"
)

// ExecutionStatus tracks where a task invocation stands. STARTED appears only
// on contexts handed to a task; a task returns INPROGRESS or COMPLETED.
type ExecutionStatus string

const (
	StatusStarted    ExecutionStatus = "STARTED"
	StatusInProgress ExecutionStatus = "INPROGRESS"
	StatusCompleted  ExecutionStatus = "COMPLETED"
)

// ExecutionContext is the immutable value handed to and returned from a task.
// Modifications happen by deriving a new value through the builder.
type ExecutionContext struct {
	jobData     json.RawMessage
	taskName    string
	startTime   time.Time
	status      ExecutionStatus
	shouldRetry bool
	priority    int
}

func (e ExecutionContext) JobData() json.RawMessage { return e.jobData }
func (e ExecutionContext) TaskName() string         { return e.taskName }
func (e ExecutionContext) StartTime() time.Time     { return e.startTime }
func (e ExecutionContext) Status() ExecutionStatus  { return e.status }
func (e ExecutionContext) ShouldRetry() bool        { return e.shouldRetry }

// Priority returns the requested job priority, or zero when the caller left
// it unset and wants the default.
func (e ExecutionContext) Priority() int { return e.priority }

// Builder derives ExecutionContext values. Build enforces the retry rule: a
// context asking for a retry must carry the payload, task name and start time
// the job falls back to once retries are exhausted.
type Builder struct {
	ctx ExecutionContext
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) From(ctx ExecutionContext) *Builder {
	b.ctx = ctx
	return b
}

func (b *Builder) WithJobData(data json.RawMessage) *Builder {
	b.ctx.jobData = data
	return b
}

func (b *Builder) WithTaskName(name string) *Builder {
	b.ctx.taskName = name
	return b
}

func (b *Builder) WithStartTime(t time.Time) *Builder {
	b.ctx.startTime = t
	return b
}

func (b *Builder) WithStatus(status ExecutionStatus) *Builder {
	b.ctx.status = status
	return b
}

func (b *Builder) WithShouldRetry(shouldRetry bool) *Builder {
	b.ctx.shouldRetry = shouldRetry
	return b
}

func (b *Builder) WithPriority(priority int) *Builder {
	b.ctx.priority = priority
	return b
}

func (b *Builder) Build() (ExecutionContext, error) {
	if b.ctx.shouldRetry {
		if b.ctx.jobData == nil || b.ctx.taskName == "" || b.ctx.startTime.IsZero() {
			return ExecutionContext{}, errors.New("retry exhaust task details (jobData, taskName, startTime) must not be empty when shouldRetry is true")
		}
	}
	return b.ctx, nil
}
