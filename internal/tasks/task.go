package tasks

import "context"

// Task is a named, registered piece of business logic. Execute receives the
// leased job's context and returns the context describing the job's next
// persisted state. The ctx carries the worker's ambient store transaction;
// an error return aborts that transaction and the job is re-leased later,
// so tasks must tolerate running more than once for the same job.
type Task interface {
	Execute(ctx context.Context, execution ExecutionContext) (ExecutionContext, error)
}

// Retryable is implemented by tasks that want backoff retries. The returned
// schedule is an ordered list of second-delays; its length is the total
// number of retries the scheduler will perform for one invocation of this
// task on a given job. Tasks without the interface are not retryable.
type Retryable interface {
	RetryDelaysSeconds() []int64
}
