package tasks

import (
	"go.uber.org/zap"
)

// Registry maps task names to implementations. It is populated once at
// startup, before the coordinator begins polling, and is read-only
// afterwards, so lookups need no synchronization.
type Registry struct {
	tasksByName map[string]Task
}

func NewRegistry() *Registry {
	return &Registry{
		tasksByName: make(map[string]Task),
	}
}

// Register binds a task to a name. The first registration for a name wins;
// later duplicates are ignored. Tasks registered under an empty name are
// skipped.
func (r *Registry) Register(name string, task Task) {
	if name == "" || task == nil {
		zap.S().Named("registry").Debugf("skipping task registration with empty name or nil task")
		return
	}
	if _, found := r.tasksByName[name]; found {
		zap.S().Named("registry").Warnf("task %q already registered, ignoring duplicate", name)
		return
	}
	r.tasksByName[name] = task
	zap.S().Named("registry").Infof("registered task [name=%s]", name)
}

func (r *Registry) Get(name string) (Task, bool) {
	task, found := r.tasksByName[name]
	return task, found
}

// RetryAttemptsFor returns the length of the named task's retry schedule, or
// zero when the name is unknown or the task exposes no schedule.
func (r *Registry) RetryAttemptsFor(name string) int {
	task, found := r.tasksByName[name]
	if !found {
		return 0
	}
	retryable, ok := task.(Retryable)
	if !ok {
		return 0
	}
	return len(retryable.RetryDelaysSeconds())
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	return len(r.tasksByName)
}
