package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/craftbase/task-scheduler/internal/store"
	"github.com/craftbase/task-scheduler/internal/store/model"
)

// fakeStore keeps jobs in memory and records every mutation so tests can
// assert on the exact store traffic a component produced.
type fakeStore struct {
	job *fakeJobStore
}

func newFakeStore() *fakeStore {
	return &fakeStore{job: newFakeJobStore()}
}

func (s *fakeStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return ctx, nil
}

func (s *fakeStore) Job() store.Job          { return s.job }
func (s *fakeStore) InitialMigration() error { return nil }
func (s *fakeStore) Close() error            { return nil }

type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*model.Job

	assignCalls    []uuid.UUID
	releaseCalls   []uuid.UUID
	decrementCalls []uuid.UUID
	deleteCalls    []uuid.UUID

	failAssign        error
	failDelete        error
	failRelease       error
	failGetUnassigned error
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[uuid.UUID]*model.Job)}
}

func (f *fakeJobStore) put(job model.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := job
	f.jobs[j.ID] = &j
}

func (f *fakeJobStore) get(id uuid.UUID) *model.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, found := f.jobs[id]; found {
		copied := *j
		return &copied
	}
	return nil
}

func (f *fakeJobStore) InitialMigration() error { return nil }

func (f *fakeJobStore) GetUnassigned(_ context.Context, now time.Time, limit int) (model.JobList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failGetUnassigned != nil {
		return nil, f.failGetUnassigned
	}

	var jobs model.JobList
	for _, j := range f.jobs {
		if j.WorkerID == nil && !j.AssignedTaskStartTime.After(now) {
			jobs = append(jobs, *j)
		}
	}
	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].Priority != jobs[k].Priority {
			return jobs[i].Priority < jobs[k].Priority
		}
		return jobs[i].AssignedTaskStartTime.Before(jobs[k].AssignedTaskStartTime)
	})
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (f *fakeJobStore) Get(_ context.Context, id uuid.UUID) (*model.Job, error) {
	job := f.get(id)
	if job == nil {
		return nil, store.ErrRecordNotFound
	}
	return job, nil
}

func (f *fakeJobStore) List(_ context.Context) (model.JobList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var jobs model.JobList
	for _, j := range f.jobs {
		jobs = append(jobs, *j)
	}
	return jobs, nil
}

func (f *fakeJobStore) Create(_ context.Context, job model.Job) (*model.Job, error) {
	f.put(job)
	return &job, nil
}

func (f *fakeJobStore) Assign(_ context.Context, id uuid.UUID, workerID uuid.UUID, now time.Time) (*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignCalls = append(f.assignCalls, id)
	if f.failAssign != nil {
		return nil, f.failAssign
	}
	j, found := f.jobs[id]
	if !found {
		return nil, store.ErrRecordNotFound
	}
	j.WorkerID = &workerID
	j.WorkerLockTime = &now
	copied := *j
	return &copied, nil
}

func (f *fakeJobStore) DecrementRetries(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decrementCalls = append(f.decrementCalls, id)
	j, found := f.jobs[id]
	if !found {
		return store.ErrRecordNotFound
	}
	if j.RetryAttemptsRemaining > 0 {
		j.RetryAttemptsRemaining--
	}
	return nil
}

func (f *fakeJobStore) UpdateData(_ context.Context, id uuid.UUID, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, found := f.jobs[id]
	if !found {
		return store.ErrRecordNotFound
	}
	j.JobData = data
	return nil
}

func (f *fakeJobStore) AdvanceTask(_ context.Context, id uuid.UUID, taskName string, startTime time.Time, retryAttemptsRemaining int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, found := f.jobs[id]
	if !found {
		return store.ErrRecordNotFound
	}
	j.AssignedTaskName = taskName
	j.AssignedTaskStartTime = startTime
	j.RetryAttemptsRemaining = retryAttemptsRemaining
	return nil
}

func (f *fakeJobStore) ScheduleRetry(_ context.Context, id uuid.UUID, startTime time.Time, retryAttemptsRemaining int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, found := f.jobs[id]
	if !found {
		return store.ErrRecordNotFound
	}
	j.AssignedTaskStartTime = startTime
	j.RetryAttemptsRemaining = retryAttemptsRemaining
	return nil
}

func (f *fakeJobStore) Release(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseCalls = append(f.releaseCalls, id)
	if f.failRelease != nil {
		return f.failRelease
	}
	if j, found := f.jobs[id]; found {
		j.WorkerID = nil
		j.WorkerLockTime = nil
	}
	return nil
}

func (f *fakeJobStore) ReleaseExpired(_ context.Context, lockedBefore time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var released int64
	for _, j := range f.jobs {
		if j.WorkerID != nil && j.WorkerLockTime.Before(lockedBefore) {
			j.WorkerID = nil
			j.WorkerLockTime = nil
			released++
		}
	}
	return released, nil
}

func (f *fakeJobStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls = append(f.deleteCalls, id)
	if f.failDelete != nil {
		return f.failDelete
	}
	delete(f.jobs, id)
	return nil
}

// fakeClock hands out a fixed instant.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }
