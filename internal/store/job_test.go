package store_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/craftbase/task-scheduler/internal/config"
	st "github.com/craftbase/task-scheduler/internal/store"
	"github.com/craftbase/task-scheduler/internal/store/model"
)

func newJob(name string, priority int, startTime time.Time) model.Job {
	return model.Job{
		ID:                    uuid.New(),
		AssignedTaskName:      name,
		AssignedTaskStartTime: startTime,
		JobData:               []byte(`{"k":1}`),
		Priority:              priority,
	}
}

var _ = Describe("JobStore", Ordered, func() {
	var (
		store  st.Store
		gormDB *gorm.DB
	)

	BeforeAll(func() {
		cfg := config.NewDefault()
		cfg.Database.Name = "file::memory:?cache=shared"

		db, err := st.InitDB(cfg)
		Expect(err).To(BeNil())
		gormDB = db

		store = st.NewStore(db)
		Expect(store).ToNot(BeNil())
		Expect(store.InitialMigration()).To(Succeed())
	})

	AfterAll(func() {
		store.Close()
	})

	AfterEach(func() {
		Expect(gormDB.Exec("DELETE FROM jobs;").Error).To(BeNil())
	})

	Context("create", func() {
		It("persists a job and keeps the lease fields empty", func() {
			job, err := store.Job().Create(context.TODO(), newJob("ONE_OFF", 5, time.Now()))
			Expect(err).To(BeNil())
			Expect(job.WorkerID).To(BeNil())
			Expect(job.WorkerLockTime).To(BeNil())

			count := 0
			Expect(gormDB.Raw("SELECT COUNT(*) from jobs;").Scan(&count).Error).To(BeNil())
			Expect(count).To(Equal(1))
		})

		It("generates an id and defaults the priority", func() {
			job := newJob("ONE_OFF", 0, time.Now())
			job.ID = uuid.Nil

			created, err := store.Job().Create(context.TODO(), job)
			Expect(err).To(BeNil())
			Expect(created.ID).ToNot(Equal(uuid.Nil))
			Expect(created.Priority).To(Equal(model.DefaultPriority))
		})

		It("rejects a priority outside the allowed range", func() {
			_, err := store.Job().Create(context.TODO(), newJob("ONE_OFF", 11, time.Now()))
			Expect(err).ToNot(BeNil())
		})

		It("rejects a negative retry counter", func() {
			job := newJob("ONE_OFF", 5, time.Now())
			job.RetryAttemptsRemaining = -1
			_, err := store.Job().Create(context.TODO(), job)
			Expect(err).ToNot(BeNil())
		})

		It("rejects an empty task name", func() {
			_, err := store.Job().Create(context.TODO(), newJob("", 5, time.Now()))
			Expect(err).ToNot(BeNil())
		})
	})

	Context("lease candidates", func() {
		It("orders by priority then start time", func() {
			now := time.Now()
			lowEarly := newJob("A", 10, now.Add(-3*time.Second))
			highLate := newJob("B", 1, now.Add(-time.Second))
			midEarly := newJob("C", 5, now.Add(-2*time.Second))
			midLate := newJob("D", 5, now.Add(-time.Second))
			for _, j := range []model.Job{lowEarly, highLate, midEarly, midLate} {
				_, err := store.Job().Create(context.TODO(), j)
				Expect(err).To(BeNil())
			}

			jobs, err := store.Job().GetUnassigned(context.TODO(), now, 10)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(4))
			Expect(jobs[0].ID).To(Equal(highLate.ID))
			Expect(jobs[1].ID).To(Equal(midEarly.ID))
			Expect(jobs[2].ID).To(Equal(midLate.ID))
			Expect(jobs[3].ID).To(Equal(lowEarly.ID))
		})

		It("filters out jobs scheduled in the future", func() {
			now := time.Now()
			_, err := store.Job().Create(context.TODO(), newJob("READY", 5, now.Add(-time.Second)))
			Expect(err).To(BeNil())
			_, err = store.Job().Create(context.TODO(), newJob("LATER", 5, now.Add(time.Hour)))
			Expect(err).To(BeNil())

			jobs, err := store.Job().GetUnassigned(context.TODO(), now, 10)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].AssignedTaskName).To(Equal("READY"))
		})

		It("filters out leased jobs and honors the limit", func() {
			now := time.Now()
			leased, err := store.Job().Create(context.TODO(), newJob("LEASED", 1, now.Add(-time.Second)))
			Expect(err).To(BeNil())
			_, err = store.Job().Assign(context.TODO(), leased.ID, uuid.New(), now)
			Expect(err).To(BeNil())

			for i := 0; i < 3; i++ {
				_, err = store.Job().Create(context.TODO(), newJob("READY", 5, now.Add(-time.Second)))
				Expect(err).To(BeNil())
			}

			jobs, err := store.Job().GetUnassigned(context.TODO(), now, 2)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(2))
			for _, j := range jobs {
				Expect(j.AssignedTaskName).To(Equal("READY"))
			}
		})
	})

	Context("assign and release", func() {
		It("sets and clears both lease fields together", func() {
			now := time.Now()
			created, err := store.Job().Create(context.TODO(), newJob("ONE_OFF", 5, now))
			Expect(err).To(BeNil())

			workerID := uuid.New()
			assigned, err := store.Job().Assign(context.TODO(), created.ID, workerID, now)
			Expect(err).To(BeNil())
			Expect(assigned.WorkerID).ToNot(BeNil())
			Expect(*assigned.WorkerID).To(Equal(workerID))
			Expect(assigned.WorkerLockTime).ToNot(BeNil())

			stored, err := store.Job().Get(context.TODO(), created.ID)
			Expect(err).To(BeNil())
			Expect(stored.Leased()).To(BeTrue())

			Expect(store.Job().Release(context.TODO(), created.ID)).To(Succeed())
			stored, err = store.Job().Get(context.TODO(), created.ID)
			Expect(err).To(BeNil())
			Expect(stored.WorkerID).To(BeNil())
			Expect(stored.WorkerLockTime).To(BeNil())
		})

		It("fails with not found for an absent row", func() {
			_, err := store.Job().Assign(context.TODO(), uuid.New(), uuid.New(), time.Now())
			Expect(err).To(MatchError(st.ErrRecordNotFound))
		})
	})

	Context("decrement retries", func() {
		It("decrements by one and stops at zero", func() {
			job := newJob("FLAKY", 5, time.Now())
			job.RetryAttemptsRemaining = 2
			created, err := store.Job().Create(context.TODO(), job)
			Expect(err).To(BeNil())

			Expect(store.Job().DecrementRetries(context.TODO(), created.ID)).To(Succeed())
			Expect(store.Job().DecrementRetries(context.TODO(), created.ID)).To(Succeed())
			Expect(store.Job().DecrementRetries(context.TODO(), created.ID)).To(Succeed())

			stored, err := store.Job().Get(context.TODO(), created.ID)
			Expect(err).To(BeNil())
			Expect(stored.RetryAttemptsRemaining).To(Equal(0))
		})

		It("fails with not found for an absent row", func() {
			Expect(store.Job().DecrementRetries(context.TODO(), uuid.New())).To(MatchError(st.ErrRecordNotFound))
		})
	})

	Context("task selector updates", func() {
		It("rewrites the payload", func() {
			created, err := store.Job().Create(context.TODO(), newJob("STEP_A", 5, time.Now()))
			Expect(err).To(BeNil())

			Expect(store.Job().UpdateData(context.TODO(), created.ID, []byte(`{"k":2}`))).To(Succeed())

			stored, err := store.Job().Get(context.TODO(), created.ID)
			Expect(err).To(BeNil())
			Expect(stored.JobData).To(MatchJSON(`{"k":2}`))
		})

		It("advances the task selector in one statement", func() {
			created, err := store.Job().Create(context.TODO(), newJob("STEP_A", 5, time.Now()))
			Expect(err).To(BeNil())

			nextStart := time.Now().Add(time.Minute)
			Expect(store.Job().AdvanceTask(context.TODO(), created.ID, "STEP_B", nextStart, 3)).To(Succeed())

			stored, err := store.Job().Get(context.TODO(), created.ID)
			Expect(err).To(BeNil())
			Expect(stored.AssignedTaskName).To(Equal("STEP_B"))
			Expect(stored.AssignedTaskStartTime).To(BeTemporally("~", nextStart, time.Second))
			Expect(stored.RetryAttemptsRemaining).To(Equal(3))
		})

		It("schedules a retry without touching the task name", func() {
			job := newJob("FLAKY", 5, time.Now())
			job.RetryAttemptsRemaining = 3
			created, err := store.Job().Create(context.TODO(), job)
			Expect(err).To(BeNil())

			nextStart := time.Now().Add(10 * time.Second)
			Expect(store.Job().ScheduleRetry(context.TODO(), created.ID, nextStart, 2)).To(Succeed())

			stored, err := store.Job().Get(context.TODO(), created.ID)
			Expect(err).To(BeNil())
			Expect(stored.AssignedTaskName).To(Equal("FLAKY"))
			Expect(stored.AssignedTaskStartTime).To(BeTemporally("~", nextStart, time.Second))
			Expect(stored.RetryAttemptsRemaining).To(Equal(2))
		})
	})

	Context("release expired", func() {
		It("releases only leases older than the threshold", func() {
			now := time.Now()

			stale, err := store.Job().Create(context.TODO(), newJob("STALE", 5, now))
			Expect(err).To(BeNil())
			_, err = store.Job().Assign(context.TODO(), stale.ID, uuid.New(), now.Add(-30*time.Minute))
			Expect(err).To(BeNil())

			fresh, err := store.Job().Create(context.TODO(), newJob("FRESH", 5, now))
			Expect(err).To(BeNil())
			_, err = store.Job().Assign(context.TODO(), fresh.ID, uuid.New(), now)
			Expect(err).To(BeNil())

			released, err := store.Job().ReleaseExpired(context.TODO(), now.Add(-15*time.Minute))
			Expect(err).To(BeNil())
			Expect(released).To(Equal(int64(1)))

			staleStored, err := store.Job().Get(context.TODO(), stale.ID)
			Expect(err).To(BeNil())
			Expect(staleStored.Leased()).To(BeFalse())

			freshStored, err := store.Job().Get(context.TODO(), fresh.ID)
			Expect(err).To(BeNil())
			Expect(freshStored.Leased()).To(BeTrue())
		})
	})

	Context("delete", func() {
		It("removes the row", func() {
			created, err := store.Job().Create(context.TODO(), newJob("ONE_OFF", 5, time.Now()))
			Expect(err).To(BeNil())

			Expect(store.Job().Delete(context.TODO(), created.ID)).To(Succeed())

			_, err = store.Job().Get(context.TODO(), created.ID)
			Expect(err).To(MatchError(st.ErrRecordNotFound))
		})
	})

	Context("transaction", func() {
		It("persists mutations on commit", func() {
			created, err := store.Job().Create(context.TODO(), newJob("ONE_OFF", 5, time.Now()))
			Expect(err).To(BeNil())

			ctx, err := store.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			_, err = store.Job().Assign(ctx, created.ID, uuid.New(), time.Now())
			Expect(err).To(BeNil())

			_, cerr := st.Commit(ctx)
			Expect(cerr).To(BeNil())

			stored, err := store.Job().Get(context.TODO(), created.ID)
			Expect(err).To(BeNil())
			Expect(stored.Leased()).To(BeTrue())
		})

		It("discards mutations on rollback", func() {
			created, err := store.Job().Create(context.TODO(), newJob("ONE_OFF", 5, time.Now()))
			Expect(err).To(BeNil())

			ctx, err := store.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			_, err = store.Job().Assign(ctx, created.ID, uuid.New(), time.Now())
			Expect(err).To(BeNil())

			_, rerr := st.Rollback(ctx)
			Expect(rerr).To(BeNil())

			stored, err := store.Job().Get(context.TODO(), created.ID)
			Expect(err).To(BeNil())
			Expect(stored.Leased()).To(BeFalse())
		})
	})
})
