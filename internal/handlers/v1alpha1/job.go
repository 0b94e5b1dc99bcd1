package v1alpha1

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/craftbase/task-scheduler/internal/service"
	"github.com/craftbase/task-scheduler/internal/store/model"
	"github.com/craftbase/task-scheduler/internal/tasks"
)

type JobHandler struct {
	execution *service.ExecutionService
}

func NewJobHandler(execution *service.ExecutionService) *JobHandler {
	return &JobHandler{execution: execution}
}

type CreateJobRequest struct {
	TaskName  string          `json:"task_name"`
	StartTime *time.Time      `json:"start_time,omitempty"`
	JobData   json.RawMessage `json:"job_data,omitempty"`
	Priority  int             `json:"priority,omitempty"`
}

type JobReply struct {
	ID                     uuid.UUID       `json:"id"`
	TaskName               string          `json:"task_name"`
	StartTime              time.Time       `json:"start_time"`
	JobData                json.RawMessage `json:"job_data,omitempty"`
	Priority               int             `json:"priority"`
	RetryAttemptsRemaining int             `json:"retry_attempts_remaining"`
	Leased                 bool            `json:"leased"`
}

type ErrorReply struct {
	Error string `json:"error"`
}

func newJobReply(job *model.Job) JobReply {
	return JobReply{
		ID:                     job.ID,
		TaskName:               job.AssignedTaskName,
		StartTime:              job.AssignedTaskStartTime,
		JobData:                job.JobData,
		Priority:               job.Priority,
		RetryAttemptsRemaining: job.RetryAttemptsRemaining,
		Leased:                 job.Leased(),
	}
}

func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorReply{Error: "invalid request body"})
		return
	}
	if req.TaskName == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorReply{Error: "task_name is required"})
		return
	}

	startTime := time.Now()
	if req.StartTime != nil {
		startTime = *req.StartTime
	}

	execution, err := tasks.NewBuilder().
		WithJobData(req.JobData).
		WithTaskName(req.TaskName).
		WithStartTime(startTime).
		WithPriority(req.Priority).
		WithStatus(tasks.StatusStarted).
		Build()
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorReply{Error: err.Error()})
		return
	}

	job, err := h.execution.SubmitWith(r.Context(), execution)
	if err != nil {
		var invalidErr *service.ErrInvalidJob
		if errors.As(err, &invalidErr) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, ErrorReply{Error: invalidErr.Error()})
			return
		}
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorReply{Error: "failed to create job"})
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, newJobReply(job))
}

func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorReply{Error: "invalid job id"})
		return
	}

	job, err := h.execution.GetJob(r.Context(), id)
	if err != nil {
		var notFoundErr *service.ErrJobNotFound
		if errors.As(err, &notFoundErr) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, ErrorReply{Error: notFoundErr.Error()})
			return
		}
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorReply{Error: "failed to fetch job"})
		return
	}

	render.JSON(w, r, newJobReply(job))
}

func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.execution.ListJobs(r.Context())
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorReply{Error: "failed to list jobs"})
		return
	}

	replies := make([]JobReply, 0, len(jobs))
	for i := range jobs {
		replies = append(replies, newJobReply(&jobs[i]))
	}
	render.JSON(w, r, replies)
}
