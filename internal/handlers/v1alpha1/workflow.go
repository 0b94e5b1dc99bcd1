package v1alpha1

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/craftbase/task-scheduler/internal/bakery"
	"github.com/craftbase/task-scheduler/internal/service"
	"github.com/craftbase/task-scheduler/internal/tasks"
)

type WorkflowHandler struct {
	execution *service.ExecutionService
}

func NewWorkflowHandler(execution *service.ExecutionService) *WorkflowHandler {
	return &WorkflowHandler{execution: execution}
}

// StartCakeWorkflow submits a job for the first step of the sample cake
// workflow; the scheduler advances it through the remaining steps.
func (h *WorkflowHandler) StartCakeWorkflow(w http.ResponseWriter, r *http.Request) {
	firstStep := bakery.FirstStep()
	data, err := json.Marshal(bakery.StepData(firstStep))
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorReply{Error: "failed to build workflow payload"})
		return
	}

	execution, err := tasks.NewBuilder().
		WithJobData(data).
		WithTaskName(firstStep).
		WithStartTime(time.Now()).
		WithStatus(tasks.StatusStarted).
		Build()
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorReply{Error: err.Error()})
		return
	}

	job, err := h.execution.SubmitWith(r.Context(), execution)
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorReply{Error: "failed to start workflow"})
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, newJobReply(job))
}
