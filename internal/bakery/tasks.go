package bakery

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/craftbase/task-scheduler/internal/tasks"
)

// Stand-alone sample tasks outside the cake workflow.
const (
	TaskOneOff          = "ONE_OFF_TASK"
	TaskOneOffWithRetry = "ONE_OFF_TASK_WITH_RETRY"
)

// SwitchOvenOnTask is the first step of the cake workflow.
type SwitchOvenOnTask struct{}

func (t *SwitchOvenOnTask) Execute(_ context.Context, execution tasks.ExecutionContext) (tasks.ExecutionContext, error) {
	var settings OvenSettings
	if err := json.Unmarshal(execution.JobData(), &settings); err != nil {
		return tasks.ExecutionContext{}, err
	}

	zap.S().Named("bakery").Infof("oven switched on to %d degreesC, using steam function ? = %t, shelf no %d ready for cake tin",
		settings.DegreesCelsius, settings.UseSteamFunction, settings.ShelfNumber)

	return nextExecution(execution)
}

// GetIngredientsTask gathers everything the recipe needs.
type GetIngredientsTask struct{}

func (t *GetIngredientsTask) Execute(_ context.Context, execution tasks.ExecutionContext) (tasks.ExecutionContext, error) {
	var ingredients Ingredients
	if err := json.Unmarshal(execution.JobData(), &ingredients); err != nil {
		return tasks.ExecutionContext{}, err
	}

	zap.S().Named("bakery").Infof("gathered %d ingredient(s)", len(ingredients.Items))

	return nextExecution(execution)
}

// SliceAndEatCakeTask finishes the workflow.
type SliceAndEatCakeTask struct{}

func (t *SliceAndEatCakeTask) Execute(_ context.Context, execution tasks.ExecutionContext) (tasks.ExecutionContext, error) {
	var slice SliceCake
	if err := json.Unmarshal(execution.JobData(), &slice); err != nil {
		return tasks.ExecutionContext{}, err
	}

	zap.S().Named("bakery").Infof("slicing cake into %d pieces", slice.Slices)

	return nextExecution(execution)
}

// OneOffTask runs once and completes its job.
type OneOffTask struct{}

func (t *OneOffTask) Execute(_ context.Context, execution tasks.ExecutionContext) (tasks.ExecutionContext, error) {
	zap.S().Named("bakery").Infof("one off task executed")

	return tasks.NewBuilder().
		From(execution).
		WithStatus(tasks.StatusCompleted).
		Build()
}

// OneOffTaskWithRetry always asks for a backoff retry until the scheduler
// runs its schedule dry.
type OneOffTaskWithRetry struct{}

func (t *OneOffTaskWithRetry) Execute(_ context.Context, execution tasks.ExecutionContext) (tasks.ExecutionContext, error) {
	zap.S().Named("bakery").Infof("one off task with retry executed")

	return tasks.NewBuilder().
		From(execution).
		WithStatus(tasks.StatusInProgress).
		WithShouldRetry(true).
		Build()
}

func (t *OneOffTaskWithRetry) RetryDelaysSeconds() []int64 {
	return []int64{10, 20, 30}
}

// RegisterAll binds every sample task into the registry.
func RegisterAll(r *tasks.Registry) {
	r.Register(StepSwitchOvenOn, &SwitchOvenOnTask{})
	r.Register(StepGetIngredients, &GetIngredientsTask{})
	r.Register(StepCakeMade, &SliceAndEatCakeTask{})
	r.Register(TaskOneOff, &OneOffTask{})
	r.Register(TaskOneOffWithRetry, &OneOffTaskWithRetry{})
}
