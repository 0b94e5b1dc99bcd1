package bakery

import (
	"encoding/json"
	"time"

	"github.com/craftbase/task-scheduler/internal/tasks"
)

// The cake workflow advances through these steps in order; the last step
// completes the job.
const (
	StepSwitchOvenOn   = "SWITCH_OVEN_ON"
	StepGetIngredients = "GET_INGREDIENTS"
	StepCakeMade       = "CAKE_MADE"
)

var stepOrder = []string{StepSwitchOvenOn, StepGetIngredients, StepCakeMade}

func FirstStep() string {
	return stepOrder[0]
}

func nextStep(current string) string {
	for i, step := range stepOrder {
		if step == current && i+1 < len(stepOrder) {
			return stepOrder[i+1]
		}
	}
	return stepOrder[len(stepOrder)-1]
}

// StepData returns the default payload each step runs with.
func StepData(step string) any {
	switch step {
	case StepSwitchOvenOn:
		return OvenSettings{DegreesCelsius: 210, ShelfNumber: 2, UseSteamFunction: true}
	case StepGetIngredients:
		return Ingredients{Items: []string{"250g plain flour", "125g butter", "1Tbsp baking powder", "100g sugar", "2 eggs"}}
	case StepCakeMade:
		return SliceCake{Slices: 6}
	default:
		return nil
	}
}

// nextExecution derives the context for the step after prev. The last step
// reports the job completed instead.
func nextExecution(prev tasks.ExecutionContext) (tasks.ExecutionContext, error) {
	status := tasks.StatusInProgress
	if prev.TaskName() == StepCakeMade {
		status = tasks.StatusCompleted
	}

	next := nextStep(prev.TaskName())
	data, err := json.Marshal(StepData(next))
	if err != nil {
		return tasks.ExecutionContext{}, err
	}

	return tasks.NewBuilder().
		From(prev).
		WithJobData(data).
		WithTaskName(next).
		WithStartTime(time.Now()).
		WithStatus(status).
		Build()
}
