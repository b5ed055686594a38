package service

import (
	"fmt"

	"deadline-planner/internal/model"
)

// TransitionPolicy decides which status changes the controller accepts.
type TransitionPolicy interface {
	Allow(from, to model.Status) error
}

// AnyTransition accepts every change between known statuses.
type AnyTransition struct{}

func (AnyTransition) Allow(from, to model.Status) error {
	if !to.Valid() {
		return NewValidationError("status", fmt.Sprintf("unknown status %q", to))
	}
	return nil
}

// StrictTransitions keeps closed tasks closed. Use TaskService.Reopen to
// bring a completed or cancelled task back.
type StrictTransitions struct{}

func (StrictTransitions) Allow(from, to model.Status) error {
	if err := (AnyTransition{}).Allow(from, to); err != nil {
		return err
	}
	if from.Terminal() && from != to {
		return NewValidationError("status", fmt.Sprintf("cannot move a %s task to %s, reopen it first", from, to))
	}
	return nil
}
