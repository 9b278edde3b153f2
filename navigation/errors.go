package navigation

import (
	"fmt"

	"github.com/pkg/errors"
)

// The navigation core surfaces five typed failures. The first four are
// recoverable by the outer retry loop in NavigateTo; NavigationError is
// terminal.

// LocalizationFailureError means the particle filter diverged and could not
// be recovered within the configured relocalization attempts.
type LocalizationFailureError struct {
	Attempts int
	Err      error
}

func (e *LocalizationFailureError) Error() string {
	return fmt.Sprintf("localization could not be recovered after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the underlying cause.
func (e *LocalizationFailureError) Unwrap() error { return e.Err }

// PathPlanningFailureError means no path was found, or no valid start/goal
// position exists nearby.
type PathPlanningFailureError struct {
	Err error
}

func (e *PathPlanningFailureError) Error() string {
	return fmt.Sprintf("path planning failed: %v", e.Err)
}

// Unwrap returns the underlying cause.
func (e *PathPlanningFailureError) Unwrap() error { return e.Err }

// GoalUnreachableError means pursuit could not make progress: the robot
// stalled, or the path was exhausted without reaching the goal within the
// replan budget.
type GoalUnreachableError struct {
	Reason string
}

func (e *GoalUnreachableError) Error() string {
	return "goal unreachable: " + e.Reason
}

// ObstacleCollisionError means the near-field sensor triggered an emergency
// stop and recovery (back up + replan) did not succeed.
type ObstacleCollisionError struct {
	DistanceM float64
	Err       error
}

func (e *ObstacleCollisionError) Error() string {
	msg := fmt.Sprintf("obstacle detected at %.2fm, emergency stop", e.DistanceM)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *ObstacleCollisionError) Unwrap() error { return e.Err }

// NavigationError is a motor/serial communication failure or an unexpected
// internal fault. It is not retried.
type NavigationError struct {
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation error: %v", e.Err)
}

// Unwrap returns the underlying cause.
func (e *NavigationError) Unwrap() error { return e.Err }

// IsRecoverable reports whether the outer NavigateTo retry loop should retry
// after this error.
func IsRecoverable(err error) bool {
	var (
		locErr  *LocalizationFailureError
		planErr *PathPlanningFailureError
		goalErr *GoalUnreachableError
		obsErr  *ObstacleCollisionError
	)
	return errors.As(err, &locErr) ||
		errors.As(err, &planErr) ||
		errors.As(err, &goalErr) ||
		errors.As(err, &obsErr)
}
