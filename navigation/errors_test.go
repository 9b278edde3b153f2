package navigation

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestIsRecoverable(t *testing.T) {
	recoverable := []error{
		&LocalizationFailureError{Attempts: 3, Err: errors.New("divergent")},
		&PathPlanningFailureError{Err: errors.New("no path")},
		&GoalUnreachableError{Reason: "stalled"},
		&ObstacleCollisionError{DistanceM: 0.1},
	}
	for _, err := range recoverable {
		test.That(t, IsRecoverable(err), test.ShouldBeTrue)
		// wrapping keeps the classification
		test.That(t, IsRecoverable(errors.Wrap(err, "context")), test.ShouldBeTrue)
	}

	test.That(t, IsRecoverable(&NavigationError{Err: errors.New("serial dead")}), test.ShouldBeFalse)
	test.That(t, IsRecoverable(errors.New("plain")), test.ShouldBeFalse)
	test.That(t, IsRecoverable(nil), test.ShouldBeFalse)
}

func TestErrorMessages(t *testing.T) {
	err := &ObstacleCollisionError{DistanceM: 0.12}
	test.That(t, err.Error(), test.ShouldContainSubstring, "0.12m")

	cause := errors.New("replanning found no path")
	err = &ObstacleCollisionError{DistanceM: 0.12, Err: cause}
	test.That(t, err.Error(), test.ShouldContainSubstring, cause.Error())
	test.That(t, errors.Is(err, cause), test.ShouldBeTrue)

	locErr := &LocalizationFailureError{Attempts: 3, Err: errors.New("still divergent")}
	test.That(t, locErr.Error(), test.ShouldContainSubstring, "3 attempts")
	test.That(t, errors.Unwrap(locErr), test.ShouldNotBeNil)
}
