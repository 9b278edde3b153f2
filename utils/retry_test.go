package utils

import (
	"context"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestRetryWithBackoffEventualSuccess(t *testing.T) {
	logger := golog.NewTestLogger(t)
	attempts := 0
	err := RetryWithBackoff(context.Background(), logger, 3, time.Millisecond,
		func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("not yet")
			}
			return nil
		})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, attempts, test.ShouldEqual, 3)
}

func TestRetryWithBackoffExhaustion(t *testing.T) {
	logger := golog.NewTestLogger(t)
	attempts := 0
	expected := errors.New("always failing")
	err := RetryWithBackoff(context.Background(), logger, 3, time.Millisecond,
		func(ctx context.Context) error {
			attempts++
			return expected
		})
	test.That(t, err, test.ShouldEqual, expected)
	test.That(t, attempts, test.ShouldEqual, 3)
}

func TestRetryWithBackoffContextCancel(t *testing.T) {
	logger := golog.NewTestLogger(t)
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := RetryWithBackoff(ctx, logger, 5, time.Hour,
		func(ctx context.Context) error {
			attempts++
			cancel()
			return errors.New("fail then hang in backoff")
		})
	test.That(t, err, test.ShouldEqual, context.Canceled)
	test.That(t, attempts, test.ShouldEqual, 1)
}
