package navigation

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.viam.com/test"

	"github.com/relaybot/navcore/grid"
	"github.com/relaybot/navcore/lidar"
	"github.com/relaybot/navcore/motor"
	"github.com/relaybot/navcore/spatialmath"
	"github.com/relaybot/navcore/testutils/inject"
)

func emptyTestGrid(t *testing.T, obstacles ...grid.RectObstacle) *grid.Grid {
	t.Helper()
	g, err := grid.NewGrid(grid.MapConfig{
		Resolution: 0.1,
		Width:      10,
		Height:     10,
		Obstacles:  obstacles,
	})
	test.That(t, err, test.ShouldBeNil)
	return g
}

// fastTestConfig is the default tuning with noise zeroed for determinism and
// all waits shrunk so pursuit loops run in milliseconds.
func fastTestConfig() Config {
	cfg := DefaultConfig()
	cfg.NumParticles = 25
	cfg.MotionNoiseTranslation = 0
	cfg.MotionNoiseRotation = 0
	cfg.UpdateRateHz = 1000
	cfg.RecoveryRetryDelaySec = 0.001
	cfg.CollisionBackupSec = 0.005
	cfg.MaxRecoveryAttempts = 1
	return cfg
}

func staticOdometry(pose spatialmath.Pose) *inject.Odometry {
	return &inject.Odometry{
		PoseFunc: func(ctx context.Context) (spatialmath.Pose, error) {
			return pose, nil
		},
	}
}

func quietLidar() *inject.Lidar {
	return &inject.Lidar{
		ScanFunc: func(ctx context.Context) (lidar.Measurements, error) {
			return nil, nil
		},
		ObstaclesFunc: func(ctx context.Context, minDistance float64) ([]r2.Point, error) {
			return nil, nil
		},
	}
}

func newTestSystem(
	t *testing.T,
	g *grid.Grid,
	odom *inject.Odometry,
	scanner *inject.Lidar,
	motors *inject.MotorSink,
	cfg Config,
) *System {
	t.Helper()
	s, err := NewSystemFromGrid(g, odom, scanner, motors, cfg, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return s
}

func TestMixWheelSpeeds(t *testing.T) {
	// straight ahead at full tilt
	cmd := mixWheelSpeeds(1.0, 0, 0, 200, 60)
	test.That(t, cmd, test.ShouldResemble, wheelCommand{left: 200, right: 200, leftDir: 1, rightDir: 1})

	// the minimum speed floor applies near the goal
	cmd = mixWheelSpeeds(0.01, 0, 0, 200, 60)
	test.That(t, cmd.left, test.ShouldEqual, uint8(60))
	test.That(t, cmd.right, test.ShouldEqual, uint8(60))

	// large heading error halves the linear speed
	cmd = mixWheelSpeeds(1.0, 0, math.Pi/2, 200, 60)
	test.That(t, cmd.left, test.ShouldEqual, uint8(100))
	test.That(t, cmd.right, test.ShouldEqual, uint8(100))

	// a left turn slows the left wheel and speeds the right
	cmd = mixWheelSpeeds(0.5, 1.0, 0, 200, 60)
	test.That(t, cmd.left, test.ShouldEqual, uint8(0))
	test.That(t, cmd.right, test.ShouldEqual, uint8(200))
	test.That(t, cmd.leftDir, test.ShouldEqual, uint8(1))

	// a hard right turn reverses the right wheel
	cmd = mixWheelSpeeds(0.3, -2.0, 0, 200, 60)
	test.That(t, cmd.left, test.ShouldEqual, uint8(200))
	test.That(t, cmd.right, test.ShouldEqual, uint8(140))
	test.That(t, cmd.rightDir, test.ShouldEqual, uint8(0))
}

func TestNavigateToAlreadyThere(t *testing.T) {
	var obstacleCalls atomic.Int64
	scanner := quietLidar()
	scanner.ObstaclesFunc = func(ctx context.Context, minDistance float64) ([]r2.Point, error) {
		obstacleCalls.Inc()
		return nil, nil
	}
	motors := &inject.MotorSink{}
	s := newTestSystem(t, emptyTestGrid(t), staticOdometry(spatialmath.Pose{}), scanner, motors, fastTestConfig())

	reached, err := s.NavigateTo(context.Background(), 0.05, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reached, test.ShouldBeTrue)

	// no planning happened and the motors only ever saw the stop
	test.That(t, obstacleCalls.Load(), test.ShouldEqual, 0)
	cmds := motors.Commands()
	test.That(t, len(cmds), test.ShouldBeGreaterThanOrEqualTo, 1)
	for _, cmd := range cmds {
		test.That(t, cmd.IsZero(), test.ShouldBeTrue)
	}
}

func TestNavigateToReachesGoal(t *testing.T) {
	poses := []spatialmath.Pose{{}, {X: 2.5, Y: 2.5}, {X: 5, Y: 5}}
	calls := 0
	odom := &inject.Odometry{
		PoseFunc: func(ctx context.Context) (spatialmath.Pose, error) {
			idx := calls
			if idx >= len(poses) {
				idx = len(poses) - 1
			}
			calls++
			return poses[idx], nil
		},
	}
	motors := &inject.MotorSink{}
	s := newTestSystem(t, emptyTestGrid(t), odom, quietLidar(), motors, fastTestConfig())

	reached, err := s.NavigateTo(context.Background(), 5, 5)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reached, test.ShouldBeTrue)

	cmds := motors.Commands()
	test.That(t, len(cmds), test.ShouldBeGreaterThanOrEqualTo, 2)
	// at least one real drive command, and a final stop
	driven := false
	for _, cmd := range cmds {
		if !cmd.IsZero() {
			driven = true
		}
	}
	test.That(t, driven, test.ShouldBeTrue)
	test.That(t, cmds[len(cmds)-1].IsZero(), test.ShouldBeTrue)
	test.That(t, s.CurrentPosition().X, test.ShouldAlmostEqual, 5, 1e-6)
}

func TestNavigateToStallDetection(t *testing.T) {
	mock := clock.NewMock()
	odom := &inject.Odometry{
		PoseFunc: func(ctx context.Context) (spatialmath.Pose, error) {
			// the robot never moves while time marches on
			mock.Add(time.Second)
			return spatialmath.Pose{}, nil
		},
	}
	motors := &inject.MotorSink{}
	cfg := fastTestConfig()
	cfg.MaxStuckTimeSec = 2
	s := newTestSystem(t, emptyTestGrid(t), odom, quietLidar(), motors, cfg)
	s.clock = mock

	reached, err := s.NavigateTo(context.Background(), 5, 5)
	test.That(t, reached, test.ShouldBeFalse)

	var goalErr *GoalUnreachableError
	test.That(t, errors.As(err, &goalErr), test.ShouldBeTrue)
	test.That(t, goalErr.Reason, test.ShouldContainSubstring, "stalled")
	test.That(t, IsRecoverable(err), test.ShouldBeTrue)

	cmds := motors.Commands()
	test.That(t, cmds[len(cmds)-1].IsZero(), test.ShouldBeTrue)
}

func TestNavigateToEmergencyStop(t *testing.T) {
	motors := &inject.MotorSink{
		ReadSensorDataFunc: func(ctx context.Context) (*motor.SensorData, error) {
			// a box 5cm ahead, well inside the emergency threshold
			return &motor.SensorData{IRDistanceCM: 5}, nil
		},
	}
	s := newTestSystem(t, emptyTestGrid(t), staticOdometry(spatialmath.Pose{}), quietLidar(), motors, fastTestConfig())

	reached, err := s.NavigateTo(context.Background(), 5, 5)
	test.That(t, reached, test.ShouldBeFalse)

	var obsErr *ObstacleCollisionError
	test.That(t, errors.As(err, &obsErr), test.ShouldBeTrue)
	test.That(t, obsErr.DistanceM, test.ShouldAlmostEqual, 0.05)
	test.That(t, IsRecoverable(err), test.ShouldBeTrue)

	cmds := motors.Commands()
	test.That(t, cmds[len(cmds)-1].IsZero(), test.ShouldBeTrue)
	// recovery backed the robot away in reverse at least once
	backedUp := false
	for _, cmd := range cmds {
		if cmd.LeftSpeed == collisionBackupSpeed && cmd.LeftDir == 0 && cmd.RightDir == 0 {
			backedUp = true
		}
	}
	test.That(t, backedUp, test.ShouldBeTrue)
}

func TestNavigateToMotorFailure(t *testing.T) {
	serialDead := errors.New("serial write failed")
	motors := &inject.MotorSink{
		SendMotorCommandFunc: func(ctx context.Context, l, r, ld, rd uint8) error {
			return serialDead
		},
	}
	cfg := fastTestConfig()
	cfg.MaxRecoveryAttempts = 3
	s := newTestSystem(t, emptyTestGrid(t), staticOdometry(spatialmath.Pose{}), quietLidar(), motors, cfg)

	reached, err := s.NavigateTo(context.Background(), 5, 5)
	test.That(t, reached, test.ShouldBeFalse)

	var navErr *NavigationError
	test.That(t, errors.As(err, &navErr), test.ShouldBeTrue)
	// terminal failures are not retried
	test.That(t, IsRecoverable(err), test.ShouldBeFalse)
	test.That(t, errors.Is(err, serialDead), test.ShouldBeTrue)
}

func TestNavigateToContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	motors := &inject.MotorSink{}
	s := newTestSystem(t, emptyTestGrid(t), staticOdometry(spatialmath.Pose{}), quietLidar(), motors, fastTestConfig())

	reached, err := s.NavigateTo(ctx, 5, 5)
	test.That(t, reached, test.ShouldBeFalse)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}

func TestStop(t *testing.T) {
	motors := &inject.MotorSink{}
	s := newTestSystem(t, emptyTestGrid(t), staticOdometry(spatialmath.Pose{}), quietLidar(), motors, fastTestConfig())

	test.That(t, s.Stop(), test.ShouldBeNil)
	test.That(t, s.stopped.Load(), test.ShouldBeTrue)
	cmds := motors.Commands()
	test.That(t, cmds, test.ShouldHaveLength, 1)
	test.That(t, cmds[0].IsZero(), test.ShouldBeTrue)
}
