// Package navigation composes the localizer, planner, and pursuit
// controller into the navigation core of the delivery robot, and implements
// its layered failure recovery policy.
package navigation

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	goutils "go.viam.com/utils"
	"golang.org/x/exp/rand"

	"github.com/relaybot/navcore/grid"
	"github.com/relaybot/navcore/lidar"
	"github.com/relaybot/navcore/localization"
	"github.com/relaybot/navcore/motionplan"
	"github.com/relaybot/navcore/motor"
	"github.com/relaybot/navcore/odometry"
	"github.com/relaybot/navcore/spatialmath"
	navutils "github.com/relaybot/navcore/utils"
)

// System is the navigation core. It exclusively owns the occupancy grid,
// the particle set, and the PID controllers; the odometry, scanner, and
// motor collaborators are owned by the caller and injected here.
//
// NavigateTo runs a blocking pursuit loop and is expected to run on a
// dedicated goroutine; CurrentPosition and Stop are safe to call
// concurrently from the caller's goroutine.
type System struct {
	logger    golog.Logger
	cfg       Config
	grid      *grid.Grid
	localizer *localization.ParticleFilter
	planner   *motionplan.Planner
	odom      odometry.Source
	scanner   lidar.Device
	motors    motor.Sink
	clock     clock.Clock

	stopped atomic.Bool

	// failure bookkeeping, reset between outer retry attempts
	planFailures    int
	stuckDetections int
}

// NewSystem loads the map document at mapPath and builds a navigation core
// around it.
func NewSystem(
	mapPath string,
	odom odometry.Source,
	scanner lidar.Device,
	motors motor.Sink,
	cfg Config,
	logger golog.Logger,
) (*System, error) {
	mapCfg, err := grid.LoadMapConfig(mapPath)
	if err != nil {
		return nil, err
	}
	g, err := grid.NewGrid(mapCfg)
	if err != nil {
		return nil, err
	}
	return NewSystemFromGrid(g, odom, scanner, motors, cfg, logger)
}

// NewSystemFromGrid builds a navigation core over an already constructed
// occupancy grid.
func NewSystemFromGrid(
	g *grid.Grid,
	odom odometry.Source,
	scanner lidar.Device,
	motors motor.Sink,
	cfg Config,
	logger golog.Logger,
) (*System, error) {
	if err := cfg.Validate("navigation"); err != nil {
		return nil, err
	}
	localizer, err := localization.NewParticleFilter(
		g,
		odom,
		scanner,
		cfg.localizationConfig(),
		logger,
		rand.NewSource(uint64(time.Now().UnixNano())),
	)
	if err != nil {
		return nil, err
	}
	s := &System{
		logger:    logger,
		cfg:       cfg,
		grid:      g,
		localizer: localizer,
		planner:   motionplan.NewPlanner(cfg.plannerOptions(), logger),
		odom:      odom,
		scanner:   scanner,
		motors:    motors,
		clock:     clock.New(),
	}
	s.stopped.Store(true)
	logger.Infow("navigation system initialized",
		"grid", g.Width()*g.Height(), "particles", cfg.NumParticles)
	return s, nil
}

// CurrentPosition returns the latest pose estimate. Safe for concurrent use
// with a running NavigateTo.
func (s *System) CurrentPosition() spatialmath.Pose {
	return s.localizer.Pose()
}

// Stop requests a cooperative stop of any running navigation and zeroes the
// motors. Zeroing is best effort: the returned error is informational and
// Stop leaves the system stopped regardless.
func (s *System) Stop() error {
	s.logger.Warn("stop requested")
	s.stopped.Store(true)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.zeroMotors(ctx); err != nil {
		s.logger.Errorw("cannot zero motors on stop", "error", err)
		return err
	}
	return nil
}

func (s *System) zeroMotors(ctx context.Context) error {
	return s.motors.SendMotorCommand(ctx, 0, 0, 0, 0)
}

// UpdateLocalization runs one localization tick and, on divergence, the
// relocalization recovery ladder. A LocalizationFailureError is returned
// once recovery attempts are exhausted.
func (s *System) UpdateLocalization(ctx context.Context) error {
	if err := s.localizer.Update(ctx); err != nil {
		return &LocalizationFailureError{Attempts: 1, Err: err}
	}
	if s.localizer.Healthy() {
		return nil
	}
	err := navutils.RetryWithBackoff(ctx, s.logger, s.cfg.MaxRecoveryAttempts, s.cfg.recoveryRetryDelay(),
		func(ctx context.Context) error {
			return s.localizer.Relocalize(ctx)
		})
	if err != nil {
		return &LocalizationFailureError{Attempts: s.cfg.MaxRecoveryAttempts, Err: err}
	}
	return nil
}

// PlanPath plans a path over the static map. Transient obstacles are only
// considered by NavigateTo's internal planning.
func (s *System) PlanPath(ctx context.Context, start, goal r2.Point) ([]r2.Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.planOn(s.grid, start, goal)
}

// planOn runs the planner over the given grid (static or a transient
// obstacle layer) and tracks consecutive planning failures. A single
// exhausted search yields an empty path and no error; once
// MaxRecoveryAttempts consecutive searches fail, a PathPlanningFailureError
// surfaces. An unusable start/goal fails immediately.
func (s *System) planOn(g *grid.Grid, start, goal r2.Point) ([]r2.Point, error) {
	path, err := s.planner.PlanPath(g, start, goal)
	if err != nil {
		if errors.Is(err, motionplan.ErrIterationLimit) || errors.Is(err, motionplan.ErrNoPath) {
			s.planFailures++
			s.logger.Warnw("planning failed", "consecutive", s.planFailures, "error", err)
			if s.planFailures >= s.cfg.MaxRecoveryAttempts {
				return nil, &PathPlanningFailureError{Err: err}
			}
			return nil, nil
		}
		return nil, &PathPlanningFailureError{Err: err}
	}
	s.planFailures = 0
	return path, nil
}

// NavigateTo drives the robot to the target position. It retries the
// pursuit on the four recoverable failures with exponential backoff,
// resetting the failure sub-counters between attempts; the last attempt's
// error propagates. The boolean result reports whether the goal was
// reached.
func (s *System) NavigateTo(ctx context.Context, x, y float64) (bool, error) {
	target := r2.Point{X: x, Y: y}
	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxRecoveryAttempts; attempt++ {
		reached, err := s.navigateOnce(ctx, target)
		if err == nil {
			return reached, nil
		}
		if !IsRecoverable(err) {
			s.logger.Errorw("unrecoverable navigation failure", "error", err)
			return false, err
		}
		lastErr = err
		s.logger.Errorw("navigation attempt failed",
			"attempt", attempt+1, "max", s.cfg.MaxRecoveryAttempts, "error", err)
		if attempt == s.cfg.MaxRecoveryAttempts-1 {
			break
		}
		delay := s.cfg.recoveryRetryDelay() << attempt
		s.logger.Infow("retrying navigation", "delay", delay)
		if !goutils.SelectContextOrWait(ctx, delay) {
			return false, ctx.Err()
		}
		s.planFailures = 0
		s.stuckDetections = 0
	}
	return false, lastErr
}
