package navigation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/relaybot/navcore/control"
	"github.com/relaybot/navcore/spatialmath"
	navutils "github.com/relaybot/navcore/utils"
)

const (
	// maxReplans bounds how many times one pursuit may replan before the
	// goal is declared unreachable.
	maxReplans = 5
	// collisionBackupSpeed is the wheel magnitude used to back away from a
	// near-field obstacle.
	collisionBackupSpeed = 50
	// stallCheckInterval is how often displacement is compared against the
	// stuck threshold.
	stallCheckInterval = time.Second
)

// wheelCommand is one differential drive command: wheel magnitudes on the
// 0..255 scale plus directions (1 forward, 0 reverse).
type wheelCommand struct {
	left, right       uint8
	leftDir, rightDir uint8
}

// mixWheelSpeeds converts the PID outputs into a differential wheel
// command. The linear term is clamped into [minSpeed, maxSpeed] and halved
// when the angular error exceeds 45 degrees; the angular term splits the
// wheels around it.
func mixWheelSpeeds(linearControl, angularControl, angularErr, maxSpeed, minSpeed float64) wheelCommand {
	linearSpeed := navutils.Clamp(linearControl*maxSpeed, minSpeed, maxSpeed)
	if math.Abs(angularErr) > math.Pi/4 {
		linearSpeed *= 0.5
	}
	left := navutils.Clamp(linearSpeed-angularControl*maxSpeed*0.5, -maxSpeed, maxSpeed)
	right := navutils.Clamp(linearSpeed+angularControl*maxSpeed*0.5, -maxSpeed, maxSpeed)

	cmd := wheelCommand{leftDir: 1, rightDir: 1}
	if left < 0 {
		cmd.leftDir = 0
	}
	if right < 0 {
		cmd.rightDir = 0
	}
	cmd.left = uint8(math.Abs(left))
	cmd.right = uint8(math.Abs(right))
	return cmd
}

// navigateOnce is one full pursuit attempt: plan, then loop at the update
// rate until the goal is reached, a stop is requested, or a typed failure
// surfaces. Motors are zeroed on every failure path before the error
// propagates.
func (s *System) navigateOnce(ctx context.Context, target r2.Point) (bool, error) {
	s.logger.Infow("starting navigation", "x", target.X, "y", target.Y)
	s.stopped.Store(false)

	pose := s.localizer.Pose()
	if pose.DistanceTo(target) < s.cfg.PositionTolerance {
		s.logger.Info("already at target position")
		goutils.UncheckedError(s.Stop())
		return true, nil
	}

	path, err := s.planOn(s.obstacleLayer(ctx), pose.Point(), target)
	if err != nil {
		goutils.UncheckedError(s.Stop())
		return false, err
	}
	if len(path) == 0 {
		s.logger.Error("no path to target")
		goutils.UncheckedError(s.Stop())
		return false, nil
	}
	s.logger.Infow("path planned", "waypoints", len(path))

	linearPID := control.NewPID(s.cfg.PIDLinear)
	angularPID := control.NewPID(s.cfg.PIDAngular)

	waypointIdx := 0
	replans := 0

	lastPos := pose.Point()
	var stalled time.Duration
	lastStallCheck := s.clock.Now()

	period := s.cfg.updatePeriod()
	dt := period.Seconds()

	for !s.stopped.Load() {
		if err := ctx.Err(); err != nil {
			goutils.UncheckedError(s.Stop())
			return false, err
		}
		loopStart := time.Now()

		if err := s.UpdateLocalization(ctx); err != nil {
			goutils.UncheckedError(s.Stop())
			return false, err
		}
		pose = s.localizer.Pose()

		if d := pose.DistanceTo(target); d < s.cfg.PositionTolerance {
			s.logger.Infow("goal reached", "distance", d)
			goutils.UncheckedError(s.Stop())
			return true, nil
		}

		// Past the last waypoint without reaching the goal: replan.
		if waypointIdx >= len(path) {
			s.logger.Warn("path exhausted before goal")
			if replans >= maxReplans {
				goutils.UncheckedError(s.Stop())
				return false, &GoalUnreachableError{Reason: "replan budget exhausted before reaching goal"}
			}
			newPath, err := s.planOn(s.obstacleLayer(ctx), pose.Point(), target)
			if err != nil {
				goutils.UncheckedError(s.Stop())
				return false, err
			}
			if len(newPath) == 0 {
				goutils.UncheckedError(s.Stop())
				return false, &GoalUnreachableError{Reason: "replanning found no path to goal"}
			}
			path = newPath
			waypointIdx = 0
			replans++
			continue
		}

		waypoint := path[waypointIdx]
		distToWaypoint := pose.DistanceTo(waypoint)
		if distToWaypoint < s.cfg.PositionTolerance {
			s.logger.Debugw("waypoint reached", "index", waypointIdx+1, "of", len(path))
			waypointIdx++
			continue
		}

		angularErr := spatialmath.NormalizeAngle(pose.BearingTo(waypoint) - pose.Theta)
		linearControl := linearPID.Update(distToWaypoint, dt)
		angularControl := angularPID.Update(angularErr, dt)
		cmd := mixWheelSpeeds(linearControl, angularControl, angularErr, s.cfg.MaxSpeed, s.cfg.MinSpeed)

		// Near-field safety gate before every motor command.
		if collisionErr := s.checkEmergencyStop(ctx); collisionErr != nil {
			newPath, err := s.recoverFromCollision(ctx, collisionErr, target, &replans)
			if err != nil {
				s.stopped.Store(true)
				return false, err
			}
			path = newPath
			waypointIdx = 0
			continue
		}

		if err := s.sendWheelCommand(ctx, cmd); err != nil {
			s.logger.Errorw("cannot command motors", "error", err)
			goutils.UncheckedError(s.Stop())
			return false, &NavigationError{Err: err}
		}

		// Stall detection, once per second.
		now := s.clock.Now()
		if sinceLast := now.Sub(lastStallCheck); sinceLast >= stallCheckInterval {
			if moved := pose.DistanceTo(lastPos); moved < s.cfg.StuckThreshold {
				stalled += sinceLast
				s.stuckDetections++
				s.logger.Warnw("possible stall", "stalled", stalled, "detections", s.stuckDetections)
				if stalled >= s.cfg.maxStuckTime() {
					goutils.UncheckedError(s.Stop())
					return false, &GoalUnreachableError{
						Reason: fmt.Sprintf("stalled at (%.2f, %.2f) for %s", pose.X, pose.Y, stalled),
					}
				}
			} else {
				stalled = 0
				if s.stuckDetections > 0 {
					s.logger.Info("movement recovered")
					s.stuckDetections = 0
				}
			}
			lastPos = pose.Point()
			lastStallCheck = now
		}

		// Mid-path replanning when live obstacles block the remainder.
		layer := s.obstacleLayer(ctx)
		if s.pathBlocked(layer, path[waypointIdx:]) {
			s.logger.Warn("obstacle blocks remaining path")
			if replans < maxReplans {
				newPath, err := s.planOn(layer, pose.Point(), target)
				if err == nil && len(newPath) > 0 {
					path = newPath
					waypointIdx = 0
					replans++
					s.logger.Info("path replanned around obstacle")
				} else {
					s.logger.Warn("replanning failed, continuing on stale path")
				}
			} else {
				s.logger.Warn("replan budget exhausted, continuing on stale path")
			}
		}

		if elapsed := time.Since(loopStart); elapsed < period {
			if !goutils.SelectContextOrWait(ctx, period-elapsed) {
				goutils.UncheckedError(s.Stop())
				return false, ctx.Err()
			}
		}
	}

	s.logger.Warn("navigation interrupted by stop request")
	ctxStop, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	goutils.UncheckedError(s.zeroMotors(ctxStop))
	return false, nil
}

// checkEmergencyStop polls the IR proximity sensor. A read failure is
// logged and ignored; a reading under the emergency threshold produces an
// ObstacleCollisionError for the recovery path.
func (s *System) checkEmergencyStop(ctx context.Context) *ObstacleCollisionError {
	data, err := s.motors.ReadSensorData(ctx)
	if err != nil {
		s.logger.Warnw("cannot read sensor data", "error", err)
		return nil
	}
	if data == nil {
		return nil
	}
	distM := data.IRDistanceCM / 100
	if distM < s.cfg.IREmergencyStopDistance {
		s.logger.Errorw("obstacle inside emergency range", "distance_m", distM)
		return &ObstacleCollisionError{DistanceM: distM}
	}
	return nil
}

// recoverFromCollision zeroes the motors, backs the robot away from the
// obstacle, and replans from the new pose. The motors are always zeroed
// before any error propagates.
func (s *System) recoverFromCollision(
	ctx context.Context,
	collisionErr *ObstacleCollisionError,
	target r2.Point,
	replans *int,
) ([]r2.Point, error) {
	zeroErr := s.zeroMotors(ctx)
	if zeroErr != nil {
		s.logger.Errorw("cannot zero motors after collision", "error", zeroErr)
		collisionErr.Err = errors.New("emergency stop could not zero motors")
		return nil, multierr.Append(error(collisionErr), zeroErr)
	}

	s.logger.Info("backing away from obstacle")
	if err := s.motors.SendMotorCommand(ctx, collisionBackupSpeed, collisionBackupSpeed, 0, 0); err != nil {
		s.logger.Errorw("cannot back away from obstacle", "error", err)
		return nil, collisionErr
	}
	goutils.SelectContextOrWait(ctx, s.cfg.collisionBackupTime())
	if err := s.zeroMotors(ctx); err != nil {
		s.logger.Errorw("cannot zero motors after backup", "error", err)
	}

	if *replans >= maxReplans {
		collisionErr.Err = errors.New("replan budget exhausted after collision")
		return nil, collisionErr
	}
	newPath, err := s.planOn(s.obstacleLayer(ctx), s.localizer.Pose().Point(), target)
	if err != nil {
		collisionErr.Err = err
		return nil, collisionErr
	}
	if len(newPath) == 0 {
		collisionErr.Err = errors.New("replanning after collision found no path")
		return nil, collisionErr
	}
	*replans++
	s.logger.Info("replanned after collision")
	return newPath, nil
}

// sendWheelCommand sends one drive command with bounded retries and
// exponential backoff.
func (s *System) sendWheelCommand(ctx context.Context, cmd wheelCommand) error {
	return navutils.RetryWithBackoff(ctx, s.logger, s.cfg.SerialMaxRetries, s.cfg.recoveryRetryDelay(),
		func(ctx context.Context) error {
			return s.motors.SendMotorCommand(ctx, cmd.left, cmd.right, cmd.leftDir, cmd.rightDir)
		})
}
