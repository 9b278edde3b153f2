package navigation

import (
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/relaybot/navcore/control"
	"github.com/relaybot/navcore/localization"
	"github.com/relaybot/navcore/motionplan"
)

var (
	errMaxSpeedRange = errors.New("max_speed must be in (0, 255]")
	errMinSpeedRange = errors.New("min_speed must be in [0, max_speed]")
)

// Config tunes the whole navigation core. All distances are meters, angles
// radians, speeds on the 0..255 motor command scale, and durations seconds.
type Config struct {
	NumParticles           int     `json:"num_particles"`
	MotionNoiseTranslation float64 `json:"motion_noise_translation"`
	MotionNoiseRotation    float64 `json:"motion_noise_rotation"`
	MeasurementNoise       float64 `json:"measurement_noise"`
	ResampleThreshold      float64 `json:"resample_threshold"`

	ObstacleClearance     float64 `json:"obstacle_clearance"`
	ObstacleMinDistance   float64 `json:"obstacle_min_distance"`
	MaxPlanningIterations int     `json:"max_planning_iterations"`
	PositionTolerance     float64 `json:"position_tolerance"`

	MaxRecoveryAttempts   int     `json:"max_recovery_attempts"`
	RecoveryRetryDelaySec float64 `json:"recovery_retry_delay_secs"`

	PIDLinear  control.Gains `json:"pid_linear"`
	PIDAngular control.Gains `json:"pid_angular"`

	MaxSpeed float64 `json:"max_speed"`
	MinSpeed float64 `json:"min_speed"`

	MaxStuckTimeSec    float64 `json:"max_stuck_time_secs"`
	StuckThreshold     float64 `json:"stuck_threshold"`
	UpdateRateHz       float64 `json:"navigation_update_rate"`
	CollisionBackupSec float64 `json:"collision_backup_secs"`

	IREmergencyStopDistance float64 `json:"ir_emergency_stop_distance"`
	SerialMaxRetries        int     `json:"serial_max_retries"`
}

// DefaultConfig returns the tuning used on the delivery robot.
func DefaultConfig() Config {
	return Config{
		NumParticles:           100,
		MotionNoiseTranslation: 0.05,
		MotionNoiseRotation:    0.02,
		MeasurementNoise:       0.2,
		ResampleThreshold:      0.5,

		ObstacleClearance:     0.15,
		ObstacleMinDistance:   0.3,
		MaxPlanningIterations: 10000,
		PositionTolerance:     0.15,

		MaxRecoveryAttempts:   3,
		RecoveryRetryDelaySec: 1.0,

		PIDLinear:  control.Gains{Kp: 0.8, Ki: 0.01, Kd: 0.1},
		PIDAngular: control.Gains{Kp: 1.5, Ki: 0.01, Kd: 0.2},

		MaxSpeed: 200,
		MinSpeed: 60,

		MaxStuckTimeSec:    10,
		StuckThreshold:     0.05,
		UpdateRateHz:       10,
		CollisionBackupSec: 1.0,

		IREmergencyStopDistance: 0.15,
		SerialMaxRetries:        3,
	}
}

// Validate ensures all parts of the config are usable.
func (cfg *Config) Validate(path string) error {
	if cfg.NumParticles <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "num_particles")
	}
	if cfg.UpdateRateHz <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "navigation_update_rate")
	}
	if cfg.PositionTolerance <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "position_tolerance")
	}
	if cfg.MaxPlanningIterations <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "max_planning_iterations")
	}
	if cfg.MaxRecoveryAttempts <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "max_recovery_attempts")
	}
	if cfg.SerialMaxRetries <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "serial_max_retries")
	}
	if cfg.MaxSpeed <= 0 || cfg.MaxSpeed > 255 {
		return goutils.NewConfigValidationError(path, errMaxSpeedRange)
	}
	if cfg.MinSpeed < 0 || cfg.MinSpeed > cfg.MaxSpeed {
		return goutils.NewConfigValidationError(path, errMinSpeedRange)
	}
	return nil
}

func (cfg *Config) updatePeriod() time.Duration {
	return time.Duration(float64(time.Second) / cfg.UpdateRateHz)
}

func (cfg *Config) recoveryRetryDelay() time.Duration {
	return time.Duration(cfg.RecoveryRetryDelaySec * float64(time.Second))
}

func (cfg *Config) maxStuckTime() time.Duration {
	return time.Duration(cfg.MaxStuckTimeSec * float64(time.Second))
}

func (cfg *Config) collisionBackupTime() time.Duration {
	return time.Duration(cfg.CollisionBackupSec * float64(time.Second))
}

func (cfg *Config) localizationConfig() localization.Config {
	return localization.Config{
		NumParticles:           cfg.NumParticles,
		MotionNoiseTranslation: cfg.MotionNoiseTranslation,
		MotionNoiseRotation:    cfg.MotionNoiseRotation,
		MeasurementNoise:       cfg.MeasurementNoise,
		ResampleThreshold:      cfg.ResampleThreshold,
	}
}

func (cfg *Config) plannerOptions() motionplan.Options {
	return motionplan.Options{
		Clearance:         cfg.ObstacleClearance,
		MaxIterations:     cfg.MaxPlanningIterations,
		PositionTolerance: cfg.PositionTolerance,
		SearchRadius:      1.0,
	}
}
