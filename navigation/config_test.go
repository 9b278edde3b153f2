package navigation

import (
	"testing"
	"time"

	"go.viam.com/test"
)

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	test.That(t, cfg.Validate("navigation"), test.ShouldBeNil)

	for _, tc := range []struct {
		name   string
		mutate func(*Config)
	}{
		{"no particles", func(c *Config) { c.NumParticles = 0 }},
		{"no update rate", func(c *Config) { c.UpdateRateHz = 0 }},
		{"no tolerance", func(c *Config) { c.PositionTolerance = 0 }},
		{"no planning budget", func(c *Config) { c.MaxPlanningIterations = 0 }},
		{"no recovery attempts", func(c *Config) { c.MaxRecoveryAttempts = 0 }},
		{"no serial retries", func(c *Config) { c.SerialMaxRetries = 0 }},
		{"max speed too high", func(c *Config) { c.MaxSpeed = 300 }},
		{"max speed zero", func(c *Config) { c.MaxSpeed = 0 }},
		{"min above max", func(c *Config) { c.MinSpeed = 250 }},
		{"negative min speed", func(c *Config) { c.MinSpeed = -1 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			bad := DefaultConfig()
			tc.mutate(&bad)
			test.That(t, bad.Validate("navigation"), test.ShouldNotBeNil)
		})
	}
}

func TestConfigDurations(t *testing.T) {
	cfg := DefaultConfig()
	test.That(t, cfg.updatePeriod(), test.ShouldEqual, 100*time.Millisecond)
	test.That(t, cfg.recoveryRetryDelay(), test.ShouldEqual, time.Second)
	test.That(t, cfg.maxStuckTime(), test.ShouldEqual, 10*time.Second)
	test.That(t, cfg.collisionBackupTime(), test.ShouldEqual, time.Second)

	cfg.UpdateRateHz = 20
	test.That(t, cfg.updatePeriod(), test.ShouldEqual, 50*time.Millisecond)
}

func TestConfigSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	loc := cfg.localizationConfig()
	test.That(t, loc.NumParticles, test.ShouldEqual, cfg.NumParticles)
	test.That(t, loc.MeasurementNoise, test.ShouldEqual, cfg.MeasurementNoise)

	opts := cfg.plannerOptions()
	test.That(t, opts.Clearance, test.ShouldEqual, cfg.ObstacleClearance)
	test.That(t, opts.MaxIterations, test.ShouldEqual, cfg.MaxPlanningIterations)
	test.That(t, opts.PositionTolerance, test.ShouldEqual, cfg.PositionTolerance)
}
