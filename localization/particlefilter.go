// Package localization implements Monte Carlo localization: a particle
// filter fusing differential-drive odometry with scanner range measurements
// against the static occupancy grid.
package localization

import (
	"context"
	"math"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/relaybot/navcore/grid"
	"github.com/relaybot/navcore/lidar"
	"github.com/relaybot/navcore/odometry"
	"github.com/relaybot/navcore/spatialmath"
)

const (
	// maxScanBeams bounds how many beams of a scan the measurement update
	// ray-casts per particle.
	maxScanBeams = 12
	// weightFloor keeps a particle's likelihood from collapsing to zero.
	weightFloor = 1e-10
	// rayCastMaxRange is the expected-range cap used in the measurement
	// model.
	rayCastMaxRange = 10.0
	// divergenceStdDev is the weighted positional standard deviation above
	// which the filter is considered divergent.
	divergenceStdDev = 1.0
	// minEffectiveFraction is the effective-particle fraction below which
	// the filter is considered divergent.
	minEffectiveFraction = 0.1
	// relocalizeStdDev is the reseeding cloud spread.
	relocalizeStdDev = 0.5
	// relocalizeIterations is how many updates a relocalization runs before
	// rechecking health.
	relocalizeIterations = 5
)

// Config tunes a particle filter.
type Config struct {
	NumParticles           int
	MotionNoiseTranslation float64
	MotionNoiseRotation    float64
	MeasurementNoise       float64
	ResampleThreshold      float64
}

type particle struct {
	x, y, theta float64
	weight      float64
}

// ParticleFilter estimates the robot pose from odometry deltas and scanner
// measurements. The particle set is owned exclusively by the update loop;
// only the pose estimate is shared, under the mutex.
type ParticleFilter struct {
	cfg     Config
	grid    *grid.Grid
	odom    odometry.Source
	scanner lidar.Device
	logger  golog.Logger
	rnd     *rand.Rand

	particles []particle
	lastOdom  spatialmath.Pose
	hasOdom   bool

	mu       sync.Mutex
	estimate spatialmath.Pose
	healthy  bool
}

// NewParticleFilter seeds NumParticles particles as a Gaussian cloud around
// the origin with uniformly random headings.
func NewParticleFilter(
	g *grid.Grid,
	odom odometry.Source,
	scanner lidar.Device,
	cfg Config,
	logger golog.Logger,
	src rand.Source,
) (*ParticleFilter, error) {
	if cfg.NumParticles <= 0 {
		return nil, errors.New("particle count must be positive")
	}
	pf := &ParticleFilter{
		cfg:     cfg,
		grid:    g,
		odom:    odom,
		scanner: scanner,
		logger:  logger,
		rnd:     rand.New(src),
		healthy: true,
	}
	pf.reseed(spatialmath.Pose{}, cfg.MotionNoiseTranslation*2)
	return pf, nil
}

// Pose returns the current weighted pose estimate. Safe to call from any
// goroutine.
func (pf *ParticleFilter) Pose() spatialmath.Pose {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	return pf.estimate
}

// Healthy reports whether the last update passed the divergence checks.
func (pf *ParticleFilter) Healthy() bool {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	return pf.healthy
}

// SetPose overrides the estimate and re-bases the odometry delta tracking,
// e.g. when the robot is placed at a known position.
func (pf *ParticleFilter) SetPose(pose spatialmath.Pose) {
	pf.reseed(pose, pf.cfg.MotionNoiseTranslation*2)
	pf.mu.Lock()
	pf.estimate = pose
	pf.mu.Unlock()
}

// Update runs one localization tick: motion update from the odometry delta,
// measurement update from the latest scan (skipped when no scan is
// available), resampling when particle diversity drops, then the pose
// estimate and health check.
func (pf *ParticleFilter) Update(ctx context.Context) error {
	odomPose, err := pf.odom.Pose(ctx)
	if err != nil {
		return errors.Wrap(err, "cannot read odometry")
	}
	pf.applyMotion(odomPose)

	scan, err := pf.scanner.Scan(ctx)
	if err != nil {
		// A missed scan tick is not fatal; the motion update alone still
		// advances the filter.
		pf.logger.Debugw("scan unavailable, skipping measurement update", "error", err)
	} else if len(scan) > 0 {
		pf.applyMeasurement(scan)
	}

	if pf.effectiveParticles() < pf.cfg.ResampleThreshold*float64(len(pf.particles)) {
		pf.resample()
	}

	estimate := pf.estimatePose()
	healthy := pf.checkHealth(estimate)

	pf.mu.Lock()
	pf.estimate = estimate
	pf.healthy = healthy
	pf.mu.Unlock()
	return nil
}

// Relocalize reseeds the particle set as a wide Gaussian cloud around the
// last estimate and runs several update iterations. It returns an error if
// the filter is still divergent afterwards.
func (pf *ParticleFilter) Relocalize(ctx context.Context) error {
	pf.logger.Infow("relocalizing", "around", pf.Pose().String())
	pf.reseed(pf.Pose(), relocalizeStdDev)
	for i := 0; i < relocalizeIterations; i++ {
		if err := pf.Update(ctx); err != nil {
			return errors.Wrap(err, "relocalization update failed")
		}
	}
	if !pf.Healthy() {
		return errors.New("particle filter still divergent after relocalization")
	}
	pf.logger.Info("relocalization succeeded")
	return nil
}

func (pf *ParticleFilter) reseed(around spatialmath.Pose, sigma float64) {
	n := pf.cfg.NumParticles
	norm := distuv.Normal{Mu: 0, Sigma: sigma, Src: pf.rnd}
	particles := make([]particle, n)
	for i := range particles {
		particles[i] = particle{
			x:      around.X + sampleNormal(norm),
			y:      around.Y + sampleNormal(norm),
			theta:  pf.rnd.Float64() * 2 * math.Pi,
			weight: 1.0 / float64(n),
		}
	}
	pf.particles = particles
	pf.hasOdom = false
}

// sampleNormal tolerates a zero sigma, which distuv rejects; zero noise is
// how deterministic tests run the filter.
func sampleNormal(n distuv.Normal) float64 {
	if n.Sigma == 0 {
		return 0
	}
	return n.Rand()
}

func (pf *ParticleFilter) applyMotion(odomPose spatialmath.Pose) {
	if !pf.hasOdom {
		pf.lastOdom = odomPose
		pf.hasOdom = true
		return
	}
	deltaX := odomPose.X - pf.lastOdom.X
	deltaY := odomPose.Y - pf.lastOdom.Y
	deltaTheta := spatialmath.NormalizeAngle(odomPose.Theta - pf.lastOdom.Theta)
	pf.lastOdom = odomPose

	transNoise := distuv.Normal{Mu: 0, Sigma: pf.cfg.MotionNoiseTranslation, Src: pf.rnd}
	rotNoise := distuv.Normal{Mu: 0, Sigma: pf.cfg.MotionNoiseRotation, Src: pf.rnd}
	for i := range pf.particles {
		p := &pf.particles[i]
		p.x += deltaX + sampleNormal(transNoise)
		p.y += deltaY + sampleNormal(transNoise)
		p.theta = spatialmath.NormalizeAngle(p.theta + deltaTheta + sampleNormal(rotNoise))
	}
}

func (pf *ParticleFilter) applyMeasurement(scan lidar.Measurements) {
	for i := range pf.particles {
		p := &pf.particles[i]
		p.weight *= pf.scanLikelihood(p, scan)
	}

	var total float64
	for i := range pf.particles {
		total += pf.particles[i].weight
	}
	if total > 0 {
		for i := range pf.particles {
			pf.particles[i].weight /= total
		}
		return
	}
	// All weights collapsed; reset to uniform rather than dividing by zero.
	uniform := 1.0 / float64(len(pf.particles))
	for i := range pf.particles {
		pf.particles[i].weight = uniform
	}
}

// scanLikelihood compares observed ranges against ranges ray-cast from the
// particle's hypothetical pose, subsampling the scan to at most
// maxScanBeams beams.
func (pf *ParticleFilter) scanLikelihood(p *particle, scan lidar.Measurements) float64 {
	sampleSize := len(scan)
	if sampleSize > maxScanBeams {
		sampleSize = maxScanBeams
	}
	step := len(scan) / sampleSize

	likelihood := 1.0
	for i := 0; i < len(scan); i += step {
		m := scan[i]
		beamAngle := spatialmath.NormalizeAngle(p.theta + m.Angle)
		expected := pf.grid.RayCast(p.x, p.y, beamAngle, rayCastMaxRange)
		if expected <= 0 {
			continue
		}
		diff := math.Abs(m.Distance - expected)
		likelihood *= math.Exp(-0.5 * (diff / pf.cfg.MeasurementNoise) * (diff / pf.cfg.MeasurementNoise))
	}
	return math.Max(likelihood, weightFloor)
}

// effectiveParticles is 1/sum(w^2), a standard diversity measure; it equals
// the particle count for uniform weights and approaches 1 on collapse.
func (pf *ParticleFilter) effectiveParticles() float64 {
	var sumSquared float64
	for i := range pf.particles {
		w := pf.particles[i].weight
		sumSquared += w * w
	}
	if sumSquared <= 0 {
		return 0
	}
	return 1.0 / sumSquared
}

// resample performs low-variance resampling: N evenly spaced lottery
// tickets walk the cumulative weight array once, and winners are copied
// with uniform weights.
func (pf *ParticleFilter) resample() {
	n := len(pf.particles)
	weights := make([]float64, n)
	for i := range pf.particles {
		weights[i] = pf.particles[i].weight
	}
	cumulative := make([]float64, n)
	floats.CumSum(cumulative, weights)

	step := 1.0 / float64(n)
	start := pf.rnd.Float64() * step
	uniform := step

	resampled := make([]particle, 0, n)
	idx := 0
	for i := 0; i < n; i++ {
		target := start + float64(i)*step
		for idx < n-1 && cumulative[idx] < target {
			idx++
		}
		winner := pf.particles[idx]
		winner.weight = uniform
		resampled = append(resampled, winner)
	}
	pf.particles = resampled
	pf.logger.Debug("resampled particle set")
}

// estimatePose is the weighted mean position with a circular mean heading.
func (pf *ParticleFilter) estimatePose() spatialmath.Pose {
	var x, y, sinSum, cosSum float64
	for i := range pf.particles {
		p := &pf.particles[i]
		x += p.x * p.weight
		y += p.y * p.weight
		sinSum += math.Sin(p.theta) * p.weight
		cosSum += math.Cos(p.theta) * p.weight
	}
	return spatialmath.Pose{X: x, Y: y, Theta: math.Atan2(sinSum, cosSum)}
}

// checkHealth flags divergence when the weighted positional spread exceeds
// divergenceStdDev meters or particle diversity drops below
// minEffectiveFraction of the set.
func (pf *ParticleFilter) checkHealth(estimate spatialmath.Pose) bool {
	n := len(pf.particles)
	xs := make([]float64, n)
	ys := make([]float64, n)
	ws := make([]float64, n)
	for i := range pf.particles {
		xs[i] = pf.particles[i].x
		ys[i] = pf.particles[i].y
		ws[i] = pf.particles[i].weight
	}
	stdDev := math.Sqrt(stat.PopVariance(xs, ws) + stat.PopVariance(ys, ws))
	if stdDev > divergenceStdDev {
		pf.logger.Warnw("localization divergence detected", "stddev", stdDev)
		return false
	}
	if eff := pf.effectiveParticles(); eff < minEffectiveFraction*float64(n) {
		pf.logger.Warnw("low effective particle count", "effective", eff)
		return false
	}
	return true
}
