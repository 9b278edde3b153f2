// Package control provides the PID controllers driving the waypoint pursuit
// loop, one instance per control axis.
package control

import "sync"

// Gains holds the tuning constants for one PID axis.
type Gains struct {
	Kp float64 `json:"kp"`
	Ki float64 `json:"ki"`
	Kd float64 `json:"kd"`
}

// PID is a discrete PID controller:
//
//	output = Kp*e + Ki*integral(e dt) + Kd*de/dt
//
// Output clamping is left to the caller; the speed mixing layer applies the
// robot's speed limits.
type PID struct {
	mu       sync.Mutex
	gains    Gains
	integral float64
	prevErr  float64
}

// NewPID returns a controller with zeroed state.
func NewPID(gains Gains) *PID {
	return &PID{gains: gains}
}

// Update advances the controller by one step of dt seconds and returns the
// control output for the given error.
func (p *PID) Update(err, dt float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	pTerm := p.gains.Kp * err

	p.integral += err * dt
	iTerm := p.gains.Ki * p.integral

	var derivative float64
	if dt > 0 {
		derivative = (err - p.prevErr) / dt
	}
	dTerm := p.gains.Kd * derivative

	p.prevErr = err
	return pTerm + iTerm + dTerm
}

// Reset clears the integral accumulator and previous error. Called between
// navigation invocations.
func (p *PID) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.integral = 0
	p.prevErr = 0
}
