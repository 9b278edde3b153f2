// Package lidar defines the scanner measurements consumed by the navigation
// core. Packet decoding happens upstream; the core only sees decoded
// range/bearing/intensity samples.
package lidar

import (
	"context"

	"github.com/golang/geo/r2"
)

// Measurement is one decoded scanner sample. Angle is the beam bearing in
// radians in the sensor frame (relative to the robot heading); Distance is
// in meters and never negative.
type Measurement struct {
	Distance  float64
	Angle     float64
	Intensity uint8
}

// Measurements is a full rotation of samples.
type Measurements []Measurement

// Device is the scanner collaborator. Implementations are owned by the
// caller; the core only reads from them.
type Device interface {
	// Scan returns the most recent full scan, or an empty scan when none
	// is available yet.
	Scan(ctx context.Context) (Measurements, error)
	// Obstacles returns robot-relative positions of scan returns closer
	// than minDistance.
	Obstacles(ctx context.Context, minDistance float64) ([]r2.Point, error)
}
