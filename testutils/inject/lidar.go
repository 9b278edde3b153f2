package inject

import (
	"context"

	"github.com/golang/geo/r2"

	"github.com/relaybot/navcore/lidar"
)

// Lidar is an injected scanner device.
type Lidar struct {
	lidar.Device
	ScanFunc      func(ctx context.Context) (lidar.Measurements, error)
	ObstaclesFunc func(ctx context.Context, minDistance float64) ([]r2.Point, error)
}

// Scan calls the injected Scan or the real version.
func (l *Lidar) Scan(ctx context.Context) (lidar.Measurements, error) {
	if l.ScanFunc == nil {
		return l.Device.Scan(ctx)
	}
	return l.ScanFunc(ctx)
}

// Obstacles calls the injected Obstacles or the real version.
func (l *Lidar) Obstacles(ctx context.Context, minDistance float64) ([]r2.Point, error) {
	if l.ObstaclesFunc == nil {
		return l.Device.Obstacles(ctx, minDistance)
	}
	return l.ObstaclesFunc(ctx, minDistance)
}
