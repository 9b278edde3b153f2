// Package motor defines the command sink for the drive microcontroller.
// The wire protocol lives upstream; the navigation core only issues
// abstract differential drive commands.
package motor

import "context"

// SensorData is one auxiliary sensor report from the motor controller.
type SensorData struct {
	// IRDistanceCM is the forward IR proximity reading in centimeters.
	IRDistanceCM float64 `json:"ir"`
}

// Sink is the command channel to the drive microcontroller. Speeds are
// magnitudes on the 0..255 scale; directions are 1 for forward and 0 for
// reverse. Implementations are owned by the caller and injected at
// construction; the core holds no global connection state.
type Sink interface {
	SendMotorCommand(ctx context.Context, leftSpeed, rightSpeed, leftDir, rightDir uint8) error
	// ReadSensorData returns the latest sensor report, or (nil, nil) when
	// none is available.
	ReadSensorData(ctx context.Context) (*SensorData, error)
}
