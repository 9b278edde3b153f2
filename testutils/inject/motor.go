package inject

import (
	"context"
	"sync"

	"github.com/relaybot/navcore/motor"
)

// MotorSink is an injected motor command sink. When SendMotorCommandFunc is
// nil, commands are recorded and succeed; Commands returns the recording.
type MotorSink struct {
	motor.Sink
	SendMotorCommandFunc func(ctx context.Context, leftSpeed, rightSpeed, leftDir, rightDir uint8) error
	ReadSensorDataFunc   func(ctx context.Context) (*motor.SensorData, error)

	mu       sync.Mutex
	commands []MotorCommand
}

// MotorCommand is one recorded drive command.
type MotorCommand struct {
	LeftSpeed, RightSpeed uint8
	LeftDir, RightDir     uint8
}

// IsZero reports whether the command stops both wheels.
func (c MotorCommand) IsZero() bool {
	return c.LeftSpeed == 0 && c.RightSpeed == 0
}

// SendMotorCommand records the command and calls the injected function if
// any.
func (m *MotorSink) SendMotorCommand(ctx context.Context, leftSpeed, rightSpeed, leftDir, rightDir uint8) error {
	m.mu.Lock()
	m.commands = append(m.commands, MotorCommand{leftSpeed, rightSpeed, leftDir, rightDir})
	m.mu.Unlock()
	if m.SendMotorCommandFunc == nil {
		return nil
	}
	return m.SendMotorCommandFunc(ctx, leftSpeed, rightSpeed, leftDir, rightDir)
}

// ReadSensorData calls the injected function; with none injected there is
// no sensor report.
func (m *MotorSink) ReadSensorData(ctx context.Context) (*motor.SensorData, error) {
	if m.ReadSensorDataFunc == nil {
		return nil, nil
	}
	return m.ReadSensorDataFunc(ctx)
}

// Commands returns a copy of every command received so far.
func (m *MotorSink) Commands() []MotorCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MotorCommand, len(m.commands))
	copy(out, m.commands)
	return out
}
