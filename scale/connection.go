package scale

import (
	"context"
	"fmt"
)

// NumAxles is the size of the axle array reported by the scale.
const NumAxles = 5

// Weights is a single sample taken from the scale.
type Weights struct {
	Gross      float64
	Axles      []float64
	ZeroOffset float64
	Stable     bool
}

// Connection is the link to the scale hardware.
type Connection interface {
	Connect(ctx context.Context) error
	ReadWeights(ctx context.Context) (Weights, error)
	Calibrate(ctx context.Context) (previousOffset, newOffset float64, err error)
	Close() error
}

// NewConnection returns the connection that matches the configured protocol.
func NewConnection(config Config) (Connection, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scale config: %w", err)
	}

	switch config.protocol() {
	case ProtocolSimulated:
		return NewMockConnection(), nil
	default:
		return newModbusConnection(config)
	}
}
