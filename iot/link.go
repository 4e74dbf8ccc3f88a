package iot

import (
	"context"
)

// Telemetry is a single sample from a wireless load sensor array.
type Telemetry struct {
	Axles          []float64 // per axle load, steering axle first
	ZeroOffset     float64
	BatteryLevel   float64 // percent
	SignalStrength float64 // dBm
	Temperature    float64 // degrees C
	Humidity       float64 // percent relative humidity
}

// Gross returns the total load over all axles.
func (t Telemetry) Gross() float64 {
	gross := 0.0
	for _, axle := range t.Axles {
		gross += axle
	}
	return gross
}

// Link is the wireless connection to the sensor array.
type Link interface {
	Pair(ctx context.Context) error
	Sample(ctx context.Context) (Telemetry, error)
	Calibrate(ctx context.Context) (previousOffset, newOffset float64, err error)
	Close() error
}

// NewLink returns the link that matches the configured transport.
func NewLink(config Config) (Link, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Transport {
	case TransportSimulated:
		return NewMockLink(config.Axles), nil
	default:
		return newGatewayLink(config), nil
	}
}
