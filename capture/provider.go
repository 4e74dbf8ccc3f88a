// Package capture defines the contract shared by every weight capture backend, and the small pieces of
// machinery (sampling loop, last reading cell, tare cell) that the backends are built from.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/cepro/weighcapture/telemetry"
)

// Provider is implemented by every weight capture backend.
//
// A provider must be initialized before any other call. StartCapture begins sampling (or, for sources that have
// nothing to poll, simply marks the provider as ready), CurrentReading never blocks and returns the most recently
// completed sample, and StopCapture halts sampling. Calibrate is permitted whenever the provider is initialized.
type Provider interface {
	Initialize(ctx context.Context) error
	StartCapture(ctx context.Context) error
	CurrentReading() (telemetry.WeightReading, error)
	StopCapture()
	Calibrate(ctx context.Context) (telemetry.CalibrationResult, error)
}

// Describer is implemented by providers that can report which device they are and how they capture.
type Describer interface {
	DeviceID() string
	Method() telemetry.CaptureMethod
}

// TareSetter is implemented by providers that accept a previously captured tare weight.
type TareSetter interface {
	SetTareWeight(weight float64) error
	ClearTareWeight()
}

var (
	ErrNotInitialized = errors.New("weight capture provider not initialized")
	ErrNoReading      = errors.New("weight capture not started or no reading available")
	ErrNotConnected   = errors.New("weight capture provider has no live connection")
	ErrClosed         = errors.New("weight capture provider closed")
	ErrInvalidWeight  = errors.New("invalid weight")
)

// State is the lifecycle state of a provider.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateCapturing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateCapturing:
		return "capturing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Ready returns nil if a provider in this state may calibrate or start capturing, otherwise the error naming the
// missing precondition.
func (s State) Ready() error {
	switch s {
	case StateInitialized, StateCapturing:
		return nil
	case StateClosed:
		return ErrClosed
	default:
		return ErrNotInitialized
	}
}

// Options are the settings shared by all providers. Zero values fall back to the provider defaults.
type Options struct {
	Interval   time.Duration        // the sampling period of polling providers
	Location   LocationSource       // optional, readings have no location data when nil
	AxleLimits telemetry.AxleLimits // statutory limits used for axle readings
	Logger     *slog.Logger
}

// IntervalOrDefault returns the configured interval, or `def` if none was given.
func (o Options) IntervalOrDefault(def time.Duration) time.Duration {
	if o.Interval <= 0 {
		return def
	}
	return o.Interval
}

// LoggerOrDefault returns the configured logger, or the default logger annotated with the given attributes.
func (o Options) LoggerOrDefault(args ...any) *slog.Logger {
	if o.Logger != nil {
		return o.Logger.With(args...)
	}
	return slog.Default().With(args...)
}

// ValidateWeight rejects weights that cannot have come from a vehicle.
func ValidateWeight(weight float64) error {
	if weight < 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
		return ErrInvalidWeight
	}
	return nil
}
