package capture

import (
	"sync/atomic"

	"github.com/cepro/weighcapture/telemetry"
)

// Latest holds the most recent complete reading of a provider. It is written by the sampling loop and read by
// callers without either side blocking the other.
type Latest struct {
	reading atomic.Pointer[telemetry.WeightReading]
}

// Store replaces the held reading with a copy of `reading`.
func (l *Latest) Store(reading telemetry.WeightReading) {
	c := reading.Clone()
	l.reading.Store(&c)
}

// Load returns a copy of the held reading, and false if there is none.
func (l *Latest) Load() (telemetry.WeightReading, bool) {
	r := l.reading.Load()
	if r == nil {
		return telemetry.WeightReading{}, false
	}
	return r.Clone(), true
}

// Get is Load, returning ErrNoReading when there is no reading.
func (l *Latest) Get() (telemetry.WeightReading, error) {
	reading, ok := l.Load()
	if !ok {
		return telemetry.WeightReading{}, ErrNoReading
	}
	return reading, nil
}

func (l *Latest) Clear() {
	l.reading.Store(nil)
}

// TareWeight holds an optional tare weight that is applied to subsequent readings.
type TareWeight struct {
	weight atomic.Pointer[float64]
}

func (t *TareWeight) Set(weight float64) error {
	if err := ValidateWeight(weight); err != nil {
		return err
	}
	t.weight.Store(&weight)
	return nil
}

func (t *TareWeight) Clear() {
	t.weight.Store(nil)
}

// Load returns the tare weight, or nil if none has been supplied.
func (t *TareWeight) Load() *float64 {
	w := t.weight.Load()
	if w == nil {
		return nil
	}
	c := *w
	return &c
}

// StateCell holds a provider's lifecycle state so that it can be read without waiting on a transition in progress.
// Transitions themselves are serialized by the provider.
type StateCell struct {
	state atomic.Int32
}

func (c *StateCell) Load() State {
	return State(c.state.Load())
}

func (c *StateCell) Store(s State) {
	c.state.Store(int32(s))
}
