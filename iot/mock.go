package iot

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/cepro/weighcapture/capture"
)

// MockLink looks like a paired sensor array but produces fake data.
type MockLink struct {
	Latency    time.Duration
	AxleWeight float64 // mean load per axle
	Jitter     float64 // each axle varies uniformly by +/- Jitter

	mu        sync.Mutex
	axles     int
	paired    bool
	offset    float64
	battery   float64
	failPair  bool
	failReads bool
	samples   int
	rand      *rand.Rand
}

func NewMockLink(axles int) *MockLink {
	return &MockLink{
		Latency:    20 * time.Millisecond,
		AxleWeight: 8000,
		Jitter:     120,
		axles:      axles,
		offset:     -3.2,
		battery:    96,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetFailPair makes subsequent Pair calls fail.
func (m *MockLink) SetFailPair(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPair = fail
}

// SetFailReads makes subsequent samples fail, as if the sensors were out of radio range.
func (m *MockLink) SetFailReads(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failReads = fail
}

// Samples returns the number of successful samples.
func (m *MockLink) Samples() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.samples
}

func (m *MockLink) Pair(ctx context.Context) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPair {
		return errors.New("no response from sensor")
	}
	m.paired = true
	return nil
}

func (m *MockLink) Sample(ctx context.Context) (Telemetry, error) {
	if err := m.wait(ctx); err != nil {
		return Telemetry{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.paired {
		return Telemetry{}, capture.ErrNotConnected
	}
	if m.failReads {
		return Telemetry{}, errors.New("sensor out of range")
	}

	axles := make([]float64, m.axles)
	for i := range axles {
		axles[i] = m.AxleWeight + (m.rand.Float64()*2-1)*m.Jitter
	}
	if m.battery > 5 {
		m.battery -= 0.01
	}
	m.samples++

	return Telemetry{
		Axles:          axles,
		ZeroOffset:     m.offset,
		BatteryLevel:   m.battery,
		SignalStrength: -60 - m.rand.Float64()*20,
		Temperature:    18 + m.rand.Float64()*4,
		Humidity:       45 + m.rand.Float64()*10,
	}, nil
}

func (m *MockLink) Calibrate(ctx context.Context) (float64, float64, error) {
	if err := m.wait(ctx); err != nil {
		return 0, 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.paired {
		return 0, 0, capture.ErrNotConnected
	}
	if m.failReads {
		return 0, 0, errors.New("sensor out of range")
	}

	previous := m.offset
	m.offset = (m.rand.Float64()*2 - 1) * 0.25
	return previous, m.offset, nil
}

func (m *MockLink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paired = false
	return nil
}

func (m *MockLink) wait(ctx context.Context) error {
	if m.Latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.Latency):
		return nil
	}
}
