package scale

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cepro/weighcapture/capture"
)

// axleShares is how the simulated gross weight is spread over the axles, steering axle first.
var axleShares = [NumAxles]float64{0.15, 0.2125, 0.2125, 0.2125, 0.2125}

// MockConnection looks like a scale but produces fake data.
type MockConnection struct {
	Latency    time.Duration // simulated network delay of every exchange
	BaseWeight float64
	Jitter     float64 // readings vary uniformly by +/- Jitter around BaseWeight

	mu          sync.Mutex
	connected   bool
	offset      float64
	failConnect bool
	failReads   bool
	reads       int
	rand        *rand.Rand
}

func NewMockConnection() *MockConnection {
	return &MockConnection{
		Latency:    50 * time.Millisecond,
		BaseWeight: 42000,
		Jitter:     250,
		offset:     12.5,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetFailConnect makes subsequent Connect calls fail.
func (m *MockConnection) SetFailConnect(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failConnect = fail
}

// SetFailReads makes subsequent reads fail, as if the scale had dropped off the network.
func (m *MockConnection) SetFailReads(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failReads = fail
}

// Reads returns the number of successful reads.
func (m *MockConnection) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

func (m *MockConnection) Connect(ctx context.Context) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failConnect {
		return errors.New("connection refused")
	}
	m.connected = true
	return nil
}

func (m *MockConnection) ReadWeights(ctx context.Context) (Weights, error) {
	if err := m.wait(ctx); err != nil {
		return Weights{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return Weights{}, capture.ErrNotConnected
	}
	if m.failReads {
		return Weights{}, errors.New("read timed out")
	}

	gross := m.BaseWeight + (m.rand.Float64()*2-1)*m.Jitter
	axles := make([]float64, NumAxles)
	for i, share := range axleShares {
		axles[i] = gross * share
	}
	m.reads++

	return Weights{
		Gross:      gross,
		Axles:      axles,
		ZeroOffset: m.offset,
		Stable:     true,
	}, nil
}

func (m *MockConnection) Calibrate(ctx context.Context) (float64, float64, error) {
	if err := m.wait(ctx); err != nil {
		return 0, 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return 0, 0, capture.ErrNotConnected
	}
	if m.failReads {
		return 0, 0, fmt.Errorf("calibration exchange: read timed out")
	}

	previous := m.offset
	// re-zeroing leaves a small residual offset
	m.offset = (m.rand.Float64()*2 - 1) * 0.5
	return previous, m.offset, nil
}

func (m *MockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

func (m *MockConnection) wait(ctx context.Context) error {
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
