// Package manual implements weight capture from values typed in by an operator.
package manual

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cepro/weighcapture/capture"
	"github.com/cepro/weighcapture/metrics"
	"github.com/cepro/weighcapture/telemetry"
	"github.com/google/uuid"
)

// Confidence is the lowest of all sources: nothing independently verifies what the operator entered.
const Confidence = 0.5

type Config struct {
	Operator string `json:"operator" yaml:"operator"` // recorded against calibrations when the context names nobody
}

// Provider synthesizes readings from operator supplied values. There is nothing to poll: every setter rebuilds the
// current reading straight away. A reading exists once a gross weight has been entered.
type Provider struct {
	id     string
	config Config
	opts   capture.Options
	logger *slog.Logger

	mu    sync.Mutex
	state capture.State
	gross *float64
	axles []float64

	latest capture.Latest
	tare   capture.TareWeight
}

func New(id string, config Config, opts capture.Options) *Provider {
	return &Provider{
		id:     id,
		config: config,
		opts:   opts,
		logger: opts.LoggerOrDefault("device_id", id, "capture_method", telemetry.CaptureMethodManual),
	}
}

func (p *Provider) DeviceID() string {
	return p.id
}

func (p *Provider) Method() telemetry.CaptureMethod {
	return telemetry.CaptureMethodManual
}

func (p *Provider) State() capture.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Initialize always succeeds on a provider that has not been closed.
func (p *Provider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == capture.StateClosed {
		return capture.ErrClosed
	}
	if p.state == capture.StateUninitialized {
		p.state = capture.StateInitialized
		p.logger.Info("Ready for manual entry")
	}
	return nil
}

// StartCapture marks the provider as capturing and synthesizes a reading from the values entered so far.
func (p *Provider) StartCapture(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.state.Ready(); err != nil {
		return err
	}
	p.state = capture.StateCapturing
	p.recompute(ctx)
	return nil
}

func (p *Provider) CurrentReading() (telemetry.WeightReading, error) {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()

	if state == capture.StateUninitialized {
		return telemetry.WeightReading{}, capture.ErrNotInitialized
	}
	return p.latest.Get()
}

// StopCapture clears the current reading. The entered values are kept, so the next setter call or StartCapture
// brings the reading back.
func (p *Provider) StopCapture() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != capture.StateCapturing {
		return
	}
	p.state = capture.StateInitialized
	p.latest.Clear()
}

// Calibrate has nothing to adjust and always succeeds with zero offsets.
func (p *Provider) Calibrate(ctx context.Context) (telemetry.CalibrationResult, error) {
	if err := p.State().Ready(); err != nil {
		return telemetry.CalibrationResult{}, err
	}

	result := telemetry.CalibrationResult{
		Success:     true,
		Timestamp:   time.Now(),
		PerformedBy: capture.PerformedBy(ctx, p.config.Operator),
	}
	metrics.CalibrationCompleted(string(telemetry.CaptureMethodManual), true)

	return result, nil
}

func (p *Provider) SetGrossWeight(weight float64) error {
	if err := capture.ValidateWeight(weight); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.state.Ready(); err != nil {
		return err
	}
	p.gross = &weight
	p.recompute(context.Background())
	return nil
}

func (p *Provider) SetTareWeight(weight float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.state.Ready(); err != nil {
		return err
	}
	if err := p.tare.Set(weight); err != nil {
		return err
	}
	p.recompute(context.Background())
	return nil
}

func (p *Provider) ClearTareWeight() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.tare.Clear()
	if p.state.Ready() == nil {
		p.recompute(context.Background())
	}
}

// SetAxleWeights replaces the per axle breakdown, steering axle first. An empty slice removes it.
func (p *Provider) SetAxleWeights(weights []float64) error {
	for _, w := range weights {
		if err := capture.ValidateWeight(w); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.state.Ready(); err != nil {
		return err
	}
	p.axles = slices.Clone(weights)
	p.recompute(context.Background())
	return nil
}

// Close clears the reading. The provider cannot be used afterwards.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = capture.StateClosed
	p.latest.Clear()
	return nil
}

// recompute rebuilds the current reading from the entered values. The caller holds p.mu.
func (p *Provider) recompute(ctx context.Context) {
	if p.gross == nil {
		return
	}

	reading := telemetry.WeightReading{
		ID:            uuid.New(),
		Timestamp:     time.Now(),
		Unit:          telemetry.UnitPounds,
		GrossWeight:   *p.gross,
		AxleWeights:   p.opts.AxleLimits.Readings(p.axles),
		Confidence:    Confidence,
		DeviceID:      p.id,
		CaptureMethod: telemetry.CaptureMethodManual,
		LocationData:  capture.Locate(ctx, p.opts.Location, p.logger),
	}
	if p.config.Operator != "" {
		reading.RawSensorData = map[string]interface{}{"enteredBy": p.config.Operator}
	}
	reading.SetTare(p.tare.Load())

	p.latest.Store(reading)
	p.logger.Debug("Updated manual reading", "gross_weight", reading.GrossWeight)
}
