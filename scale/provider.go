package scale

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cepro/weighcapture/capture"
	"github.com/cepro/weighcapture/metrics"
	"github.com/cepro/weighcapture/telemetry"
	"github.com/google/uuid"
)

const (
	DefaultInterval = 1 * time.Second

	// Confidence is attached to every scale reading: a certified load cell is the most reliable source.
	Confidence = 0.98
)

// Provider captures weights from a network attached digital scale.
//
// Once capture is started the scale is sampled every interval; each sample replaces the last reading. A sample that
// fails is logged and the previous reading is kept until a new sample succeeds.
type Provider struct {
	id     string
	config Config
	conn   Connection
	opts   capture.Options
	logger *slog.Logger

	// mu serializes lifecycle transitions, which may wait on I/O. Readers only load state.
	mu    sync.Mutex
	state capture.StateCell

	loop   *capture.Loop
	latest capture.Latest
	tare   capture.TareWeight
}

// New returns a provider for the scale reachable over `conn`.
func New(id string, config Config, conn Connection, opts capture.Options) *Provider {
	p := &Provider{
		id:     id,
		config: config,
		conn:   conn,
		opts:   opts,
		logger: opts.LoggerOrDefault("device_id", id, "capture_method", telemetry.CaptureMethodScale, "host", config.Host()),
	}
	p.loop = capture.NewLoop(opts.IntervalOrDefault(DefaultInterval), p.sample)
	return p
}

// NewFromConfig creates the connection described by `config` and returns a provider for it.
func NewFromConfig(id string, config Config, opts capture.Options) (*Provider, error) {
	conn, err := NewConnection(config)
	if err != nil {
		return nil, err
	}
	if opts.Interval == 0 {
		opts.Interval = config.PollInterval()
	}
	return New(id, config, conn, opts), nil
}

func (p *Provider) DeviceID() string {
	return p.id
}

func (p *Provider) Method() telemetry.CaptureMethod {
	return telemetry.CaptureMethodScale
}

// Config returns a copy of the connection parameters.
func (p *Provider) Config() Config {
	return p.config
}

func (p *Provider) State() capture.State {
	return p.state.Load()
}

// Initialize connects to the scale. Calling it on an initialized provider does nothing.
func (p *Provider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state.Load() {
	case capture.StateClosed:
		return capture.ErrClosed
	case capture.StateInitialized, capture.StateCapturing:
		return nil
	}

	p.logger.Info("Connecting to scale...")

	err := p.conn.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect to scale %s: %w", p.config.Host(), err)
	}

	p.state.Store(capture.StateInitialized)
	p.logger.Info("Connected to scale")

	return nil
}

// StartCapture starts sampling the scale. Sampling continues until StopCapture or until ctx is cancelled.
func (p *Provider) StartCapture(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.state.Load().Ready(); err != nil {
		return err
	}

	if p.loop.Start(ctx) {
		p.logger.Info("Started weight capture")
	}
	p.state.Store(capture.StateCapturing)

	return nil
}

func (p *Provider) CurrentReading() (telemetry.WeightReading, error) {
	state := p.state.Load()

	if state == capture.StateUninitialized {
		return telemetry.WeightReading{}, capture.ErrNotInitialized
	}
	return p.latest.Get()
}

// StopCapture stops sampling. The last reading remains available.
func (p *Provider) StopCapture() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.Load() != capture.StateCapturing {
		return
	}
	p.loop.Stop()
	p.state.Store(capture.StateInitialized)
	p.logger.Info("Stopped weight capture")
}

// Calibrate re-zeroes the scale and reports the zero offset before and after as returned by the scale.
func (p *Provider) Calibrate(ctx context.Context) (telemetry.CalibrationResult, error) {
	state := p.state.Load()

	if err := state.Ready(); err != nil {
		return telemetry.CalibrationResult{}, err
	}

	result := telemetry.CalibrationResult{
		PerformedBy: capture.PerformedBy(ctx, ""),
	}

	previous, next, err := p.conn.Calibrate(ctx)
	result.Timestamp = time.Now()
	metrics.CalibrationCompleted(string(telemetry.CaptureMethodScale), err == nil)
	if err != nil {
		p.logger.Error("Failed to calibrate scale", "error", err)
		return result, fmt.Errorf("calibrate scale: %w", err)
	}

	result.Success = true
	result.PreviousOffset = previous
	result.NewOffset = next

	p.logger.Info("Calibrated scale", "previous_offset", previous, "new_offset", next, "performed_by", result.PerformedBy)

	return result, nil
}

func (p *Provider) SetTareWeight(weight float64) error {
	return p.tare.Set(weight)
}

func (p *Provider) ClearTareWeight() {
	p.tare.Clear()
}

// Close stops sampling and disconnects from the scale. The provider cannot be used afterwards.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.Load() == capture.StateClosed {
		return nil
	}
	p.loop.Stop()
	p.state.Store(capture.StateClosed)

	err := p.conn.Close()
	if err != nil {
		return fmt.Errorf("close scale connection: %w", err)
	}
	return nil
}

// sample is called by the loop on every tick.
func (p *Provider) sample(ctx context.Context) {
	start := time.Now()

	weights, err := p.conn.ReadWeights(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// capture was stopped mid-read
			return
		}
		metrics.SampleFailed(string(telemetry.CaptureMethodScale))
		p.logger.Error("Failed to read scale", "error", err)
		return // try again next time
	}

	metrics.SampleSucceeded(string(telemetry.CaptureMethodScale), time.Since(start))

	p.latest.Store(p.newReading(ctx, weights))
}

// newReading converts a sample from the scale into a normalized weight reading.
func (p *Provider) newReading(ctx context.Context, weights Weights) telemetry.WeightReading {
	reading := telemetry.WeightReading{
		ID:            uuid.New(),
		Timestamp:     time.Now(),
		Unit:          telemetry.UnitPounds,
		GrossWeight:   weights.Gross,
		AxleWeights:   p.opts.AxleLimits.Readings(weights.Axles),
		Confidence:    Confidence,
		DeviceID:      p.id,
		CaptureMethod: telemetry.CaptureMethodScale,
		LocationData:  capture.Locate(ctx, p.opts.Location, p.logger),
		RawSensorData: map[string]interface{}{
			"protocol":   p.config.protocol(),
			"zeroOffset": weights.ZeroOffset,
			"stable":     weights.Stable,
		},
	}
	reading.SetTare(p.tare.Load())
	return reading
}
