package iot

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
	DefaultInterval = 2 * time.Second

	// Confidence is attached to every sensor reading. The array is summed from individual axle pads so it is
	// slightly less reliable than a certified scale.
	Confidence = 0.92

	lowBattery = 15.0 // percent
)

// Provider captures weights from a wireless array of axle load sensors.
type Provider struct {
	id     string
	config Config
	link   Link
	opts   capture.Options
	logger *slog.Logger

	// mu serializes lifecycle transitions, which may wait on I/O. Readers only load state.
	mu    sync.Mutex
	state capture.StateCell

	loop   *capture.Loop
	latest capture.Latest
	tare   capture.TareWeight
}

func New(id string, config Config, link Link, opts capture.Options) *Provider {
	p := &Provider{
		id:     id,
		config: config,
		link:   link,
		opts:   opts,
		logger: opts.LoggerOrDefault("device_id", id, "capture_method", telemetry.CaptureMethodIoT, "sensor_id", config.SensorID),
	}
	p.loop = capture.NewLoop(opts.IntervalOrDefault(DefaultInterval), p.sample)
	return p
}

// NewFromConfig decodes the opaque sensor configuration and returns a provider for the link it describes.
func NewFromConfig(id string, raw map[string]interface{}, opts capture.Options) (*Provider, error) {
	config, err := DecodeConfig(raw)
	if err != nil {
		return nil, err
	}
	link, err := NewLink(config)
	if err != nil {
		return nil, err
	}
	if opts.Interval == 0 {
		opts.Interval = config.PollInterval()
	}
	return New(id, config, link, opts), nil
}

func (p *Provider) DeviceID() string {
	return p.id
}

func (p *Provider) Method() telemetry.CaptureMethod {
	return telemetry.CaptureMethodIoT
}

func (p *Provider) Config() Config {
	return p.config
}

func (p *Provider) State() capture.State {
	return p.state.Load()
}

// Initialize pairs with the sensor array. Calling it on an initialized provider does nothing.
func (p *Provider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state.Load() {
	case capture.StateClosed:
		return capture.ErrClosed
	case capture.StateInitialized, capture.StateCapturing:
		return nil
	}

	p.logger.Info("Pairing with sensors...")

	err := p.link.Pair(ctx)
	if err != nil {
		return fmt.Errorf("pair with sensor %d: %w", p.config.SensorID, err)
	}

	p.state.Store(capture.StateInitialized)
	p.logger.Info("Paired with sensors")

	return nil
}

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

// Calibrate re-zeroes every sensor pad. The offsets reported are the array's combined zero offset.
func (p *Provider) Calibrate(ctx context.Context) (telemetry.CalibrationResult, error) {
	state := p.state.Load()

	if err := state.Ready(); err != nil {
		return telemetry.CalibrationResult{}, err
	}

	result := telemetry.CalibrationResult{
		PerformedBy: capture.PerformedBy(ctx, ""),
	}

	previous, next, err := p.link.Calibrate(ctx)
	result.Timestamp = time.Now()
	metrics.CalibrationCompleted(string(telemetry.CaptureMethodIoT), err == nil)
	if err != nil {
		p.logger.Error("Failed to calibrate sensors", "error", err)
		return result, fmt.Errorf("calibrate sensors: %w", err)
	}

	result.Success = true
	result.PreviousOffset = previous
	result.NewOffset = next

	p.logger.Info("Calibrated sensors", "previous_offset", previous, "new_offset", next, "performed_by", result.PerformedBy)

	return result, nil
}

func (p *Provider) SetTareWeight(weight float64) error {
	return p.tare.Set(weight)
}

func (p *Provider) ClearTareWeight() {
	p.tare.Clear()
}

// Close stops sampling and releases the link.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.Load() == capture.StateClosed {
		return nil
	}
	p.loop.Stop()
	p.state.Store(capture.StateClosed)

	err := p.link.Close()
	if err != nil {
		return fmt.Errorf("close sensor link: %w", err)
	}
	return nil
}

func (p *Provider) sample(ctx context.Context) {
	start := time.Now()

	t, err := p.link.Sample(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.SampleFailed(string(telemetry.CaptureMethodIoT))
		p.logger.Error("Failed to sample sensors", "error", err)
		return
	}

	metrics.SampleSucceeded(string(telemetry.CaptureMethodIoT), time.Since(start))

	if t.BatteryLevel < lowBattery {
		p.logger.Warn("Sensor battery low", "battery_level", t.BatteryLevel)
	}

	p.latest.Store(p.newReading(ctx, t))
}

// newReading converts a telemetry sample into a normalized weight reading. The gross weight is the sum of the axles.
func (p *Provider) newReading(ctx context.Context, t Telemetry) telemetry.WeightReading {
	reading := telemetry.WeightReading{
		ID:            uuid.New(),
		Timestamp:     time.Now(),
		Unit:          telemetry.UnitPounds,
		GrossWeight:   t.Gross(),
		AxleWeights:   p.opts.AxleLimits.Readings(t.Axles),
		Confidence:    Confidence,
		DeviceID:      p.id,
		CaptureMethod: telemetry.CaptureMethodIoT,
		LocationData:  capture.Locate(ctx, p.opts.Location, p.logger),
		RawSensorData: map[string]interface{}{
			"sensorId":       p.config.SensorID,
			"batteryLevel":   t.BatteryLevel,
			"signalStrength": t.SignalStrength,
			"temperature":    t.Temperature,
			"humidity":       t.Humidity,
			"zeroOffset":     t.ZeroOffset,
		},
	}
	reading.SetTare(p.tare.Load())
	return reading
}
