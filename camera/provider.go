package camera

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/cepro/weighcapture/capture"
	"github.com/cepro/weighcapture/metrics"
	"github.com/cepro/weighcapture/telemetry"
	"github.com/google/uuid"
)

const (
	DefaultInterval = 3 * time.Second

	// Optical readings are never trusted as much as a load cell, nor dismissed entirely.
	MinConfidence = 0.75
	MaxConfidence = 0.90

	initialAccuracy   = 0.85
	calibrationFrames = 3
)

// Provider reads the weight display of a scale through a camera.
//
// Each sample grabs a frame, crops and cleans up the display region and runs recognition on it. The recognized text
// and the location of the digits are kept in the reading's raw sensor data as evidence.
type Provider struct {
	id         string
	config     Config
	source     FrameSource
	recognizer Recognizer
	opts       capture.Options
	logger     *slog.Logger

	// mu serializes lifecycle transitions, which may wait on I/O. Readers only load state.
	mu    sync.Mutex
	state capture.StateCell

	// accuracy has its own lock as it is read by the sampling loop, which StopCapture waits on while holding mu
	accuracyMu sync.Mutex
	accuracy   float64

	loop   *capture.Loop
	latest capture.Latest
	tare   capture.TareWeight
}

func New(id string, config Config, source FrameSource, recognizer Recognizer, opts capture.Options) *Provider {
	p := &Provider{
		id:         id,
		config:     config,
		source:     source,
		recognizer: recognizer,
		opts:       opts,
		logger:     opts.LoggerOrDefault("device_id", id, "capture_method", telemetry.CaptureMethodCamera),
		accuracy:   initialAccuracy,
	}
	p.loop = capture.NewLoop(opts.IntervalOrDefault(DefaultInterval), p.sample)
	return p
}

// NewFromConfig creates the frame source described by `config` and returns a provider that reads it with `recognizer`.
func NewFromConfig(id string, config Config, recognizer Recognizer, opts capture.Options) (*Provider, error) {
	source, err := NewFrameSource(config)
	if err != nil {
		return nil, err
	}
	if opts.Interval == 0 {
		opts.Interval = config.PollInterval()
	}
	return New(id, config, source, recognizer, opts), nil
}

func (p *Provider) DeviceID() string {
	return p.id
}

func (p *Provider) Method() telemetry.CaptureMethod {
	return telemetry.CaptureMethodCamera
}

func (p *Provider) State() capture.State {
	return p.state.Load()
}

// Accuracy returns the recognition accuracy established by the last calibration.
func (p *Provider) Accuracy() float64 {
	p.accuracyMu.Lock()
	defer p.accuracyMu.Unlock()
	return p.accuracy
}

// Initialize acquires the camera stream.
func (p *Provider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state.Load() {
	case capture.StateClosed:
		return capture.ErrClosed
	case capture.StateInitialized, capture.StateCapturing:
		return nil
	}

	p.logger.Info("Opening camera...")

	err := p.source.Open(ctx)
	if err != nil {
		return fmt.Errorf("open camera: %w", err)
	}

	p.state.Store(capture.StateInitialized)
	p.logger.Info("Opened camera")

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

// Calibrate recognizes a few frames and sets the accuracy to their mean confidence. There is no physical offset, so
// the accuracy before and after is reported in its place.
func (p *Provider) Calibrate(ctx context.Context) (telemetry.CalibrationResult, error) {
	if err := p.State().Ready(); err != nil {
		return telemetry.CalibrationResult{}, err
	}
	previous := p.Accuracy()

	result := telemetry.CalibrationResult{
		PerformedBy: capture.PerformedBy(ctx, ""),
	}

	total := 0.0
	for i := 0; i < calibrationFrames; i++ {
		recognition, _, err := p.recognize(ctx)
		if err != nil {
			result.Timestamp = time.Now()
			metrics.CalibrationCompleted(string(telemetry.CaptureMethodCamera), false)
			p.logger.Error("Failed to calibrate camera", "error", err)
			return result, fmt.Errorf("calibrate camera: %w", err)
		}
		total += recognition.Confidence
	}
	next := clampConfidence(total / calibrationFrames)

	p.accuracyMu.Lock()
	p.accuracy = next
	p.accuracyMu.Unlock()

	result.Timestamp = time.Now()
	result.Success = true
	result.PreviousOffset = previous
	result.NewOffset = next
	metrics.CalibrationCompleted(string(telemetry.CaptureMethodCamera), true)

	p.logger.Info("Calibrated camera", "previous_accuracy", previous, "new_accuracy", next, "performed_by", result.PerformedBy)

	return result, nil
}

func (p *Provider) SetTareWeight(weight float64) error {
	return p.tare.Set(weight)
}

func (p *Provider) ClearTareWeight() {
	p.tare.Clear()
}

// Close stops sampling and releases the camera.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.Load() == capture.StateClosed {
		return nil
	}
	p.loop.Stop()
	p.state.Store(capture.StateClosed)

	err := p.source.Close()
	if err != nil {
		return fmt.Errorf("close camera: %w", err)
	}
	return nil
}

// recognize grabs and reads a single frame, returning the recognition and the size of the frame.
func (p *Provider) recognize(ctx context.Context) (Recognition, image.Point, error) {
	frame, err := p.source.Frame(ctx)
	if err != nil {
		return Recognition{}, image.Point{}, fmt.Errorf("grab frame: %w", err)
	}

	size := frame.Bounds().Size()

	recognition, err := p.recognizer.Recognize(ctx, Preprocess(frame, p.config.DisplayRegion))
	if err != nil {
		return Recognition{}, size, fmt.Errorf("recognize display: %w", err)
	}
	return recognition, size, nil
}

func (p *Provider) sample(ctx context.Context) {
	start := time.Now()

	recognition, frame, err := p.recognize(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.SampleFailed(string(telemetry.CaptureMethodCamera))
		p.logger.Error("Failed to read weight display", "error", err)
		return
	}

	metrics.SampleSucceeded(string(telemetry.CaptureMethodCamera), time.Since(start))

	p.latest.Store(p.newReading(ctx, recognition, frame))
}

func (p *Provider) newReading(ctx context.Context, recognition Recognition, frame image.Point) telemetry.WeightReading {
	accuracy := p.Accuracy()

	reading := telemetry.WeightReading{
		ID:            uuid.New(),
		Timestamp:     time.Now(),
		Unit:          telemetry.UnitPounds,
		GrossWeight:   recognition.Weight,
		AxleWeights:   []telemetry.AxleWeightReading{},
		Confidence:    clampConfidence((recognition.Confidence + accuracy) / 2),
		DeviceID:      p.id,
		CaptureMethod: telemetry.CaptureMethodCamera,
		LocationData:  capture.Locate(ctx, p.opts.Location, p.logger),
		RawSensorData: map[string]interface{}{
			"recognizedText":        recognition.Text,
			"boundingBox":           recognition.Box,
			"recognitionConfidence": recognition.Confidence,
			"frameWidth":            frame.X,
			"frameHeight":           frame.Y,
		},
	}
	reading.SetTare(p.tare.Load())
	return reading
}

func clampConfidence(c float64) float64 {
	return min(max(c, MinConfidence), MaxConfidence)
}
