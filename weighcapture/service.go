// Package weighcapture holds the registry of weight capture providers and forwards capture calls to the one that
// is active.
package weighcapture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/cepro/weighcapture/camera"
	"github.com/cepro/weighcapture/capture"
	"github.com/cepro/weighcapture/iot"
	"github.com/cepro/weighcapture/manual"
	"github.com/cepro/weighcapture/metrics"
	"github.com/cepro/weighcapture/scale"
	"github.com/cepro/weighcapture/telemetry"
)

var (
	ErrNoActiveProvider = errors.New("no active provider set")
	ErrTareUnsupported  = errors.New("active provider does not accept a tare weight")
)

type Options struct {
	// Capture is handed to every provider constructed by the Initialize helpers.
	Capture capture.Options

	// CalibrationRecords receives a record of every calibration attempt. Records are dropped rather than blocking
	// the caller if the channel is full. Optional.
	CalibrationRecords chan<- telemetry.CalibrationRecord

	Logger *slog.Logger
}

// Service is a registry of providers, one of which may be active. It holds no sampling logic of its own.
type Service struct {
	opts   Options
	logger *slog.Logger

	mu        sync.RWMutex
	providers map[string]capture.Provider
	activeID  string
}

func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		opts:      opts,
		logger:    logger.With("component", "weighcapture"),
		providers: make(map[string]capture.Provider),
	}
}

// RegisterProvider adds `p` to the registry under `id`. A provider already registered under the same id is stopped
// and closed.
func (s *Service) RegisterProvider(id string, p capture.Provider) {
	s.mu.Lock()
	previous, replaced := s.providers[id]
	s.providers[id] = p
	metrics.RegisteredProviders.Set(float64(len(s.providers)))
	s.mu.Unlock()

	if replaced && previous != p {
		s.logger.Warn("Replacing registered provider", "provider_id", id)
		dispose(previous)
	}
}

// Provider returns the provider registered under `id`.
func (s *Service) Provider(id string) (capture.Provider, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[id]
	return p, ok
}

// ProviderIDs returns the ids of all registered providers in sorted order.
func (s *Service) ProviderIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.providers))
	for id := range s.providers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// SetActiveProvider selects the provider that capture calls are forwarded to. It returns false, and leaves the
// active provider unchanged, if no provider is registered under `id`.
func (s *Service) SetActiveProvider(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.providers[id]; !ok {
		s.logger.Warn("Cannot activate unknown provider", "provider_id", id)
		return false
	}
	if s.activeID != id {
		s.logger.Info("Activated provider", "provider_id", id, "previous_provider_id", s.activeID)
	}
	s.activeID = id
	return true
}

// ActiveProviderID returns the id of the active provider, or "" if none is active.
func (s *Service) ActiveProviderID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

func (s *Service) InitializeDigitalScale(ctx context.Context, id string, config scale.Config) (*scale.Provider, error) {
	p, err := scale.NewFromConfig(id, config, s.opts.Capture)
	if err != nil {
		return nil, fmt.Errorf("create scale provider '%s': %w", id, err)
	}
	if err := s.initialize(ctx, id, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) InitializeIoTSensor(ctx context.Context, id string, config map[string]interface{}) (*iot.Provider, error) {
	p, err := iot.NewFromConfig(id, config, s.opts.Capture)
	if err != nil {
		return nil, fmt.Errorf("create iot provider '%s': %w", id, err)
	}
	if err := s.initialize(ctx, id, p); err != nil {
		return nil, err
	}
	return p, nil
}

// InitializeCamera creates a camera provider that reads frames with `recognizer`.
func (s *Service) InitializeCamera(ctx context.Context, id string, config camera.Config, recognizer camera.Recognizer) (*camera.Provider, error) {
	if recognizer == nil {
		return nil, fmt.Errorf("create camera provider '%s': no recognizer", id)
	}
	p, err := camera.NewFromConfig(id, config, recognizer, s.opts.Capture)
	if err != nil {
		return nil, fmt.Errorf("create camera provider '%s': %w", id, err)
	}
	if err := s.initialize(ctx, id, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) InitializeManualEntry(ctx context.Context, id string, config manual.Config) (*manual.Provider, error) {
	p := manual.New(id, config, s.opts.Capture)
	if err := s.initialize(ctx, id, p); err != nil {
		return nil, err
	}
	return p, nil
}

// initialize registers `p` only if it initializes successfully.
func (s *Service) initialize(ctx context.Context, id string, p capture.Provider) error {
	err := p.Initialize(ctx)
	if err != nil {
		s.logger.Error("Failed to initialize provider", "provider_id", id, "error", err)
		dispose(p)
		return fmt.Errorf("initialize provider '%s': %w", id, err)
	}
	s.RegisterProvider(id, p)
	return nil
}

func (s *Service) StartCapture(ctx context.Context) error {
	_, p, err := s.active()
	if err != nil {
		return err
	}
	return p.StartCapture(ctx)
}

func (s *Service) CurrentReading() (telemetry.WeightReading, error) {
	_, p, err := s.active()
	if err != nil {
		return telemetry.WeightReading{}, err
	}
	return p.CurrentReading()
}

func (s *Service) StopCapture() error {
	_, p, err := s.active()
	if err != nil {
		return err
	}
	p.StopCapture()
	return nil
}

// Calibrate calibrates the active provider. Every attempt that reached the provider's backend is published as a
// calibration record, whether or not it succeeded.
func (s *Service) Calibrate(ctx context.Context) (telemetry.CalibrationResult, error) {
	id, p, err := s.active()
	if err != nil {
		return telemetry.CalibrationResult{}, err
	}

	result, err := p.Calibrate(ctx)
	if !result.Timestamp.IsZero() {
		s.publish(id, p, result)
	}
	return result, err
}

func (s *Service) SetTareWeight(weight float64) error {
	_, p, err := s.active()
	if err != nil {
		return err
	}
	setter, ok := p.(capture.TareSetter)
	if !ok {
		return ErrTareUnsupported
	}
	return setter.SetTareWeight(weight)
}

func (s *Service) ClearTareWeight() error {
	_, p, err := s.active()
	if err != nil {
		return err
	}
	setter, ok := p.(capture.TareSetter)
	if !ok {
		return ErrTareUnsupported
	}
	setter.ClearTareWeight()
	return nil
}

// Close stops and disposes of every registered provider and empties the registry.
func (s *Service) Close() {
	s.mu.Lock()
	providers := s.providers
	s.providers = make(map[string]capture.Provider)
	s.activeID = ""
	metrics.RegisteredProviders.Set(0)
	s.mu.Unlock()

	for _, p := range providers {
		dispose(p)
	}
}

func (s *Service) active() (string, capture.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.providers[s.activeID]
	if !ok {
		return "", nil, ErrNoActiveProvider
	}
	return s.activeID, p, nil
}

func (s *Service) publish(id string, p capture.Provider, result telemetry.CalibrationResult) {
	if s.opts.CalibrationRecords == nil {
		return
	}

	var method telemetry.CaptureMethod
	if d, ok := p.(capture.Describer); ok {
		id = d.DeviceID()
		method = d.Method()
	}

	select {
	case s.opts.CalibrationRecords <- telemetry.NewCalibrationRecord(id, method, result):
	default:
		s.logger.Warn("Calibration record dropped, log is not keeping up", "device_id", id)
	}
}

// dispose stops `p` and closes it if it can be closed.
func dispose(p capture.Provider) {
	p.StopCapture()
	if closer, ok := p.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			slog.Default().Warn("Failed to close provider", "error", err)
		}
	}
}
