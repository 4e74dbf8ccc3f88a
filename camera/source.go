package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"sync"

	"github.com/cepro/weighcapture/capture"
	"github.com/disintegration/imaging"
)

// FrameSource supplies still frames from a camera.
type FrameSource interface {
	Open(ctx context.Context) error
	Frame(ctx context.Context) (image.Image, error)
	Close() error
}

// NewFrameSource returns the frame source that matches the configured source type.
func NewFrameSource(config Config) (FrameSource, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.source() {
	case SourceSimulated:
		return NewMockFrameSource(), nil
	default:
		return newSnapshotSource(config), nil
	}
}

const maxSnapshotBytes = 20 << 20

// snapshotSource fetches frames from the snapshot endpoint that most IP cameras expose.
type snapshotSource struct {
	url      string
	client   *http.Client
	maxBytes int64
}

func newSnapshotSource(config Config) *snapshotSource {
	return &snapshotSource{
		url:      config.SnapshotURL,
		client:   &http.Client{Timeout: config.timeout()},
		maxBytes: maxSnapshotBytes,
	}
}

// Open fetches a first frame to check that the camera is there.
func (s *snapshotSource) Open(ctx context.Context) error {
	_, err := s.Frame(ctx)
	return err
}

func (s *snapshotSource) Frame(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create snapshot request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get snapshot: unexpected status %d", resp.StatusCode)
	}

	if resp.ContentLength > s.maxBytes {
		return nil, fmt.Errorf("get snapshot: %d bytes exceeds limit of %d", resp.ContentLength, s.maxBytes)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("get snapshot: body exceeds limit of %d", s.maxBytes)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return img, nil
}

func (s *snapshotSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// MockFrameSource looks like a camera but returns blank frames.
type MockFrameSource struct {
	Width  int
	Height int

	mu        sync.Mutex
	open      bool
	failOpen  bool
	failFrame bool
	frames    int
}

func NewMockFrameSource() *MockFrameSource {
	return &MockFrameSource{
		Width:  1280,
		Height: 720,
	}
}

// SetFailOpen makes subsequent Open calls fail.
func (m *MockFrameSource) SetFailOpen(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOpen = fail
}

// SetFailFrames makes subsequent frame grabs fail.
func (m *MockFrameSource) SetFailFrames(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFrame = fail
}

// Frames returns the number of frames grabbed so far.
func (m *MockFrameSource) Frames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

func (m *MockFrameSource) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOpen {
		return errors.New("camera stream unavailable")
	}
	m.open = true
	return nil
}

func (m *MockFrameSource) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return nil, capture.ErrNotConnected
	}
	if m.failFrame {
		return nil, errors.New("frame grab timed out")
	}
	m.frames++

	// a dark display panel in the middle of a light frame
	frame := imaging.New(m.Width, m.Height, color.NRGBA{R: 200, G: 200, B: 200, A: 255})
	panel := imaging.New(m.Width/2, m.Height/4, color.NRGBA{R: 20, G: 30, B: 20, A: 255})
	frame = imaging.Paste(frame, panel, image.Pt(m.Width/4, m.Height*3/8))
	return frame, nil
}

func (m *MockFrameSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
	return nil
}
