package camera

import (
	"context"
	"errors"
	"image"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// BoundingBox locates the recognized digits in the preprocessed frame.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Recognition is the result of reading a weight display.
type Recognition struct {
	Weight     float64
	Confidence float64
	Text       string
	Box        BoundingBox
}

// Recognizer reads the weight shown on a display.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) (Recognition, error)
}

// MockRecognizer pretends to read a display showing a steady weight.
type MockRecognizer struct {
	BaseWeight float64
	Jitter     float64

	mu      sync.Mutex
	fail    bool
	rand    *rand.Rand
	printer *message.Printer
}

func NewMockRecognizer() *MockRecognizer {
	return &MockRecognizer{
		BaseWeight: 42000,
		Jitter:     300,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
		printer:    message.NewPrinter(language.AmericanEnglish),
	}
}

// SetFail makes subsequent recognitions fail, as if the display were obscured.
func (m *MockRecognizer) SetFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

func (m *MockRecognizer) Recognize(ctx context.Context, img image.Image) (Recognition, error) {
	if err := ctx.Err(); err != nil {
		return Recognition{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail {
		return Recognition{}, errors.New("no digits found")
	}

	// truck scale displays count in 10 lb divisions
	weight := math.Round((m.BaseWeight+(m.rand.Float64()*2-1)*m.Jitter)/10) * 10

	bounds := img.Bounds()
	box := BoundingBox{
		X:      bounds.Min.X + bounds.Dx()/10,
		Y:      bounds.Min.Y + bounds.Dy()/4,
		Width:  bounds.Dx() * 8 / 10,
		Height: bounds.Dy() / 2,
	}

	return Recognition{
		Weight:     weight,
		Confidence: 0.70 + m.rand.Float64()*0.25,
		Text:       m.printer.Sprintf("%d LB", int64(weight)),
		Box:        box,
	}, nil
}
