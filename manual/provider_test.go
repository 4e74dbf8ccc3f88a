package manual

import (
	"context"
	"testing"

	"github.com/cepro/weighcapture/capture"
	"github.com/cepro/weighcapture/telemetry"
	"github.com/stretchr/testify/assert"
)

func TestProvider_GrossAndTare(t *testing.T) {
	ctx := context.Background()
	p := New("manual-1", Config{}, capture.Options{})
	assert.NoError(t, p.Initialize(ctx))

	assert.NoError(t, p.SetGrossWeight(42000))
	assert.NoError(t, p.SetTareWeight(15000))

	reading, err := p.CurrentReading()
	assert.NoError(t, err)
	assert.Equal(t, 42000.0, reading.GrossWeight)
	assert.Equal(t, 15000.0, *reading.TareWeight)
	assert.Equal(t, 27000.0, *reading.NetWeight)
	assert.Equal(t, 0.5, reading.Confidence)
	assert.Equal(t, telemetry.CaptureMethodManual, reading.CaptureMethod)
	assert.Empty(t, reading.AxleWeights)

	p.ClearTareWeight()
	reading, err = p.CurrentReading()
	assert.NoError(t, err)
	assert.Nil(t, reading.TareWeight)
	assert.Nil(t, reading.NetWeight)
}

func TestProvider_SettersBeforeInitialize(t *testing.T) {
	p := New("manual-2", Config{}, capture.Options{})

	assert.ErrorIs(t, p.SetGrossWeight(1000), capture.ErrNotInitialized)
	assert.ErrorIs(t, p.SetTareWeight(1000), capture.ErrNotInitialized)
	assert.ErrorIs(t, p.SetAxleWeights([]float64{1000}), capture.ErrNotInitialized)
	assert.ErrorIs(t, p.StartCapture(context.Background()), capture.ErrNotInitialized)
	_, err := p.CurrentReading()
	assert.ErrorIs(t, err, capture.ErrNotInitialized)
	_, err = p.Calibrate(context.Background())
	assert.ErrorIs(t, err, capture.ErrNotInitialized)
}

func TestProvider_NoReadingWithoutGross(t *testing.T) {
	ctx := context.Background()
	p := New("manual-3", Config{}, capture.Options{})
	assert.NoError(t, p.Initialize(ctx))
	assert.NoError(t, p.StartCapture(ctx))

	assert.NoError(t, p.SetTareWeight(15000))
	_, err := p.CurrentReading()
	assert.ErrorIs(t, err, capture.ErrNoReading)
}

func TestProvider_InvalidWeights(t *testing.T) {
	p := New("manual-4", Config{}, capture.Options{})
	assert.NoError(t, p.Initialize(context.Background()))

	assert.ErrorIs(t, p.SetGrossWeight(-1), capture.ErrInvalidWeight)
	assert.ErrorIs(t, p.SetTareWeight(-1), capture.ErrInvalidWeight)
	assert.ErrorIs(t, p.SetAxleWeights([]float64{12000, -5}), capture.ErrInvalidWeight)

	_, err := p.CurrentReading()
	assert.ErrorIs(t, err, capture.ErrNoReading, "rejected values leave no reading behind")
}

func TestProvider_AxleWeights(t *testing.T) {
	limits := telemetry.AxleLimits{Positions: map[int]float64{1: 10000}, Default: 17000}
	p := New("manual-5", Config{}, capture.Options{AxleLimits: limits})
	assert.NoError(t, p.Initialize(context.Background()))

	weights := []float64{11000, 16000}
	assert.NoError(t, p.SetAxleWeights(weights))
	assert.NoError(t, p.SetGrossWeight(27000))
	weights[0] = 0 // the provider keeps its own copy

	reading, err := p.CurrentReading()
	assert.NoError(t, err)
	assert.Equal(t, []telemetry.AxleWeightReading{
		{Position: 1, Weight: 11000, MaxLegal: 10000},
		{Position: 2, Weight: 16000, MaxLegal: 17000},
	}, reading.AxleWeights)
	assert.True(t, reading.AxleWeights[0].Overweight())
}

func TestProvider_StartStop(t *testing.T) {
	ctx := context.Background()
	p := New("manual-6", Config{}, capture.Options{})
	assert.NoError(t, p.Initialize(ctx))
	assert.NoError(t, p.SetGrossWeight(30000))

	assert.NoError(t, p.StartCapture(ctx))
	started, err := p.CurrentReading()
	assert.NoError(t, err)
	assert.Equal(t, 30000.0, started.GrossWeight)

	p.StopCapture()
	_, err = p.CurrentReading()
	assert.ErrorIs(t, err, capture.ErrNoReading)

	// values survive a stop
	assert.NoError(t, p.StartCapture(ctx))
	restarted, err := p.CurrentReading()
	assert.NoError(t, err)
	assert.Equal(t, 30000.0, restarted.GrossWeight)
	assert.NotEqual(t, started.ID, restarted.ID)
}

func TestProvider_Calibrate(t *testing.T) {
	p := New("manual-7", Config{Operator: "dave"}, capture.Options{})
	assert.NoError(t, p.Initialize(context.Background()))

	result, err := p.Calibrate(context.Background())
	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Zero(t, result.PreviousOffset)
	assert.Zero(t, result.NewOffset)
	assert.Equal(t, "dave", result.PerformedBy)

	result, err = p.Calibrate(capture.WithOperator(context.Background(), "erin"))
	assert.NoError(t, err)
	assert.Equal(t, "erin", result.PerformedBy)
}

func TestProvider_Close(t *testing.T) {
	ctx := context.Background()
	p := New("manual-8", Config{}, capture.Options{})
	assert.NoError(t, p.Initialize(ctx))
	assert.NoError(t, p.SetGrossWeight(30000))
	assert.NoError(t, p.Close())

	assert.ErrorIs(t, p.Initialize(ctx), capture.ErrClosed)
	assert.ErrorIs(t, p.SetGrossWeight(1), capture.ErrClosed)
	_, err := p.CurrentReading()
	assert.ErrorIs(t, err, capture.ErrNoReading)
}
