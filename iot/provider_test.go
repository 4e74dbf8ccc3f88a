package iot

import (
	"context"
	"testing"
	"time"

	"github.com/cepro/weighcapture/capture"
	"github.com/cepro/weighcapture/telemetry"
	"github.com/stretchr/testify/assert"
)

const testInterval = 10 * time.Millisecond

func newTestProvider(axles int) (*Provider, *MockLink) {
	link := NewMockLink(axles)
	link.Latency = 0
	p := New("iot-1", Config{Transport: TransportSimulated, SensorID: 3, Axles: axles}, link, capture.Options{Interval: testInterval})
	return p, link
}

func TestProvider_OperationsBeforeInitialize(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(5)

	assert.ErrorIs(t, p.StartCapture(ctx), capture.ErrNotInitialized)
	_, err := p.CurrentReading()
	assert.ErrorIs(t, err, capture.ErrNotInitialized)
	_, err = p.Calibrate(ctx)
	assert.ErrorIs(t, err, capture.ErrNotInitialized)
}

func TestProvider_PairFailure(t *testing.T) {
	p, link := newTestProvider(5)
	link.SetFailPair(true)

	assert.Error(t, p.Initialize(context.Background()))
	assert.Equal(t, capture.StateUninitialized, p.State())
}

func TestProvider_Capture(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(3)
	defer p.Close()

	assert.NoError(t, p.Initialize(ctx))
	_, err := p.CurrentReading()
	assert.ErrorIs(t, err, capture.ErrNoReading)

	assert.NoError(t, p.StartCapture(ctx))

	var reading telemetry.WeightReading
	assert.Eventually(t, func() bool {
		reading, err = p.CurrentReading()
		return err == nil
	}, time.Second, testInterval)

	assert.Equal(t, telemetry.CaptureMethodIoT, reading.CaptureMethod)
	assert.Equal(t, Confidence, reading.Confidence)
	assert.Equal(t, "iot-1", reading.DeviceID)
	assert.Len(t, reading.AxleWeights, 3)

	sum := 0.0
	for _, axle := range reading.AxleWeights {
		sum += axle.Weight
	}
	assert.InDelta(t, sum, reading.GrossWeight, 1e-9)

	for _, key := range []string{"batteryLevel", "signalStrength", "temperature", "humidity"} {
		assert.Contains(t, reading.RawSensorData, key)
	}
	assert.Equal(t, uint8(3), reading.RawSensorData["sensorId"])
}

func TestProvider_ReadFailureKeepsLastReading(t *testing.T) {
	ctx := context.Background()
	p, link := newTestProvider(5)
	defer p.Close()

	assert.NoError(t, p.Initialize(ctx))
	assert.NoError(t, p.StartCapture(ctx))
	assert.Eventually(t, func() bool { return link.Samples() > 0 }, time.Second, testInterval)

	link.SetFailReads(true)
	time.Sleep(3 * testInterval)
	stale, err := p.CurrentReading()
	assert.NoError(t, err)

	time.Sleep(5 * testInterval)
	stillStale, err := p.CurrentReading()
	assert.NoError(t, err)
	assert.Equal(t, stale.ID, stillStale.ID)
}

func TestProvider_StopCapture(t *testing.T) {
	ctx := context.Background()
	p, link := newTestProvider(5)
	defer p.Close()

	assert.NoError(t, p.Initialize(ctx))
	assert.NoError(t, p.StartCapture(ctx))
	assert.Eventually(t, func() bool { return link.Samples() >= 2 }, time.Second, testInterval)

	p.StopCapture()
	samples := link.Samples()
	time.Sleep(5 * testInterval)
	assert.Equal(t, samples, link.Samples())
	assert.Equal(t, capture.StateInitialized, p.State())
}

func TestProvider_Calibrate(t *testing.T) {
	ctx := capture.WithOperator(context.Background(), "bob")
	p, _ := newTestProvider(5)
	defer p.Close()

	assert.NoError(t, p.Initialize(ctx))

	result, err := p.Calibrate(ctx)
	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, -3.2, result.PreviousOffset)
	assert.InDelta(t, 0, result.NewOffset, 0.25)
	assert.Equal(t, "bob", result.PerformedBy)
}

func TestProvider_Tare(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(2)
	defer p.Close()

	assert.NoError(t, p.Initialize(ctx))
	assert.NoError(t, p.SetTareWeight(6000))
	assert.NoError(t, p.StartCapture(ctx))

	assert.Eventually(t, func() bool {
		reading, err := p.CurrentReading()
		return err == nil && reading.NetWeight != nil && *reading.NetWeight == reading.GrossWeight-6000
	}, time.Second, testInterval)

	p.ClearTareWeight()
	assert.Eventually(t, func() bool {
		reading, err := p.CurrentReading()
		return err == nil && reading.NetWeight == nil && reading.TareWeight == nil
	}, time.Second, testInterval)
}

func TestNewFromConfig(t *testing.T) {
	p, err := NewFromConfig("iot-2", map[string]interface{}{"transport": "simulated", "axles": 4}, capture.Options{})
	assert.NoError(t, err)
	assert.IsType(t, &MockLink{}, p.link)

	p, err = NewFromConfig("iot-3", map[string]interface{}{"gatewayAddress": "10.0.3.7:502", "sensorId": 9}, capture.Options{})
	assert.NoError(t, err)
	assert.IsType(t, &gatewayLink{}, p.link)

	_, err = NewFromConfig("iot-4", map[string]interface{}{}, capture.Options{})
	assert.Error(t, err)
}
