package scale

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cepro/weighcapture/capture"
	"github.com/cepro/weighcapture/telemetry"
	"github.com/stretchr/testify/assert"
)

const testInterval = 10 * time.Millisecond

func newTestProvider() (*Provider, *MockConnection) {
	conn := NewMockConnection()
	conn.Latency = 0
	p := New("scale-1", Config{Protocol: ProtocolSimulated}, conn, capture.Options{Interval: testInterval})
	return p, conn
}

func TestProvider_OperationsBeforeInitialize(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider()

	assert.ErrorIs(t, p.StartCapture(ctx), capture.ErrNotInitialized)

	_, err := p.CurrentReading()
	assert.ErrorIs(t, err, capture.ErrNotInitialized)

	_, err = p.Calibrate(ctx)
	assert.ErrorIs(t, err, capture.ErrNotInitialized)

	// stopping an uninitialized provider is harmless
	p.StopCapture()
	assert.Equal(t, capture.StateUninitialized, p.State())
}

func TestProvider_NoReadingWithoutStart(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider()

	assert.NoError(t, p.Initialize(ctx))
	assert.NoError(t, p.Initialize(ctx), "initialize is idempotent")

	_, err := p.CurrentReading()
	assert.ErrorIs(t, err, capture.ErrNoReading)
}

func TestProvider_InitializeFailure(t *testing.T) {
	p, conn := newTestProvider()
	conn.SetFailConnect(true)

	assert.Error(t, p.Initialize(context.Background()))
	assert.Equal(t, capture.StateUninitialized, p.State())
}

func TestProvider_Capture(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider()
	defer p.Close()

	assert.NoError(t, p.Initialize(ctx))
	assert.NoError(t, p.StartCapture(ctx))
	assert.Equal(t, capture.StateCapturing, p.State())

	var first telemetry.WeightReading
	assert.Eventually(t, func() bool {
		var err error
		first, err = p.CurrentReading()
		return err == nil
	}, time.Second, testInterval)

	assert.Equal(t, telemetry.CaptureMethodScale, first.CaptureMethod)
	assert.Equal(t, "scale-1", first.DeviceID)
	assert.Equal(t, Confidence, first.Confidence)
	assert.Equal(t, telemetry.UnitPounds, first.Unit)
	assert.Nil(t, first.TareWeight)
	assert.Nil(t, first.NetWeight)
	assert.Nil(t, first.LocationData)
	assert.Len(t, first.AxleWeights, NumAxles)
	for _, axle := range first.AxleWeights {
		assert.Equal(t, telemetry.DefaultAxleLimits.MaxLegal(axle.Position), axle.MaxLegal)
	}

	// readings keep being replaced, with the same confidence each time
	assert.Eventually(t, func() bool {
		next, err := p.CurrentReading()
		return err == nil && next.ID != first.ID && next.Confidence == Confidence
	}, time.Second, testInterval)
}

func TestProvider_Tare(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider()
	defer p.Close()

	assert.NoError(t, p.Initialize(ctx))
	assert.ErrorIs(t, p.SetTareWeight(-5), capture.ErrInvalidWeight)
	assert.NoError(t, p.SetTareWeight(15000))
	assert.NoError(t, p.StartCapture(ctx))

	assert.Eventually(t, func() bool {
		reading, err := p.CurrentReading()
		if err != nil || reading.NetWeight == nil {
			return false
		}
		return *reading.TareWeight == 15000 && *reading.NetWeight == reading.GrossWeight-15000
	}, time.Second, testInterval)
}

func TestProvider_ReadFailureKeepsLastReading(t *testing.T) {
	ctx := context.Background()
	p, conn := newTestProvider()
	defer p.Close()

	assert.NoError(t, p.Initialize(ctx))
	assert.NoError(t, p.StartCapture(ctx))
	assert.Eventually(t, func() bool {
		_, err := p.CurrentReading()
		return err == nil
	}, time.Second, testInterval)

	conn.SetFailReads(true)
	// let any read that was already in progress land
	time.Sleep(3 * testInterval)
	stale, err := p.CurrentReading()
	assert.NoError(t, err)

	time.Sleep(5 * testInterval)
	stillStale, err := p.CurrentReading()
	assert.NoError(t, err)
	assert.Equal(t, stale.ID, stillStale.ID)

	// the loop survives the failures and picks up again
	conn.SetFailReads(false)
	assert.Eventually(t, func() bool {
		reading, err := p.CurrentReading()
		return err == nil && reading.ID != stale.ID
	}, time.Second, testInterval)
}

func TestProvider_StopCapture(t *testing.T) {
	ctx := context.Background()
	p, conn := newTestProvider()
	defer p.Close()

	assert.NoError(t, p.Initialize(ctx))
	assert.NoError(t, p.StartCapture(ctx))
	assert.Eventually(t, func() bool { return conn.Reads() >= 2 }, time.Second, testInterval)

	p.StopCapture()
	p.StopCapture()
	assert.Equal(t, capture.StateInitialized, p.State())

	last, err := p.CurrentReading()
	assert.NoError(t, err, "the last reading survives a stop")
	reads := conn.Reads()

	time.Sleep(5 * testInterval)
	after, err := p.CurrentReading()
	assert.NoError(t, err)
	assert.Equal(t, last.ID, after.ID)
	assert.Equal(t, reads, conn.Reads())

	// capture can be restarted
	assert.NoError(t, p.StartCapture(ctx))
	assert.Eventually(t, func() bool { return conn.Reads() > reads }, time.Second, testInterval)
}

func TestProvider_Calibrate(t *testing.T) {
	ctx := capture.WithOperator(context.Background(), "alice")
	p, _ := newTestProvider()
	defer p.Close()

	assert.NoError(t, p.Initialize(ctx))

	first, err := p.Calibrate(ctx)
	assert.NoError(t, err)
	assert.True(t, first.Success)
	assert.Equal(t, 12.5, first.PreviousOffset)
	assert.Equal(t, "alice", first.PerformedBy)
	assert.False(t, first.Timestamp.IsZero())

	// the offsets are those reported by the scale, so the next calibration starts where this one ended
	second, err := p.Calibrate(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, first.NewOffset, second.PreviousOffset)
	assert.Equal(t, capture.DefaultOperator, second.PerformedBy)
}

func TestProvider_CalibrateFailure(t *testing.T) {
	ctx := context.Background()
	p, conn := newTestProvider()
	defer p.Close()

	assert.NoError(t, p.Initialize(ctx))
	conn.SetFailReads(true)

	result, err := p.Calibrate(ctx)
	assert.Error(t, err)
	assert.False(t, result.Success)
}

func TestProvider_Close(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider()

	assert.NoError(t, p.Initialize(ctx))
	assert.NoError(t, p.StartCapture(ctx))
	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close())

	assert.ErrorIs(t, p.Initialize(ctx), capture.ErrClosed)
	assert.ErrorIs(t, p.StartCapture(ctx), capture.ErrClosed)
	_, err := p.Calibrate(ctx)
	assert.ErrorIs(t, err, capture.ErrClosed)
}

func TestProvider_Location(t *testing.T) {
	ctx := context.Background()
	conn := NewMockConnection()
	conn.Latency = 0
	p := New("scale-2", Config{Protocol: ProtocolSimulated}, conn, capture.Options{
		Interval: testInterval,
		Location: capture.StaticLocation{Latitude: 52.1, Longitude: 1.3, Accuracy: 3},
	})
	defer p.Close()

	assert.NoError(t, p.Initialize(ctx))
	assert.NoError(t, p.StartCapture(ctx))

	assert.Eventually(t, func() bool {
		reading, err := p.CurrentReading()
		return err == nil && reading.LocationData != nil && reading.LocationData.Latitude == 52.1
	}, time.Second, testInterval)
}

func TestNewFromConfig(t *testing.T) {
	p, err := NewFromConfig("scale-3", Config{Protocol: ProtocolSimulated, PollIntervalMs: 250}, capture.Options{})
	assert.NoError(t, err)
	assert.IsType(t, &MockConnection{}, p.conn)

	_, err = NewFromConfig("scale-4", Config{Protocol: "rs232"}, capture.Options{})
	assert.Error(t, err)

	p, err = NewFromConfig("scale-5", Config{Address: "10.0.0.5", Port: 5020, UnitID: 2}, capture.Options{})
	assert.NoError(t, err)
	assert.IsType(t, &modbusConnection{}, p.conn)
	assert.Equal(t, "10.0.0.5:5020", p.Config().Host())
}

// blockingConnection stalls on every exchange without watching the context, the way a modbus client waits out its
// timeout.
type blockingConnection struct {
	*MockConnection
	delay    time.Duration
	inFlight atomic.Bool
}

func (c *blockingConnection) Connect(ctx context.Context) error {
	time.Sleep(c.delay)
	return c.MockConnection.Connect(context.Background())
}

func (c *blockingConnection) ReadWeights(ctx context.Context) (Weights, error) {
	c.inFlight.Store(true)
	defer c.inFlight.Store(false)
	time.Sleep(c.delay)
	return c.MockConnection.ReadWeights(context.Background())
}

func TestProvider_ReadsDoNotWaitOnDeviceIO(t *testing.T) {
	const quick = 50 * time.Millisecond

	ctx := context.Background()
	conn := &blockingConnection{MockConnection: NewMockConnection(), delay: 300 * time.Millisecond}
	conn.Latency = 0
	p := New("scale-1", Config{Protocol: ProtocolSimulated}, conn, capture.Options{Interval: testInterval})
	defer p.Close()

	initialized := make(chan error, 1)
	go func() { initialized <- p.Initialize(ctx) }()
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	_, err := p.CurrentReading()
	assert.ErrorIs(t, err, capture.ErrNotInitialized)
	assert.Equal(t, capture.StateUninitialized, p.State())
	assert.Less(t, time.Since(start), quick, "reading while connecting")
	assert.NoError(t, <-initialized)

	assert.NoError(t, p.StartCapture(ctx))
	assert.Eventually(t, func() bool {
		_, err := p.CurrentReading()
		return err == nil
	}, 2*time.Second, testInterval)
	assert.Eventually(t, conn.inFlight.Load, time.Second, time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		p.StopCapture()
		close(stopped)
	}()
	time.Sleep(20 * time.Millisecond)

	start = time.Now()
	_, err = p.CurrentReading()
	assert.NoError(t, err, "the last reading stays available while stopping")
	p.State()
	assert.Less(t, time.Since(start), quick, "reading while stopping")

	<-stopped
	assert.Equal(t, capture.StateInitialized, p.State())
}
