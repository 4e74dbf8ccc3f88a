package iot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecodeConfig(t *testing.T) {
	// as it would arrive from a JSON config file
	config, err := DecodeConfig(map[string]interface{}{
		"gatewayAddress": "10.0.3.7:502",
		"sensorId":       float64(4),
		"axles":          "3",
		"timeout":        "750ms",
		"pollIntervalMs": float64(1500),
	})
	assert.NoError(t, err)
	assert.Equal(t, Config{
		Transport:      TransportModbusTCP,
		GatewayAddress: "10.0.3.7:502",
		SensorID:       4,
		Axles:          3,
		Timeout:        750 * time.Millisecond,
		PollIntervalMs: 1500,
	}, config)
	assert.Equal(t, 1500*time.Millisecond, config.PollInterval())
}

func TestDecodeConfig_Defaults(t *testing.T) {
	config, err := DecodeConfig(map[string]interface{}{"transport": TransportSimulated})
	assert.NoError(t, err)
	assert.Equal(t, defaultAxles, config.Axles)
	assert.Equal(t, 5*time.Second, config.Timeout)
	assert.Zero(t, config.PollInterval())
}

func TestDecodeConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]interface{}
	}{
		{name: "no gateway", raw: map[string]interface{}{"sensorId": 1}},
		{name: "unknown transport", raw: map[string]interface{}{"transport": "lora"}},
		{name: "too many axles", raw: map[string]interface{}{"transport": TransportSimulated, "axles": 12}},
		{name: "no axles", raw: map[string]interface{}{"transport": TransportSimulated, "axles": 0}},
		{name: "bad timeout", raw: map[string]interface{}{"transport": TransportSimulated, "timeout": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeConfig(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestDecodeTelemetry(t *testing.T) {
	metrics := map[string]interface{}{
		"Axle1Weight":    7200.0,
		"Axle2Weight":    8100.0,
		"BatteryLevel":   88.0,
		"SignalStrength": -71.0,
		"Temperature":    -2.5,
		"Humidity":       61.2,
		"ZeroOffset":     0.4,
	}

	telemetry, err := decodeTelemetry(metrics, 2)
	assert.NoError(t, err)
	assert.Equal(t, []float64{7200, 8100}, telemetry.Axles)
	assert.Equal(t, 15300.0, telemetry.Gross())
	assert.Equal(t, 88.0, telemetry.BatteryLevel)
	assert.Equal(t, -71.0, telemetry.SignalStrength)
	assert.Equal(t, -2.5, telemetry.Temperature)
	assert.Equal(t, 61.2, telemetry.Humidity)
	assert.Equal(t, 0.4, telemetry.ZeroOffset)

	_, err = decodeTelemetry(metrics, 3)
	assert.ErrorContains(t, err, "Axle3Weight")
}

func TestTelemetryBlock(t *testing.T) {
	block := telemetryBlock(4)
	assert.Len(t, block.Registers, 9)
	assert.Equal(t, uint16(6), block.Registers["Axle4Weight"].StartAddr)
	assert.NotContains(t, block.Registers, "Axle5Weight")
}
