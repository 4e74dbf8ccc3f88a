package scale

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "modbus by default",
			config:  Config{Address: "192.168.8.20"},
			wantErr: false,
		},
		{
			name:    "modbus without address",
			config:  Config{Protocol: ProtocolModbusTCP},
			wantErr: true,
		},
		{
			name:    "simulated needs no address",
			config:  Config{Protocol: ProtocolSimulated},
			wantErr: false,
		},
		{
			name:    "unknown protocol",
			config:  Config{Protocol: "serial", Address: "/dev/ttyUSB0"},
			wantErr: true,
		},
		{
			name:    "port out of range",
			config:  Config{Address: "scale.local", Port: 70000},
			wantErr: true,
		},
		{
			name:    "kilogram indicator",
			config:  Config{Address: "scale.local", Unit: "kg"},
			wantErr: false,
		},
		{
			name:    "unknown unit",
			config:  Config{Address: "scale.local", Unit: "stone"},
			wantErr: true,
		},
		{
			name:    "numeric auth key",
			config:  Config{Address: "scale.local", AuthKey: "4821"},
			wantErr: false,
		},
		{
			name:    "non numeric auth key",
			config:  Config{Address: "scale.local", AuthKey: "secret"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Host(t *testing.T) {
	assert.Equal(t, "scale.local:502", Config{Address: "scale.local"}.Host())
	assert.Equal(t, "[fe80::1]:1502", Config{Address: "fe80::1", Port: 1502}.Host())
}

func TestDecodeRegisters(t *testing.T) {
	conn, err := newModbusConnection(Config{Address: "scale.local", Unit: "kg"})
	assert.NoError(t, err)

	metrics := map[string]interface{}{
		"GrossWeight":       1000.0,
		"Axle1Weight":       100.0,
		"Axle2Weight":       200.0,
		"Axle3Weight":       200.0,
		"Axle4Weight":       250.0,
		"Axle5Weight":       250.0,
		"ZeroOffset":        1.5,
		"CalibrationStatus": uint16(0),
		"Stable":            uint16(1),
	}
	// the scaling functions use the connection to convert the indicator's unit
	assert.InDelta(t, 2204.62262, scaleWeight(conn, metrics["GrossWeight"]), 0.0001)

	registers, err := decodeRegisters(metrics)
	assert.NoError(t, err)

	weights := registers.weights()
	assert.Equal(t, 1000.0, weights.Gross)
	assert.Equal(t, []float64{100, 200, 200, 250, 250}, weights.Axles)
	assert.Equal(t, 1.5, weights.ZeroOffset)
	assert.True(t, weights.Stable)
	assert.Equal(t, calibrationStatusIdle, registers.CalibrationStatus)
}

func TestDecodeRegisters_WrongType(t *testing.T) {
	_, err := decodeRegisters(map[string]interface{}{"GrossWeight": "heavy"})
	assert.Error(t, err)
}
