package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cepro/weighcapture/scale"
	"github.com/stretchr/testify/assert"
)

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRead_JSON(t *testing.T) {
	t.Setenv("SCALE_PIN", "4821")

	path := writeFile(t, "config.json", `{
		"scales": {
			"scale-1": {"address": "192.168.8.20", "unitId": 1, "authKey": "${SCALE_PIN}"}
		},
		"iotSensors": {
			"iot-1": {"gatewayAddress": "192.168.8.30:502", "sensorId": 4, "timeout": "2s"}
		},
		"manualEntry": {
			"manual-1": {"operator": "gatehouse"}
		},
		"activeProvider": "scale-1",
		"axleLimits": {"positions": {"1": 13000}, "default": 20000},
		"calibrationLog": {"path": "calibrations.db", "uploadIntervalSecs": 30}
	}`)

	config, err := Read(path)
	assert.NoError(t, err)
	assert.Equal(t, "4821", config.Scales["scale-1"].AuthKey)
	assert.Equal(t, uint8(1), config.Scales["scale-1"].UnitID)
	assert.Equal(t, 4.0, config.IoTSensors["iot-1"]["sensorId"])
	assert.Equal(t, "gatehouse", config.ManualEntry["manual-1"].Operator)
	assert.Equal(t, 13000.0, config.AxleLimits.MaxLegal(1))
	assert.Equal(t, 20000.0, config.AxleLimits.MaxLegal(2))
	assert.Equal(t, 30, config.CalibrationLog.UploadIntervalSecs)
}

func TestRead_YAML(t *testing.T) {
	path := writeFile(t, "site.yaml", `
scales:
  scale-1:
    protocol: simulated
cameras:
  camera-1:
    source: http
    snapshotUrl: http://192.168.8.40/snapshot.jpg
    displayRegion: {x: 100, y: 80, width: 400, height: 120}
activeProvider: camera-1
location:
  latitude: 51.5
  longitude: -0.12
  accuracy: 10
logging:
  env: production
  level: debug
`)

	config, err := Read(path)
	assert.NoError(t, err)
	assert.Equal(t, scale.ProtocolSimulated, config.Scales["scale-1"].Protocol)
	assert.Equal(t, 400, config.Cameras["camera-1"].DisplayRegion.Width)
	assert.Equal(t, 51.5, config.Location.Latitude)
	assert.Equal(t, "production", config.Logging.Env)
	assert.Nil(t, config.AxleLimits)
}

func TestRead_PartialAxleLimits(t *testing.T) {
	path := writeFile(t, "site.yaml", `
manualEntry:
  manual-1: {}
axleLimits:
  positions:
    1: 10000
`)

	config, err := Read(path)
	assert.NoError(t, err)

	readings := config.AxleLimits.Readings([]float64{9000, 17000, 17000, 17000, 17000})
	assert.Equal(t, 10000.0, readings[0].MaxLegal)
	for _, reading := range readings[1:] {
		assert.Equal(t, 34000.0, reading.MaxLegal, "position %d", reading.Position)
		assert.False(t, reading.Overweight(), "position %d", reading.Position)
	}
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name:    "malformed json",
			file:    "config.json",
			content: `{"scales": `,
		},
		{
			name:    "unknown active provider",
			file:    "config.json",
			content: `{"manualEntry": {"manual-1": {}}, "activeProvider": "scale-9"}`,
		},
		{
			name:    "duplicate device id",
			file:    "config.json",
			content: `{"scales": {"dev-1": {"protocol": "simulated"}}, "manualEntry": {"dev-1": {}}}`,
		},
		{
			name:    "invalid scale",
			file:    "config.yml",
			content: "scales:\n  scale-1:\n    protocol: serial\n",
		},
		{
			name:    "iot sensor without gateway",
			file:    "config.json",
			content: `{"iotSensors": {"iot-1": {"sensorId": 4}}}`,
		},
		{
			name:    "iot sensor with unknown transport",
			file:    "config.yml",
			content: "iotSensors:\n  iot-1:\n    transport: lora\n",
		},
		{
			name:    "iot sensor with too many axles",
			file:    "config.yml",
			content: "iotSensors:\n  iot-1:\n    transport: simulated\n    axles: 12\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(writeFile(t, tt.file, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Read(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
