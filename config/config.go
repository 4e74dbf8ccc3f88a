package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cepro/weighcapture/camera"
	"github.com/cepro/weighcapture/iot"
	"github.com/cepro/weighcapture/manual"
	"github.com/cepro/weighcapture/scale"
	"github.com/cepro/weighcapture/telemetry"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type SupabaseConfig struct {
	Url string `json:"url" yaml:"url"`
	// key is specified via env var
	Schema string `json:"schema" yaml:"schema"`
}

type CalibrationLogConfig struct {
	// Path is the SQLite database that buffers calibration records until they are uploaded
	Path               string         `json:"path" yaml:"path"`
	UploadIntervalSecs int            `json:"uploadIntervalSecs" yaml:"uploadIntervalSecs"`
	Supabase           SupabaseConfig `json:"supabase" yaml:"supabase"`
}

type LoggingConfig struct {
	Env   string `json:"env" yaml:"env"`     // "production" selects JSON output
	Level string `json:"level" yaml:"level"` // debug, info, warn or error
}

// Config describes the capture devices at a weighing site. Devices are keyed by their id.
type Config struct {
	Scales      map[string]scale.Config           `json:"scales" yaml:"scales"`
	IoTSensors  map[string]map[string]interface{} `json:"iotSensors" yaml:"iotSensors"`
	Cameras     map[string]camera.Config          `json:"cameras" yaml:"cameras"`
	ManualEntry map[string]manual.Config          `json:"manualEntry" yaml:"manualEntry"`

	ActiveProvider   string                 `json:"activeProvider" yaml:"activeProvider"`
	AxleLimits       *telemetry.AxleLimits  `json:"axleLimits" yaml:"axleLimits"`
	Location         *telemetry.GeoLocation `json:"location" yaml:"location"`
	CalibrateOnStart bool                   `json:"calibrateOnStart" yaml:"calibrateOnStart"`

	ReadingLogIntervalSecs int                  `json:"readingLogIntervalSecs" yaml:"readingLogIntervalSecs"`
	MetricsAddr            string               `json:"metricsAddr" yaml:"metricsAddr"`
	Logging                LoggingConfig        `json:"logging" yaml:"logging"`
	CalibrationLog         CalibrationLogConfig `json:"calibrationLog" yaml:"calibrationLog"`
}

// Read loads the config file at `path`, which may be JSON or YAML depending on its extension. Environment variables
// from a .env file alongside the working directory are loaded first, so that scale access codes can be given as
// ${VAR} references.
func Read(path string) (Config, error) {
	_ = godotenv.Load() // ignore missing file

	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &config)
	default:
		err = json.Unmarshal(content, &config)
	}
	if err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	for id, scaleConfig := range config.Scales {
		scaleConfig.AuthKey = os.ExpandEnv(scaleConfig.AuthKey)
		config.Scales[id] = scaleConfig
	}

	err = config.Validate()
	if err != nil {
		return Config{}, err
	}

	return config, nil
}

// Validate checks every device configuration, that device ids are unique across device types and that the active
// provider exists.
func (c Config) Validate() error {
	seen := make(map[string]string)
	add := func(kind, id string) error {
		if previous, ok := seen[id]; ok {
			return fmt.Errorf("device id '%s' used by both %s and %s", id, previous, kind)
		}
		seen[id] = kind
		return nil
	}

	for id, scaleConfig := range c.Scales {
		if err := add("scales", id); err != nil {
			return err
		}
		if err := scaleConfig.Validate(); err != nil {
			return fmt.Errorf("scale '%s': %w", id, err)
		}
	}
	for id, raw := range c.IoTSensors {
		if err := add("iotSensors", id); err != nil {
			return err
		}
		if _, err := iot.DecodeConfig(raw); err != nil {
			return fmt.Errorf("iot sensor '%s': %w", id, err)
		}
	}
	for id, cameraConfig := range c.Cameras {
		if err := add("cameras", id); err != nil {
			return err
		}
		if err := cameraConfig.Validate(); err != nil {
			return fmt.Errorf("camera '%s': %w", id, err)
		}
	}
	for id := range c.ManualEntry {
		if err := add("manualEntry", id); err != nil {
			return err
		}
	}

	if c.ActiveProvider != "" {
		if _, ok := seen[c.ActiveProvider]; !ok {
			return fmt.Errorf("active provider '%s' is not configured", c.ActiveProvider)
		}
	}

	return nil
}
