package iot

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

const (
	TransportModbusTCP = "modbus-tcp"
	TransportSimulated = "simulated"

	defaultAxles = 5
	maxAxles     = 8
)

// Config is the decoded form of the opaque configuration object handed to an IoT sensor provider.
// Addressing is left to the transport: for modbus-tcp the gateway address and the sensor's slave id are required.
type Config struct {
	Transport      string        `mapstructure:"transport"`
	GatewayAddress string        `mapstructure:"gatewayAddress"`
	SensorID       uint8         `mapstructure:"sensorId"`
	Axles          int           `mapstructure:"axles"`
	Timeout        time.Duration `mapstructure:"timeout"`
	PollIntervalMs int           `mapstructure:"pollIntervalMs"`
}

// DecodeConfig converts the raw configuration into a Config, filling in defaults.
func DecodeConfig(raw map[string]interface{}) (Config, error) {
	config := Config{
		Transport: TransportModbusTCP,
		Axles:     defaultAxles,
		Timeout:   5 * time.Second,
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &config,
	})
	if err != nil {
		return Config{}, fmt.Errorf("create decoder: %w", err)
	}

	err = decoder.Decode(raw)
	if err != nil {
		return Config{}, fmt.Errorf("decode iot config: %w", err)
	}

	err = config.Validate()
	if err != nil {
		return Config{}, err
	}

	return config, nil
}

func (c Config) Validate() error {
	switch c.Transport {
	case TransportModbusTCP:
		if c.GatewayAddress == "" {
			return fmt.Errorf("gatewayAddress required for transport %s", TransportModbusTCP)
		}
	case TransportSimulated:
	default:
		return fmt.Errorf("unsupported transport '%s'", c.Transport)
	}
	if c.Axles < 1 || c.Axles > maxAxles {
		return fmt.Errorf("axles must be between 1 and %d, got %d", maxAxles, c.Axles)
	}
	return nil
}

// PollInterval returns the configured sampling period, or zero if the default should be used.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}
