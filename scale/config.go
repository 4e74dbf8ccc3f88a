package scale

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

const (
	ProtocolModbusTCP = "modbus-tcp"
	ProtocolSimulated = "simulated"

	defaultModbusPort = 502
)

// Config holds the connection parameters of a digital scale. It is copied into the provider on construction and not
// changed afterwards.
type Config struct {
	Address        string `json:"address" yaml:"address"`
	Port           int    `json:"port" yaml:"port"`
	Protocol       string `json:"protocol" yaml:"protocol"` // defaults to modbus-tcp
	AuthKey        string `json:"authKey" yaml:"authKey"`   // numeric access code written to the indicator on connect
	UnitID         uint8  `json:"unitId" yaml:"unitId"`
	Unit           string `json:"unit" yaml:"unit"` // the unit the indicator reports in, "lb" (default) or "kg"
	TimeoutMs      int    `json:"timeoutMs" yaml:"timeoutMs"`
	PollIntervalMs int    `json:"pollIntervalMs" yaml:"pollIntervalMs"`
}

// Host returns the address and port formatted for dialling.
func (c Config) Host() string {
	port := c.Port
	if port == 0 {
		port = defaultModbusPort
	}
	return net.JoinHostPort(c.Address, strconv.Itoa(port))
}

func (c Config) protocol() string {
	if c.Protocol == "" {
		return ProtocolModbusTCP
	}
	return c.Protocol
}

func (c Config) timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// PollInterval returns the configured sampling period, or zero if the default should be used.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// unitFactor returns the multiplier that converts the indicator's unit into pounds.
func (c Config) unitFactor() (float64, error) {
	switch c.Unit {
	case "", "lb":
		return 1, nil
	case "kg":
		return 2.20462262, nil
	default:
		return 0, fmt.Errorf("unsupported unit '%s'", c.Unit)
	}
}

// accessCode parses the auth key. It returns false if no key is configured.
func (c Config) accessCode() (uint32, bool, error) {
	if c.AuthKey == "" {
		return 0, false, nil
	}
	code, err := strconv.ParseUint(c.AuthKey, 10, 32)
	if err != nil {
		return 0, false, fmt.Errorf("auth key must be a numeric access code: %w", err)
	}
	return uint32(code), true, nil
}

func (c Config) Validate() error {
	switch c.protocol() {
	case ProtocolModbusTCP:
		if c.Address == "" {
			return fmt.Errorf("address required for protocol %s", ProtocolModbusTCP)
		}
	case ProtocolSimulated:
	default:
		return fmt.Errorf("unsupported protocol '%s'", c.Protocol)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := c.unitFactor(); err != nil {
		return err
	}
	if _, _, err := c.accessCode(); err != nil {
		return err
	}
	return nil
}
