package iot

import (
	"context"
	"fmt"
	"time"

	"github.com/cepro/weighcapture/modbusaccess"
	"github.com/grid-x/modbus"
	"github.com/mitchellh/mapstructure"
)

const (
	calibrationPollPeriod = 500 * time.Millisecond
	calibrationTimeout    = 60 * time.Second
)

// sensorRegisters is the decoded content of the housekeeping registers.
type sensorRegisters struct {
	BatteryLevel   float64
	SignalStrength float64
	Temperature    float64
	Humidity       float64
	ZeroOffset     float64
}

// gatewayLink reaches the sensor array through a wireless gateway that exposes each paired sensor as a modbus slave.
type gatewayLink struct {
	config  Config
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

func newGatewayLink(config Config) *gatewayLink {
	handler := modbus.NewTCPClientHandler(config.GatewayAddress)
	handler.Timeout = config.Timeout
	handler.SlaveID = config.SensorID

	return &gatewayLink{
		config:  config,
		handler: handler,
		client:  modbus.NewClient(handler),
	}
}

func (g *gatewayLink) Pair(ctx context.Context) error {
	err := g.handler.Connect()
	if err != nil {
		return fmt.Errorf("connect to gateway %s: %w", g.config.GatewayAddress, err)
	}

	// a paired sensor answers on its slave id, reading the calibration block checks that it is there
	_, err = modbusaccess.PollBlock(g.client, nil, calibrationBlock)
	if err != nil {
		g.handler.Close()
		return fmt.Errorf("sensor %d not paired: %w", g.config.SensorID, err)
	}

	return nil
}

func (g *gatewayLink) Sample(ctx context.Context) (Telemetry, error) {
	if err := ctx.Err(); err != nil {
		return Telemetry{}, err
	}

	metrics, err := modbusaccess.PollBlock(g.client, nil, telemetryBlock(g.config.Axles))
	if err != nil {
		return Telemetry{}, err
	}

	return decodeTelemetry(metrics, g.config.Axles)
}

// Calibrate asks the sensor array to re-zero and returns the zero offset before and after.
func (g *gatewayLink) Calibrate(ctx context.Context) (float64, float64, error) {
	before, err := g.Sample(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("read offset: %w", err)
	}

	err = modbusaccess.WriteRegister(g.client, calibrationBlock.Registers["CalibrationCommand"], calibrationCommandZero)
	if err != nil {
		return 0, 0, fmt.Errorf("issue calibration command: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, calibrationTimeout)
	defer cancel()

	ticker := time.NewTicker(calibrationPollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0, 0, fmt.Errorf("wait for calibration: %w", ctx.Err())
		case <-ticker.C:
			metrics, err := modbusaccess.PollBlock(g.client, nil, calibrationBlock)
			if err != nil {
				return 0, 0, fmt.Errorf("read calibration status: %w", err)
			}
			switch metrics["CalibrationStatus"].(uint16) {
			case calibrationStatusBusy:
				continue
			case calibrationStatusFailed:
				return 0, 0, fmt.Errorf("sensor reported calibration failure")
			}

			after, err := g.Sample(ctx)
			if err != nil {
				return 0, 0, fmt.Errorf("read offset: %w", err)
			}
			return before.ZeroOffset, after.ZeroOffset, nil
		}
	}
}

func (g *gatewayLink) Close() error {
	return g.handler.Close()
}

// decodeTelemetry converts the map of polled metrics into a Telemetry sample.
func decodeTelemetry(metrics map[string]interface{}, axles int) (Telemetry, error) {
	var registers sensorRegisters
	err := mapstructure.Decode(metrics, &registers)
	if err != nil {
		return Telemetry{}, fmt.Errorf("decode metric map: %w", err)
	}

	t := Telemetry{
		Axles:          make([]float64, 0, axles),
		ZeroOffset:     registers.ZeroOffset,
		BatteryLevel:   registers.BatteryLevel,
		SignalStrength: registers.SignalStrength,
		Temperature:    registers.Temperature,
		Humidity:       registers.Humidity,
	}
	for i := 0; i < axles; i++ {
		weight, ok := metrics[axleRegisterName(i)].(float64)
		if !ok {
			return Telemetry{}, fmt.Errorf("missing metric %s", axleRegisterName(i))
		}
		t.Axles = append(t.Axles, weight)
	}

	return t, nil
}
