package scale

import (
	"context"
	"fmt"
	"time"

	"github.com/cepro/weighcapture/modbus"
	"github.com/mitchellh/mapstructure"
)

const (
	calibrationPollPeriod = 200 * time.Millisecond
	calibrationTimeout    = 30 * time.Second
)

// weightRegisters is the decoded content of the weights and status register blocks.
type weightRegisters struct {
	GrossWeight       float64
	Axle1Weight       float64
	Axle2Weight       float64
	Axle3Weight       float64
	Axle4Weight       float64
	Axle5Weight       float64
	ZeroOffset        float64
	CalibrationStatus uint16
	Stable            uint16
}

func (w weightRegisters) weights() Weights {
	return Weights{
		Gross:      w.GrossWeight,
		Axles:      []float64{w.Axle1Weight, w.Axle2Weight, w.Axle3Weight, w.Axle4Weight, w.Axle5Weight},
		ZeroOffset: w.ZeroOffset,
		Stable:     w.Stable != 0,
	}
}

// modbusConnection talks to a weighbridge indicator that exposes its weights in holding registers.
type modbusConnection struct {
	config     Config
	unitFactor float64
	client     *modbus.Client
}

func newModbusConnection(config Config) (*modbusConnection, error) {
	factor, err := config.unitFactor()
	if err != nil {
		return nil, err
	}

	client, err := modbus.NewClient(config.Host(), config.UnitID, config.timeout())
	if err != nil {
		return nil, fmt.Errorf("create modbus client: %w", err)
	}

	return &modbusConnection{
		config:     config,
		unitFactor: factor,
		client:     client,
	}, nil
}

func (m *modbusConnection) Connect(ctx context.Context) error {
	err := m.client.Connect()
	if err != nil {
		return err
	}

	code, ok, err := m.config.accessCode()
	if err != nil {
		return err
	}
	if ok {
		err = m.client.WriteMetric(accessCodeMetric, code)
		if err != nil {
			return fmt.Errorf("write access code: %w", err)
		}
	}

	return nil
}

func (m *modbusConnection) ReadWeights(ctx context.Context) (Weights, error) {
	registers, err := m.readRegisters(ctx)
	if err != nil {
		return Weights{}, err
	}
	return registers.weights(), nil
}

// Calibrate asks the indicator to re-zero, waits for it to finish and returns the zero offset before and after.
func (m *modbusConnection) Calibrate(ctx context.Context) (float64, float64, error) {
	before, err := m.readRegisters(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("read offset: %w", err)
	}

	err = m.client.WriteMetric(calibrationCommandMetric, calibrationCommandZero)
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
			after, err := m.readRegisters(ctx)
			if err != nil {
				return 0, 0, fmt.Errorf("read calibration status: %w", err)
			}
			switch after.CalibrationStatus {
			case calibrationStatusBusy:
				continue
			case calibrationStatusFailed:
				return 0, 0, fmt.Errorf("indicator reported calibration failure")
			case calibrationStatusIdle:
				return before.ZeroOffset, after.ZeroOffset, nil
			default:
				return 0, 0, fmt.Errorf("unknown calibration status %d", after.CalibrationStatus)
			}
		}
	}
}

func (m *modbusConnection) Close() error {
	return m.client.Close()
}

func (m *modbusConnection) readRegisters(ctx context.Context) (weightRegisters, error) {
	if err := ctx.Err(); err != nil {
		return weightRegisters{}, err
	}

	metrics, err := m.client.PollBlocks(m, []modbus.MetricBlock{weightsBlock, statusBlock})
	if err != nil {
		return weightRegisters{}, err
	}

	return decodeRegisters(metrics)
}

// decodeRegisters converts the map of polled metrics into the concrete register struct.
func decodeRegisters(metrics map[string]interface{}) (weightRegisters, error) {
	var registers weightRegisters
	err := mapstructure.Decode(metrics, &registers)
	if err != nil {
		return weightRegisters{}, fmt.Errorf("decode metric map: %w", err)
	}
	return registers, nil
}
