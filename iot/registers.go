package iot

import (
	"fmt"

	"github.com/cepro/weighcapture/modbusaccess"
)

const (
	axleRegisterStart = uint16(0)

	calibrationStatusIdle   = uint16(0)
	calibrationStatusBusy   = uint16(1)
	calibrationStatusFailed = uint16(2)

	calibrationCommandZero = uint16(1)
)

// telemetryBlock returns the gateway's telemetry registers for a sensor array with the given number of axles.
// Axle loads are floats from register 0; the sensor's housekeeping values follow at register 40.
func telemetryBlock(axles int) modbusaccess.RegisterBlock {
	registers := map[string]modbusaccess.Register{
		"BatteryLevel": {
			StartAddr: 40,
			DataType:  modbusaccess.Uint16Type,
			ScalingFunc: func(s modbusaccess.Scaler, val interface{}) interface{} {
				return float64(val.(uint16))
			},
		},
		"SignalStrength": {
			StartAddr: 41,
			DataType:  modbusaccess.Int16Type,
			ScalingFunc: func(s modbusaccess.Scaler, val interface{}) interface{} {
				return float64(val.(int16))
			},
		},
		"Temperature": {
			StartAddr:   42,
			DataType:    modbusaccess.Int16Type,
			ScalingFunc: scaleTenthsSigned,
		},
		"Humidity": {
			StartAddr:   43,
			DataType:    modbusaccess.Uint16Type,
			ScalingFunc: scaleTenths,
		},
		"ZeroOffset": {
			StartAddr: 44,
			DataType:  modbusaccess.FloatType,
		},
	}
	for i := 0; i < axles; i++ {
		registers[axleRegisterName(i)] = modbusaccess.Register{
			StartAddr: axleRegisterStart + uint16(i*2),
			DataType:  modbusaccess.FloatType,
		}
	}

	return modbusaccess.RegisterBlock{
		Name:         "Telemetry",
		StartAddr:    0,
		NumRegisters: 46,
		Registers:    registers,
	}
}

var calibrationBlock = modbusaccess.RegisterBlock{
	Name:         "Calibration",
	StartAddr:    60,
	NumRegisters: 2,
	Registers: map[string]modbusaccess.Register{
		"CalibrationCommand": {
			StartAddr: 60,
			DataType:  modbusaccess.Uint16Type,
		},
		"CalibrationStatus": {
			StartAddr: 61,
			DataType:  modbusaccess.Uint16Type,
		},
	},
}

func axleRegisterName(i int) string {
	return fmt.Sprintf("Axle%dWeight", i+1)
}

func scaleTenths(s modbusaccess.Scaler, val interface{}) interface{} {
	return float64(val.(uint16)) / 10
}

func scaleTenthsSigned(s modbusaccess.Scaler, val interface{}) interface{} {
	return float64(val.(int16)) / 10
}
