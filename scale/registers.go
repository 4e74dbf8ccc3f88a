package scale

import "github.com/cepro/weighcapture/modbus"

const (
	calibrationStatusIdle   = uint16(0)
	calibrationStatusBusy   = uint16(1)
	calibrationStatusFailed = uint16(2)

	calibrationCommandZero = uint16(1)
)

var weightsBlock = modbus.MetricBlock{
	Name:         "Weights",
	StartAddr:    0,
	NumRegisters: 14,
	Metrics: map[string]modbus.Metric{
		"GrossWeight": {
			StartAddr:   0,
			DataType:    modbus.FloatType,
			ScalingFunc: scaleWeight,
		},
		"Axle1Weight": {
			StartAddr:   2,
			DataType:    modbus.FloatType,
			ScalingFunc: scaleWeight,
		},
		"Axle2Weight": {
			StartAddr:   4,
			DataType:    modbus.FloatType,
			ScalingFunc: scaleWeight,
		},
		"Axle3Weight": {
			StartAddr:   6,
			DataType:    modbus.FloatType,
			ScalingFunc: scaleWeight,
		},
		"Axle4Weight": {
			StartAddr:   8,
			DataType:    modbus.FloatType,
			ScalingFunc: scaleWeight,
		},
		"Axle5Weight": {
			StartAddr:   10,
			DataType:    modbus.FloatType,
			ScalingFunc: scaleWeight,
		},
		"ZeroOffset": {
			StartAddr:   12,
			DataType:    modbus.FloatType,
			ScalingFunc: scaleWeight,
		},
	},
}

var statusBlock = modbus.MetricBlock{
	Name:         "Status",
	StartAddr:    100,
	NumRegisters: 2,
	Metrics: map[string]modbus.Metric{
		"CalibrationStatus": {
			StartAddr: 100,
			DataType:  modbus.Uint16Type,
		},
		"Stable": {
			StartAddr: 101,
			DataType:  modbus.Uint16Type,
		},
	},
}

var calibrationCommandMetric = modbus.Metric{
	StartAddr: 200,
	DataType:  modbus.Uint16Type,
}

var accessCodeMetric = modbus.Metric{
	StartAddr: 210,
	DataType:  modbus.Uint32Type,
}

// scaleWeight converts a weight from the indicator's configured unit into pounds
func scaleWeight(s modbus.Scaler, val interface{}) interface{} {
	return val.(float64) * s.(*modbusConnection).unitFactor
}
