package modbus

import (
	"encoding/binary"
	"math"
)

// Type represents the different types of data that can be queried over modbus.
type Type struct {
	name          string                   // the name of the data type
	dataLength    uint16                   // the number of underlying bytes to represent the data type
	fromBytesFunc func([]byte) interface{} // function to convert the bytes to the concrete data type (used to read from modbus)
	toBytesFunc   func(interface{}) []byte // function to convert the concrete data type into bytes (used to write to modbus)
}

// FloatType represents the 32 bit float data type, word order big endian.
var FloatType = Type{
	name:       "float",
	dataLength: 4,
	fromBytesFunc: func(bytes []byte) interface{} {
		valUint32 := binary.BigEndian.Uint32(bytes)
		valFloat32 := math.Float32frombits(valUint32)
		return float64(valFloat32)
	},
	toBytesFunc: func(val interface{}) []byte {
		bytes := make([]byte, 4)
		binary.BigEndian.PutUint32(bytes, math.Float32bits(float32(val.(float64))))
		return bytes
	},
}

// Uint32Type represents the 32 bit unsigned integer data type on Modbus.
var Uint32Type = Type{
	name:       "uint32",
	dataLength: 4,
	fromBytesFunc: func(bytes []byte) interface{} {
		return binary.BigEndian.Uint32(bytes)
	},
	toBytesFunc: func(val interface{}) []byte {
		bytes := make([]byte, 4)
		binary.BigEndian.PutUint32(bytes, val.(uint32))
		return bytes
	},
}

// Uint16Type represents the 16 bit unsigned integer data type on Modbus.
var Uint16Type = Type{
	name:       "uint16",
	dataLength: 2,
	fromBytesFunc: func(bytes []byte) interface{} {
		return binary.BigEndian.Uint16(bytes)
	},
	toBytesFunc: func(val interface{}) []byte {
		bytes := make([]byte, 2)
		binary.BigEndian.PutUint16(bytes, val.(uint16))
		return bytes
	},
}

// Scaler can be any object used to help scale modbus values.
// For trivial scaling scenarios (e.g. 'divide by 10') this is not really required, but for more complicated scaling
// scenarios (e.g. 'scale by the configured load cell capacity') it can be neccesary to retrieve state from the `scaler`.
type Scaler interface{}

// valueScalingFunc is a prototype for a function that scales a modbus value.
type valueScalingFunc func(Scaler, interface{}) interface{}

// Metric holds a value on the modbus slave at the given address
type Metric struct {
	StartAddr   uint16
	DataType    Type
	ScalingFunc valueScalingFunc // a function to scale the recieved value to get it's 'true' value (transmitting scaled values is common in Modbus)
}

// MetricBlock represents a contigous block of modbus registers that are read in one chunk.
type MetricBlock struct {
	Name         string            // name of the block used for context/logging
	StartAddr    uint16            // the first register address of the block
	NumRegisters uint16            // the number of registers in this block (each register is two bytes)
	Metrics      map[string]Metric // details of all the metrics of interest in this block, keyed by unique name
}
