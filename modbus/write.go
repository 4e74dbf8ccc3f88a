package modbus

import (
	"encoding/binary"
	"fmt"
)

// WriteMetric writes the given value to the given modbus metric
func (c *Client) WriteMetric(metric Metric, val interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.reconnectIfNeccesary()
	if err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}

	if metric.DataType.toBytesFunc == nil {
		return fmt.Errorf("data type %s cannot be written", metric.DataType.name)
	}

	err = c.subClient.WriteRegisters(metric.StartAddr, bytesToRegisters(metric.DataType.toBytesFunc(val)))
	if err != nil {
		c.setShouldReconnect()
		return fmt.Errorf("write register %d: %w", metric.StartAddr, err)
	}

	return nil
}

// bytesToRegisters packs the bytes into big endian register values.
func bytesToRegisters(bytes []byte) []uint16 {
	nBytes := len(bytes)
	registerVals := make([]uint16, 0, nBytes/2)
	for i := 0; i+1 < nBytes; i = i + 2 {
		registerVals = append(registerVals, binary.BigEndian.Uint16(bytes[i:i+2]))
	}
	return registerVals
}
