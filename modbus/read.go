package modbus

import (
	"encoding/binary"
	"fmt"
	"maps"

	"github.com/simonvetter/modbus"
)

// PollBlocks reads all the metric `blocks` from the device and returns a map of the parsed values, keyed by metric name.
// The `scaler` instance is passed into any scaling functions defined in the register block.
func (c *Client) PollBlocks(scaler Scaler, blocks []MetricBlock) (map[string]interface{}, error) {

	allMetricVals := make(map[string]interface{})

	for _, block := range blocks {
		blockMetricVals, err := c.PollBlock(scaler, block)
		if err != nil {
			return nil, fmt.Errorf("poll block '%s': %w", block.Name, err)
		}
		maps.Copy(allMetricVals, blockMetricVals)
	}

	return allMetricVals, nil
}

// PollBlock reads a single metric `block` from the device and returns a map of the parsed values, keyed by metric name.
// The `scaler` instance is passed into any scaling functions defined in the register block.
func (c *Client) PollBlock(scaler Scaler, block MetricBlock) (map[string]interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.reconnectIfNeccesary()
	if err != nil {
		return nil, fmt.Errorf("reconnect: %w", err)
	}

	// read the whole block of bytes from the modbus device
	registerVals, err := c.subClient.ReadRegisters(block.StartAddr, block.NumRegisters, modbus.HOLDING_REGISTER)
	if err != nil {
		c.setShouldReconnect()
		return nil, fmt.Errorf("read block: %w", err)
	}

	return DecodeBlock(scaler, block, registersToBytes(registerVals))
}

// DecodeBlock extracts every metric of the `block` from the raw bytes that were read from it.
func DecodeBlock(scaler Scaler, block MetricBlock, bytes []byte) (map[string]interface{}, error) {

	metricVals := make(map[string]interface{}, len(block.Metrics))
	for key, metric := range block.Metrics {

		// sanity check the modbus register configuration to avoid out of bound panics
		offset := (int(metric.StartAddr) - int(block.StartAddr)) * 2 // registers are two bytes long
		if offset < 0 {
			return nil, fmt.Errorf("register configuration for `%s` preceeds block", key)
		}
		if offset+int(metric.DataType.dataLength) > len(bytes) {
			return nil, fmt.Errorf("register configuration for '%s' exceeds block", key)
		}

		// grab the relevant bytes for this metric from the block of bytes
		metricBytes := bytes[offset:(offset + int(metric.DataType.dataLength))]

		// convert the bytes into the concrete data type (mostly these are floats)
		metricVal := metric.DataType.fromBytesFunc(metricBytes)

		// scale the value as required by the products modbus specification
		if metric.ScalingFunc != nil {
			metricVal = metric.ScalingFunc(scaler, metricVal)
		}

		metricVals[key] = metricVal
	}

	return metricVals, nil
}

// registersToBytes converts register values (each is a uint16) into a byte array.
func registersToBytes(registerVals []uint16) []byte {
	bytes := make([]byte, len(registerVals)*2)
	for i, registerVal := range registerVals {
		loc := i * 2
		binary.BigEndian.PutUint16(bytes[loc:loc+2], registerVal)
	}
	return bytes
}
