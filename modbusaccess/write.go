package modbusaccess

import (
	"fmt"

	"github.com/grid-x/modbus"
)

// WriteRegister writes the given value to the given modbus register
func WriteRegister(client modbus.Client, register Register, val interface{}) error {

	if register.DataType.toBytesFunc == nil {
		return fmt.Errorf("data type %s cannot be written", register.DataType.name)
	}

	bytes := register.DataType.toBytesFunc(val)
	_, err := client.WriteMultipleRegisters(register.StartAddr, register.DataType.dataLength/2, bytes)
	if err != nil {
		return fmt.Errorf("write register %d: %w", register.StartAddr, err)
	}

	return nil
}
