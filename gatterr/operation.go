package gatterr

import "fmt"

// Operation identifies the GATT procedure an error or timeout belongs to.
type Operation int

const (
	OpConnect Operation = iota
	OpDisconnect
	OpCreateBond
	OpRemoveBond
	OpDiscoverServices
	OpDiscoverService
	OpReadCharacteristic
	OpWriteCommand
	OpEnableNotification
	OpDisableNotification
	OpRequestMTU
	OpSetPower
	OpScan
)

var operationNames = map[Operation]string{
	OpConnect:             "connect",
	OpDisconnect:          "disconnect",
	OpCreateBond:          "create_bond",
	OpRemoveBond:          "remove_bond",
	OpDiscoverServices:    "discover_services",
	OpDiscoverService:     "discover_service",
	OpReadCharacteristic:  "read_characteristic",
	OpWriteCommand:        "write_command",
	OpEnableNotification:  "enable_notification",
	OpDisableNotification: "disable_notification",
	OpRequestMTU:          "request_mtu",
	OpSetPower:            "set_power",
	OpScan:                "scan",
}

// String returns the snake_case operation name
func (op Operation) String() string {
	if name, ok := operationNames[op]; ok {
		return name
	}
	return fmt.Sprintf("operation(%d)", int(op))
}
