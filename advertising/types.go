package advertising

import "fmt"

// AD Types (Advertising Data Types) - EIR/AD format
const (
	ADTypeFlags                          = 0x01 // Flags
	ADTypeIncomplete16BitServiceUUIDs    = 0x02 // Incomplete List of 16-bit Service UUIDs
	ADTypeComplete16BitServiceUUIDs      = 0x03 // Complete List of 16-bit Service UUIDs
	ADTypeIncomplete32BitServiceUUIDs    = 0x04 // Incomplete List of 32-bit Service UUIDs
	ADTypeComplete32BitServiceUUIDs      = 0x05 // Complete List of 32-bit Service UUIDs
	ADTypeIncomplete128BitServiceUUIDs   = 0x06 // Incomplete List of 128-bit Service UUIDs
	ADTypeComplete128BitServiceUUIDs     = 0x07 // Complete List of 128-bit Service UUIDs
	ADTypeShortenedLocalName             = 0x08 // Shortened Local Name
	ADTypeCompleteLocalName              = 0x09 // Complete Local Name
	ADTypeTxPowerLevel                   = 0x0A // Tx Power Level
	ADTypeClassOfDevice                  = 0x0D // Class of Device
	ADTypeSlaveConnectionIntervalRange   = 0x12 // Slave Connection Interval Range
	ADType16BitServiceSolicitationUUIDs  = 0x14 // List of 16-bit Service Solicitation UUIDs
	ADType128BitServiceSolicitationUUIDs = 0x15 // List of 128-bit Service Solicitation UUIDs
	ADTypeServiceData16Bit               = 0x16 // Service Data - 16-bit UUID
	ADTypeAppearance                     = 0x19 // Appearance
	ADTypeAdvertisingInterval            = 0x1A // Advertising Interval
	ADTypeLEBluetoothDeviceAddress       = 0x1B // LE Bluetooth Device Address
	ADTypeLERole                         = 0x1C // LE Role
	ADTypeServiceData32Bit               = 0x20 // Service Data - 32-bit UUID
	ADTypeServiceData128Bit              = 0x21 // Service Data - 128-bit UUID
	ADTypeURI                            = 0x24 // URI
	ADTypeManufacturerSpecificData       = 0xFF // Manufacturer Specific Data
)

// Advertising Flags (used in ADTypeFlags)
const (
	FlagLELimitedDiscoverableMode     = 0x01 // LE Limited Discoverable Mode
	FlagLEGeneralDiscoverableMode     = 0x02 // LE General Discoverable Mode
	FlagBREDRNotSupported             = 0x04 // BR/EDR Not Supported
	FlagSimultaneousLEBREDRController = 0x08 // Simultaneous LE and BR/EDR (Controller)
	FlagSimultaneousLEBREDRHost       = 0x10 // Simultaneous LE and BR/EDR (Host)
)

const (
	MaxLegacyDataLen = 31  // BLE 4.x advertising data limit
	MaxPayloadLen    = 254 // length byte covers type + payload
	BLEAddressLen    = 6
)

var typeNames = map[byte]string{
	ADTypeFlags:                          "Flags",
	ADTypeIncomplete16BitServiceUUIDs:    "Incomplete 16-bit Service UUIDs",
	ADTypeComplete16BitServiceUUIDs:      "Complete 16-bit Service UUIDs",
	ADTypeIncomplete32BitServiceUUIDs:    "Incomplete 32-bit Service UUIDs",
	ADTypeComplete32BitServiceUUIDs:      "Complete 32-bit Service UUIDs",
	ADTypeIncomplete128BitServiceUUIDs:   "Incomplete 128-bit Service UUIDs",
	ADTypeComplete128BitServiceUUIDs:     "Complete 128-bit Service UUIDs",
	ADTypeShortenedLocalName:             "Shortened Local Name",
	ADTypeCompleteLocalName:              "Complete Local Name",
	ADTypeTxPowerLevel:                   "Tx Power Level",
	ADTypeClassOfDevice:                  "Class of Device",
	ADTypeSlaveConnectionIntervalRange:   "Slave Connection Interval Range",
	ADType16BitServiceSolicitationUUIDs:  "16-bit Service Solicitation UUIDs",
	ADType128BitServiceSolicitationUUIDs: "128-bit Service Solicitation UUIDs",
	ADTypeServiceData16Bit:               "Service Data (16-bit UUID)",
	ADTypeAppearance:                     "Appearance",
	ADTypeAdvertisingInterval:            "Advertising Interval",
	ADTypeLEBluetoothDeviceAddress:       "LE Bluetooth Device Address",
	ADTypeLERole:                         "LE Role",
	ADTypeServiceData32Bit:               "Service Data (32-bit UUID)",
	ADTypeServiceData128Bit:              "Service Data (128-bit UUID)",
	ADTypeURI:                            "URI",
	ADTypeManufacturerSpecificData:       "Manufacturer Specific Data",
}

// TypeName returns a human-readable name for an AD type
func TypeName(adType byte) string {
	if name, ok := typeNames[adType]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(0x%02X)", adType)
}
