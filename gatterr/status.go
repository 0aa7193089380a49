package gatterr

import "fmt"

// Transport status codes. Values follow the Android GATT/HCI numbering that
// most vendor stacks report; meanings past the ATT range are empirically
// derived and may differ between chipsets.
const (
	StatusSuccess                    = 0x00
	StatusReadNotPermitted           = 0x02
	StatusWriteNotPermitted          = 0x03
	StatusInsufficientAuthentication = 0x05
	StatusRequestNotSupported        = 0x06
	StatusInvalidOffset              = 0x07
	StatusConnectionTimeout          = 0x08
	StatusInvalidAttributeLength     = 0x0D
	StatusInsufficientEncryption     = 0x0F
	StatusPeerTerminated             = 0x13
	StatusLocalHostTerminated        = 0x16
	StatusLMPTimeout                 = 0x22
	StatusFailedToEstablish          = 0x3E
	StatusNoResources                = 0x80
	StatusInternalError              = 0x81
	StatusBusy                       = 0x84
	StatusStackError                 = 0x85 // the infamous 133 "GATT_ERROR"
	StatusIllegalParameter           = 0x87
	StatusAuthFail                   = 0x89
	StatusConnectionCongested        = 0x8F
	StatusConnectionCancelled        = 0x100
	StatusFailure                    = 0x101
)

// Classification is the verdict driving code acts on.
type Classification int

const (
	Unknown Classification = iota
	Recoverable
	ReconnectRequired
)

// String returns a human-readable classification name
func (c Classification) String() string {
	switch c {
	case Recoverable:
		return "recoverable"
	case ReconnectRequired:
		return "reconnect_required"
	default:
		return "unknown"
	}
}

type statusInfo struct {
	name        string
	class       Classification
	instability bool
}

// statusTable is the classifier. Extend it here rather than in control flow.
var statusTable = map[int]statusInfo{
	StatusSuccess:                    {name: "SUCCESS"},
	StatusReadNotPermitted:           {name: "READ_NOT_PERMITTED"},
	StatusWriteNotPermitted:          {name: "WRITE_NOT_PERMITTED"},
	StatusInsufficientAuthentication: {name: "INSUFFICIENT_AUTHENTICATION"},
	StatusRequestNotSupported:        {name: "REQUEST_NOT_SUPPORTED"},
	StatusInvalidOffset:              {name: "INVALID_OFFSET"},
	StatusConnectionTimeout:          {name: "CONN_TIMEOUT", class: ReconnectRequired},
	StatusInvalidAttributeLength:     {name: "INVALID_ATTRIBUTE_LENGTH"},
	StatusInsufficientEncryption:     {name: "INSUFFICIENT_ENCRYPTION"},
	StatusPeerTerminated:             {name: "CONN_TERMINATE_PEER_USER", class: ReconnectRequired},
	StatusLocalHostTerminated:        {name: "CONN_TERMINATE_LOCAL_HOST", class: Recoverable},
	StatusLMPTimeout:                 {name: "CONN_LMP_TIMEOUT", class: ReconnectRequired},
	StatusFailedToEstablish:          {name: "CONN_FAIL_ESTABLISH", class: ReconnectRequired},
	StatusNoResources:                {name: "NO_RESOURCES"},
	StatusInternalError:              {name: "INTERNAL_ERROR"},
	StatusBusy:                       {name: "BUSY"},
	StatusStackError:                 {name: "GATT_ERROR", class: Recoverable, instability: true},
	StatusIllegalParameter:           {name: "ILLEGAL_PARAMETER"},
	StatusAuthFail:                   {name: "AUTH_FAIL"},
	StatusConnectionCongested:        {name: "CONNECTION_CONGESTED"},
	StatusConnectionCancelled:        {name: "CONN_CANCEL", class: ReconnectRequired},
	StatusFailure:                    {name: "FAILURE"},
}

// Classify returns the recovery verdict for a transport status code.
// Unrecognized codes are Unknown.
func Classify(code int) Classification {
	if info, ok := statusTable[code]; ok {
		return info.class
	}
	return Unknown
}

// SignalsInstability reports whether code is one that, when repeated, points
// at a wedged platform Bluetooth stack rather than the peripheral.
func SignalsInstability(code int) bool {
	return statusTable[code].instability
}

// StatusName returns the diagnostic name for code, or a hex placeholder for
// codes the table does not know.
func StatusName(code int) string {
	if info, ok := statusTable[code]; ok {
		return info.name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", code)
}
