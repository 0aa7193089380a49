package gatterr

import (
	"errors"
	"fmt"
)

// Category sentinels. Every typed error below unwraps to exactly one of them,
// so callers can branch with errors.Is without knowing the concrete type.
var (
	ErrValidation             = errors.New("validation failed")
	ErrConnectionState        = errors.New("operation illegal in current connection state")
	ErrOperationTimeout       = errors.New("operation timed out")
	ErrServiceDiscoveryFailed = errors.New("service discovery failed")
	ErrTransport              = errors.New("transport error")
	ErrChangePowerState       = errors.New("change power state failed")
	ErrUnsupported            = errors.New("bluetooth unsupported")
	ErrReleased               = fmt.Errorf("%w: session released", ErrConnectionState)
)

// GattError is a non-success status reported by a transport callback.
type GattError struct {
	Status int
	Op     Operation
	Class  Classification
}

// NewGattError classifies status for op.
func NewGattError(op Operation, status int) GattError {
	return GattError{Status: status, Op: op, Class: Classify(status)}
}

func (e GattError) String() string {
	return fmt.Sprintf("%s failed with status %s (0x%02X, %s)", e.Op, StatusName(e.Status), e.Status, e.Class)
}

// ValidationError reports bad caller input, raised before any queue submission.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConnectionStateError reports an operation that is illegal in the current state.
type ConnectionStateError struct {
	Op    Operation
	State string
}

func (e *ConnectionStateError) Error() string {
	return fmt.Sprintf("%s not allowed while %s", e.Op, e.State)
}

func (e *ConnectionStateError) Unwrap() error { return ErrConnectionState }

// OperationTimeoutError reports a deadline that fired before the transport answered.
type OperationTimeoutError struct {
	Op   Operation
	Name string
}

func (e *OperationTimeoutError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s timed out (%s)", e.Op, e.Name)
	}
	return fmt.Sprintf("%s timed out", e.Op)
}

func (e *OperationTimeoutError) Unwrap() error { return ErrOperationTimeout }

// ServiceDiscoveryFailedError reports a service absent from the discovered table.
type ServiceDiscoveryFailedError struct {
	Service string
}

func (e *ServiceDiscoveryFailedError) Error() string {
	return fmt.Sprintf("service %s not found after discovery", e.Service)
}

func (e *ServiceDiscoveryFailedError) Unwrap() error { return ErrServiceDiscoveryFailed }

// TransportError wraps a classified GattError.
type TransportError struct {
	GattError
}

// NewTransportError classifies status for op and wraps it.
func NewTransportError(op Operation, status int) *TransportError {
	return &TransportError{GattError: NewGattError(op, status)}
}

func (e *TransportError) Error() string {
	return "transport: " + e.GattError.String()
}

func (e *TransportError) Unwrap() error { return ErrTransport }

// ChangePowerStateError reports a radio power toggle that failed or is unsupported.
type ChangePowerStateError struct {
	On  bool
	Err error
}

func (e *ChangePowerStateError) Error() string {
	state := "off"
	if e.On {
		state = "on"
	}
	if e.Err != nil {
		return fmt.Sprintf("turning radio %s: %v", state, e.Err)
	}
	return fmt.Sprintf("turning radio %s failed", state)
}

func (e *ChangePowerStateError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrChangePowerState}
	}
	return []error{ErrChangePowerState, e.Err}
}

// ClassOf extracts the classification from err, or Unknown when err does not
// carry a transport status.
func ClassOf(err error) Classification {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Class
	}
	return Unknown
}

// StatusOf returns the transport status carried by err, if any.
func StatusOf(err error) (int, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Status, true
	}
	return 0, false
}
