package session

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/user/gattlink/gatterr"
	"github.com/user/gattlink/radio"
)

// ATT_MTU bounds (Core Spec Vol 3, Part F, 3.2.8)
const (
	MinMTU = 23
	MaxMTU = 517
)

// Connect opens the link. It is a no-op when already connected.
func (s *Session) Connect(ctx context.Context, d time.Duration) error {
	if state := s.ConnectionStatus(); state == radio.StateDisconnecting {
		return &gatterr.ConnectionStateError{Op: gatterr.OpConnect, State: state.String()}
	}
	op, ctx := s.newOperation(ctx, gatterr.OpConnect, d)
	op.start = func(op *operation) error {
		switch state := s.ConnectionStatus(); state {
		case radio.StateConnected, radio.StateConnecting:
			s.complete(op, result{})
			return nil
		case radio.StateDisconnecting:
			s.complete(op, result{err: &gatterr.ConnectionStateError{Op: op.kind, State: state.String()}})
			return nil
		}
		s.setConnection(radio.StateConnecting)
		if err := s.transport.Connect(s.cb); err != nil {
			s.setConnection(radio.StateDisconnected)
			return err
		}
		return nil
	}
	op.expire = func(op *operation) result {
		if err := s.transport.Disconnect(); err != nil {
			s.log.Warn(s.tag, "disconnect after connect timeout: %v", err)
		}
		s.setConnection(radio.StateDisconnected)
		return result{err: &gatterr.OperationTimeoutError{Op: op.kind, Name: op.id}}
	}
	return s.submit(ctx, op).err
}

// Disconnect closes the link. It is a no-op when already disconnected.
func (s *Session) Disconnect(ctx context.Context, d time.Duration) error {
	if state := s.ConnectionStatus(); state == radio.StateConnecting {
		return &gatterr.ConnectionStateError{Op: gatterr.OpDisconnect, State: state.String()}
	}
	op, ctx := s.newOperation(ctx, gatterr.OpDisconnect, d)
	op.start = func(op *operation) error {
		switch state := s.ConnectionStatus(); state {
		case radio.StateDisconnected:
			s.complete(op, result{})
			return nil
		case radio.StateConnecting:
			s.complete(op, result{err: &gatterr.ConnectionStateError{Op: op.kind, State: state.String()}})
			return nil
		}
		s.setConnection(radio.StateDisconnecting)
		if err := s.transport.Disconnect(); err != nil {
			s.setConnection(radio.StateConnected)
			return err
		}
		return nil
	}
	op.expire = func(op *operation) result {
		s.linkDown()
		return result{err: &gatterr.OperationTimeoutError{Op: op.kind, Name: op.id}}
	}
	return s.submit(ctx, op).err
}

// CreateBond pairs with the peripheral. It is a no-op when already bonded.
func (s *Session) CreateBond(ctx context.Context, d time.Duration) error {
	return s.bondOp(ctx, gatterr.OpCreateBond, radio.BondBonded, d)
}

// RemoveBond forgets the pairing. It is a no-op when not bonded.
func (s *Session) RemoveBond(ctx context.Context, d time.Duration) error {
	return s.bondOp(ctx, gatterr.OpRemoveBond, radio.BondNone, d)
}

func (s *Session) bondOp(ctx context.Context, kind gatterr.Operation, target radio.BondState, d time.Duration) error {
	op, ctx := s.newOperation(ctx, kind, d)
	op.start = func(op *operation) error {
		current := s.transport.BondState()
		s.setBond(current)
		if current == target {
			s.complete(op, result{})
			return nil
		}
		if target == radio.BondBonded {
			return s.transport.CreateBond()
		}
		return s.transport.RemoveBond()
	}
	op.expire = func(op *operation) result {
		// the broadcast may have been lost while the bond change went through
		actual := s.transport.BondState()
		s.setBond(actual)
		if actual == target {
			s.log.Info(s.tag, "%s timed out but bond is %s", op, actual)
			return result{}
		}
		return result{err: &gatterr.OperationTimeoutError{Op: op.kind, Name: op.id}}
	}
	return s.submit(ctx, op).err
}

// DiscoverServices reads the peripheral's GATT table
func (s *Session) DiscoverServices(ctx context.Context, d time.Duration) error {
	if state := s.ConnectionStatus(); state != radio.StateConnected {
		return &gatterr.ConnectionStateError{Op: gatterr.OpDiscoverServices, State: state.String()}
	}
	op, ctx := s.newOperation(ctx, gatterr.OpDiscoverServices, d)
	op.start = func(op *operation) error {
		if !s.requireConnected(op) {
			return nil
		}
		return s.transport.DiscoverServices()
	}
	return s.submit(ctx, op).err
}

// DiscoverService returns service id, running discovery first if needed
func (s *Session) DiscoverService(ctx context.Context, id uuid.UUID, d time.Duration) (*Service, error) {
	if state := s.ConnectionStatus(); !s.ServicesDiscovered() && state != radio.StateConnected {
		return nil, &gatterr.ConnectionStateError{Op: gatterr.OpDiscoverService, State: state.String()}
	}
	op, ctx := s.newOperation(ctx, gatterr.OpDiscoverService, d)
	op.service = id
	op.start = func(op *operation) error {
		if s.ServicesDiscovered() {
			s.complete(op, s.lookupService(id))
			return nil
		}
		if !s.requireConnected(op) {
			return nil
		}
		return s.transport.DiscoverServices()
	}
	res := s.submit(ctx, op)
	return res.service, res.err
}

func (s *Session) lookupService(id uuid.UUID) result {
	s.mu.RLock()
	svc, ok := s.services[id]
	s.mu.RUnlock()
	if !ok {
		return result{err: &gatterr.ServiceDiscoveryFailedError{Service: id.String()}}
	}
	return result{service: svc}
}

// EnableNotification turns on notifications for a characteristic, or
// indications when that is all it supports
func (s *Session) EnableNotification(ctx context.Context, service, characteristic uuid.UUID, d time.Duration) error {
	return s.notifyOp(ctx, gatterr.OpEnableNotification, service, characteristic, true, d)
}

// DisableNotification turns notifications off for a characteristic
func (s *Session) DisableNotification(ctx context.Context, service, characteristic uuid.UUID, d time.Duration) error {
	return s.notifyOp(ctx, gatterr.OpDisableNotification, service, characteristic, false, d)
}

func (s *Session) notifyOp(ctx context.Context, kind gatterr.Operation, service, characteristic uuid.UUID, enable bool, d time.Duration) error {
	op, ctx := s.newOperation(ctx, kind, d)
	op.service = service
	op.characteristic = characteristic
	op.start = func(op *operation) error {
		if !s.requireConnected(op) {
			return nil
		}
		value := radio.CCCDDisable
		if enable {
			value = radio.CCCDEnableNotification
			if c, ok := s.findCharacteristic(service, characteristic); ok && !c.CanNotify() && c.CanIndicate() {
				value = radio.CCCDEnableIndication
			}
		}
		if err := s.transport.SetNotify(service, characteristic, enable); err != nil {
			return err
		}
		return s.transport.WriteDescriptor(service, characteristic, radio.CCCD, value)
	}
	return s.submit(ctx, op).err
}

func (s *Session) findCharacteristic(service, characteristic uuid.UUID) (*Characteristic, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[service]
	if !ok {
		return nil, false
	}
	return svc.Characteristic(characteristic)
}

// WriteCommand writes payload without response. The payload must fit in
// MaxPayload.
func (s *Session) WriteCommand(ctx context.Context, service, characteristic uuid.UUID, payload []byte, d time.Duration) error {
	if len(payload) == 0 {
		return &gatterr.ValidationError{Field: "payload", Reason: "empty"}
	}
	if limit := s.MaxPayload(); len(payload) > limit {
		return &gatterr.ValidationError{
			Field:  "payload",
			Reason: fmt.Sprintf("%d bytes exceeds max payload %d", len(payload), limit),
		}
	}
	value := bytes.Clone(payload)
	op, ctx := s.newOperation(ctx, gatterr.OpWriteCommand, d)
	op.service = service
	op.characteristic = characteristic
	op.start = func(op *operation) error {
		if !s.requireConnected(op) {
			return nil
		}
		return s.transport.WriteCharacteristic(service, characteristic, value, false)
	}
	return s.submit(ctx, op).err
}

// ReadCharacteristic reads a characteristic value
func (s *Session) ReadCharacteristic(ctx context.Context, service, characteristic uuid.UUID, d time.Duration) ([]byte, error) {
	op, ctx := s.newOperation(ctx, gatterr.OpReadCharacteristic, d)
	op.service = service
	op.characteristic = characteristic
	op.start = func(op *operation) error {
		if !s.requireConnected(op) {
			return nil
		}
		return s.transport.ReadCharacteristic(service, characteristic)
	}
	res := s.submit(ctx, op)
	return res.value, res.err
}

// RequestMTU negotiates the ATT MTU and returns the value granted. On
// success MaxPayload becomes mtu-3.
func (s *Session) RequestMTU(ctx context.Context, mtu int, d time.Duration) (int, error) {
	if mtu < MinMTU || mtu > MaxMTU {
		return 0, &gatterr.ValidationError{
			Field:  "mtu",
			Reason: fmt.Sprintf("%d outside %d..%d", mtu, MinMTU, MaxMTU),
		}
	}
	op, ctx := s.newOperation(ctx, gatterr.OpRequestMTU, d)
	op.start = func(op *operation) error {
		if !s.requireConnected(op) {
			return nil
		}
		return s.transport.RequestMTU(mtu)
	}
	res := s.submit(ctx, op)
	return res.n, res.err
}

// requireConnected completes op with a ConnectionStateError unless the link
// is up
func (s *Session) requireConnected(op *operation) bool {
	if state := s.ConnectionStatus(); state != radio.StateConnected {
		s.complete(op, result{err: &gatterr.ConnectionStateError{Op: op.kind, State: state.String()}})
		return false
	}
	return true
}
