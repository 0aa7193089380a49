package session

import (
	"bytes"
	"time"

	"github.com/google/uuid"

	"github.com/user/gattlink/gatterr"
	"github.com/user/gattlink/radio"
)

// callbacks receives transport events on arbitrary goroutines and replays
// them on the session loop
type callbacks struct {
	s *Session
}

var _ radio.TransportCallback = (*callbacks)(nil)

func (c *callbacks) OnConnectionStateChange(status int, newState radio.ConnectionState) {
	c.s.loop.Post(func() { c.s.onConnectionStateChange(status, newState) })
}

func (c *callbacks) OnBondStateChange(state radio.BondState, reason int) {
	c.s.loop.Post(func() { c.s.onBondStateChange(state, reason) })
}

func (c *callbacks) OnServicesDiscovered(services []radio.ServiceInfo, status int) {
	c.s.loop.Post(func() { c.s.onServicesDiscovered(services, status) })
}

func (c *callbacks) OnCharacteristicRead(service, characteristic uuid.UUID, value []byte, status int) {
	value = bytes.Clone(value)
	c.s.loop.Post(func() { c.s.onCharacteristicRead(service, characteristic, value, status) })
}

func (c *callbacks) OnCharacteristicWrite(service, characteristic uuid.UUID, status int) {
	c.s.loop.Post(func() { c.s.onCharacteristicWrite(service, characteristic, status) })
}

func (c *callbacks) OnDescriptorWrite(service, characteristic, descriptor uuid.UUID, status int) {
	c.s.loop.Post(func() { c.s.onDescriptorWrite(service, characteristic, descriptor, status) })
}

func (c *callbacks) OnMtuChanged(mtu int, status int) {
	c.s.loop.Post(func() { c.s.onMtuChanged(mtu, status) })
}

func (c *callbacks) OnCharacteristicChanged(service, characteristic uuid.UUID, value []byte) {
	value = bytes.Clone(value)
	c.s.loop.Post(func() { c.s.onCharacteristicChanged(service, characteristic, value) })
}

func (s *Session) onConnectionStateChange(status int, newState radio.ConnectionState) {
	s.log.Debug(s.tag, "connection state %s status %s", newState, gatterr.StatusName(status))

	switch newState {
	case radio.StateConnected:
		op := s.running(gatterr.OpConnect)
		if op == nil {
			s.log.Warn(s.tag, "ignoring late connect callback")
			return
		}
		s.setConnection(radio.StateConnected)
		s.log.Info(s.tag, "connected")
		s.log.DebugJSON(s.tag, "snapshot", s.Snapshot())
		s.complete(op, result{})

	case radio.StateDisconnected:
		prev := s.ConnectionStatus()
		wasUp := prev == radio.StateConnected || prev == radio.StateDisconnecting
		if op := s.running(gatterr.OpConnect); op != nil {
			s.setConnection(radio.StateDisconnected)
			if status == gatterr.StatusSuccess {
				status = gatterr.StatusFailedToEstablish
			}
			s.fail(op, status)
			return
		}
		if !wasUp {
			s.setConnection(radio.StateDisconnected)
			return
		}
		s.linkDown()
		if op := s.running(gatterr.OpDisconnect); op != nil {
			s.complete(op, result{})
			return
		}
		if op := s.current; op != nil {
			// link lost under a running operation
			if status == gatterr.StatusSuccess {
				status = gatterr.StatusPeerTerminated
			}
			s.fail(op, status)
		}

	default:
		s.setConnection(newState)
	}
}

func (s *Session) onBondStateChange(state radio.BondState, reason int) {
	s.setBond(state)
	op := s.running(gatterr.OpCreateBond, gatterr.OpRemoveBond)
	if op == nil {
		return
	}
	target := radio.BondBonded
	if op.kind == gatterr.OpRemoveBond {
		target = radio.BondNone
	}
	switch {
	case state == target:
		s.complete(op, result{})
	case state == radio.BondBonding:
		// still in progress
	default:
		if reason == gatterr.StatusSuccess {
			reason = gatterr.StatusFailure
		}
		s.fail(op, reason)
	}
}

func (s *Session) onServicesDiscovered(services []radio.ServiceInfo, status int) {
	if s.owed(replyKey{kind: gatterr.OpDiscoverServices}) {
		return
	}
	op := s.running(gatterr.OpDiscoverServices, gatterr.OpDiscoverService)
	if op == nil {
		s.log.Warn(s.tag, "ignoring unexpected service discovery result")
		return
	}
	if status != gatterr.StatusSuccess {
		s.fail(op, status)
		return
	}

	table := buildServiceTable(services)
	s.mu.Lock()
	s.services = table
	s.discovered = true
	s.mu.Unlock()
	s.log.Info(s.tag, "discovered %d services", len(table))

	if op.kind == gatterr.OpDiscoverService {
		s.complete(op, s.lookupService(op.service))
		return
	}
	s.complete(op, result{})
}

func (s *Session) onCharacteristicRead(service, characteristic uuid.UUID, value []byte, status int) {
	op := s.matching(service, characteristic, gatterr.OpReadCharacteristic)
	if op == nil {
		return
	}
	if status != gatterr.StatusSuccess {
		s.fail(op, status)
		return
	}
	s.complete(op, result{value: value})
}

func (s *Session) onCharacteristicWrite(service, characteristic uuid.UUID, status int) {
	op := s.matching(service, characteristic, gatterr.OpWriteCommand)
	if op == nil {
		return
	}
	if status != gatterr.StatusSuccess {
		s.fail(op, status)
		return
	}
	s.complete(op, result{})
}

func (s *Session) onDescriptorWrite(service, characteristic, descriptor uuid.UUID, status int) {
	if descriptor != radio.CCCD {
		s.log.Warn(s.tag, "ignoring write confirmation for descriptor %s", descriptor)
		return
	}
	op := s.matching(service, characteristic, gatterr.OpEnableNotification, gatterr.OpDisableNotification)
	if op == nil {
		return
	}
	if status != gatterr.StatusSuccess {
		s.fail(op, status)
		return
	}
	s.complete(op, result{})
}

func (s *Session) onMtuChanged(mtu int, status int) {
	if s.owed(replyKey{kind: gatterr.OpRequestMTU}) {
		return
	}
	op := s.running(gatterr.OpRequestMTU)
	if op == nil {
		s.log.Warn(s.tag, "ignoring late mtu callback (%d)", mtu)
		return
	}
	if status != gatterr.StatusSuccess {
		s.fail(op, status)
		return
	}

	s.mu.Lock()
	s.maxPayload = mtu - 3
	s.mu.Unlock()
	s.log.Info(s.tag, "mtu %d, max payload %d", mtu, mtu-3)
	s.complete(op, result{n: mtu})
}

func (s *Session) onCharacteristicChanged(service, characteristic uuid.UUID, value []byte) {
	s.mu.RLock()
	h := s.handler
	s.mu.RUnlock()
	if h == nil {
		s.log.Trace(s.tag, "dropping %d byte packet from %s, no handler", len(value), characteristic)
		return
	}
	s.events.Post(func() { h.OnPacket(service, characteristic, value) })
}

// matching returns the running operation if it is one of kinds and targets
// the given characteristic. Anything else is a late or stray callback.
func (s *Session) matching(service, characteristic uuid.UUID, kinds ...gatterr.Operation) *operation {
	if key, ok := replyKeyFor(kinds[0], service, characteristic); ok && s.owed(key) {
		return nil
	}
	op := s.running(kinds...)
	if op == nil || op.service != service || op.characteristic != characteristic {
		s.log.Warn(s.tag, "ignoring late callback for %s/%s", service, characteristic)
		return nil
	}
	return op
}

// replyKey identifies which callback answers an operation
type replyKey struct {
	kind           gatterr.Operation
	service        uuid.UUID
	characteristic uuid.UUID
}

func replyKeyFor(kind gatterr.Operation, service, characteristic uuid.UUID) (replyKey, bool) {
	switch kind {
	case gatterr.OpWriteCommand, gatterr.OpReadCharacteristic:
		return replyKey{kind, service, characteristic}, true
	case gatterr.OpEnableNotification, gatterr.OpDisableNotification:
		return replyKey{gatterr.OpEnableNotification, service, characteristic}, true
	case gatterr.OpDiscoverServices, gatterr.OpDiscoverService:
		return replyKey{kind: gatterr.OpDiscoverServices}, true
	case gatterr.OpRequestMTU:
		return replyKey{kind: gatterr.OpRequestMTU}, true
	}
	return replyKey{}, false
}

// oweReply records that op timed out with its callback outstanding. The
// next matching callback within d belongs to op and is swallowed.
func (s *Session) oweReply(op *operation, d time.Duration) {
	key, ok := replyKeyFor(op.kind, op.service, op.characteristic)
	if !ok {
		return
	}
	s.stale[key] = append(s.stale[key], time.Now().Add(d))
}

// owed consumes the oldest unexpired stale reply for key
func (s *Session) owed(key replyKey) bool {
	now := time.Now()
	pending := s.stale[key]
	for len(pending) > 0 && !now.Before(pending[0]) {
		pending = pending[1:]
	}
	if len(pending) == 0 {
		delete(s.stale, key)
		return false
	}
	s.stale[key] = pending[1:]
	if len(s.stale[key]) == 0 {
		delete(s.stale, key)
	}
	s.log.Warn(s.tag, "ignoring stale %s reply for %s/%s", key.kind, key.service, key.characteristic)
	return true
}
