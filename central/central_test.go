package central

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/gattlink/advertising"
	"github.com/user/gattlink/config"
	"github.com/user/gattlink/gatterr"
	"github.com/user/gattlink/logger"
	"github.com/user/gattlink/radio"
	"github.com/user/gattlink/scan"
	"github.com/user/gattlink/session"
	"github.com/user/gattlink/simradio"
)

const addr = "C0:FF:EE:00:00:01"

var (
	svcUUID = radio.UUID16(0xFFF0)
	rxUUID  = radio.UUID16(0xFFF1)
	txUUID  = radio.UUID16(0xFFF2)
)

func newAdapter(t *testing.T) *simradio.Adapter {
	t.Helper()
	a := simradio.New(simradio.PerfectConfig())
	require.NoError(t, a.AddPeripheral(simradio.Peripheral{
		Address: addr,
		RSSI:    -55,
		Records: []advertising.Record{
			advertising.Flags(advertising.FlagLEGeneralDiscoverableMode | advertising.FlagBREDRNotSupported),
			advertising.CompleteLocalName("Echo"),
			advertising.Complete16BitServiceUUIDs(0xFFF0),
		},
		Services: []radio.ServiceInfo{{
			UUID: svcUUID,
			Characteristics: []radio.CharacteristicInfo{
				{UUID: rxUUID, Properties: radio.PropWriteWithoutResponse},
				{UUID: txUUID, Properties: radio.PropNotify, Descriptors: []radio.DescriptorInfo{{UUID: radio.CCCD}}},
			},
		}},
		EchoTo: txUUID,
	}))
	return a
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Scan.Duration = 100 * time.Millisecond
	cfg.Scan.PreScanWindow = 20 * time.Millisecond
	cfg.Link.MaxPayload = 32
	return cfg
}

type packets struct {
	mu      sync.Mutex
	got     [][]byte
	arrived chan struct{}
	drops   int
}

func newPackets() *packets {
	return &packets{arrived: make(chan struct{}, 16)}
}

func (p *packets) OnPacket(service, characteristic uuid.UUID, payload []byte) {
	p.mu.Lock()
	p.got = append(p.got, payload)
	p.mu.Unlock()
	p.arrived <- struct{}{}
}

func (p *packets) OnDisconnected() {
	p.mu.Lock()
	p.drops++
	p.mu.Unlock()
}

func TestScanConnectAndExchange(t *testing.T) {
	c := New(newAdapter(t), testConfig(), WithLogger(logger.Nop()))
	defer c.Close()
	ctx := context.Background()

	results, err := c.Scan(ctx, c.Criteria().MatchServiceUUID(svcUUID).WithLimit(1))
	require.NoError(t, err)
	require.Len(t, results, 1)

	handler := newPackets()
	p := c.Peripheral(results[0], session.WithPacketHandler(handler))
	assert.Equal(t, "Echo", p.Name())
	assert.Equal(t, -55, p.ScanRSSI())
	assert.Equal(t, 32, p.MaxPayload(), "payload limit comes from the link config")

	require.NoError(t, p.Connect(ctx, 0))
	require.NoError(t, p.DiscoverServices(ctx, 0))
	require.NoError(t, p.EnableNotification(ctx, svcUUID, txUUID, 0))
	require.NoError(t, p.WriteCommand(ctx, svcUUID, rxUUID, []byte("ping"), 0))

	select {
	case <-handler.arrived:
	case <-time.After(time.Second):
		t.Fatal("echo notification never arrived")
	}
	handler.mu.Lock()
	assert.Equal(t, [][]byte{[]byte("ping")}, handler.got)
	handler.mu.Unlock()

	require.NoError(t, p.Disconnect(ctx, 0))
	assert.Equal(t, radio.StateDisconnected, p.ConnectionStatus())
	assert.Eventually(t, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return handler.drops == 1
	}, time.Second, 5*time.Millisecond, "handler told of the disconnect")
}

func TestPeripheralReusesSession(t *testing.T) {
	c := New(newAdapter(t), testConfig(), WithLogger(logger.Nop()))
	defer c.Close()

	r := scan.Result{Address: addr, Name: "Echo"}
	first := c.Peripheral(r)
	assert.Same(t, first, c.Peripheral(r))

	first.Release()
	second := c.Peripheral(r)
	assert.NotSame(t, first, second, "released sessions are replaced")
}

func TestPeripheralDisabledWithoutRadio(t *testing.T) {
	c := New(nil, nil, WithLogger(logger.Nop()))
	assert.False(t, c.Supported())

	p := c.Peripheral(scan.Result{Address: addr})
	_, disabled := p.(session.Disabled)
	require.True(t, disabled)
	assert.ErrorIs(t, p.Connect(context.Background(), 0), gatterr.ErrUnsupported)

	_, err := c.Scan(context.Background(), nil)
	assert.ErrorIs(t, err, gatterr.ErrUnsupported)
}

func TestPeripheralDisabledWhenPoweredOff(t *testing.T) {
	a := newAdapter(t)
	c := New(a, testConfig(), WithLogger(logger.Nop()))
	require.NoError(t, c.SetPowered(false))
	assert.False(t, c.Powered())

	_, disabled := c.Peripheral(scan.Result{Address: addr}).(session.Disabled)
	assert.True(t, disabled)

	_, disabled = c.Peripheral(scan.Result{Address: "11:22:33:44:55:66"}).(session.Disabled)
	assert.True(t, disabled)
}

func TestPeripheralDisabledForUnknownAddress(t *testing.T) {
	c := New(newAdapter(t), testConfig(), WithLogger(logger.Nop()))
	_, disabled := c.Peripheral(scan.Result{Address: "11:22:33:44:55:66"}).(session.Disabled)
	assert.True(t, disabled)
}

func TestSetPoweredErrors(t *testing.T) {
	boom := errors.New("rfkill")
	a := newAdapter(t)
	a.FailPower(boom)
	c := New(a, testConfig(), WithLogger(logger.Nop()))

	err := c.SetPowered(false)
	var pe *gatterr.ChangePowerStateError
	require.ErrorAs(t, err, &pe)
	assert.False(t, pe.On)
	assert.ErrorIs(t, err, gatterr.ErrChangePowerState)
	assert.ErrorIs(t, err, boom)
	assert.True(t, c.Powered())

	err = New(nil, nil).SetPowered(true)
	assert.ErrorIs(t, err, gatterr.ErrChangePowerState)
	assert.ErrorIs(t, err, gatterr.ErrUnsupported)
}

func TestPowerOffDropsLinks(t *testing.T) {
	c := New(newAdapter(t), testConfig(), WithLogger(logger.Nop()))
	defer c.Close()
	ctx := context.Background()

	p := c.Peripheral(scan.Result{Address: addr})
	require.NoError(t, p.Connect(ctx, 0))
	require.NoError(t, c.SetPowered(false))

	assert.Eventually(t, func() bool {
		return p.ConnectionStatus() == radio.StateDisconnected
	}, time.Second, 5*time.Millisecond)
}

func TestTimeoutsFromConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Timeouts.Bond = time.Minute
	got := Timeouts(cfg.Timeouts)
	assert.Equal(t, time.Minute, got.Bond)
	assert.Equal(t, cfg.Timeouts.MTU, got.MTU)
}
