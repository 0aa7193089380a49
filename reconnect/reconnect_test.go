package reconnect

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/gattlink/advertising"
	"github.com/user/gattlink/config"
	"github.com/user/gattlink/gatterr"
	"github.com/user/gattlink/radio"
	"github.com/user/gattlink/session"
	"github.com/user/gattlink/simradio"
)

// scripted fails Connect with each status in turn, then succeeds
type scripted struct {
	session.Disabled
	mu          sync.Mutex
	statuses    []int
	connects    int
	disconnects int
	unstable    bool
}

func newScripted(statuses ...int) *scripted {
	return &scripted{Disabled: session.NewDisabled("AA:BB:CC:DD:EE:FF"), statuses: statuses}
}

func (s *scripted) Connect(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	if len(s.statuses) == 0 {
		return nil
	}
	status := s.statuses[0]
	s.statuses = s.statuses[1:]
	return gatterr.NewTransportError(gatterr.OpConnect, status)
}

func (s *scripted) Disconnect(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects++
	return nil
}

func (s *scripted) IsInstabilityLikely() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unstable
}

func fastConfig() config.ReconnectConfig {
	return config.ReconnectConfig{
		MaxAttempts:       3,
		MaxFailures:       10,
		OpenTimeout:       time.Minute,
		AttemptsPerSecond: 1000,
	}
}

func TestSucceedsFirstTime(t *testing.T) {
	p := newScripted()
	require.NoError(t, New(fastConfig()).Connect(context.Background(), p, 0))
	assert.Equal(t, 1, p.connects)
	assert.Zero(t, p.disconnects)
}

func TestRecoverableRetriedOnce(t *testing.T) {
	p := newScripted(gatterr.StatusLocalHostTerminated)
	require.NoError(t, New(fastConfig()).Connect(context.Background(), p, 0))
	assert.Equal(t, 2, p.connects)
	assert.Zero(t, p.disconnects, "recoverable failures retry without a disconnect")

	p = newScripted(gatterr.StatusLocalHostTerminated, gatterr.StatusLocalHostTerminated)
	err := New(fastConfig()).Connect(context.Background(), p, 0)
	assert.Equal(t, gatterr.Recoverable, gatterr.ClassOf(err))
	assert.Equal(t, 2, p.connects)
}

func TestReconnectRequiredDisconnectsFirst(t *testing.T) {
	p := newScripted(gatterr.StatusFailedToEstablish, gatterr.StatusConnectionTimeout)
	require.NoError(t, New(fastConfig()).Connect(context.Background(), p, 0))
	assert.Equal(t, 3, p.connects)
	assert.Equal(t, 2, p.disconnects)
}

func TestReconnectRequiredGivesUp(t *testing.T) {
	p := newScripted(
		gatterr.StatusFailedToEstablish,
		gatterr.StatusFailedToEstablish,
		gatterr.StatusFailedToEstablish,
		gatterr.StatusFailedToEstablish,
	)
	err := New(fastConfig()).Connect(context.Background(), p, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, gatterr.ErrTransport)
	status, ok := gatterr.StatusOf(err)
	assert.True(t, ok)
	assert.Equal(t, gatterr.StatusFailedToEstablish, status)
	assert.Equal(t, 3, p.connects)
}

func TestUnknownSurfaces(t *testing.T) {
	p := newScripted(0x42)
	err := New(fastConfig()).Connect(context.Background(), p, 0)
	assert.Equal(t, gatterr.Unknown, gatterr.ClassOf(err))
	assert.Equal(t, 1, p.connects)
}

func TestInstabilityAdvisesPowerCycle(t *testing.T) {
	p := newScripted(gatterr.StatusStackError)
	p.unstable = true
	err := New(fastConfig()).Connect(context.Background(), p, 0)
	assert.ErrorIs(t, err, ErrPowerCycleAdvised)
	assert.ErrorIs(t, err, gatterr.ErrTransport)
	assert.Equal(t, 1, p.connects)
}

func TestBreakerOpensPerAddress(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxFailures = 2
	policy := New(cfg)

	for i := 0; i < 2; i++ {
		p := newScripted(0x42)
		require.Error(t, policy.Connect(context.Background(), p, 0))
	}
	assert.Equal(t, gobreaker.StateOpen, policy.State("AA:BB:CC:DD:EE:FF"))

	p := newScripted()
	err := policy.Connect(context.Background(), p, 0)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, p.connects, "open breaker fails fast")

	other := newScripted()
	other.Disabled = session.NewDisabled("11:22:33:44:55:66")
	assert.NoError(t, policy.Connect(context.Background(), other, 0))
}

func TestCallerErrorsDoNotTripBreaker(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxFailures = 1
	policy := New(cfg)

	err := policy.Connect(context.Background(), session.NewDisabled("AA:BB:CC:DD:EE:FF"), 0)
	assert.ErrorIs(t, err, gatterr.ErrUnsupported)
	assert.Equal(t, gobreaker.StateOpen, policy.State("AA:BB:CC:DD:EE:FF"), "unsupported counts as a failure")

	policy = New(cfg)
	p := &stateErr{Disabled: session.NewDisabled("AA:BB:CC:DD:EE:FF")}
	assert.ErrorIs(t, policy.Connect(context.Background(), p, 0), gatterr.ErrConnectionState)
	assert.Equal(t, gobreaker.StateClosed, policy.State("AA:BB:CC:DD:EE:FF"))
}

type stateErr struct {
	session.Disabled
}

func (stateErr) Connect(context.Context, time.Duration) error {
	return &gatterr.ConnectionStateError{Op: gatterr.OpConnect, State: "disconnecting"}
}

func TestContextStopsRetries(t *testing.T) {
	cfg := fastConfig()
	cfg.AttemptsPerSecond = 0.001
	policy := New(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p := newScripted(gatterr.StatusFailedToEstablish, gatterr.StatusFailedToEstablish, gatterr.StatusFailedToEstablish)
	start := time.Now()
	err := policy.Connect(ctx, p, 0)
	assert.Equal(t, gatterr.ReconnectRequired, gatterr.ClassOf(err))
	assert.Less(t, time.Since(start), time.Second)
	assert.LessOrEqual(t, p.connects, 2)
}

func TestReconnectsSimulatedPeripheral(t *testing.T) {
	const addr = "C0:FF:EE:00:00:01"
	a := simradio.New(simradio.PerfectConfig())
	require.NoError(t, a.AddPeripheral(simradio.Peripheral{
		Address: addr,
		Records: []advertising.Record{advertising.CompleteLocalName("Flaky")},
	}))
	require.NoError(t, a.FailNext(addr, gatterr.OpConnect, gatterr.StatusFailedToEstablish))

	tr, err := a.Open(addr)
	require.NoError(t, err)
	s := session.New(tr)
	defer s.Release()

	require.NoError(t, New(fastConfig()).Connect(context.Background(), s, time.Second))
	assert.Equal(t, radio.StateConnected, s.ConnectionStatus())
}
