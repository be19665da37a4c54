package effect

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HilistonGit/redflag-automute/internal/domain"
	"github.com/HilistonGit/redflag-automute/internal/platform/retry"
)

// --- Mocks ---

type actuatorCall struct {
	Method string
	ID     domain.Identity
	Arg    any
}

type mockActuator struct {
	mu        sync.Mutex
	calls     []actuatorCall
	volumeErr error
	flagErr   error
	panicOn   string
}

func (m *mockActuator) record(method string, id domain.Identity, arg any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, actuatorCall{method, id, arg})
}

func (m *mockActuator) SetVolume(_ context.Context, id domain.Identity, level int) error {
	if m.panicOn == "volume" {
		panic("boom")
	}
	m.record("volume", id, level)
	return m.volumeErr
}

func (m *mockActuator) SetMuteFlag(_ context.Context, id domain.Identity, muted bool) error {
	m.record("flag", id, muted)
	return m.flagErr
}

func (m *mockActuator) ToggleMute(_ context.Context, id domain.Identity) error {
	m.record("toggle", id, nil)
	return nil
}

func (m *mockActuator) getCalls() []actuatorCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]actuatorCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

type mockResolver struct {
	mu       sync.Mutex
	caps     domain.Capabilities
	failures int
	calls    int
}

func (m *mockResolver) Resolve(context.Context) (domain.Capabilities, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failures > 0 {
		m.failures--
		return domain.Capabilities{}, errors.New("not loaded yet")
	}
	return m.caps, nil
}

func (m *mockResolver) getCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// --- Helpers ---

var singleAttempt = retry.Policy{MaxAttempts: 1, InitialBackoff: time.Millisecond}

func newTestGateway(resolver *mockResolver) *Gateway {
	return NewGateway(resolver, Options{ResolvePolicy: &singleAttempt})
}

// --- Tests ---

func TestGateway_MuteWithDirectFlag(t *testing.T) {
	act := &mockActuator{}
	gw := newTestGateway(&mockResolver{caps: domain.Capabilities{Volume: act, Flag: act, Toggle: act}})

	require.NoError(t, gw.ApplyMute(context.Background(), "alice"))
	require.NoError(t, gw.ApplyUnmute(context.Background(), "alice"))

	assert.Equal(t, []actuatorCall{
		{"volume", "alice", 0},
		{"flag", "alice", true},
		{"volume", "alice", 100},
		{"flag", "alice", false},
	}, act.getCalls())

	shape, resolved := gw.Shape()
	assert.True(t, resolved)
	assert.Equal(t, domain.ShapeDirectFlag, shape)
}

func TestGateway_MuteWithLegacyToggle(t *testing.T) {
	act := &mockActuator{}
	gw := newTestGateway(&mockResolver{caps: domain.Capabilities{Volume: act, Toggle: act}})

	require.NoError(t, gw.ApplyMute(context.Background(), "bob"))
	require.NoError(t, gw.ApplyUnmute(context.Background(), "bob"))

	assert.Equal(t, []actuatorCall{
		{"volume", "bob", 0},
		{"toggle", "bob", nil},
		{"volume", "bob", 100},
		{"toggle", "bob", nil},
	}, act.getCalls())
}

func TestGateway_NoMuteCapability(t *testing.T) {
	act := &mockActuator{}
	gw := newTestGateway(&mockResolver{caps: domain.Capabilities{Volume: act}})

	err := gw.ApplyMute(context.Background(), "carol")

	assert.ErrorIs(t, err, domain.ErrNoMuteCapability)
	assert.Empty(t, act.getCalls(), "volume must not change without a mute capability")
}

func TestGateway_ResolvesOnce(t *testing.T) {
	act := &mockActuator{}
	resolver := &mockResolver{caps: domain.Capabilities{Volume: act, Flag: act}}
	gw := newTestGateway(resolver)

	for _, id := range []domain.Identity{"a", "b", "c"} {
		require.NoError(t, gw.ApplyMute(context.Background(), id))
	}

	assert.Equal(t, 1, resolver.getCalls())
}

func TestGateway_ResolutionFailureFailsFastThenRecovers(t *testing.T) {
	act := &mockActuator{}
	resolver := &mockResolver{caps: domain.Capabilities{Volume: act, Flag: act}, failures: 1}
	gw := newTestGateway(resolver)

	err := gw.ApplyMute(context.Background(), "dave")
	require.ErrorIs(t, err, domain.ErrCapabilityUnavailable)

	var callErr *domain.EffectCallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, domain.Identity("dave"), callErr.ID)
	assert.Equal(t, domain.OpMute, callErr.Op)
	assert.Empty(t, act.getCalls())

	_, resolved := gw.Shape()
	assert.False(t, resolved)

	require.NoError(t, gw.ApplyMute(context.Background(), "dave"))
	assert.Equal(t, 2, resolver.getCalls(), "next call re-attempts resolution")
}

func TestGateway_ResolutionRetriesWithinPolicy(t *testing.T) {
	act := &mockActuator{}
	resolver := &mockResolver{caps: domain.Capabilities{Volume: act, Flag: act}, failures: 2}
	policy := retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond}
	gw := NewGateway(resolver, Options{ResolvePolicy: &policy})

	require.NoError(t, gw.ApplyMute(context.Background(), "erin"))
	assert.Equal(t, 3, resolver.getCalls())
}

func TestGateway_MissingVolumeIsUnavailable(t *testing.T) {
	act := &mockActuator{}
	gw := newTestGateway(&mockResolver{caps: domain.Capabilities{Flag: act}})

	err := gw.ApplyMute(context.Background(), "frank")
	assert.ErrorIs(t, err, domain.ErrCapabilityUnavailable)
}

func TestGateway_ActuatorErrorIsReported(t *testing.T) {
	act := &mockActuator{flagErr: errors.New("voice client busy")}
	gw := newTestGateway(&mockResolver{caps: domain.Capabilities{Volume: act, Flag: act}})

	err := gw.ApplyMute(context.Background(), "gina")

	var callErr *domain.EffectCallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, domain.Identity("gina"), callErr.ID)
	assert.Contains(t, err.Error(), "voice client busy")
}

func TestGateway_ActuatorPanicBecomesError(t *testing.T) {
	act := &mockActuator{panicOn: "volume"}
	gw := newTestGateway(&mockResolver{caps: domain.Capabilities{Volume: act, Flag: act}})

	var err error
	assert.NotPanics(t, func() {
		err = gw.ApplyUnmute(context.Background(), "hank")
	})

	var callErr *domain.EffectCallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, domain.OpUnmute, callErr.Op)
}
