package actuator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HilistonGit/redflag-automute/internal/domain"
)

type recordedCall struct {
	Method string
	Path   string
	Body   map[string]any
}

type fakeVoiceClient struct {
	mu     sync.Mutex
	calls  []recordedCall
	caps   capabilitiesResponse
	status int
}

func (f *fakeVoiceClient) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := recordedCall{Method: r.Method, Path: r.URL.EscapedPath()}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&call.Body)
	}
	f.calls = append(f.calls, call)

	if f.status != 0 {
		http.Error(w, "nope", f.status)
		return
	}
	if r.URL.Path == "/capabilities" {
		_ = json.NewEncoder(w).Encode(f.caps)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeVoiceClient) recorded() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func newTestResolver(t *testing.T, fake *fakeVoiceClient) *HTTPResolver {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewHTTPResolver(srv.URL+"/", srv.Client())
}

func TestResolve_DirectFlag(t *testing.T) {
	fake := &fakeVoiceClient{caps: capabilitiesResponse{Volume: true, MuteFlag: true}}
	r := newTestResolver(t, fake)

	caps, err := r.Resolve(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.ShapeDirectFlag, caps.Shape())
	assert.NotNil(t, caps.Volume)
	assert.Nil(t, caps.Toggle)
}

func TestResolve_ToggleOnly(t *testing.T) {
	fake := &fakeVoiceClient{caps: capabilitiesResponse{Volume: true, ToggleMute: true}}
	r := newTestResolver(t, fake)

	caps, err := r.Resolve(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.ShapeToggle, caps.Shape())
}

func TestResolve_NoVolume(t *testing.T) {
	fake := &fakeVoiceClient{caps: capabilitiesResponse{MuteFlag: true}}
	r := newTestResolver(t, fake)

	caps, err := r.Resolve(context.Background())

	require.NoError(t, err)
	assert.Nil(t, caps.Volume)
}

func TestResolve_ServerError(t *testing.T) {
	fake := &fakeVoiceClient{status: http.StatusServiceUnavailable}
	r := newTestResolver(t, fake)

	_, err := r.Resolve(context.Background())

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
}

func TestEffectCalls(t *testing.T) {
	fake := &fakeVoiceClient{}
	r := newTestResolver(t, fake)
	ctx := context.Background()

	require.NoError(t, r.SetVolume(ctx, "user/1", domain.SilentVolume))
	require.NoError(t, r.SetMuteFlag(ctx, "user/1", true))
	require.NoError(t, r.ToggleMute(ctx, "42"))

	calls := fake.recorded()
	require.Len(t, calls, 3)
	assert.Equal(t, recordedCall{Method: "POST", Path: "/users/user%2F1/volume", Body: map[string]any{"level": 0.0}}, calls[0])
	assert.Equal(t, recordedCall{Method: "POST", Path: "/users/user%2F1/mute", Body: map[string]any{"muted": true}}, calls[1])
	assert.Equal(t, "/users/42/toggle-mute", calls[2].Path)
}

func TestBreaker_OpensOnServerErrors(t *testing.T) {
	fake := &fakeVoiceClient{status: http.StatusInternalServerError}
	r := newTestResolver(t, fake)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.Error(t, r.SetVolume(ctx, "a", 0))
	}
	require.Equal(t, gobreaker.StateOpen, r.State())

	err := r.SetVolume(ctx, "a", 0)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Len(t, fake.recorded(), 5, "open breaker must not reach the server")
}

func TestBreaker_IgnoresClientErrors(t *testing.T) {
	fake := &fakeVoiceClient{status: http.StatusNotFound}
	r := newTestResolver(t, fake)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		assert.Error(t, r.ToggleMute(ctx, "ghost"))
	}

	assert.Equal(t, gobreaker.StateClosed, r.State())
}
