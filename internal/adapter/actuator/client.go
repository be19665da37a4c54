// Package actuator drives a voice client's local control API over HTTP.
package actuator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/HilistonGit/redflag-automute/internal/domain"
)

const defaultTimeout = 5 * time.Second

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// capabilitiesResponse is the body of GET /capabilities.
type capabilitiesResponse struct {
	Volume     bool `json:"volume"`
	MuteFlag   bool `json:"mute_flag"`
	ToggleMute bool `json:"toggle_mute"`
}

// HTTPResolver resolves the actuator capabilities exposed by the control API at baseURL and
// performs the effect calls. All requests share one circuit breaker.
type HTTPResolver struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
}

var (
	_ domain.CapabilityResolver = (*HTTPResolver)(nil)
	_ domain.VolumeControl      = (*HTTPResolver)(nil)
	_ domain.MuteFlagSetter     = (*HTTPResolver)(nil)
	_ domain.MuteToggler        = (*HTTPResolver)(nil)
)

// NewHTTPResolver creates a resolver. A nil client uses one with a 5s timeout.
func NewHTTPResolver(baseURL string, client *http.Client) *HTTPResolver {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &HTTPResolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
		cb:      newBreaker(30 * time.Second),
	}
}

// newBreaker trips after 5 consecutive failures. Client errors (4xx) do not count.
func newBreaker(timeout time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "actuator",
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
		},
	})
}

// State returns the breaker state.
func (c *HTTPResolver) State() gobreaker.State {
	return c.cb.State()
}

// Resolve asks the control API which mute mechanisms it offers.
func (c *HTTPResolver) Resolve(ctx context.Context) (domain.Capabilities, error) {
	var resp capabilitiesResponse
	if err := c.do(ctx, http.MethodGet, "/capabilities", nil, &resp); err != nil {
		return domain.Capabilities{}, fmt.Errorf("failed to resolve capabilities: %w", err)
	}

	var caps domain.Capabilities
	if resp.Volume {
		caps.Volume = c
	}
	if resp.MuteFlag {
		caps.Flag = c
	}
	if resp.ToggleMute {
		caps.Toggle = c
	}
	return caps, nil
}

func (c *HTTPResolver) SetVolume(ctx context.Context, id domain.Identity, level int) error {
	return c.do(ctx, http.MethodPost, userPath(id, "volume"), map[string]int{"level": level}, nil)
}

func (c *HTTPResolver) SetMuteFlag(ctx context.Context, id domain.Identity, muted bool) error {
	return c.do(ctx, http.MethodPost, userPath(id, "mute"), map[string]bool{"muted": muted}, nil)
}

func (c *HTTPResolver) ToggleMute(ctx context.Context, id domain.Identity) error {
	return c.do(ctx, http.MethodPost, userPath(id, "toggle-mute"), nil, nil)
}

func userPath(id domain.Identity, action string) string {
	return "/users/" + url.PathEscape(string(id)) + "/" + action
}

func (c *HTTPResolver) do(ctx context.Context, method, path string, in, out any) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, c.roundTrip(ctx, method, path, in, out)
	})
	return err
}

func (c *HTTPResolver) roundTrip(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
