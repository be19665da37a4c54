// Package reconcile converges the set of muted identities toward the desired set.
//
// The Engine owns the actual mute set: identities it has muted through the gateway and not
// yet unmuted. A pass diffs desired against actual and issues only the deltas; a failed effect
// leaves the identity where it was so the next pass retries it. When the actuator cannot be
// resolved the rest of the pass is skipped. Passes are serialized.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/HilistonGit/redflag-automute/internal/adapter/metrics"
	"github.com/HilistonGit/redflag-automute/internal/domain"
	"github.com/HilistonGit/redflag-automute/internal/platform/correlation"
)

// Result summarizes one reconciliation pass.
type Result struct {
	Muted    []domain.Identity
	Unmuted  []domain.Identity
	Failures []error
	// Deferred lists identities not attempted because the actuator could not be resolved.
	// They keep their current state and are picked up by the next pass.
	Deferred []domain.Identity
	Duration time.Duration
}

// Changed reports whether the pass altered the actual set.
func (r Result) Changed() bool {
	return len(r.Muted) > 0 || len(r.Unmuted) > 0
}

type Engine struct {
	gateway domain.EffectGateway
	metrics *metrics.ReconcileMetrics
	clock   clockwork.Clock

	// pass serializes reconciliation passes; mu guards actual for readers.
	pass   sync.Mutex
	mu     sync.RWMutex
	actual domain.IdentitySet
}

// NewEngine creates an engine with an empty actual set. m may be nil.
func NewEngine(gateway domain.EffectGateway, m *metrics.ReconcileMetrics, clock clockwork.Clock) *Engine {
	return &Engine{
		gateway: gateway,
		metrics: m,
		clock:   clock,
		actual:  make(domain.IdentitySet),
	}
}

// Reconcile mutes every desired identity not yet muted and unmutes every muted identity
// no longer desired. A pass requested while another runs waits for it to finish.
func (e *Engine) Reconcile(ctx context.Context, desired domain.IdentitySet) Result {
	e.pass.Lock()
	defer e.pass.Unlock()

	ctx = correlation.Ensure(ctx)

	start := e.clock.Now()

	e.mu.RLock()
	toMute := desired.Minus(e.actual)
	toUnmute := e.actual.Minus(desired)
	e.mu.RUnlock()

	var res Result
	if len(toMute) == 0 && len(toUnmute) == 0 {
		return res
	}

	unavailable := false

	for i, id := range toUnmute {
		err := e.gateway.ApplyUnmute(ctx, id)
		e.metrics.ObserveEffect(string(domain.OpUnmute), err)
		if err != nil {
			res.Failures = append(res.Failures, err)
			if errors.Is(err, domain.ErrCapabilityUnavailable) {
				res.Deferred = append(append(res.Deferred, toUnmute[i+1:]...), toMute...)
				unavailable = true
				break
			}
			slog.WarnContext(ctx, "Unmute failed, will retry on next pass", "identity", id, "error", err)
			continue
		}
		e.mu.Lock()
		delete(e.actual, id)
		e.mu.Unlock()
		res.Unmuted = append(res.Unmuted, id)
	}

	if !unavailable {
		for i, id := range toMute {
			err := e.gateway.ApplyMute(ctx, id)
			e.metrics.ObserveEffect(string(domain.OpMute), err)
			if err != nil {
				res.Failures = append(res.Failures, err)
				if errors.Is(err, domain.ErrCapabilityUnavailable) {
					res.Deferred = append(res.Deferred, toMute[i+1:]...)
					unavailable = true
					break
				}
				slog.WarnContext(ctx, "Mute failed, will retry on next pass", "identity", id, "error", err)
				continue
			}
			e.mu.Lock()
			e.actual[id] = struct{}{}
			e.mu.Unlock()
			res.Muted = append(res.Muted, id)
		}
	}

	if unavailable {
		slog.WarnContext(ctx, "Mute capabilities unavailable, pass cut short",
			"deferred", len(res.Deferred), "error", res.Failures[len(res.Failures)-1])
	}

	res.Duration = e.clock.Since(start)
	muted := e.Len()
	e.metrics.ObservePass(res.Duration, muted)

	slog.InfoContext(ctx, "Reconciliation pass finished",
		"muted", len(res.Muted),
		"unmuted", len(res.Unmuted),
		"failed", len(res.Failures),
		"currently_muted", muted)

	return res
}

// Teardown unmutes every identity in the actual set. Identities whose unmute fails stay
// recorded and are returned in the result's failures.
func (e *Engine) Teardown(ctx context.Context) Result {
	return e.Reconcile(ctx, domain.IdentitySet{})
}

// Muted returns the actual set in sorted order.
func (e *Engine) Muted() []domain.Identity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.actual.Sorted()
}

func (e *Engine) IsMuted(id domain.Identity) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.actual.Has(id)
}

func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.actual)
}
