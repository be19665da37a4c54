// Package effect applies mute effects through lazily resolved actuator capabilities.
package effect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/HilistonGit/redflag-automute/internal/domain"
	"github.com/HilistonGit/redflag-automute/internal/platform/retry"
)

// DefaultResolvePolicy is the retry policy used for one capability probe.
var DefaultResolvePolicy = retry.Policy{
	MaxAttempts:    3,
	InitialBackoff: 200 * time.Millisecond,
	MaxBackoff:     time.Second,
}

// Options tune a Gateway. The zero value resolves with DefaultResolvePolicy and no pacing.
type Options struct {
	ResolvePolicy *retry.Policy
	Limiter       *rate.Limiter
}

// Gateway resolves the actuator capabilities on first use and caches them,
// together with the detected mute shape, for the rest of its life.
type Gateway struct {
	resolver domain.CapabilityResolver
	policy   retry.Policy
	limiter  *rate.Limiter

	resolveGroup singleflight.Group

	mu    sync.RWMutex
	caps  *domain.Capabilities
	shape domain.CapabilityShape
}

func NewGateway(resolver domain.CapabilityResolver, opts Options) *Gateway {
	policy := DefaultResolvePolicy
	if opts.ResolvePolicy != nil {
		policy = *opts.ResolvePolicy
	}
	return &Gateway{
		resolver: resolver,
		policy:   policy,
		limiter:  opts.Limiter,
	}
}

// Shape returns the detected mute shape and whether resolution has happened yet.
func (g *Gateway) Shape() (domain.CapabilityShape, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.shape, g.caps != nil
}

func (g *Gateway) ApplyMute(ctx context.Context, id domain.Identity) error {
	return g.apply(ctx, id, domain.OpMute)
}

func (g *Gateway) ApplyUnmute(ctx context.Context, id domain.Identity) error {
	return g.apply(ctx, id, domain.OpUnmute)
}

func (g *Gateway) apply(ctx context.Context, id domain.Identity, op domain.EffectOp) (err error) {
	caps, shape, err := g.capabilities(ctx)
	if err != nil {
		return &domain.EffectCallError{ID: id, Op: op, Err: err}
	}
	if shape == domain.ShapeNone {
		return &domain.EffectCallError{ID: id, Op: op, Err: domain.ErrNoMuteCapability}
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return &domain.EffectCallError{ID: id, Op: op, Err: err}
		}
	}

	defer func() {
		if r := recover(); r != nil {
			err = &domain.EffectCallError{ID: id, Op: op, Err: fmt.Errorf("actuator panic: %v", r)}
		}
	}()

	muted := op == domain.OpMute
	level := domain.FullVolume
	if muted {
		level = domain.SilentVolume
	}

	if err := caps.Volume.SetVolume(ctx, id, level); err != nil {
		return &domain.EffectCallError{ID: id, Op: op, Err: fmt.Errorf("set volume: %w", err)}
	}

	switch shape {
	case domain.ShapeDirectFlag:
		err = caps.Flag.SetMuteFlag(ctx, id, muted)
	case domain.ShapeToggle:
		err = caps.Toggle.ToggleMute(ctx, id)
	}
	if err != nil {
		return &domain.EffectCallError{ID: id, Op: op, Err: fmt.Errorf("%s mute flag: %w", shape, err)}
	}

	slog.DebugContext(ctx, "Effect applied", "op", op, "identity", id, "shape", shape.String())
	return nil
}

func (g *Gateway) capabilities(ctx context.Context) (domain.Capabilities, domain.CapabilityShape, error) {
	g.mu.RLock()
	if g.caps != nil {
		caps, shape := *g.caps, g.shape
		g.mu.RUnlock()
		return caps, shape, nil
	}
	g.mu.RUnlock()

	_, err, _ := g.resolveGroup.Do("resolve", func() (any, error) {
		return nil, g.resolve(ctx)
	})
	if err != nil {
		return domain.Capabilities{}, domain.ShapeNone, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	return *g.caps, g.shape, nil
}

func (g *Gateway) resolve(ctx context.Context) error {
	g.mu.RLock()
	resolved := g.caps != nil
	g.mu.RUnlock()
	if resolved {
		return nil
	}

	caps, err := retry.Do(ctx, g.policy, classifyResolve, func(ctx context.Context) (domain.Capabilities, error) {
		caps, err := g.resolver.Resolve(ctx)
		if err != nil {
			return domain.Capabilities{}, err
		}
		if caps.Volume == nil {
			return domain.Capabilities{}, errors.New("volume control not found")
		}
		return caps, nil
	})
	if err != nil {
		slog.WarnContext(ctx, "Mute capabilities unavailable", "error", err)
		return fmt.Errorf("%w: %w", domain.ErrCapabilityUnavailable, err)
	}

	shape := caps.Shape()
	if shape == domain.ShapeNone {
		slog.WarnContext(ctx, "Actuator exposes no mute capability")
	} else {
		slog.InfoContext(ctx, "Mute capabilities resolved", "shape", shape.String())
	}

	g.mu.Lock()
	g.caps = &caps
	g.shape = shape
	g.mu.Unlock()
	return nil
}

func classifyResolve(err error) retry.Action {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Stop
	}
	return retry.Retry
}
