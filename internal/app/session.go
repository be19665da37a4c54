package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/HilistonGit/redflag-automute/internal/adapter/metrics"
	"github.com/HilistonGit/redflag-automute/internal/domain"
	"github.com/HilistonGit/redflag-automute/internal/effect"
	"github.com/HilistonGit/redflag-automute/internal/platform/retry"
	"github.com/HilistonGit/redflag-automute/internal/reconcile"
	"github.com/HilistonGit/redflag-automute/internal/remotesync"
	"github.com/HilistonGit/redflag-automute/internal/tagstore"
)

const (
	defaultHealInterval = 30 * time.Second
	teardownAttempts    = 3
	teardownTimeout     = 15 * time.Second
	commandBuffer       = 64
)

// Deps are the collaborators a Session is built from.
type Deps struct {
	Remote   domain.RemoteStore
	Resolver domain.CapabilityResolver
	Fallback domain.FallbackStore // optional
	Settings domain.SettingsStore // optional

	ReconcileMetrics *metrics.ReconcileMetrics // optional
	RemoteMetrics    *metrics.RemoteMetrics    // optional

	Clock clockwork.Clock
}

// Options configure a Session.
type Options struct {
	Credentials      domain.Credentials
	IncludeSecondary bool
	SelfID           domain.Identity

	// HealInterval is how often the desired set is re-applied without a trigger.
	// Zero uses the default; negative disables healing.
	HealInterval time.Duration

	// EffectRate and EffectBurst pace actuator calls. A zero rate disables pacing.
	EffectRate  rate.Limit
	EffectBurst int

	// ResolvePolicy overrides the retry policy used to resolve actuator capabilities.
	ResolvePolicy *retry.Policy
}

// Status is a point-in-time view of the session.
type Status struct {
	Running          bool   `json:"running"`
	SessionID        string `json:"session_id,omitempty"`
	Connected        bool   `json:"connected"`
	IncludeSecondary bool   `json:"include_secondary"`
	MutedCount       int    `json:"muted_count"`
	CapabilityShape  string `json:"capability_shape,omitempty"`
	LastConnectError string `json:"last_connect_error,omitempty"`
}

// EditOutcome reports an interactive tag edit. WriteErr is non-nil when the remote write
// failed; the edit is still applied locally and kept in the fallback store.
type EditOutcome struct {
	Reconcile reconcile.Result
	WriteErr  error
}

// Session keeps the muted participants in step with the shared tag list between Start and Stop.
type Session struct {
	deps Deps
	opts Options

	includeSecondary atomic.Bool

	// lifecycle serializes Start, Stop and Reconnect; mu guards the fields below it.
	lifecycle      sync.Mutex
	mu             sync.Mutex
	cur            *run
	lastConnectErr error
}

// run is everything owned by one Start..Stop cycle.
type run struct {
	id      string
	log     *slog.Logger
	tags    *tagstore.Store
	sync    *remotesync.Sync
	gateway *effect.Gateway
	engine  *reconcile.Engine

	cmdCh chan sessionCmd
	dirty chan struct{}
	stop  chan struct{}
	done  chan struct{}
}

func NewSession(deps Deps, opts Options) *Session {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if opts.HealInterval == 0 {
		opts.HealInterval = defaultHealInterval
	}
	s := &Session{deps: deps, opts: opts}
	s.includeSecondary.Store(opts.IncludeSecondary)
	return s
}

// Start builds fresh components, starts the event loop and connects to the remote store.
// Calling Start on a running session is a no-op. A connection failure is returned as a
// *domain.ConnectionError but leaves the session running; Reconnect may be called later.
func (s *Session) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.current() != nil {
		return nil
	}

	s.loadSettings(ctx)

	r := s.newRun()
	r.sync.OnSnapshot(func(context.Context, domain.Mapping) {
		select {
		case r.dirty <- struct{}{}:
		default:
		}
	})

	go s.loop(r)

	s.mu.Lock()
	s.cur = r
	s.lastConnectErr = nil
	s.mu.Unlock()

	r.log.Info("Session started", "include_secondary", s.includeSecondary.Load(), "heal_interval", s.opts.HealInterval)

	return s.connect(ctx, r)
}

func (s *Session) newRun() *run {
	var limiter *rate.Limiter
	if s.opts.EffectRate > 0 {
		limiter = rate.NewLimiter(s.opts.EffectRate, max(s.opts.EffectBurst, 1))
	}

	id := uuid.NewString()
	tags := tagstore.New()
	gateway := effect.NewGateway(s.deps.Resolver, effect.Options{
		Limiter:       limiter,
		ResolvePolicy: s.opts.ResolvePolicy,
	})

	return &run{
		id:      id,
		log:     slog.With("session_id", id),
		tags:    tags,
		sync:    remotesync.New(s.deps.Remote, tags, s.deps.Fallback, s.deps.RemoteMetrics, s.deps.Clock),
		gateway: gateway,
		engine:  reconcile.NewEngine(gateway, s.deps.ReconcileMetrics, s.deps.Clock),
		cmdCh:   make(chan sessionCmd, commandBuffer),
		dirty:   make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (s *Session) loadSettings(ctx context.Context) {
	if s.deps.Settings == nil {
		return
	}
	include, ok, err := s.deps.Settings.LoadIncludeSecondary(ctx)
	if err != nil {
		slog.Warn("Failed to load local settings, using configured defaults", "error", err)
		return
	}
	if ok {
		s.includeSecondary.Store(include)
	}
}

func (s *Session) connect(ctx context.Context, r *run) error {
	err := r.sync.Connect(ctx, s.opts.Credentials)

	s.mu.Lock()
	s.lastConnectErr = err
	s.mu.Unlock()

	if err != nil {
		r.log.Warn("Remote store connection failed, running on local data", "error", err)
		return err
	}
	return nil
}

// Reconnect re-establishes the remote subscription of a running session.
func (s *Session) Reconnect(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	r := s.current()
	if r == nil {
		return domain.ErrSessionStopped
	}
	return s.connect(ctx, r)
}

// Stop disconnects, lets the in-flight pass finish, stops the event loop and unmutes every
// identity this session muted. Calling Stop on a stopped session is a no-op. The unmute sweep
// ignores cancellation of ctx and is bounded by its own timeout instead. The returned error
// lists identities whose unmute kept failing.
func (s *Session) Stop(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	r := s.current()
	if r == nil {
		return nil
	}

	r.sync.Disconnect()
	close(r.stop)
	<-r.done

	teardownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()

	var failures []error
	for attempt := 1; attempt <= teardownAttempts && r.engine.Len() > 0; attempt++ {
		res := r.engine.Teardown(teardownCtx)
		failures = res.Failures
	}
	r.tags.Clear()

	s.mu.Lock()
	s.cur = nil
	s.mu.Unlock()

	if left := r.engine.Muted(); len(left) > 0 {
		r.log.Error("Session stopped with identities still muted", "identities", left)
		return fmt.Errorf("teardown left %d identities muted: %w", len(left), errors.Join(failures...))
	}

	r.log.Info("Session stopped")
	return nil
}

func (s *Session) current() *run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// AddTag tags id, persists the full mapping and reconciles immediately, without waiting for
// the remote echo.
func (s *Session) AddTag(ctx context.Context, id domain.Identity, tag domain.SeverityTag) (EditOutcome, error) {
	if id == "" {
		return EditOutcome{}, errors.New("identity is required")
	}
	if !tag.Valid() {
		return EditOutcome{}, fmt.Errorf("%w: %q", domain.ErrInvalidTag, tag)
	}
	if s.opts.SelfID != "" && id == s.opts.SelfID {
		return EditOutcome{}, domain.ErrSelfTag
	}

	return call(ctx, s.current(), func(reply chan EditOutcome) sessionCmd {
		return cmdEdit{id: id, tag: tag, reply: reply}
	})
}

// RemoveTag untags id, persists the full mapping and reconciles immediately.
func (s *Session) RemoveTag(ctx context.Context, id domain.Identity) (EditOutcome, error) {
	if id == "" {
		return EditOutcome{}, errors.New("identity is required")
	}

	return call(ctx, s.current(), func(reply chan EditOutcome) sessionCmd {
		return cmdEdit{id: id, remove: true, reply: reply}
	})
}

// SetIncludeSecondary changes the policy flag, persists it locally and, when running, reconciles.
func (s *Session) SetIncludeSecondary(ctx context.Context, include bool) (reconcile.Result, error) {
	s.includeSecondary.Store(include)

	if s.deps.Settings != nil {
		if err := s.deps.Settings.SaveIncludeSecondary(ctx, include); err != nil {
			slog.Warn("Failed to persist include_secondary", "error", err)
		}
	}

	r := s.current()
	if r == nil {
		return reconcile.Result{}, nil
	}
	return s.ReconcileNow(ctx)
}

// ReconcileNow runs a pass with the current desired set and returns its result.
func (s *Session) ReconcileNow(ctx context.Context) (reconcile.Result, error) {
	return call(ctx, s.current(), func(reply chan reconcile.Result) sessionCmd {
		return cmdReconcile{reply: reply}
	})
}

func (s *Session) IncludeSecondary() bool {
	return s.includeSecondary.Load()
}

// Tags returns a copy of the current mapping; empty when stopped.
func (s *Session) Tags() domain.Mapping {
	if r := s.current(); r != nil {
		return r.tags.All()
	}
	return domain.Mapping{}
}

func (s *Session) Stats() domain.Stats {
	if r := s.current(); r != nil {
		return r.tags.Stats()
	}
	return domain.Stats{}
}

// Muted returns the identities this session currently holds muted.
func (s *Session) Muted() []domain.Identity {
	if r := s.current(); r != nil {
		return r.engine.Muted()
	}
	return nil
}

// Fallback returns the mapping kept in the local fallback store. It is readable whether or
// not the session is running.
func (s *Session) Fallback(ctx context.Context) (domain.Mapping, error) {
	if s.deps.Fallback == nil {
		return domain.Mapping{}, nil
	}
	m, err := s.deps.Fallback.LoadFallback(ctx)
	if err != nil {
		return nil, fmt.Errorf("load local fallback: %w", err)
	}
	if m == nil {
		m = domain.Mapping{}
	}
	return m, nil
}

// Ping reports whether the remote store is reachable.
func (s *Session) Ping(ctx context.Context) error {
	r := s.current()
	if r == nil {
		return domain.ErrSessionStopped
	}
	return r.sync.Ping(ctx)
}

func (s *Session) Status() Status {
	st := Status{IncludeSecondary: s.includeSecondary.Load()}

	s.mu.Lock()
	r := s.cur
	if s.lastConnectErr != nil {
		st.LastConnectError = s.lastConnectErr.Error()
	}
	s.mu.Unlock()

	if r == nil {
		return st
	}
	st.Running = true
	st.SessionID = r.id
	st.Connected = r.sync.Connected()
	st.MutedCount = r.engine.Len()
	if shape, ok := r.gateway.Shape(); ok {
		st.CapabilityShape = shape.String()
	}
	return st
}
