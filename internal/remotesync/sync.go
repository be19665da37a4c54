// Package remotesync keeps the local tag store in step with the shared remote dataset.
package remotesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/HilistonGit/redflag-automute/internal/adapter/metrics"
	"github.com/HilistonGit/redflag-automute/internal/domain"
	"github.com/HilistonGit/redflag-automute/internal/platform/correlation"
	"github.com/HilistonGit/redflag-automute/internal/tagstore"
)

const (
	// TagsPath holds the identity -> tag mapping.
	TagsPath = "users"
	// LastUpdatePath holds the RFC 3339 time of the latest tag write.
	LastUpdatePath = "lastUpdate"
)

// SnapshotHandler is called after each remote snapshot has been applied to the tag store.
type SnapshotHandler func(ctx context.Context, m domain.Mapping)

// Sync bridges a RemoteStore and a tag store. Remote snapshots are applied in feed order
// by a single goroutine; writes fall back to the local store when the remote is unavailable.
type Sync struct {
	store    domain.RemoteStore
	tags     *tagstore.Store
	fallback domain.FallbackStore
	metrics  *metrics.RemoteMetrics
	clock    clockwork.Clock

	onSnapshot SnapshotHandler

	mu     sync.Mutex
	conn   domain.RemoteConn
	sub    domain.Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a disconnected Sync. fallback and m may be nil.
func New(store domain.RemoteStore, tags *tagstore.Store, fallback domain.FallbackStore, m *metrics.RemoteMetrics, clock clockwork.Clock) *Sync {
	return &Sync{
		store:    store,
		tags:     tags,
		fallback: fallback,
		metrics:  m,
		clock:    clock,
	}
}

// OnSnapshot registers the handler run after every applied snapshot. Set it before Connect.
func (s *Sync) OnSnapshot(h SnapshotHandler) {
	s.mu.Lock()
	s.onSnapshot = h
	s.mu.Unlock()
}

// Connect dials the remote store and subscribes to the tag path. An existing subscription is
// released first. Failures are returned as *domain.ConnectionError and are not retried.
func (s *Sync) Connect(ctx context.Context, creds domain.Credentials) error {
	s.Disconnect()

	conn, err := s.store.Connect(ctx, creds)
	if err != nil {
		s.metrics.ConnectFailed()
		return &domain.ConnectionError{Endpoint: creds.Endpoint, Err: err}
	}

	sub, err := conn.Subscribe(ctx, TagsPath)
	if err != nil {
		_ = conn.Close()
		s.metrics.ConnectFailed()
		return &domain.ConnectionError{Endpoint: creds.Endpoint, Err: fmt.Errorf("subscribe %s: %w", TagsPath, err)}
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	s.mu.Lock()
	s.conn = conn
	s.sub = sub
	s.cancel = cancel
	s.done = done
	handler := s.onSnapshot
	s.mu.Unlock()

	go s.consume(loopCtx, sub, handler, done)

	slog.Info("Connected to remote store", "endpoint", creds.Endpoint, "path", TagsPath)
	return nil
}

func (s *Sync) consume(ctx context.Context, sub domain.Subscription, handler SnapshotHandler, done chan struct{}) {
	defer close(done)

	ch := sub.Snapshots()
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return
			}
			s.apply(correlation.WithID(ctx, correlation.NewID()), snap, handler)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sync) apply(ctx context.Context, snap domain.Snapshot, handler SnapshotHandler) {
	m, err := domain.DecodeMapping(snap.Value)
	if err != nil {
		s.metrics.SnapshotRejected()
		slog.WarnContext(ctx, "Ignoring undecodable remote snapshot", "path", snap.Path, "error", err)
		return
	}

	s.tags.SetAll(m)
	s.metrics.SnapshotApplied()
	slog.DebugContext(ctx, "Remote snapshot applied", "entries", len(m))

	if s.fallback != nil {
		if err := s.fallback.SaveFallback(ctx, m); err != nil {
			slog.WarnContext(ctx, "Failed to mirror snapshot to local fallback", "error", err)
		}
	}

	if handler != nil {
		handler(ctx, m)
	}
}

// Write persists m at the tag path and stamps the last-update time. When the remote write
// fails the mapping is saved to the local fallback and a *domain.WriteError with Fallback
// set is returned; the caller should treat it as a warning.
func (s *Sync) Write(ctx context.Context, m domain.Mapping) error {
	data, err := domain.EncodeMapping(m)
	if err != nil {
		return &domain.WriteError{Path: TagsPath, Err: err}
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	remoteErr := domain.ErrNotConnected
	if conn != nil {
		remoteErr = conn.Write(ctx, TagsPath, data)
	}
	if remoteErr == nil {
		s.metrics.Written("remote")
		stamp := []byte(s.clock.Now().UTC().Format(time.RFC3339))
		if err := conn.Write(ctx, LastUpdatePath, stamp); err != nil {
			slog.WarnContext(ctx, "Failed to stamp last update", "error", err)
		}
		return nil
	}

	slog.WarnContext(ctx, "Remote write failed, saving locally only", "entries", len(m), "error", remoteErr)

	if s.fallback == nil {
		s.metrics.Written("failed")
		return &domain.WriteError{Path: TagsPath, Err: remoteErr}
	}
	if err := s.fallback.SaveFallback(ctx, m); err != nil {
		s.metrics.Written("failed")
		return &domain.WriteError{Path: TagsPath, Err: errors.Join(remoteErr, fmt.Errorf("local fallback: %w", err))}
	}

	s.metrics.Written("fallback")
	return &domain.WriteError{Path: TagsPath, Err: remoteErr, Fallback: true}
}

// Connected reports whether a subscription is live.
func (s *Sync) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Ping checks the remote connection.
func (s *Sync) Ping(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return domain.ErrNotConnected
	}
	return conn.Ping(ctx)
}

// Disconnect releases the subscription and the connection and waits for the consumer to exit.
// It is safe to call repeatedly and before Connect.
func (s *Sync) Disconnect() {
	s.mu.Lock()
	conn, sub, cancel, done := s.conn, s.sub, s.cancel, s.done
	s.conn, s.sub, s.cancel, s.done = nil, nil, nil, nil
	s.mu.Unlock()

	if conn == nil {
		return
	}

	cancel()
	if err := sub.Close(); err != nil {
		slog.Warn("Failed to close remote subscription", "error", err)
	}
	<-done
	if err := conn.Close(); err != nil {
		slog.Warn("Failed to close remote connection", "error", err)
	}
	slog.Info("Disconnected from remote store")
}
