// Package memory provides in-process implementations of the remote store and the actuator,
// used by tests and by the memory backends of the serve command.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/HilistonGit/redflag-automute/internal/domain"
)

var (
	ErrBadCredentials = errors.New("invalid credentials")
	ErrUnavailable    = errors.New("remote store unavailable")
	ErrClosed         = errors.New("connection closed")
)

// RemoteStore is an in-process key -> value store with push notifications. Every write
// is delivered to the subscribers of its path in write order.
type RemoteStore struct {
	secret string

	mu          sync.Mutex
	values      map[string][]byte
	subscribers map[string]map[*subscription]struct{}
	connectErr  error
	writeErr    error
}

// NewRemoteStore creates a store that accepts connections presenting secret.
// An empty secret accepts any credentials.
func NewRemoteStore(secret string) *RemoteStore {
	return &RemoteStore{
		secret:      secret,
		values:      make(map[string][]byte),
		subscribers: make(map[string]map[*subscription]struct{}),
	}
}

// FailConnect makes subsequent Connect calls fail with err (nil restores).
func (s *RemoteStore) FailConnect(err error) {
	s.mu.Lock()
	s.connectErr = err
	s.mu.Unlock()
}

// FailWrites makes subsequent writes fail with err (nil restores).
func (s *RemoteStore) FailWrites(err error) {
	s.mu.Lock()
	s.writeErr = err
	s.mu.Unlock()
}

// Value returns the raw value stored at path.
func (s *RemoteStore) Value(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[path]
	return v, ok
}

// Put writes value at path as another client would, notifying subscribers.
func (s *RemoteStore) Put(path string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(path, value)
}

func (s *RemoteStore) putLocked(path string, value []byte) {
	v := append([]byte(nil), value...)
	s.values[path] = v
	for sub := range s.subscribers[path] {
		sub.push(domain.Snapshot{Path: path, Value: v})
	}
}

func (s *RemoteStore) Connect(_ context.Context, creds domain.Credentials) (domain.RemoteConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connectErr != nil {
		return nil, s.connectErr
	}
	if s.secret != "" && creds.Secret != s.secret {
		return nil, ErrBadCredentials
	}
	return &conn{store: s}, nil
}

type conn struct {
	store *RemoteStore

	mu     sync.Mutex
	closed bool
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *conn) Subscribe(_ context.Context, path string) (domain.Subscription, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}

	s := c.store
	sub := newSubscription(func(sub *subscription) {
		s.mu.Lock()
		delete(s.subscribers[path], sub)
		s.mu.Unlock()
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribers[path] == nil {
		s.subscribers[path] = make(map[*subscription]struct{})
	}
	s.subscribers[path][sub] = struct{}{}
	sub.push(domain.Snapshot{Path: path, Value: s.values[path]})
	return sub, nil
}

func (c *conn) Write(_ context.Context, path string, value []byte) error {
	if c.isClosed() {
		return ErrClosed
	}

	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.putLocked(path, value)
	return nil
}

func (c *conn) Ping(context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	return nil
}

func (c *conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// subscription queues snapshots without bounding so a slow consumer never blocks writers.
type subscription struct {
	out     chan domain.Snapshot
	release func(*subscription)

	mu      sync.Mutex
	queue   []domain.Snapshot
	wake    chan struct{}
	closed  bool
	stopped chan struct{}
}

func newSubscription(release func(*subscription)) *subscription {
	sub := &subscription{
		out:     make(chan domain.Snapshot),
		release: release,
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go sub.pump()
	return sub
}

func (s *subscription) push(snap domain.Snapshot) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, snap)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.stopped:
				return
			}
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- next:
		case <-s.stopped:
			return
		}
	}
}

func (s *subscription) Snapshots() <-chan domain.Snapshot {
	return s.out
}

func (s *subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.release(s)
	close(s.stopped)
	return nil
}
