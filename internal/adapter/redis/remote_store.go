package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/HilistonGit/redflag-automute/internal/adapter/metrics"
	"github.com/HilistonGit/redflag-automute/internal/domain"
)

const keyPrefix = "redflag:"

// Key returns the Redis key holding the value at path.
func Key(path string) string { return keyPrefix + path }

// Channel returns the pub/sub channel announcing changes to path.
func Channel(path string) string { return keyPrefix + path + ":changed" }

// RemoteStore is the shared tag store backed by Redis. Values live in plain string keys;
// every write publishes the new value on the path's channel.
type RemoteStore struct {
	metrics *metrics.RedisMetrics
}

var _ domain.RemoteStore = (*RemoteStore)(nil)

func NewRemoteStore(m *metrics.RedisMetrics) *RemoteStore {
	return &RemoteStore{metrics: m}
}

// Connect dials the Redis URL in creds.Endpoint, authenticating with creds.Secret when set.
func (s *RemoteStore) Connect(ctx context.Context, creds domain.Credentials) (domain.RemoteConn, error) {
	rdb, err := NewClient(ctx, creds.Endpoint, creds.Secret, s.metrics)
	if err != nil {
		return nil, err
	}
	return &conn{rdb: rdb}, nil
}

type conn struct {
	rdb *goredis.Client
}

// NewConn wraps an existing client. Closing the returned conn closes rdb.
func NewConn(rdb *goredis.Client) domain.RemoteConn {
	return &conn{rdb: rdb}
}

// Subscribe listens on the path's channel before reading the current value, so no write
// between the two is lost. The current value (nil when the key is missing) is always
// delivered first.
func (c *conn) Subscribe(ctx context.Context, path string) (domain.Subscription, error) {
	ps := c.rdb.Subscribe(ctx, Channel(path))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", path, err)
	}

	initial, err := c.rdb.Get(ctx, Key(path)).Bytes()
	if err != nil && !errors.Is(err, goredis.Nil) {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	sub := &subscription{
		ps:   ps,
		out:  make(chan domain.Snapshot),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go sub.run(path, initial)
	return sub, nil
}

// Write stores value at path and publishes it in one transaction.
func (c *conn) Write(ctx context.Context, path string, value []byte) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, Key(path), value, 0)
		pipe.Publish(ctx, Channel(path), value)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (c *conn) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *conn) Close() error {
	return c.rdb.Close()
}

type subscription struct {
	ps   *goredis.PubSub
	out  chan domain.Snapshot
	stop chan struct{}
	done chan struct{}

	closeOnce sync.Once
}

func (s *subscription) run(path string, initial []byte) {
	defer close(s.done)
	defer close(s.out)

	if !s.deliver(domain.Snapshot{Path: path, Value: initial}) {
		return
	}

	ch := s.ps.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if !s.deliver(domain.Snapshot{Path: path, Value: []byte(msg.Payload)}) {
				return
			}
		case <-s.stop:
			return
		}
	}
}

func (s *subscription) deliver(snap domain.Snapshot) bool {
	select {
	case s.out <- snap:
		return true
	case <-s.stop:
		return false
	}
}

func (s *subscription) Snapshots() <-chan domain.Snapshot {
	return s.out
}

func (s *subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		err = s.ps.Close()
		<-s.done
		if err != nil {
			slog.Debug("Redis pub/sub close failed", "error", err)
		}
	})
	return err
}
