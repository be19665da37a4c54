package domain

import "context"

// Credentials authenticate against the remote store.
type Credentials struct {
	Endpoint string
	Secret   string
}

// Snapshot is one push event from the remote change feed: the full value stored at Path.
type Snapshot struct {
	Path  string
	Value []byte
}

// RemoteStore dials the shared dataset.
type RemoteStore interface {
	Connect(ctx context.Context, creds Credentials) (RemoteConn, error)
}

// RemoteConn is an established connection to the remote store.
type RemoteConn interface {
	// Subscribe delivers the current value at path, then every later change, in order.
	Subscribe(ctx context.Context, path string) (Subscription, error)
	Write(ctx context.Context, path string, value []byte) error
	Ping(ctx context.Context) error
	Close() error
}

// Subscription is a cancellable change feed. Snapshots is closed after Close
// or when the underlying feed ends.
type Subscription interface {
	Snapshots() <-chan Snapshot
	Close() error
}

// FallbackStore keeps a local, non-authoritative copy of the mapping.
type FallbackStore interface {
	SaveFallback(ctx context.Context, m Mapping) error
	LoadFallback(ctx context.Context) (Mapping, error)
}

// SettingsStore persists the locally edited policy flag.
type SettingsStore interface {
	SaveIncludeSecondary(ctx context.Context, include bool) error
	LoadIncludeSecondary(ctx context.Context) (include bool, ok bool, err error)
}
