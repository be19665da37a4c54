package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTag            = errors.New("invalid severity tag")
	ErrNotConnected          = errors.New("remote store not connected")
	ErrCapabilityUnavailable = errors.New("mute capabilities unavailable")
	ErrNoMuteCapability      = errors.New("no mute capability")
	ErrSelfTag               = errors.New("cannot tag own identity")
	ErrSessionStopped        = errors.New("session is stopped")
)

// ConnectionError reports that the remote store could not be reached or rejected the credentials.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// WriteError reports a failed remote write. Fallback is true when the mapping
// was kept in the local fallback store instead.
type WriteError struct {
	Path     string
	Err      error
	Fallback bool
}

func (e *WriteError) Error() string {
	if e.Fallback {
		return fmt.Sprintf("write %s: %v (saved locally)", e.Path, e.Err)
	}
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// EffectOp names an effect call.
type EffectOp string

const (
	OpMute   EffectOp = "mute"
	OpUnmute EffectOp = "unmute"
)

// EffectCallError reports one failed mute or unmute. The identity's recorded state is unchanged.
type EffectCallError struct {
	ID  Identity
	Op  EffectOp
	Err error
}

func (e *EffectCallError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *EffectCallError) Unwrap() error { return e.Err }
