package domain

import "context"

const (
	SilentVolume = 0
	FullVolume   = 100
)

// VolumeControl sets a participant's local playback volume (0..100).
type VolumeControl interface {
	SetVolume(ctx context.Context, id Identity, level int) error
}

// MuteFlagSetter is the direct per-user mute capability.
type MuteFlagSetter interface {
	SetMuteFlag(ctx context.Context, id Identity, muted bool) error
}

// MuteToggler is the legacy capability that flips the mute state.
type MuteToggler interface {
	ToggleMute(ctx context.Context, id Identity) error
}

// Capabilities are the actuator handles resolved for one session.
// Flag takes precedence over Toggle when both are present.
type Capabilities struct {
	Volume VolumeControl
	Flag   MuteFlagSetter
	Toggle MuteToggler
}

// CapabilityShape is the mute API detected at resolution.
type CapabilityShape int

const (
	ShapeNone CapabilityShape = iota
	ShapeDirectFlag
	ShapeToggle
)

func (s CapabilityShape) String() string {
	switch s {
	case ShapeDirectFlag:
		return "direct_flag"
	case ShapeToggle:
		return "toggle"
	default:
		return "none"
	}
}

// Shape detects which mute API c exposes.
func (c Capabilities) Shape() CapabilityShape {
	switch {
	case c.Flag != nil:
		return ShapeDirectFlag
	case c.Toggle != nil:
		return ShapeToggle
	default:
		return ShapeNone
	}
}

// CapabilityResolver locates the actuator handles.
type CapabilityResolver interface {
	Resolve(ctx context.Context) (Capabilities, error)
}

// EffectGateway applies mute effects to single identities.
type EffectGateway interface {
	ApplyMute(ctx context.Context, id Identity) error
	ApplyUnmute(ctx context.Context, id Identity) error
}
