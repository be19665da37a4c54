package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/HilistonGit/redflag-automute/internal/domain"
)

var ErrActuatorUnavailable = errors.New("actuator not loaded")

// ParticipantState is what the simulated voice client holds for one participant.
type ParticipantState struct {
	Volume int
	Muted  bool
}

// Actuator simulates a voice client. It implements both mute shapes; Resolver
// decides which one is exposed.
type Actuator struct {
	mu           sync.Mutex
	participants map[domain.Identity]ParticipantState
	failures     map[domain.Identity]int
	calls        map[domain.Identity]int
}

func NewActuator() *Actuator {
	return &Actuator{
		participants: make(map[domain.Identity]ParticipantState),
		failures:     make(map[domain.Identity]int),
		calls:        make(map[domain.Identity]int),
	}
}

// FailNext makes the next n effect calls for id fail.
func (a *Actuator) FailNext(id domain.Identity, n int) {
	a.mu.Lock()
	a.failures[id] += n
	a.mu.Unlock()
}

// State returns the participant's state; unknown participants are at full volume and unmuted.
func (a *Actuator) State(id domain.Identity) ParticipantState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked(id)
}

// Calls returns how many effect calls were made for id, failed ones included.
func (a *Actuator) Calls(id domain.Identity) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[id]
}

func (a *Actuator) stateLocked(id domain.Identity) ParticipantState {
	st, ok := a.participants[id]
	if !ok {
		return ParticipantState{Volume: domain.FullVolume}
	}
	return st
}

func (a *Actuator) failLocked(id domain.Identity) error {
	if a.failures[id] > 0 {
		a.failures[id]--
		return errors.New("simulated actuator failure")
	}
	return nil
}

func (a *Actuator) SetVolume(_ context.Context, id domain.Identity, level int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[id]++
	if err := a.failLocked(id); err != nil {
		return err
	}
	st := a.stateLocked(id)
	st.Volume = min(max(level, 0), 100)
	a.participants[id] = st
	return nil
}

func (a *Actuator) SetMuteFlag(_ context.Context, id domain.Identity, muted bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[id]++
	st := a.stateLocked(id)
	st.Muted = muted
	a.participants[id] = st
	return nil
}

func (a *Actuator) ToggleMute(_ context.Context, id domain.Identity) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[id]++
	st := a.stateLocked(id)
	st.Muted = !st.Muted
	a.participants[id] = st
	return nil
}

// Resolver exposes an Actuator as capabilities of the chosen shape.
type Resolver struct {
	Actuator *Actuator
	Shape    domain.CapabilityShape

	mu          sync.Mutex
	unavailable int
	resolves    int
}

// FailResolves makes the next n Resolve calls fail.
func (r *Resolver) FailResolves(n int) {
	r.mu.Lock()
	r.unavailable += n
	r.mu.Unlock()
}

// Resolves returns how many times Resolve was called.
func (r *Resolver) Resolves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolves
}

func (r *Resolver) Resolve(context.Context) (domain.Capabilities, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolves++
	if r.unavailable > 0 {
		r.unavailable--
		return domain.Capabilities{}, ErrActuatorUnavailable
	}

	caps := domain.Capabilities{Volume: r.Actuator}
	switch r.Shape {
	case domain.ShapeDirectFlag:
		caps.Flag = r.Actuator
	case domain.ShapeToggle:
		caps.Toggle = r.Actuator
	}
	return caps, nil
}
