package domain

import "context"

type toggler struct{}

func (toggler) ToggleMute(context.Context, Identity) error { return nil }

type flagger struct{}

func (flagger) SetMuteFlag(context.Context, Identity, bool) error { return nil }
