package app

import (
	"context"
	"time"

	"github.com/HilistonGit/redflag-automute/internal/domain"
	"github.com/HilistonGit/redflag-automute/internal/platform/correlation"
	"github.com/HilistonGit/redflag-automute/internal/policy"
	"github.com/HilistonGit/redflag-automute/internal/reconcile"
)

// --- Command types ---

type sessionCmd interface{ sessionCmd() }

type cmdEdit struct {
	id     domain.Identity
	tag    domain.SeverityTag
	remove bool
	reply  chan EditOutcome
}

func (cmdEdit) sessionCmd() {}

type cmdReconcile struct {
	reply chan reconcile.Result
}

func (cmdReconcile) sessionCmd() {}

// call submits a command to the run's loop and waits for its reply. It fails with
// domain.ErrSessionStopped when there is no run or the run ends first.
func call[T any](ctx context.Context, r *run, build func(reply chan T) sessionCmd) (T, error) {
	var zero T
	if r == nil {
		return zero, domain.ErrSessionStopped
	}

	reply := make(chan T, 1)
	select {
	case r.cmdCh <- build(reply):
	case <-r.done:
		return zero, domain.ErrSessionStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case v := <-reply:
		return v, nil
	case <-r.done:
		return zero, domain.ErrSessionStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// loop processes triggers for one run until stop is closed. A pass in progress always
// completes before stop is observed.
func (s *Session) loop(r *run) {
	defer close(r.done)

	var heal <-chan time.Time
	if s.opts.HealInterval > 0 {
		ticker := s.deps.Clock.NewTicker(s.opts.HealInterval)
		defer ticker.Stop()
		heal = ticker.Chan()
	}

	ctx := context.Background()
	for {
		select {
		case <-r.stop:
			return
		case <-r.dirty:
			s.reconcile(ctx, r, "snapshot")
		case <-heal:
			s.reconcile(ctx, r, "heal")
		case cmd := <-r.cmdCh:
			s.handle(ctx, r, cmd)
		}
	}
}

func (s *Session) handle(ctx context.Context, r *run, cmd sessionCmd) {
	switch c := cmd.(type) {
	case cmdEdit:
		c.reply <- s.edit(ctx, r, c)
	case cmdReconcile:
		c.reply <- s.reconcile(ctx, r, "manual")
	}
}

func (s *Session) edit(ctx context.Context, r *run, c cmdEdit) EditOutcome {
	ctx = correlation.WithID(ctx, correlation.NewID())

	var out EditOutcome
	if c.remove {
		if _, ok := r.tags.Get(c.id); !ok {
			out.Reconcile = s.reconcile(ctx, r, "edit")
			return out
		}
		r.tags.Remove(c.id)
	} else {
		r.tags.SetOne(c.id, c.tag)
	}

	if err := r.sync.Write(ctx, r.tags.All()); err != nil {
		r.log.WarnContext(ctx, "Tag edit not persisted remotely", "identity", c.id, "error", err)
		out.WriteErr = err
	}

	out.Reconcile = s.reconcile(ctx, r, "edit")
	return out
}

func (s *Session) reconcile(ctx context.Context, r *run, trigger string) reconcile.Result {
	ctx = correlation.Ensure(ctx)
	desired := policy.Desired(r.tags, s.includeSecondary.Load())
	// A snapshot may still carry a tag on the local user; never mute ourselves.
	delete(desired, s.opts.SelfID)

	res := r.engine.Reconcile(ctx, desired)
	if res.Changed() || len(res.Failures) > 0 {
		r.log.DebugContext(ctx, "Reconciled", "trigger", trigger, "desired", len(desired), "failures", len(res.Failures))
	}
	return res
}
