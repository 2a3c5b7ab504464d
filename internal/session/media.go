package session

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
)

func (c *Controller) ToggleMicrophone(ctx context.Context) error {
	return c.toggle(ctx, domain.KindAudio)
}

func (c *Controller) ToggleCamera(ctx context.Context) error {
	return c.toggle(ctx, domain.KindVideo)
}

// toggle flips the local flag optimistically and rolls it back if the engine refuses.
func (c *Controller) toggle(ctx context.Context, kind domain.Kind) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	gen, ok := c.activeGen()
	if !ok {
		return newError(ErrNotActive, "toggle "+string(kind), nil)
	}
	local, ok := c.roster.Local()
	if !ok {
		return newError(ErrNotActive, "toggle "+string(kind), nil)
	}
	prev := local.Enabled(kind)
	next := !prev
	c.roster.SetLocalEnabled(kind, next)

	if err := c.applyEnabled(ctx, gen, kind, next); err != nil {
		if c.valid(gen) {
			c.roster.SetLocalEnabled(kind, prev)
		}
		log.Warn().Str("module", "session").Str("kind", string(kind)).Bool("enabled", next).Err(err).Msg("toggle rolled back")
		return err
	}
	log.Debug().Str("module", "session").Str("kind", string(kind)).Bool("enabled", next).Msg("toggled")
	return nil
}

func (c *Controller) applyEnabled(ctx context.Context, gen uint64, kind domain.Kind, enabled bool) error {
	op := "toggle " + string(kind)
	if c.localTrack(kind) != nil {
		var err error
		if enabled {
			err = c.engine.Resume(ctx, kind)
		} else {
			err = c.engine.Pause(ctx, kind)
		}
		if err != nil {
			return newError(ErrPublishFailed, op, err)
		}
		return nil
	}
	if !enabled {
		return nil
	}

	// nothing published yet for this kind: open the selected device now
	c.mu.Lock()
	device := c.selection.For(kind)
	c.mu.Unlock()
	t, err := c.devices.Acquire(ctx, kind, device)
	if err != nil {
		return newError(ErrMediaAcquisitionFailed, op, err)
	}
	if err := c.engine.Publish(ctx, kind, t); err != nil {
		t.Stop()
		return newError(ErrPublishFailed, op, err)
	}
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		t.Stop()
		return newError(ErrNotActive, op, nil)
	}
	c.local[kind] = t
	c.mu.Unlock()
	c.roster.SetLocalTrack(kind, t)
	return nil
}

// switchOp is one in-flight device switch for a kind. Later requests overwrite want and wait on done.
type switchOp struct {
	want string
	seq  uint64
	done chan struct{}
	err  error
}

// SwitchDevice replaces the published track of kind with one from deviceID, without renegotiating.
//
// Requests for the same kind coalesce: while an acquisition is in flight, newer requests only update
// the wanted device, and every caller returns once the latest one has been applied. On failure the
// previous device stays published.
func (c *Controller) SwitchDevice(ctx context.Context, kind domain.Kind, deviceID string) error {
	op := "switch " + string(kind)
	if _, ok := c.activeGen(); !ok {
		return newError(ErrNotActive, op, nil)
	}

	c.mu.Lock()
	if sw, ok := c.switches[kind]; ok {
		sw.want = deviceID
		sw.seq++
		c.mu.Unlock()
		select {
		case <-sw.done:
			c.mu.Lock()
			defer c.mu.Unlock()
			return sw.err
		case <-ctx.Done():
			return newError(ErrDeviceSwitchFailed, op, ctx.Err())
		}
	}
	if c.local[kind] == nil {
		// nothing published: remember the choice for the next enable
		c.selection.set(kind, deviceID)
		c.mu.Unlock()
		return nil
	}
	sw := &switchOp{want: deviceID, seq: 1, done: make(chan struct{})}
	c.switches[kind] = sw
	c.mu.Unlock()

	err := c.runSwitch(ctx, kind, sw)

	c.mu.Lock()
	sw.err = err
	delete(c.switches, kind)
	c.mu.Unlock()
	close(sw.done)
	return err
}

// runSwitch acquires the newest wanted device and publishes it. A request that lands while a track is
// being acquired or published sends it round again, so the last request is the one that sticks.
func (c *Controller) runSwitch(ctx context.Context, kind domain.Kind, sw *switchOp) error {
	op := "switch " + string(kind)
	for {
		c.mu.Lock()
		seq, want := sw.seq, sw.want
		c.mu.Unlock()

		t, err := c.devices.Acquire(ctx, kind, want)
		if c.superseded(sw, seq) {
			if t != nil {
				t.Stop()
			}
			log.Debug().Str("module", "session").Str("kind", string(kind)).Str("device", want).Msg("device switch superseded")
			continue
		}
		if err != nil {
			return newError(ErrDeviceSwitchFailed, op, err)
		}
		final, err := c.commitSwitch(ctx, kind, sw, seq, t, want)
		if err != nil || final {
			return err
		}
	}
}

func (c *Controller) superseded(sw *switchOp, seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sw.seq != seq
}

// commitSwitch swaps track in for the published one. It reports false when a newer request arrived
// before or during the swap.
func (c *Controller) commitSwitch(ctx context.Context, kind domain.Kind, sw *switchOp, seq uint64, track domain.Track, want string) (bool, error) {
	op := "switch " + string(kind)
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	if c.superseded(sw, seq) {
		track.Stop()
		return false, nil
	}
	gen, ok := c.activeGen()
	if !ok {
		track.Stop()
		return true, newError(ErrNotActive, op, nil)
	}
	if err := c.engine.ReplaceTrack(ctx, kind, track); err != nil {
		track.Stop()
		return true, newError(ErrDeviceSwitchFailed, op, err)
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		track.Stop()
		return true, newError(ErrNotActive, op, nil)
	}
	old := c.local[kind]
	c.local[kind] = track
	c.selection.set(kind, want)
	final := sw.seq == seq
	c.mu.Unlock()

	c.roster.SetLocalTrack(kind, track)
	if old != nil {
		old.Stop()
	}
	log.Info().Str("module", "session").Str("kind", string(kind)).Str("device", want).Msg("device switched")
	return final, nil
}
