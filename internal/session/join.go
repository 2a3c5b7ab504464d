package session

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/engine"
)

// Join connects, publishes the requested local media and populates the roster with everyone already
// in the room. It returns once the session is active or the attempt has failed.
//
// A Leave issued while Join is in flight wins: Join returns ErrJoinCancelled and nothing it completes
// afterwards reaches the roster.
func (c *Controller) Join(ctx context.Context, req JoinRequest) error {
	if req.Address == "" {
		return newError(ErrJoinFailed, "join", errMissingAddress)
	}
	if req.Credential == "" {
		return newError(ErrJoinFailed, "join", errMissingCredential)
	}

	c.mu.Lock()
	if c.state != domain.StateIdle {
		state := c.state
		c.mu.Unlock()
		return newError(ErrAlreadyJoined, "join", errorString("state is "+string(state)))
	}
	joinCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.gen++
	gen := c.gen
	c.cancelJoin = cancel
	c.selection = req.Devices
	c.state = domain.StateConnecting
	c.mu.Unlock()
	c.publishState(domain.StateConnecting)

	logger := log.With().Str("module", "session").Str("address", req.Address).Logger()
	logger.Info().Str("name", req.DisplayName).Msg("joining")

	c.startPumps(gen)
	welcome, err := c.engine.Connect(joinCtx, req.Address, req.Credential)
	if !c.valid(gen) {
		return newError(ErrJoinCancelled, "connect", nil)
	}
	if err != nil {
		c.fail(gen, err)
		return newError(ErrJoinFailed, "connect", err)
	}
	if !c.transition(gen, domain.StateConnecting, domain.StateJoining) {
		return newError(ErrJoinCancelled, "connect", nil)
	}
	c.roster.SetRoom(welcome.Room)

	tracks, err := c.acquireInitial(joinCtx, req)
	if !c.valid(gen) {
		stopTracks(tracks)
		return newError(ErrJoinCancelled, "acquire", nil)
	}
	if err != nil && !req.ContinueWithoutMedia {
		stopTracks(tracks)
		c.fail(gen, err)
		return newError(ErrMediaAcquisitionFailed, "acquire", err)
	}
	if err != nil {
		logger.Warn().Err(err).Msg("continuing without some media")
	}

	for _, kind := range domain.Kinds {
		t, ok := tracks[kind]
		if !ok {
			continue
		}
		if err := c.engine.Publish(joinCtx, kind, t); err != nil {
			stopTracks(tracks)
			if !c.valid(gen) {
				return newError(ErrJoinCancelled, "publish", nil)
			}
			c.fail(gen, err)
			return newError(ErrPublishFailed, "publish", err)
		}
	}

	if !c.commitJoin(gen, welcome, req.DisplayName, tracks) {
		// Leave took ownership of the committed tracks and released them
		return newError(ErrJoinCancelled, "join", nil)
	}
	logger.Info().Str("room", string(welcome.Room)).Int("peers", len(welcome.Peers)).Msg("joined")
	return nil
}

// acquireInitial opens the capture devices the request asks for. On error it still returns whatever
// was acquired, so the caller decides whether to continue without the failed kind.
func (c *Controller) acquireInitial(ctx context.Context, req JoinRequest) (map[domain.Kind]domain.Track, error) {
	tracks := make(map[domain.Kind]domain.Track)
	var errs []error
	for _, kind := range domain.Kinds {
		if kind == domain.KindAudio && req.StartMuted || kind == domain.KindVideo && req.StartCameraOff {
			continue
		}
		t, err := c.devices.Acquire(ctx, kind, req.Devices.For(kind))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		tracks[kind] = t
	}
	return tracks, errors.Join(errs...)
}

// commitJoin hands the published tracks to the controller and fills the roster. It fails when a
// Leave has invalidated gen in the meantime.
func (c *Controller) commitJoin(gen uint64, welcome engine.Welcome, name string, tracks map[domain.Kind]domain.Track) bool {
	c.evMu.Lock()
	defer c.evMu.Unlock()

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		stopTracks(tracks)
		return false
	}
	for kind, t := range tracks {
		c.local[kind] = t
	}
	c.mu.Unlock()

	_, mic := tracks[domain.KindAudio]
	_, cam := tracks[domain.KindVideo]
	c.roster.SetLocal(welcome.SelfID, name, mic, cam)
	for kind, t := range tracks {
		c.roster.SetLocalTrack(kind, t)
	}
	joined := make([]engine.Event, 0, len(welcome.Peers))
	for _, p := range welcome.Peers {
		if p.ID == welcome.SelfID {
			continue
		}
		joined = append(joined, engine.PeerJoined{ID: p.ID, DisplayName: p.DisplayName})
	}
	c.roster.ApplyBatch(joined...)

	return c.transition(gen, domain.StateJoining, domain.StateActive)
}

func stopTracks(tracks map[domain.Kind]domain.Track) {
	for _, t := range tracks {
		t.Stop()
	}
}
