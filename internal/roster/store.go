// Package roster holds the single authoritative view of who is in the call and what media they have.
//
// All mutation goes through Store reducers. Reducers never fail: events that cannot be applied are
// buffered (a track that arrives before its participant) or logged and dropped.
package roster

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/engine"
)

// ErrProtocolInconsistency tags log lines for events that reference participants the roster cannot place.
var ErrProtocolInconsistency = errors.New("protocol inconsistency")

// maxDeparted bounds the departure tombstones kept for dropping stale track events.
const maxDeparted = 1024

type trackRef struct {
	peer domain.ParticipantID
	kind domain.Kind
}

// pendingPeer collects events for an id whose join has not been seen yet.
type pendingPeer struct {
	tracks map[domain.Kind]engine.TrackAvailable
	mutes  map[domain.Kind]bool
}

// Store is the authoritative roster. Remote tracks, attached or buffered, are stopped only when the
// roster drops them for good: the participant left or a newer track of the same kind replaced them.
// TrackRemoved hands the track back to the engine untouched, since the engine may offer it again.
type Store struct {
	mu sync.Mutex

	room          domain.RoomName
	local         *domain.Participant
	remote        map[domain.ParticipantID]*domain.Participant
	pending       map[domain.ParticipantID]*pendingPeer
	departed      map[domain.ParticipantID]struct{}
	departedOrder []domain.ParticipantID
	byTrack       map[string]trackRef
	activeSpeaker domain.ParticipantID
	state         domain.ConnectionState
	view          domain.ViewMode

	version   uint64
	notifyMu  sync.Mutex
	delivered uint64
	onChange  func(domain.RoomSnapshot)
}

func New() *Store {
	return &Store{
		remote:   make(map[domain.ParticipantID]*domain.Participant),
		pending:  make(map[domain.ParticipantID]*pendingPeer),
		departed: make(map[domain.ParticipantID]struct{}),
		byTrack:  make(map[string]trackRef),
		state:    domain.StateIdle,
		view:     domain.ViewGrid,
	}
}

// OnChange registers an observer called with a fresh snapshot after every mutation.
// Observers never see an older snapshot after a newer one.
func (s *Store) OnChange(fn func(domain.RoomSnapshot)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.onChange = fn
}

// mutate runs fn under the store lock and notifies observers when fn reports a change.
func (s *Store) mutate(fn func() bool) {
	s.mu.Lock()
	changed := fn()
	if !changed {
		s.mu.Unlock()
		return
	}
	s.version++
	v := s.version
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if s.onChange == nil || v <= s.delivered {
		return
	}
	s.delivered = v
	s.onChange(snap)
}

// Apply dispatches one event to its reducer.
func (s *Store) Apply(ev engine.Event) {
	s.mutate(func() bool { return s.applyLocked(ev) })
}

// ApplyBatch applies events in order as one reconciliation pass: observers see only the final state.
func (s *Store) ApplyBatch(evs ...engine.Event) {
	s.mutate(func() bool {
		changed := false
		for _, ev := range evs {
			if s.applyLocked(ev) {
				changed = true
			}
		}
		return changed
	})
}

func (s *Store) applyLocked(ev engine.Event) bool {
	switch e := ev.(type) {
	case engine.PeerJoined:
		return s.peerJoined(e.ID, e.DisplayName)
	case engine.PeerLeft:
		return s.peerLeft(e.ID)
	case engine.TrackAvailable:
		return s.trackAvailable(e)
	case engine.TrackRemoved:
		return s.trackRemoved(e.PeerID, e.Kind)
	case engine.MuteChanged:
		return s.muteState(e.PeerID, e.Kind, e.Enabled)
	case engine.TrackMuteChanged:
		return s.trackMute(e.TrackID, e.Enabled)
	case engine.ActiveSpeakersChanged, engine.Disconnected, engine.ChatReceived:
		// handled by the speaker tracker and the session controller
		return false
	default:
		log.Warn().Str("module", "roster").Type("event", ev).Msg("unhandled event type")
		return false
	}
}

func (s *Store) ApplyPeerJoined(id domain.ParticipantID, displayName string) {
	s.mutate(func() bool { return s.peerJoined(id, displayName) })
}

func (s *Store) ApplyPeerLeft(id domain.ParticipantID) {
	s.mutate(func() bool { return s.peerLeft(id) })
}

func (s *Store) ApplyTrackAvailable(id domain.ParticipantID, kind domain.Kind, track domain.Track) {
	s.mutate(func() bool {
		return s.trackAvailable(engine.TrackAvailable{PeerID: id, Kind: kind, Track: track})
	})
}

func (s *Store) ApplyTrackRemoved(id domain.ParticipantID, kind domain.Kind) {
	s.mutate(func() bool { return s.trackRemoved(id, kind) })
}

func (s *Store) ApplyMuteState(id domain.ParticipantID, kind domain.Kind, enabled bool) {
	s.mutate(func() bool { return s.muteState(id, kind, enabled) })
}

// ApplyTrackMute resolves a producer-level mute through the track index.
func (s *Store) ApplyTrackMute(trackID string, enabled bool) {
	s.mutate(func() bool { return s.trackMute(trackID, enabled) })
}

// SetActiveSpeaker sets the speaker; an empty id clears it.
func (s *Store) SetActiveSpeaker(id domain.ParticipantID) {
	s.mutate(func() bool {
		if s.activeSpeaker == id {
			return false
		}
		s.activeSpeaker = id
		return true
	})
}

func (s *Store) ActiveSpeaker() domain.ParticipantID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeSpeaker
}

// Known reports whether id is the local participant or a joined remote.
func (s *Store) Known(id domain.ParticipantID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.local != nil && s.local.ID == id {
		return true
	}
	_, ok := s.remote[id]
	return ok
}

func (s *Store) isLocal(id domain.ParticipantID) bool {
	return s.local != nil && s.local.ID == id
}

func (s *Store) peerJoined(id domain.ParticipantID, name string) bool {
	if id == "" {
		log.Warn().Str("module", "roster").Err(ErrProtocolInconsistency).Msg("join without id dropped")
		return false
	}
	if s.isLocal(id) {
		return false
	}
	if _, ok := s.remote[id]; ok {
		log.Debug().Str("module", "roster").Str("peer", string(id)).Msg("duplicate join ignored")
		return false
	}
	delete(s.departed, id)
	p := &domain.Participant{ID: id, DisplayName: name}
	s.remote[id] = p

	if pp, ok := s.pending[id]; ok {
		delete(s.pending, id)
		for _, kind := range domain.Kinds {
			if ev, ok := pp.tracks[kind]; ok {
				s.attach(p, ev)
			}
			if enabled, ok := pp.mutes[kind]; ok {
				p.SetEnabled(kind, enabled)
			}
		}
		log.Info().Str("module", "roster").Str("peer", string(id)).Int("tracks", len(pp.tracks)).Msg("replayed buffered events")
	}
	log.Info().Str("module", "roster").Str("peer", string(id)).Str("name", name).Msg("participant joined")
	return true
}

func (s *Store) peerLeft(id domain.ParticipantID) bool {
	changed := false
	if pp, ok := s.pending[id]; ok {
		for _, ev := range pp.tracks {
			ev.Track.Stop()
		}
		delete(s.pending, id)
	}
	if p, ok := s.remote[id]; ok {
		for _, kind := range domain.Kinds {
			s.detach(p, kind, true)
		}
		delete(s.remote, id)
		changed = true
		log.Info().Str("module", "roster").Str("peer", string(id)).Msg("participant left")
	}
	if s.activeSpeaker == id && id != "" {
		s.activeSpeaker = ""
		changed = true
	}
	s.markDeparted(id)
	return changed
}

func (s *Store) markDeparted(id domain.ParticipantID) {
	if _, ok := s.departed[id]; ok {
		return
	}
	s.departed[id] = struct{}{}
	s.departedOrder = append(s.departedOrder, id)
	for len(s.departedOrder) > maxDeparted {
		oldest := s.departedOrder[0]
		s.departedOrder = s.departedOrder[1:]
		delete(s.departed, oldest)
	}
}

func (s *Store) trackAvailable(ev engine.TrackAvailable) bool {
	logger := log.With().Str("module", "roster").Str("peer", string(ev.PeerID)).Str("kind", string(ev.Kind)).Logger()
	if ev.Track == nil {
		logger.Warn().Err(ErrProtocolInconsistency).Msg("track event without track dropped")
		return false
	}
	if s.isLocal(ev.PeerID) {
		logger.Warn().Err(ErrProtocolInconsistency).Msg("remote track for local participant dropped")
		return false
	}
	if p, ok := s.remote[ev.PeerID]; ok {
		s.attach(p, ev)
		return true
	}
	if _, gone := s.departed[ev.PeerID]; gone {
		logger.Warn().Err(ErrProtocolInconsistency).Msg("track for departed participant dropped")
		ev.Track.Stop()
		return false
	}

	pp, ok := s.pending[ev.PeerID]
	if !ok {
		pp = &pendingPeer{
			tracks: make(map[domain.Kind]engine.TrackAvailable),
			mutes:  make(map[domain.Kind]bool),
		}
		s.pending[ev.PeerID] = pp
	}
	if old, ok := pp.tracks[ev.Kind]; ok && old.Track.ID() != ev.Track.ID() {
		old.Track.Stop()
	}
	pp.tracks[ev.Kind] = ev
	delete(pp.mutes, ev.Kind)
	logger.Info().Str("track", ev.Track.ID()).Msg("track before join, buffered")
	return false
}

// attach swaps the participant's track of ev.Kind in one step.
func (s *Store) attach(p *domain.Participant, ev engine.TrackAvailable) {
	if old := p.Track(ev.Kind); old != nil && old.ID() != ev.Track.ID() {
		delete(s.byTrack, old.ID())
		old.Stop()
	}
	p.SetTrack(ev.Kind, ev.Track)
	p.SetEnabled(ev.Kind, !ev.Muted)
	s.byTrack[ev.Track.ID()] = trackRef{peer: p.ID, kind: ev.Kind}
}

func (s *Store) detach(p *domain.Participant, kind domain.Kind, stop bool) {
	t := p.Track(kind)
	if t == nil {
		return
	}
	delete(s.byTrack, t.ID())
	p.SetTrack(kind, nil)
	if stop {
		t.Stop()
	}
}

func (s *Store) trackRemoved(id domain.ParticipantID, kind domain.Kind) bool {
	if p, ok := s.remote[id]; ok {
		s.detach(p, kind, false)
		p.SetEnabled(kind, false)
		return true
	}
	if pp, ok := s.pending[id]; ok {
		delete(pp.tracks, kind)
		return false
	}
	log.Warn().Str("module", "roster").Err(ErrProtocolInconsistency).Str("peer", string(id)).Str("kind", string(kind)).Msg("track removal for unknown participant dropped")
	return false
}

func (s *Store) muteState(id domain.ParticipantID, kind domain.Kind, enabled bool) bool {
	if s.isLocal(id) {
		// the local participant changes only through local commands
		return false
	}
	if p, ok := s.remote[id]; ok {
		if p.Enabled(kind) == enabled {
			return false
		}
		p.SetEnabled(kind, enabled)
		return true
	}
	if pp, ok := s.pending[id]; ok {
		pp.mutes[kind] = enabled
		return false
	}
	log.Warn().Str("module", "roster").Err(ErrProtocolInconsistency).Str("peer", string(id)).Str("kind", string(kind)).Msg("mute change for unknown participant dropped")
	return false
}

func (s *Store) trackMute(trackID string, enabled bool) bool {
	ref, ok := s.byTrack[trackID]
	if !ok {
		log.Warn().Str("module", "roster").Err(ErrProtocolInconsistency).Str("track", trackID).Msg("mute change for unknown track dropped")
		return false
	}
	return s.muteState(ref.peer, ref.kind, enabled)
}
