package roster

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
)

// SetLocal creates the local participant. Tracks are attached separately with SetLocalTrack.
func (s *Store) SetLocal(id domain.ParticipantID, name string, micEnabled, camEnabled bool) {
	s.mutate(func() bool {
		if p, ok := s.remote[id]; ok {
			// the network echoed our own join before we knew our id
			for _, kind := range domain.Kinds {
				s.detach(p, kind, true)
			}
			delete(s.remote, id)
		}
		delete(s.pending, id)
		s.local = &domain.Participant{
			ID:                id,
			DisplayName:       name,
			MicrophoneEnabled: micEnabled,
			CameraEnabled:     camEnabled,
			IsLocal:           true,
		}
		log.Info().Str("module", "roster").Str("peer", string(id)).Str("name", name).Msg("local participant set")
		return true
	})
}

// SetLocalTrack swaps the local track of kind and returns the previous one.
// Local tracks belong to the session controller, so the previous track is not stopped here.
func (s *Store) SetLocalTrack(kind domain.Kind, t domain.Track) (prev domain.Track) {
	s.mutate(func() bool {
		if s.local == nil {
			return false
		}
		prev = s.local.Track(kind)
		s.local.SetTrack(kind, t)
		return true
	})
	return prev
}

func (s *Store) SetLocalEnabled(kind domain.Kind, enabled bool) {
	s.mutate(func() bool {
		if s.local == nil || s.local.Enabled(kind) == enabled {
			return false
		}
		s.local.SetEnabled(kind, enabled)
		return true
	})
}

// Local returns a copy of the local participant.
func (s *Store) Local() (domain.Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.local == nil {
		return domain.Participant{}, false
	}
	return *s.local, true
}

func (s *Store) SetRoom(room domain.RoomName) {
	s.mutate(func() bool {
		if s.room == room {
			return false
		}
		s.room = room
		return true
	})
}

func (s *Store) SetConnectionState(state domain.ConnectionState) {
	s.mutate(func() bool {
		if s.state == state {
			return false
		}
		s.state = state
		return true
	})
}

func (s *Store) ConnectionState() domain.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) SetViewMode(mode domain.ViewMode) {
	s.mutate(func() bool {
		if s.view == mode {
			return false
		}
		s.view = mode
		return true
	})
}

// Reset tears the roster down: remote and buffered tracks are stopped, the local participant is dropped
// without touching its tracks. Connection state and view mode are kept.
func (s *Store) Reset() {
	s.mutate(func() bool {
		for _, p := range s.remote {
			for _, kind := range domain.Kinds {
				s.detach(p, kind, true)
			}
		}
		for _, pp := range s.pending {
			for _, ev := range pp.tracks {
				ev.Track.Stop()
			}
		}
		s.local = nil
		s.room = ""
		s.activeSpeaker = ""
		s.remote = make(map[domain.ParticipantID]*domain.Participant)
		s.pending = make(map[domain.ParticipantID]*pendingPeer)
		s.departed = make(map[domain.ParticipantID]struct{})
		s.departedOrder = nil
		s.byTrack = make(map[string]trackRef)
		return true
	})
}

// Snapshot returns a deep copy of the room session; nothing in it aliases store state.
func (s *Store) Snapshot() domain.RoomSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() domain.RoomSnapshot {
	snap := domain.RoomSnapshot{
		Room:            s.room,
		Remote:          make(map[domain.ParticipantID]domain.Participant, len(s.remote)),
		ActiveSpeakerID: s.activeSpeaker,
		State:           s.state,
		ViewMode:        s.view,
	}
	if s.local != nil {
		local := *s.local
		snap.Local = &local
		snap.LocalID = local.ID
	}
	for id, p := range s.remote {
		snap.Remote[id] = *p
	}
	return snap
}

// PendingCount reports how many unknown ids currently have buffered events.
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// TrackOwner resolves a track id through the secondary index.
func (s *Store) TrackOwner(trackID string) (domain.ParticipantID, domain.Kind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.byTrack[trackID]
	return ref.peer, ref.kind, ok
}
