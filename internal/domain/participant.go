package domain

import (
	"sort"
	"strings"
)

// Participant is one member of a call as the roster sees it.
// Track presence and the enabled flags vary independently: a track may be held while disabled,
// and a flag may be set while no track was published yet.
type Participant struct {
	ID                ParticipantID
	DisplayName       string
	AudioTrack        Track
	VideoTrack        Track
	MicrophoneEnabled bool
	CameraEnabled     bool
	IsLocal           bool
}

func (p *Participant) Track(kind Kind) Track {
	if kind == KindAudio {
		return p.AudioTrack
	}
	return p.VideoTrack
}

func (p *Participant) SetTrack(kind Kind, t Track) {
	if kind == KindAudio {
		p.AudioTrack = t
		return
	}
	p.VideoTrack = t
}

func (p *Participant) Enabled(kind Kind) bool {
	if kind == KindAudio {
		return p.MicrophoneEnabled
	}
	return p.CameraEnabled
}

func (p *Participant) SetEnabled(kind Kind, enabled bool) {
	if kind == KindAudio {
		p.MicrophoneEnabled = enabled
		return
	}
	p.CameraEnabled = enabled
}

// RoomSnapshot is a read-only copy of the room session handed to renderers.
type RoomSnapshot struct {
	Room            RoomName
	LocalID         ParticipantID
	Local           *Participant
	Remote          map[ParticipantID]Participant
	ActiveSpeakerID ParticipantID
	State           ConnectionState
	ViewMode        ViewMode
}

// Lookup finds a participant, local or remote, by id.
func (s RoomSnapshot) Lookup(id ParticipantID) (Participant, bool) {
	if s.Local != nil && s.Local.ID == id {
		return *s.Local, true
	}
	p, ok := s.Remote[id]
	return p, ok
}

// Participants returns the local participant first, then remotes ordered by display name and id.
func (s RoomSnapshot) Participants() []Participant {
	out := make([]Participant, 0, len(s.Remote)+1)
	remotes := make([]Participant, 0, len(s.Remote))
	for _, p := range s.Remote {
		remotes = append(remotes, p)
	}
	sort.Slice(remotes, func(i, j int) bool {
		a, b := strings.ToLower(remotes[i].DisplayName), strings.ToLower(remotes[j].DisplayName)
		if a != b {
			return a < b
		}
		return remotes[i].ID < remotes[j].ID
	})
	if s.Local != nil {
		out = append(out, *s.Local)
	}
	return append(out, remotes...)
}

// Count includes the local participant when present.
func (s RoomSnapshot) Count() int {
	n := len(s.Remote)
	if s.Local != nil {
		n++
	}
	return n
}
