package engine

import (
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

// Event is the closed set of notifications an engine or signaling channel delivers.
// Only types in this package implement it, so a type switch over the variants below is exhaustive.
type Event interface {
	isEvent()
}

type PeerJoined struct {
	ID          domain.ParticipantID
	DisplayName string
}

type PeerLeft struct {
	ID domain.ParticipantID
}

// TrackAvailable announces a remote track. Muted is true when the producer is already paused.
type TrackAvailable struct {
	PeerID domain.ParticipantID
	Kind   domain.Kind
	Track  domain.Track
	Muted  bool
}

type TrackRemoved struct {
	PeerID domain.ParticipantID
	Kind   domain.Kind
}

type MuteChanged struct {
	PeerID  domain.ParticipantID
	Kind    domain.Kind
	Enabled bool
}

// TrackMuteChanged is a producer-level pause/resume keyed by track id only.
type TrackMuteChanged struct {
	TrackID string
	Enabled bool
}

// ActiveSpeakersChanged carries participant ids ranked loudest first.
type ActiveSpeakersChanged struct {
	Ranked []domain.ParticipantID
}

type Disconnected struct {
	Reason string
}

// ChatReceived is a side-channel text message; it never touches the roster.
type ChatReceived struct {
	From domain.ParticipantID
	Text string
	At   time.Time
}

func (PeerJoined) isEvent() {}
func (PeerLeft) isEvent() {}
func (TrackAvailable) isEvent() {}
func (TrackRemoved) isEvent() {}
func (MuteChanged) isEvent() {}
func (TrackMuteChanged) isEvent() {}
func (ActiveSpeakersChanged) isEvent() {}
func (Disconnected) isEvent() {}
func (ChatReceived) isEvent() {}
