// Package core holds the relay's room membership and fan-out, independent of the websocket adapter.
package core

import (
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/wire"
)

// Frame is one encoded signaling message.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// MemberSession binds domain.Member and its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	Meta() *domain.Member
	Signal() SignalConnection
}

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Name() domain.RoomName
	MemberCount() int
	MembersSnapshot() []wire.Peer
	Member(id domain.ParticipantID) (MemberSession, bool)

	// AddMember reports false when the id is already present.
	AddMember(ms MemberSession) bool
	RemoveMember(id domain.ParticipantID) bool
	Broadcast(from domain.ParticipantID, data Frame) PublishResult
	SendTo(to domain.ParticipantID, data Frame) error

	SetAudioLevel(id domain.ParticipantID, level float64)
	// ActiveSpeakers lists members whose last reported level reaches threshold, loudest first.
	ActiveSpeakers(threshold float64) []domain.ParticipantID
}

type RoomInfo struct {
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"client_count"`
	CreatedAt   time.Time       `json:"created_at"`
}

type RoomFactory interface {
	GetOrCreate(name domain.RoomName) RoomService
	Get(name domain.RoomName) (RoomService, bool)
	List() []RoomInfo
	Len() int
	StopRoom(name domain.RoomName)
}
