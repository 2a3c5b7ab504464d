// Package engine defines the contract every media transport (mesh, SFU, managed SDK) is adapted to.
package engine

import (
	"context"

	"github.com/dkeye/Huddle/internal/domain"
)

// PeerInfo describes a participant already present when the local participant joins.
type PeerInfo struct {
	ID          domain.ParticipantID `json:"id"`
	DisplayName string               `json:"name"`
}

// Welcome is what a successful Connect learns about the room.
type Welcome struct {
	SelfID domain.ParticipantID
	Room   domain.RoomName
	Peers  []PeerInfo
}

// EventSource is anything that reports room events: the media engine itself or a signaling side-channel.
// The channel is closed when the source is torn down.
type EventSource interface {
	Events() <-chan Event
}

//go:generate mockgen -destination=mock/engine.go -package=mock github.com/dkeye/Huddle/internal/engine Engine

// Engine is the media transport as seen by the session controller.
// Every command reports failure through its error; none of them may panic the caller.
type Engine interface {
	EventSource

	// Connect reaches the transport and returns the current room membership.
	Connect(ctx context.Context, address, credential string) (Welcome, error)
	// Publish starts sending a local track of the given kind.
	Publish(ctx context.Context, kind domain.Kind, track domain.Track) error
	// Unpublish stops sending the kind entirely.
	Unpublish(ctx context.Context, kind domain.Kind) error
	// Pause keeps the publication but stops media flow.
	Pause(ctx context.Context, kind domain.Kind) error
	Resume(ctx context.Context, kind domain.Kind) error
	// ReplaceTrack swaps the published source without renegotiating the session.
	ReplaceTrack(ctx context.Context, kind domain.Kind, track domain.Track) error
	Disconnect() error
}
