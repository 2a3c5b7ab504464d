// Package wire defines the JSON messages exchanged over the signaling websocket.
//
// Every frame is one flat Message; Type selects which fields are meaningful. Requests carry an ID that
// the relay echoes in the response.
package wire

import (
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Huddle/internal/domain"
)

const (
	TypeJoin   = "join"
	TypeJoined = "joined"
	TypeLeave  = "leave"
	TypeError  = "error"
	TypePing   = "ping"
	TypePong   = "pong"

	TypeNewPeer  = "newPeer"
	TypePeerLeft = "peerLeft"

	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"

	TypeMute       = "mute"
	TypeUnpublish  = "unpublish"
	TypeChat       = "chat"
	TypeAudioLevel = "audio_level"
	TypeSpeakers   = "speakers"
)

// Peer is one room member as announced by the relay.
type Peer struct {
	ID   domain.ParticipantID `json:"id"`
	Name string               `json:"name"`
}

type Message struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	// From is stamped by the relay; clients never set it.
	From domain.ParticipantID `json:"from,omitempty"`
	// To addresses a single peer for negotiation messages.
	To domain.ParticipantID `json:"to,omitempty"`

	Name   string               `json:"name,omitempty"`
	SelfID domain.ParticipantID `json:"selfId,omitempty"`
	Room   domain.RoomName      `json:"room,omitempty"`
	Peers  []Peer               `json:"peers,omitempty"`

	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`

	Kind    domain.Kind `json:"kind,omitempty"`
	Enabled *bool       `json:"enabled,omitempty"`

	Text string `json:"text,omitempty"`
	// At is unix milliseconds, stamped by the relay on chat.
	At int64 `json:"at,omitempty"`

	Level  float64                `json:"level,omitempty"`
	Ranked []domain.ParticipantID `json:"ranked,omitempty"`

	Error string `json:"error,omitempty"`
}

func Bool(b bool) *bool { return &b }

// ErrorReply builds the error response to a request.
func ErrorReply(id, reason string) Message {
	return Message{Type: TypeError, ID: id, Error: reason}
}
