// Package orch coordinates relay rooms, the connection registry and the backpressure policy.
package orch

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/metrics"
	"github.com/dkeye/Huddle/internal/wire"
)

var (
	ErrAlreadyConnected = errors.New("participant already connected")
	ErrNotInRoom        = errors.New("participant is not in a room")
	ErrRoomFull         = errors.New("room is full")
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomFactory
	Policy   app.Policy
	// Metrics is optional.
	Metrics *metrics.Relay
	// SpeakerThreshold is the audio level a member must reach to be ranked as speaking.
	SpeakerThreshold float64
	// MaxRoomSize caps members per room; every member sends to every other one. Zero means no cap.
	MaxRoomSize int

	// mu serializes membership changes so an emptied room is never stopped under a joiner.
	mu           sync.Mutex
	lastSpeakers map[domain.RoomName][]domain.ParticipantID
}

// OnFrame fans a frame out to everyone else in the sender's room and applies the backpressure policy.
func (o *Orchestrator) OnFrame(id domain.ParticipantID, data core.Frame) int {
	roomName, _, ok := o.Registry.RoomOf(id)
	if !ok {
		return 0
	}
	room, ok := o.Rooms.Get(roomName)
	if !ok {
		return 0
	}
	return o.deliver(room, id, data)
}

func (o *Orchestrator) deliver(room core.RoomService, from domain.ParticipantID, data core.Frame) int {
	res := room.Broadcast(from, data)
	if len(res.Dropped) > 0 && o.Metrics != nil {
		o.Metrics.Dropped.Add(float64(len(res.Dropped)))
	}
	if o.Policy == nil {
		return res.SendTo
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			slowID := slow.Meta().User.ID
			log.Warn().Str("module", "orch").Str("peer", string(slowID)).Msg("kicking slow member")
			if o.Metrics != nil {
				o.Metrics.Kicked.Inc()
			}
			o.KickBySID(slowID)
		case app.DropFrame, app.NoAction:
		}
	}
	return res.SendTo
}

// Route delivers a frame to one member of the sender's room.
func (o *Orchestrator) Route(from, to domain.ParticipantID, data core.Frame) error {
	roomName, _, ok := o.Registry.RoomOf(from)
	if !ok {
		return ErrNotInRoom
	}
	room, ok := o.Rooms.Get(roomName)
	if !ok {
		return ErrNotInRoom
	}
	return room.SendTo(to, data)
}

// Encode marshals a message for fan-out.
func Encode(msg wire.Message) core.Frame {
	b, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", msg.Type).Msg("encode")
		return nil
	}
	return b
}
