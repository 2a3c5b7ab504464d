package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/wire"
)

// Join binds a connection to its room and announces it. It returns the members already present.
func (o *Orchestrator) Join(
	id domain.ParticipantID,
	roomName domain.RoomName,
	sess core.MemberSession,
	cancel context.CancelFunc,
) ([]wire.Peer, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if room, ok := o.Rooms.Get(roomName); ok && o.MaxRoomSize > 0 && room.MemberCount() >= o.MaxRoomSize {
		return nil, ErrRoomFull
	}
	if !o.Registry.BindSession(id, roomName, sess, cancel) {
		return nil, ErrAlreadyConnected
	}
	room := o.Rooms.GetOrCreate(roomName)
	peers := room.MembersSnapshot()
	room.AddMember(sess)
	log.Info().Str("module", "orch").Str("peer", string(id)).Str("room", string(roomName)).Int("peers", len(peers)).Msg("joined")

	o.deliver(room, id, Encode(wire.Message{Type: wire.TypeNewPeer, From: id, Name: sess.Meta().User.Username}))
	o.updateGauges()
	return peers, nil
}

// Leave removes a connection from its room and tells the rest. A stale sess is ignored.
func (o *Orchestrator) Leave(id domain.ParticipantID, sess core.MemberSession) {
	o.mu.Lock()
	defer o.mu.Unlock()

	roomName, current, ok := o.Registry.RoomOf(id)
	if !ok || current != sess {
		return
	}
	o.Registry.Unbind(id, sess)
	if o.Policy != nil {
		o.Policy.Forget(id)
	}
	if room, ok := o.Rooms.Get(roomName); ok && room.RemoveMember(id) {
		o.deliver(room, id, Encode(wire.Message{Type: wire.TypePeerLeft, From: id}))
		if room.MemberCount() == 0 {
			o.Rooms.StopRoom(roomName)
			o.forgetSpeakers(roomName)
			log.Info().Str("module", "orch").Str("room", string(roomName)).Msg("room closed")
		}
	}
	log.Info().Str("module", "orch").Str("peer", string(id)).Str("room", string(roomName)).Msg("left")
	o.updateGauges()
}

// KickBySID closes a member's connection; its read pump then runs the normal Leave path.
func (o *Orchestrator) KickBySID(id domain.ParticipantID) {
	sess, ok := o.Registry.GetSession(id)
	o.Registry.Cancel(id)
	if ok {
		sess.Signal().Close()
	}
}

// EvictRoom disconnects everyone in the room and reports how many members were kicked.
func (o *Orchestrator) EvictRoom(name domain.RoomName) int {
	members := o.Registry.MembersOfRoom(name)
	for _, snap := range members {
		o.KickBySID(snap.ID)
	}
	log.Info().Str("module", "orch").Str("room", string(name)).Int("kicked", len(members)).Msg("room evicted")
	return len(members)
}

func (o *Orchestrator) updateGauges() {
	if o.Metrics == nil {
		return
	}
	o.Metrics.Rooms.Set(float64(o.Rooms.Len()))
	o.Metrics.Peers.Set(float64(o.Registry.Count()))
}
