package orch

import (
	"context"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/wire"
)

// OnAudioLevel records a member's self-reported microphone level, clamped to [0, 1].
func (o *Orchestrator) OnAudioLevel(id domain.ParticipantID, level float64) {
	roomName, _, ok := o.Registry.RoomOf(id)
	if !ok {
		return
	}
	room, ok := o.Rooms.Get(roomName)
	if !ok {
		return
	}
	room.SetAudioLevel(id, min(max(level, 0), 1))
}

// PublishSpeakers broadcasts the ranked speaker list of every room whose ranking changed since the last call.
func (o *Orchestrator) PublishSpeakers() {
	for _, info := range o.Rooms.List() {
		room, ok := o.Rooms.Get(info.Name)
		if !ok {
			continue
		}
		ranked := room.ActiveSpeakers(o.SpeakerThreshold)

		o.mu.Lock()
		if o.lastSpeakers == nil {
			o.lastSpeakers = make(map[domain.RoomName][]domain.ParticipantID)
		}
		prev, seen := o.lastSpeakers[info.Name]
		changed := !seen && len(ranked) > 0 || seen && !slices.Equal(prev, ranked)
		if changed {
			o.lastSpeakers[info.Name] = ranked
		}
		o.mu.Unlock()

		if changed {
			log.Debug().Str("module", "orch").Str("room", string(info.Name)).Int("speaking", len(ranked)).Msg("speakers changed")
			o.deliver(room, "", Encode(wire.Message{Type: wire.TypeSpeakers, Ranked: ranked}))
		}
	}
}

// RunSpeakerUpdates calls PublishSpeakers every interval until ctx ends.
func (o *Orchestrator) RunSpeakerUpdates(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.PublishSpeakers()
		}
	}
}

// forgetSpeakers must be called with o.mu held.
func (o *Orchestrator) forgetSpeakers(name domain.RoomName) {
	delete(o.lastSpeakers, name)
}
