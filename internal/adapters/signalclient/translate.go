package signalclient

import (
	"time"

	"github.com/dkeye/Huddle/internal/engine"
	"github.com/dkeye/Huddle/internal/wire"
)

// Translate maps a relay broadcast onto the engine event it stands for. Replies and negotiation
// messages have no event.
func Translate(msg wire.Message) (engine.Event, bool) {
	switch msg.Type {
	case wire.TypeNewPeer:
		return engine.PeerJoined{ID: msg.From, DisplayName: msg.Name}, msg.From != ""
	case wire.TypePeerLeft:
		return engine.PeerLeft{ID: msg.From}, msg.From != ""
	case wire.TypeMute:
		if msg.Enabled == nil || msg.From == "" {
			return nil, false
		}
		return engine.MuteChanged{PeerID: msg.From, Kind: msg.Kind, Enabled: *msg.Enabled}, true
	case wire.TypeUnpublish:
		return engine.TrackRemoved{PeerID: msg.From, Kind: msg.Kind}, msg.From != ""
	case wire.TypeSpeakers:
		return engine.ActiveSpeakersChanged{Ranked: msg.Ranked}, true
	case wire.TypeChat:
		return engine.ChatReceived{From: msg.From, Text: msg.Text, At: time.UnixMilli(msg.At)}, true
	}
	return nil, false
}
