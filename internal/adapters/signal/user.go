package signal

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/wire"
)

const maxChatLen = 1000

// handleMediaState rebroadcasts a participant's mute or unpublish announcement to the room.
func (ctl *SignalWSController) handleMediaState(p *peer, msg wire.Message) {
	kind, err := domain.ParseKind(string(msg.Kind))
	if err != nil || msg.Type == wire.TypeMute && msg.Enabled == nil {
		ctl.sendJSON(p, wire.ErrorReply(msg.ID, "bad_payload"))
		return
	}
	out := wire.Message{Type: msg.Type, From: p.id(), Kind: kind, Enabled: msg.Enabled}
	n := ctl.Orch.OnFrame(p.id(), orch.Encode(out))
	log.Debug().Str("module", "signal").Str("peer", string(p.id())).Str("type", msg.Type).Str("kind", string(kind)).Int("sent_to", n).Msg("media state")
}

func (ctl *SignalWSController) handleChat(p *peer, msg wire.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" || len(text) > maxChatLen {
		ctl.sendJSON(p, wire.ErrorReply(msg.ID, "bad_payload"))
		return
	}
	if ok, wait := ctl.limiter.Allow(p.id()); !ok {
		log.Debug().Str("module", "signal").Str("peer", string(p.id())).Dur("retry_in", wait).Msg("chat rate limited")
		ctl.sendJSON(p, wire.ErrorReply(msg.ID, "rate_limited"))
		return
	}
	out := wire.Message{
		Type: wire.TypeChat,
		From: p.id(),
		Name: p.claims.Name,
		Text: text,
		At:   time.Now().UnixMilli(),
	}
	ctl.Orch.OnFrame(p.id(), orch.Encode(out))
	if msg.ID != "" {
		ctl.sendJSON(p, wire.Message{Type: wire.TypeChat, ID: msg.ID, At: out.At})
	}
}
