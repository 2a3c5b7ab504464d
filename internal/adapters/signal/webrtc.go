package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/wire"
)

// handleNegotiation forwards offer, answer and candidate messages to the addressed peer. The relay never
// inspects SDP; it only stamps the sender.
func (ctl *SignalWSController) handleNegotiation(p *peer, msg wire.Message) {
	if msg.To == "" || msg.To == p.id() {
		ctl.sendJSON(p, wire.ErrorReply(msg.ID, "bad_target"))
		return
	}
	if msg.Type == wire.TypeCandidate && msg.Candidate == nil {
		ctl.sendJSON(p, wire.ErrorReply(msg.ID, "bad_payload"))
		return
	}
	if msg.Type != wire.TypeCandidate && msg.SDP == "" {
		ctl.sendJSON(p, wire.ErrorReply(msg.ID, "bad_payload"))
		return
	}

	fwd := wire.Message{
		Type:      msg.Type,
		From:      p.id(),
		To:        msg.To,
		SDP:       msg.SDP,
		Candidate: msg.Candidate,
	}
	if err := ctl.Orch.Route(p.id(), msg.To, orch.Encode(fwd)); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("peer", string(p.id())).Str("to", string(msg.To)).Str("type", msg.Type).Msg("route")
		ctl.sendJSON(p, wire.ErrorReply(msg.ID, err.Error()))
	}
}
