package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/wire"
)

// handleJoin enters the room named by the credential and answers with the members already there.
func (ctl *SignalWSController) handleJoin(p *peer, msg wire.Message) {
	p.mu.Lock()
	if p.joined {
		p.mu.Unlock()
		ctl.sendJSON(p, wire.ErrorReply(msg.ID, "already joined"))
		return
	}
	p.joined = true
	p.mu.Unlock()

	peers, err := ctl.Orch.Join(p.id(), p.claims.Room, p.sess, p.cancel)
	if err != nil {
		p.mu.Lock()
		p.joined = false
		p.mu.Unlock()
		log.Warn().Err(err).Str("module", "signal").Str("peer", string(p.id())).Msg("join refused")
		ctl.reject(err)
		ctl.sendJSON(p, wire.ErrorReply(msg.ID, err.Error()))
		return
	}

	log.Info().Str("module", "signal").Str("peer", string(p.id())).Str("room", string(p.claims.Room)).Msg("join")
	ctl.sendJSON(p, wire.Message{
		Type:   wire.TypeJoined,
		ID:     msg.ID,
		SelfID: p.id(),
		Name:   p.claims.Name,
		Room:   p.claims.Room,
		Peers:  peers,
	})
}

// handleLeave leaves the room and closes the connection.
func (ctl *SignalWSController) handleLeave(p *peer, msg wire.Message) {
	log.Info().Str("module", "signal").Str("peer", string(p.id())).Msg("leave")
	p.mu.Lock()
	p.joined = false
	p.mu.Unlock()
	ctl.Orch.Leave(p.id(), p.sess)
	ctl.sendJSON(p, wire.Message{Type: wire.TypeLeave, ID: msg.ID})
	p.cancel()
}
