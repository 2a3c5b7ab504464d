package signal

import "github.com/dkeye/Huddle/internal/wire"

func (ctl *SignalWSController) handlePing(p *peer, msg wire.Message) {
	ctl.sendJSON(p, wire.Message{Type: wire.TypePong, ID: msg.ID})
}
