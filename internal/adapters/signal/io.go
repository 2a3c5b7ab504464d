package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/wire"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, p *peer) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()
	c := p.conn
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("peer", string(p.id())).Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("peer", string(p.id())).Msg("writePump ping")
				p.cancel()
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("peer", string(p.id())).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				p.cancel()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("peer", string(p.id())).Msg("writePump write error")
				p.cancel()
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, p *peer) {
	defer func() {
		log.Info().Str("module", "signal").Str("peer", string(p.id())).Msg("readPump closing")
		if p.isJoined() {
			ctl.Orch.Leave(p.id(), p.sess)
		}
		ctl.limiter.Forget(p.id())
		p.cancel()
		p.conn.Close()
	}()

	// the read below only returns on a frame or an error, so a cancelled ctx must close the socket
	go func() {
		<-ctx.Done()
		p.conn.Close()
	}()

	pongWait := ctl.opts.PingPeriod * 10 / 9
	ws := p.conn.conn
	ws.SetReadLimit(ctl.opts.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("peer", string(p.id())).Msg("readPump read error")
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ctl.handleSignal(p, data)
	}
}

func (ctl *SignalWSController) handleSignal(p *peer, data []byte) {
	var msg wire.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendJSON(p, wire.ErrorReply("", "bad_payload"))
		return
	}
	if ctl.Metrics != nil {
		ctl.Metrics.Messages.WithLabelValues(msg.Type).Inc()
	}

	switch msg.Type {
	case wire.TypeJoin:
		ctl.handleJoin(p, msg)
		return
	case wire.TypePing:
		ctl.handlePing(p, msg)
		return
	}
	if !p.isJoined() {
		ctl.sendJSON(p, wire.ErrorReply(msg.ID, "join first"))
		return
	}

	switch msg.Type {
	case wire.TypeLeave:
		ctl.handleLeave(p, msg)
	case wire.TypeOffer, wire.TypeAnswer, wire.TypeCandidate:
		ctl.handleNegotiation(p, msg)
	case wire.TypeMute, wire.TypeUnpublish:
		ctl.handleMediaState(p, msg)
	case wire.TypeChat:
		ctl.handleChat(p, msg)
	case wire.TypeAudioLevel:
		ctl.Orch.OnAudioLevel(p.id(), msg.Level)
	default:
		log.Warn().Str("module", "signal").Str("type", msg.Type).Msg("unknown signal")
		ctl.sendJSON(p, wire.ErrorReply(msg.ID, "unknown_type"))
	}
}

func (ctl *SignalWSController) sendJSON(p *peer, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := p.conn.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("peer", string(p.id())).Msg("sendJSON")
	}
}
