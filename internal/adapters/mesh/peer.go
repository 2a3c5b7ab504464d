package mesh

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/adapters/rtc"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/engine"
	"github.com/dkeye/Huddle/internal/wire"
)

// peerLink is the connection to one remote participant plus what it has told us about its media.
type peerLink struct {
	conn *rtc.Connection

	mu     sync.Mutex
	tracks map[domain.Kind]*rtc.RemoteTrack
	// muted holds the last mute flag announced per kind
	muted map[domain.Kind]bool
	// hidden kinds were unpublished; the receiver stays but the roster dropped the track
	hidden map[domain.Kind]bool
}

func (e *Engine) link(id domain.ParticipantID) (*peerLink, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.peers[id]
	return l, ok
}

// ensureLink returns the connection to id, creating it with the current publications attached.
func (e *Engine) ensureLink(id domain.ParticipantID) (*peerLink, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l, ok := e.peers[id]; ok {
		return l, nil
	}
	if e.ctx.Err() != nil {
		return nil, ErrNotConnected
	}
	if id == e.self {
		return nil, fmt.Errorf("peer connection to self %s", id)
	}

	conn, err := rtc.NewConnection(e.opts.ICE, id)
	if err != nil {
		return nil, err
	}
	l := &peerLink{
		conn:   conn,
		tracks: make(map[domain.Kind]*rtc.RemoteTrack),
		muted:  make(map[domain.Kind]bool),
		hidden: make(map[domain.Kind]bool),
	}
	client := e.client
	conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		if err := client.Send(wire.Message{Type: wire.TypeCandidate, To: id, Candidate: &ci}); err != nil {
			log.Debug().Err(err).Str("module", "mesh").Str("peer", string(id)).Msg("send candidate")
		}
	})
	conn.OnTrack(func(rt *rtc.RemoteTrack) { e.onRemoteTrack(id, l, rt) })
	conn.Start(e.ctx)

	for kind, pub := range e.pubs {
		if pub.paused {
			continue
		}
		if err := conn.SetTrack(kind, pub.source()); err != nil {
			conn.Close()
			return nil, err
		}
	}
	// registered last: closing a half-built link must not re-enter e.mu
	conn.OnClosed(func() { e.onLinkClosed(id, l) })
	e.peers[id] = l
	return l, nil
}

func (e *Engine) offer(id domain.ParticipantID) error {
	l, err := e.ensureLink(id)
	if err != nil {
		return err
	}
	sdp, err := l.conn.CreateOffer()
	if err != nil {
		return err
	}
	return e.send(wire.Message{Type: wire.TypeOffer, To: id, SDP: sdp})
}

func (e *Engine) send(msg wire.Message) error {
	e.mu.Lock()
	client := e.client
	e.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}
	return client.Send(msg)
}

// onSignal runs on the signaling read goroutine, before the message becomes a room event.
func (e *Engine) onSignal(msg wire.Message) {
	logger := log.With().Str("module", "mesh").Str("peer", string(msg.From)).Str("type", msg.Type).Logger()
	switch msg.Type {
	case wire.TypeOffer:
		l, err := e.ensureLink(msg.From)
		if err != nil {
			logger.Error().Err(err).Msg("create peer connection")
			return
		}
		answer, err := l.conn.ApplyOfferAndCreateAnswer(msg.SDP)
		if err != nil {
			logger.Error().Err(err).Msg("apply offer")
			return
		}
		if err := e.send(wire.Message{Type: wire.TypeAnswer, To: msg.From, SDP: answer}); err != nil {
			logger.Warn().Err(err).Msg("send answer")
		}
	case wire.TypeAnswer:
		if l, ok := e.link(msg.From); ok {
			if err := l.conn.ApplyAnswer(msg.SDP); err != nil {
				logger.Error().Err(err).Msg("apply answer")
			}
		}
	case wire.TypeCandidate:
		if l, ok := e.link(msg.From); ok && msg.Candidate != nil {
			if err := l.conn.AddICECandidate(*msg.Candidate); err != nil {
				logger.Warn().Err(err).Msg("add candidate")
			}
		}
	case wire.TypeNewPeer:
		e.announcePaused()
	case wire.TypePeerLeft:
		e.dropLink(msg.From)
	case wire.TypeMute:
		if msg.Enabled != nil {
			e.onRemoteMute(msg.From, msg.Kind, *msg.Enabled)
		}
	case wire.TypeUnpublish:
		if l, ok := e.link(msg.From); ok {
			l.mu.Lock()
			l.hidden[msg.Kind] = true
			l.mu.Unlock()
		}
	}
}

// announcePaused repeats our paused state so a newcomer does not render a frozen track as live.
func (e *Engine) announcePaused() {
	e.mu.Lock()
	var paused []domain.Kind
	for kind, pub := range e.pubs {
		if pub.paused {
			paused = append(paused, kind)
		}
	}
	e.mu.Unlock()
	for _, kind := range paused {
		_ = e.send(wire.Message{Type: wire.TypeMute, Kind: kind, Enabled: wire.Bool(false)})
	}
}

func (e *Engine) onRemoteMute(id domain.ParticipantID, kind domain.Kind, enabled bool) {
	l, ok := e.link(id)
	if !ok {
		return
	}
	l.mu.Lock()
	l.muted[kind] = !enabled
	rt := l.tracks[kind]
	reappeared := enabled && l.hidden[kind] && rt != nil
	if reappeared {
		delete(l.hidden, kind)
	}
	l.mu.Unlock()
	if reappeared {
		// republished after an unpublish: same receiver, new announcement
		e.emit(engine.TrackAvailable{PeerID: id, Kind: kind, Track: rt})
	}
}

func (e *Engine) onRemoteTrack(id domain.ParticipantID, l *peerLink, rt *rtc.RemoteTrack) {
	l.mu.Lock()
	if old, ok := l.tracks[rt.Kind()]; ok {
		old.Stop()
	}
	l.tracks[rt.Kind()] = rt
	muted := l.muted[rt.Kind()]
	delete(l.hidden, rt.Kind())
	l.mu.Unlock()
	e.emit(engine.TrackAvailable{PeerID: id, Kind: rt.Kind(), Track: rt, Muted: muted})
}

// dropLink closes the connection to a participant who left. Its tracks go with the roster entry.
func (e *Engine) dropLink(id domain.ParticipantID) {
	e.mu.Lock()
	l, ok := e.peers[id]
	delete(e.peers, id)
	e.mu.Unlock()
	if ok {
		l.conn.Close()
	}
}

// onLinkClosed reports media loss when a connection fails while its participant is still in the room.
func (e *Engine) onLinkClosed(id domain.ParticipantID, l *peerLink) {
	e.mu.Lock()
	current := e.peers[id] == l
	if current {
		delete(e.peers, id)
	}
	e.mu.Unlock()

	l.mu.Lock()
	tracks := l.tracks
	l.tracks = make(map[domain.Kind]*rtc.RemoteTrack)
	l.mu.Unlock()
	for kind, rt := range tracks {
		rt.Stop()
		if current {
			e.emit(engine.TrackRemoved{PeerID: id, Kind: kind})
		}
	}
}
