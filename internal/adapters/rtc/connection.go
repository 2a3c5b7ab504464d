// Package rtc wraps pion peer connections for the mesh engine: one Connection per remote participant.
package rtc

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
)

var ErrClosed = errors.New("peer connection closed")

// Connection is a sendrecv link with one remote participant. It carries one audio and one video
// transceiver for its whole life, so swapping or muting a local source never renegotiates.
type Connection struct {
	pc      *webrtc.PeerConnection
	peer    domain.ParticipantID
	senders map[domain.Kind]*webrtc.RTPSender
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	remoteSet bool
	// candidates that arrived before the remote description
	pending []webrtc.ICECandidateInit
	closed  bool
	// kinds whose sender carries a source set through SetTrack
	attached map[domain.Kind]bool

	onICE    func(webrtc.ICECandidateInit)
	onTrack  func(*RemoteTrack)
	onClosed func()
}

func DefaultConfig(iceURLs []string) webrtc.Configuration {
	if len(iceURLs) == 0 {
		iceURLs = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceURLs}},
	}
}

func NewConnection(cfg webrtc.Configuration, peer domain.ParticipantID) (*Connection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	c := &Connection{
		pc:      pc,
		peer:    peer,
		senders:  make(map[domain.Kind]*webrtc.RTPSender, len(domain.Kinds)),
		attached: make(map[domain.Kind]bool, len(domain.Kinds)),
		logger:  log.With().Str("module", "webrtc").Str("peer", string(peer)).Logger(),
	}
	for _, kind := range domain.Kinds {
		tr, err := pc.AddTransceiverFromKind(codecType(kind), webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendrecv,
		})
		if err != nil {
			_ = pc.Close()
			return nil, err
		}
		c.senders[kind] = tr.Sender()
	}
	return c, nil
}

func codecType(kind domain.Kind) webrtc.RTPCodecType {
	if kind == domain.KindVideo {
		return webrtc.RTPCodecTypeVideo
	}
	return webrtc.RTPCodecTypeAudio
}

func kindOf(t webrtc.RTPCodecType) domain.Kind {
	if t == webrtc.RTPCodecTypeVideo {
		return domain.KindVideo
	}
	return domain.KindAudio
}

func (c *Connection) Peer() domain.ParticipantID { return c.peer }

// Start installs the pion handlers. Callbacks must be registered before it is called.
func (c *Connection) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			c.Close()
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		rt := NewRemoteTrack(track.ID(), kindOf(track.Kind()), func() (*rtp.Packet, error) {
			pkt, _, err := track.ReadRTP()
			return pkt, err
		})
		rt.Start(c.ctx)
		if c.onTrack != nil {
			c.onTrack(rt)
		}
	})

	// RTCP has to be drained for the interceptors to run
	for _, s := range c.senders {
		go func(s *webrtc.RTPSender) {
			buf := make([]byte, 1500)
			for {
				if _, _, err := s.Read(buf); err != nil {
					return
				}
			}
		}(s)
	}
}

// CreateOffer starts negotiation from this side.
func (c *Connection) CreateOffer() (string, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	return c.pc.LocalDescription().SDP, nil
}

// ApplyOfferAndCreateAnswer answers a remote offer.
func (c *Connection) ApplyOfferAndCreateAnswer(sdp string) (string, error) {
	if err := c.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return "", err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return c.pc.LocalDescription().SDP, nil
}

func (c *Connection) ApplyAnswer(sdp string) error {
	return c.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

func (c *Connection) setRemote(desc webrtc.SessionDescription) error {
	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return err
	}
	c.mu.Lock()
	c.remoteSet = true
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, ci := range pending {
		if err := c.pc.AddICECandidate(ci); err != nil {
			c.logger.Warn().Err(err).Msg("deferred candidate")
		}
	}
	return nil
}

// AddICECandidate applies a trickled candidate, holding it until the remote description is known.
func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.remoteSet {
		c.pending = append(c.pending, ci)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.pc.AddICECandidate(ci)
}

// SetTrack points the kind's sender at track. A nil track keeps the transceiver but sends nothing.
func (c *Connection) SetTrack(kind domain.Kind, track webrtc.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.senders[kind].ReplaceTrack(track); err != nil {
		return err
	}
	c.attached[kind] = track != nil
	return nil
}

// Sending reports whether the kind's sender currently has a source attached.
func (c *Connection) Sending(kind domain.Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attached[kind]
}

func (c *Connection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if err := c.pc.Close(); err != nil {
		c.logger.Error().Err(err).Msg("close error")
	} else {
		c.logger.Info().Msg("closed")
	}
	if c.onClosed != nil {
		c.onClosed()
	}
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) { c.onICE = fn }

// OnTrack sets the callback for media arriving from the remote participant.
func (c *Connection) OnTrack(fn func(*RemoteTrack)) { c.onTrack = fn }

// OnClosed fires once, after the connection is closed locally or fails.
func (c *Connection) OnClosed(fn func()) { c.onClosed = fn }
