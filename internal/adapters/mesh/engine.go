// Package mesh is an engine.Engine where every participant holds a direct peer connection to every
// other one. The relay only carries signaling.
//
// Each connection is negotiated once with a sendrecv transceiver per kind. Publishing, pausing and
// switching devices all swap the sender's source in place.
package mesh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/adapters/rtc"
	"github.com/dkeye/Huddle/internal/adapters/signalclient"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/engine"
	"github.com/dkeye/Huddle/internal/wire"
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrNotPublished     = errors.New("nothing published for kind")
	ErrUnsupportedTrack = errors.New("track cannot be sent over a peer connection")
)

// LocalSource is a local track the engine can attach to an RTP sender.
type LocalSource interface {
	Local() webrtc.TrackLocal
}

// Leveler reports the loudness of a local audio source in [0, 1].
type Leveler interface {
	Level() float64
}

type Options struct {
	ICE            webrtc.Configuration
	RequestTimeout time.Duration
	// LevelInterval is how often the local audio level is reported for speaker ranking. Zero disables it.
	LevelInterval time.Duration
}

type publication struct {
	track  domain.Track
	paused bool
}

type Engine struct {
	opts   Options
	events chan engine.Event
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	client *signalclient.Client
	self   domain.ParticipantID
	peers  map[domain.ParticipantID]*peerLink
	pubs   map[domain.Kind]*publication
}

func New(opts Options) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		opts:   opts,
		events: make(chan engine.Event, 64),
		ctx:    ctx,
		cancel: cancel,
		peers:  make(map[domain.ParticipantID]*peerLink),
		pubs:   make(map[domain.Kind]*publication),
	}
}

func (e *Engine) Events() <-chan engine.Event { return e.events }

func (e *Engine) emit(ev engine.Event) {
	select {
	case e.events <- ev:
	case <-e.ctx.Done():
	}
}

// Connect joins the room and offers a connection to everyone already in it. Participants who arrive
// later make the offer themselves.
func (e *Engine) Connect(ctx context.Context, address, credential string) (engine.Welcome, error) {
	client, err := signalclient.Dial(ctx, address, credential, signalclient.Options{
		RequestTimeout: e.opts.RequestTimeout,
		Handler:        e.onSignal,
	})
	if err != nil {
		return engine.Welcome{}, err
	}
	e.mu.Lock()
	if e.ctx.Err() != nil {
		// Disconnect ran while dialing
		e.mu.Unlock()
		_ = client.Close()
		return engine.Welcome{}, ErrNotConnected
	}
	e.client = client
	e.mu.Unlock()

	welcome, err := client.Join(ctx)
	if err != nil {
		_ = client.Close()
		return engine.Welcome{}, err
	}
	e.mu.Lock()
	e.self = welcome.SelfID
	e.mu.Unlock()

	go e.forward(client)
	if e.opts.LevelInterval > 0 {
		go e.reportLevels(e.opts.LevelInterval)
	}

	for _, p := range welcome.Peers {
		if p.ID == welcome.SelfID {
			continue
		}
		if err := e.offer(p.ID); err != nil {
			log.Warn().Err(err).Str("module", "mesh").Str("peer", string(p.ID)).Msg("offer")
		}
	}
	log.Info().Str("module", "mesh").Str("self", string(welcome.SelfID)).Int("peers", len(welcome.Peers)).Msg("connected")
	return welcome, nil
}

// forward moves room events from the signaling connection onto the engine's stream.
func (e *Engine) forward(client *signalclient.Client) {
	for ev := range client.Events() {
		e.emit(ev)
	}
}

func (e *Engine) reportLevels(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
		}
		e.mu.Lock()
		client := e.client
		level := 0.0
		if pub, ok := e.pubs[domain.KindAudio]; ok && !pub.paused {
			if l, ok := pub.track.(Leveler); ok {
				level = l.Level()
			}
		}
		e.mu.Unlock()
		if err := client.Send(wire.Message{Type: wire.TypeAudioLevel, Level: level}); err != nil {
			return
		}
	}
}

func (e *Engine) Publish(ctx context.Context, kind domain.Kind, track domain.Track) error {
	if _, ok := track.(LocalSource); !ok {
		return fmt.Errorf("%w: %T", ErrUnsupportedTrack, track)
	}
	return e.update(kind, func(*publication) (*publication, *wire.Message, error) {
		return &publication{track: track}, &wire.Message{Type: wire.TypeMute, Kind: kind, Enabled: wire.Bool(true)}, nil
	})
}

func (e *Engine) Unpublish(ctx context.Context, kind domain.Kind) error {
	return e.update(kind, func(cur *publication) (*publication, *wire.Message, error) {
		if cur == nil {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotPublished, kind)
		}
		return nil, &wire.Message{Type: wire.TypeUnpublish, Kind: kind}, nil
	})
}

// Pause stops the sender without dropping the publication. Peers keep the track and see it disabled.
func (e *Engine) Pause(ctx context.Context, kind domain.Kind) error {
	return e.setPaused(kind, true)
}

func (e *Engine) Resume(ctx context.Context, kind domain.Kind) error {
	return e.setPaused(kind, false)
}

func (e *Engine) setPaused(kind domain.Kind, paused bool) error {
	return e.update(kind, func(cur *publication) (*publication, *wire.Message, error) {
		if cur == nil {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotPublished, kind)
		}
		next := &publication{track: cur.track, paused: paused}
		return next, &wire.Message{Type: wire.TypeMute, Kind: kind, Enabled: wire.Bool(!paused)}, nil
	})
}

// ReplaceTrack swaps the source behind a publication. A paused publication keeps sending nothing.
func (e *Engine) ReplaceTrack(ctx context.Context, kind domain.Kind, track domain.Track) error {
	if _, ok := track.(LocalSource); !ok {
		return fmt.Errorf("%w: %T", ErrUnsupportedTrack, track)
	}
	return e.update(kind, func(cur *publication) (*publication, *wire.Message, error) {
		if cur == nil {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotPublished, kind)
		}
		return &publication{track: track, paused: cur.paused}, nil, nil
	})
}

// source is what the senders of a kind should carry for this publication; nil sends nothing.
func (p *publication) source() webrtc.TrackLocal {
	if p == nil || p.paused {
		return nil
	}
	return p.track.(LocalSource).Local()
}

// update installs the publication change picks for kind, points every link at it and sends the
// announcement. Publications are never modified in place. If the links or the announcement fail, the
// previous publication is put back on both the links and the engine, unless a later command has
// already replaced it.
func (e *Engine) update(kind domain.Kind, change func(cur *publication) (*publication, *wire.Message, error)) error {
	e.mu.Lock()
	prev := e.pubs[kind]
	next, msg, err := change(prev)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if e.client == nil {
		e.mu.Unlock()
		return ErrNotConnected
	}
	setPublication(e.pubs, kind, next)
	links := e.linksLocked()
	client := e.client
	e.mu.Unlock()

	err = setAll(links, kind, next.source())
	if err == nil && msg != nil {
		err = client.Send(*msg)
	}
	if err == nil {
		return nil
	}

	e.mu.Lock()
	if e.pubs[kind] != next {
		e.mu.Unlock()
		return err
	}
	setPublication(e.pubs, kind, prev)
	links = e.linksLocked()
	e.mu.Unlock()
	if rerr := setAll(links, kind, prev.source()); rerr != nil {
		log.Warn().Err(rerr).Str("module", "mesh").Str("kind", string(kind)).Msg("restore senders")
	}
	log.Warn().Err(err).Str("module", "mesh").Str("kind", string(kind)).Msg("media command rolled back")
	return err
}

func setPublication(pubs map[domain.Kind]*publication, kind domain.Kind, p *publication) {
	if p == nil {
		delete(pubs, kind)
		return
	}
	pubs[kind] = p
}

// SendChat posts a text message to the room.
func (e *Engine) SendChat(ctx context.Context, text string) error {
	e.mu.Lock()
	client := e.client
	e.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}
	return client.SendChat(ctx, text)
}

// Peers lists the participants a peer connection is currently open to.
func (e *Engine) Peers() []domain.ParticipantID {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.ParticipantID, 0, len(e.peers))
	for id := range e.peers {
		out = append(out, id)
	}
	return out
}

// Disconnect closes every peer connection and the signaling socket. The engine cannot be reused.
func (e *Engine) Disconnect() error {
	e.cancel()
	e.mu.Lock()
	client := e.client
	links := e.linksLocked()
	e.peers = make(map[domain.ParticipantID]*peerLink)
	e.pubs = make(map[domain.Kind]*publication)
	e.mu.Unlock()

	for _, l := range links {
		l.conn.Close()
	}
	if client == nil {
		return nil
	}
	return client.Close()
}

func (e *Engine) linksLocked() []*peerLink {
	out := make([]*peerLink, 0, len(e.peers))
	for _, l := range e.peers {
		out = append(out, l)
	}
	return out
}

func setAll(links []*peerLink, kind domain.Kind, src webrtc.TrackLocal) error {
	var errs []error
	for _, l := range links {
		if err := l.conn.SetTrack(kind, src); err != nil && !errors.Is(err, rtc.ErrClosed) {
			errs = append(errs, fmt.Errorf("peer %s: %w", l.conn.Peer(), err))
		}
	}
	return errors.Join(errs...)
}
