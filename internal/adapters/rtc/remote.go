package rtc

import (
	"context"
	"errors"
	"io"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
)

type SinkState int32

const (
	SinkStateOk SinkState = iota
	SinkStateMuted
	SinkStateDelete
)

// PacketWriter receives RTP from a remote track; *webrtc.TrackLocalStaticRTP satisfies it.
type PacketWriter interface {
	WriteRTP(*rtp.Packet) error
}

// Sink is one consumer attached to a remote track: a renderer, a recorder or a forwarder.
type Sink struct {
	w     PacketWriter
	state atomic.Int32
}

func (s *Sink) State() SinkState { return SinkState(s.state.Load()) }
func (s *Sink) MarkOk()          { s.state.Store(int32(SinkStateOk)) }
func (s *Sink) MarkMuted()       { s.state.Store(int32(SinkStateMuted)) }
func (s *Sink) MarkDelete()      { s.state.Store(int32(SinkStateDelete)) }

// RemoteTrack is media received from a peer. Its read loop fans packets out to the attached sinks
// until the source ends or Stop is called.
type RemoteTrack struct {
	id   string
	kind domain.Kind
	read func() (*rtp.Packet, error)

	mu    sync.RWMutex
	sinks map[string]*Sink

	packets  atomic.Uint64
	lastSeen atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func NewRemoteTrack(id string, kind domain.Kind, read func() (*rtp.Packet, error)) *RemoteTrack {
	return &RemoteTrack{
		id:    id,
		kind:  kind,
		read:  read,
		sinks: make(map[string]*Sink),
		done:  make(chan struct{}),
	}
}

func (t *RemoteTrack) ID() string        { return t.id }
func (t *RemoteTrack) Kind() domain.Kind { return t.kind }
func (t *RemoteTrack) DeviceID() string  { return "" }

func (t *RemoteTrack) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	go t.loop(ctx)
}

// Stop detaches every sink. The read loop exits with the next packet or when the source closes.
func (t *RemoteTrack) Stop() {
	t.once.Do(func() {
		if t.cancel != nil {
			t.cancel()
		}
		t.markAllDelete()
	})
}

// Done is closed when the read loop has exited.
func (t *RemoteTrack) Done() <-chan struct{} { return t.done }

func (t *RemoteTrack) Packets() uint64 { return t.packets.Load() }

// LastPacket is the arrival time of the most recent packet, zero before the first one.
func (t *RemoteTrack) LastPacket() time.Time {
	ns := t.lastSeen.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (t *RemoteTrack) AddSink(id string, w PacketWriter) *Sink {
	s := &Sink{w: w}
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.sinks[id]; ok {
		old.MarkDelete()
	}
	t.sinks[id] = s
	return s
}

func (t *RemoteTrack) loop(ctx context.Context) {
	defer close(t.done)
	logger := log.With().Str("module", "webrtc").Str("track_id", t.id).Str("kind", string(t.kind)).Logger()
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("remote track stopped")
			t.markAllDelete()
			return
		default:
		}
		pkt, err := t.read()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn().Err(err).Msg("read RTP error, stopping")
			}
			t.markAllDelete()
			return
		}
		t.packets.Add(1)
		t.lastSeen.Store(time.Now().UnixNano())
		t.forward(pkt)
	}
}

func (t *RemoteTrack) forward(pkt *rtp.Packet) {
	t.mu.RLock()
	snapshot := maps.Clone(t.sinks)
	t.mu.RUnlock()

	var dirty []string
	for id, s := range snapshot {
		switch s.State() {
		case SinkStateDelete:
			dirty = append(dirty, id)
		case SinkStateMuted:
		case SinkStateOk:
			if err := s.w.WriteRTP(pkt); err != nil {
				log.Warn().Err(err).Str("module", "webrtc").Str("sink", id).Msg("sink write error, detaching")
				s.MarkDelete()
				dirty = append(dirty, id)
			}
		}
	}
	if len(dirty) > 0 {
		t.cleanup(dirty)
	}
}

func (t *RemoteTrack) cleanup(dirty []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range dirty {
		if s, ok := t.sinks[id]; ok && s.State() == SinkStateDelete {
			delete(t.sinks, id)
		}
	}
}

func (t *RemoteTrack) markAllDelete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.sinks {
		s.MarkDelete()
	}
}

// SinkCount is the number of attached sinks not yet cleaned up.
func (t *RemoteTrack) SinkCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sinks)
}
