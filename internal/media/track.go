package media

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"

	"github.com/dkeye/Huddle/internal/domain"
)

const frameDuration = 20 * time.Millisecond

// opusSilence is a single Opus frame of digital silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// LocalTrack is a captured source ready to be attached to a peer connection.
type LocalTrack struct {
	dev     Device
	track   *webrtc.TrackLocalStaticSample
	release func(*LocalTrack)

	level   atomic.Uint64
	stopped chan struct{}
	once    sync.Once
}

func newLocalTrack(dev Device, streamID string, release func(*LocalTrack)) (*LocalTrack, error) {
	codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	if dev.Kind == domain.KindAudio {
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	}
	track, err := webrtc.NewTrackLocalStaticSample(codec, string(dev.Kind)+"-"+uuid.NewString(), streamID)
	if err != nil {
		return nil, err
	}
	t := &LocalTrack{dev: dev, track: track, release: release, stopped: make(chan struct{})}
	if dev.Kind == domain.KindAudio {
		go t.comfortNoise()
	}
	return t, nil
}

func (t *LocalTrack) ID() string        { return t.track.ID() }
func (t *LocalTrack) Kind() domain.Kind { return t.dev.Kind }
func (t *LocalTrack) DeviceID() string  { return t.dev.ID }
func (t *LocalTrack) Label() string     { return t.dev.Label }

// Local is the pion track to hand to an RTPSender.
func (t *LocalTrack) Local() webrtc.TrackLocal { return t.track }

func (t *LocalTrack) Stop() {
	t.once.Do(func() {
		close(t.stopped)
		if t.release != nil {
			t.release(t)
		}
	})
}

func (t *LocalTrack) Stopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}

// Write pushes one encoded frame from the capture source.
func (t *LocalTrack) Write(frame []byte, d time.Duration) error {
	if t.Stopped() {
		return nil
	}
	return t.track.WriteSample(pionmedia.Sample{Data: frame, Duration: d})
}

// SetLevel records the capture source's current loudness in [0, 1].
func (t *LocalTrack) SetLevel(level float64) {
	t.level.Store(math.Float64bits(min(max(level, 0), 1)))
}

func (t *LocalTrack) Level() float64 {
	return math.Float64frombits(t.level.Load())
}

// comfortNoise keeps RTP flowing with silent frames until a capture source writes real audio.
func (t *LocalTrack) comfortNoise() {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopped:
			return
		case <-ticker.C:
			_ = t.Write(opusSilence, frameDuration)
		}
	}
}
