package rtc

import (
	"context"
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Huddle/internal/domain"
)

func newPair(t *testing.T) (*Connection, *Connection) {
	t.Helper()
	cfg := webrtc.Configuration{}
	a, err := NewConnection(cfg, "bob")
	require.NoError(t, err)
	b, err := NewConnection(cfg, "alice")
	require.NoError(t, err)
	a.Start(context.Background())
	b.Start(context.Background())
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestNegotiationCarriesBothKinds(t *testing.T) {
	a, b := newPair(t)
	assert.Equal(t, domain.ParticipantID("bob"), a.Peer())

	offer, err := a.CreateOffer()
	require.NoError(t, err)
	assert.True(t, strings.Contains(offer, "m=audio"))
	assert.True(t, strings.Contains(offer, "m=video"))

	answer, err := b.ApplyOfferAndCreateAnswer(offer)
	require.NoError(t, err)
	assert.True(t, strings.Contains(answer, "a=sendrecv"))
	require.NoError(t, a.ApplyAnswer(answer))
}

func TestCandidatesBufferedUntilRemoteDescription(t *testing.T) {
	a, b := newPair(t)
	cand := webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2130706431 127.0.0.1 50000 typ host"}
	require.NoError(t, b.AddICECandidate(cand))

	b.mu.Lock()
	assert.Len(t, b.pending, 1)
	b.mu.Unlock()

	offer, err := a.CreateOffer()
	require.NoError(t, err)
	_, err = b.ApplyOfferAndCreateAnswer(offer)
	require.NoError(t, err)

	b.mu.Lock()
	assert.Empty(t, b.pending)
	assert.True(t, b.remoteSet)
	b.mu.Unlock()
}

func TestSetTrackAndClose(t *testing.T) {
	a, _ := newPair(t)
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}, "mic", "s")
	require.NoError(t, err)
	assert.False(t, a.Sending(domain.KindAudio))
	require.NoError(t, a.SetTrack(domain.KindAudio, track))
	assert.True(t, a.Sending(domain.KindAudio))
	assert.False(t, a.Sending(domain.KindVideo))
	require.NoError(t, a.SetTrack(domain.KindAudio, nil))
	assert.False(t, a.Sending(domain.KindAudio))

	closed := 0
	a.OnClosed(func() { closed++ })
	a.Close()
	a.Close()
	assert.Equal(t, 1, closed)
	assert.ErrorIs(t, a.SetTrack(domain.KindAudio, track), ErrClosed)
	assert.ErrorIs(t, a.AddICECandidate(webrtc.ICECandidateInit{}), ErrClosed)
}
