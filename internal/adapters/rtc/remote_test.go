package rtc

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Huddle/internal/domain"
)

type feed chan *rtp.Packet

func (f feed) read() (*rtp.Packet, error) {
	pkt, ok := <-f
	if !ok {
		return nil, io.EOF
	}
	return pkt, nil
}

type collector struct {
	mu   sync.Mutex
	seqs []uint16
	err  error
}

func (c *collector) WriteRTP(p *rtp.Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.seqs = append(c.seqs, p.SequenceNumber)
	return nil
}

func (c *collector) got() []uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint16(nil), c.seqs...)
}

func packet(seq uint16) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{Version: 2, SequenceNumber: seq}}
}

func TestRemoteTrackFansOut(t *testing.T) {
	f := make(feed)
	tr := NewRemoteTrack("t1", domain.KindAudio, f.read)
	assert.Equal(t, "t1", tr.ID())
	assert.Equal(t, domain.KindAudio, tr.Kind())
	assert.Empty(t, tr.DeviceID())
	assert.True(t, tr.LastPacket().IsZero())

	a, b := &collector{}, &collector{}
	tr.AddSink("a", a)
	sb := tr.AddSink("b", b)
	tr.Start(context.Background())

	f <- packet(1)
	sb.MarkMuted()
	f <- packet(2)
	sb.MarkOk()
	f <- packet(3)
	close(f)

	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("read loop did not exit")
	}
	assert.Equal(t, []uint16{1, 2, 3}, a.got())
	assert.Equal(t, []uint16{1, 3}, b.got())
	assert.EqualValues(t, 3, tr.Packets())
	assert.False(t, tr.LastPacket().IsZero())
	assert.Equal(t, SinkStateDelete, sb.State())
}

func TestRemoteTrackDetachesFailingSink(t *testing.T) {
	f := make(feed)
	tr := NewRemoteTrack("t1", domain.KindVideo, f.read)
	bad := &collector{err: errors.New("gone")}
	good := &collector{}
	sbad := tr.AddSink("bad", bad)
	tr.AddSink("good", good)
	tr.Start(context.Background())

	f <- packet(1)
	f <- packet(2)
	assert.Eventually(t, func() bool { return tr.SinkCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, SinkStateDelete, sbad.State())

	tr.Stop()
	tr.Stop()
	close(f)
	<-tr.Done()
	assert.Equal(t, []uint16{1, 2}, good.got())
}

func TestAddSinkReplacesSameID(t *testing.T) {
	tr := NewRemoteTrack("t1", domain.KindAudio, feed(nil).read)
	first := tr.AddSink("r", &collector{})
	second := tr.AddSink("r", &collector{})
	assert.Equal(t, SinkStateDelete, first.State())
	assert.Equal(t, SinkStateOk, second.State())
	require.Equal(t, 1, tr.SinkCount())
}
