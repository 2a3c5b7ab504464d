package orch

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/wire"
)

type conn struct {
	mu     sync.Mutex
	msgs   []wire.Message
	full   bool
	closed bool
}

func (c *conn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errors.New("backpressure")
	}
	var m wire.Message
	if err := json.Unmarshal(f, &m); err != nil {
		return err
	}
	c.msgs = append(c.msgs, m)
	return nil
}

func (c *conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *conn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.msgs))
	for i, m := range c.msgs {
		out[i] = m.Type
	}
	return out
}

func (c *conn) last() wire.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msgs[len(c.msgs)-1]
}

func newOrch() *Orchestrator {
	return &Orchestrator{
		Registry:         app.NewRegistry(),
		Rooms:            app.NewRoomManager(),
		Policy:           app.NewStrikePolicy(2),
		SpeakerThreshold: 0.05,
	}
}

func join(t *testing.T, o *Orchestrator, id domain.ParticipantID, name string) (core.MemberSession, *conn, []wire.Peer) {
	t.Helper()
	c := &conn{}
	sess := core.NewMemberSession(domain.NewMember(&domain.User{ID: id, Username: name}), c)
	peers, err := o.Join(id, "room1", sess, nil)
	require.NoError(t, err)
	return sess, c, peers
}

func TestJoinAnnouncesAndReturnsExistingPeers(t *testing.T) {
	o := newOrch()
	_, alice, first := join(t, o, "u1", "Alice")
	assert.Empty(t, first)

	_, bob, peers := join(t, o, "u2", "Bob")
	require.Len(t, peers, 1)
	assert.Equal(t, wire.Peer{ID: "u1", Name: "Alice"}, peers[0])

	assert.Equal(t, []string{wire.TypeNewPeer}, alice.types())
	assert.Equal(t, domain.ParticipantID("u2"), alice.last().From)
	assert.Equal(t, "Bob", alice.last().Name)
	assert.Empty(t, bob.types())
}

func TestDuplicateJoinRejected(t *testing.T) {
	o := newOrch()
	join(t, o, "u1", "Alice")
	sess := core.NewMemberSession(domain.NewMember(&domain.User{ID: "u1", Username: "Alice"}), &conn{})
	_, err := o.Join("u1", "room1", sess, nil)
	assert.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestFullRoomRefusesJoin(t *testing.T) {
	o := newOrch()
	o.MaxRoomSize = 2
	join(t, o, "u1", "Alice")
	_, bob, _ := join(t, o, "u2", "Bob")

	sess := core.NewMemberSession(domain.NewMember(&domain.User{ID: "u3", Username: "Carol"}), &conn{})
	_, err := o.Join("u3", "room1", sess, nil)
	assert.ErrorIs(t, err, ErrRoomFull)
	assert.Empty(t, bob.types())
	_, bound := o.Registry.GetSession("u3")
	assert.False(t, bound)

	room, ok := o.Rooms.Get("room1")
	require.True(t, ok)
	assert.Equal(t, 2, room.MemberCount())
}

func TestLeaveBroadcastsAndClosesEmptyRoom(t *testing.T) {
	o := newOrch()
	aliceSess, _, _ := join(t, o, "u1", "Alice")
	bobSess, bob, _ := join(t, o, "u2", "Bob")

	o.Leave("u1", aliceSess)
	assert.Equal(t, wire.TypePeerLeft, bob.last().Type)
	assert.Equal(t, domain.ParticipantID("u1"), bob.last().From)

	o.Leave("u1", aliceSess)
	assert.Len(t, bob.types(), 1)

	o.Leave("u2", bobSess)
	_, ok := o.Rooms.Get("room1")
	assert.False(t, ok)
	assert.Zero(t, o.Registry.Count())
}

func TestRouteStaysInRoom(t *testing.T) {
	o := newOrch()
	join(t, o, "u1", "Alice")
	_, bob, _ := join(t, o, "u2", "Bob")

	require.NoError(t, o.Route("u1", "u2", Encode(wire.Message{Type: wire.TypeOffer, From: "u1", SDP: "v=0"})))
	assert.Equal(t, "v=0", bob.last().SDP)

	assert.ErrorIs(t, o.Route("u1", "u9", Encode(wire.Message{Type: wire.TypeOffer})), core.ErrNoSuchMember)
	assert.ErrorIs(t, o.Route("nobody", "u2", nil), ErrNotInRoom)
}

func TestSlowMemberIsKickedAfterStrikes(t *testing.T) {
	o := newOrch()
	join(t, o, "u1", "Alice")
	_, slow, _ := join(t, o, "u2", "Bob")
	slow.full = true

	o.OnFrame("u1", Encode(wire.Message{Type: wire.TypeChat, Text: "one"}))
	assert.False(t, slow.closed)
	o.OnFrame("u1", Encode(wire.Message{Type: wire.TypeChat, Text: "two"}))
	assert.True(t, slow.closed)
}

func TestPublishSpeakersOnlyOnChange(t *testing.T) {
	o := newOrch()
	_, alice, _ := join(t, o, "u1", "Alice")
	join(t, o, "u2", "Bob")

	o.PublishSpeakers()
	assert.Len(t, alice.types(), 1, "nothing ranked yet")

	o.OnAudioLevel("u2", 0.8)
	o.OnAudioLevel("u1", 3)
	o.PublishSpeakers()
	require.Equal(t, wire.TypeSpeakers, alice.last().Type)
	assert.Equal(t, []domain.ParticipantID{"u1", "u2"}, alice.last().Ranked)

	o.PublishSpeakers()
	assert.Len(t, alice.types(), 2)

	o.OnAudioLevel("u1", 0)
	o.PublishSpeakers()
	assert.Equal(t, []domain.ParticipantID{"u2"}, alice.last().Ranked)
}
