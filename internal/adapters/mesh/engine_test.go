package mesh

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relayhttp "github.com/dkeye/Huddle/internal/adapters/http"
	"github.com/dkeye/Huddle/internal/adapters/rtc"
	"github.com/dkeye/Huddle/internal/adapters/signalclient"
	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/auth"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/engine"
	"github.com/dkeye/Huddle/internal/engine/enginetest"
	"github.com/dkeye/Huddle/internal/media"
	"github.com/dkeye/Huddle/internal/metrics"
	"github.com/dkeye/Huddle/internal/session"
)

func newRelay(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Mode:         "test",
		Secret:       "test-secret",
		ReadLimit:    1 << 20,
		PingPeriod:   time.Minute,
		ChatLimit:    10,
		ChatInterval: time.Minute,
	}
	o := &orch.Orchestrator{Registry: app.NewRegistry(), Rooms: app.NewRoomManager()}
	signer, err := auth.NewSigner(cfg.Secret, time.Minute)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(relayhttp.SetupRouter(ctx, cfg, o, signer, metrics.NewRelay()))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv
}

func token(t *testing.T, srv *httptest.Server, room, name string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"roomName": room, "participantName": name})
	resp, err := http.Post(srv.URL+"/api/token", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Token
}

func address(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal"
}

type participant struct {
	ctl *session.Controller
	eng *Engine
}

func join(t *testing.T, srv *httptest.Server, name string) participant {
	t.Helper()
	catalog, err := media.NewCatalog(name, []config.DeviceConfig{
		{ID: "mic", Kind: "audio"},
		{ID: "cam", Kind: "video"},
	})
	require.NoError(t, err)
	eng := New(Options{ICE: webrtc.Configuration{}, LevelInterval: 20 * time.Millisecond})
	ctl := session.NewController(session.Options{Engine: eng, Devices: catalog})
	err = ctl.Join(context.Background(), session.JoinRequest{
		Address:     address(srv),
		Credential:  token(t, srv, "room1", name),
		DisplayName: name,
	})
	require.NoError(t, err)
	t.Cleanup(ctl.Leave)
	return participant{ctl: ctl, eng: eng}
}

func remoteNamed(snap domain.RoomSnapshot, name string) (domain.Participant, bool) {
	for _, p := range snap.Remote {
		if p.DisplayName == name {
			return p, true
		}
	}
	return domain.Participant{}, false
}

func TestParticipantsMeetThroughRelay(t *testing.T) {
	srv := newRelay(t)
	alice := join(t, srv, "Alice")
	bob := join(t, srv, "Bob")

	_, ok := remoteNamed(bob.ctl.Snapshot(), "Alice")
	assert.True(t, ok, "existing members come with the welcome")
	assert.Len(t, bob.eng.Peers(), 1, "the newcomer offers to everyone present")

	assert.Eventually(t, func() bool {
		_, ok := remoteNamed(alice.ctl.Snapshot(), "Bob")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return len(alice.eng.Peers()) == 1 }, 2*time.Second, 10*time.Millisecond)

	bob.ctl.Leave()
	assert.Eventually(t, func() bool {
		_, ok := remoteNamed(alice.ctl.Snapshot(), "Bob")
		return !ok && len(alice.eng.Peers()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMuteReachesPeers(t *testing.T) {
	srv := newRelay(t)
	alice := join(t, srv, "Alice")
	bob := join(t, srv, "Bob")
	ctx := context.Background()

	micOf := func() bool {
		p, _ := remoteNamed(bob.ctl.Snapshot(), "Alice")
		return p.MicrophoneEnabled
	}

	require.NoError(t, alice.ctl.ToggleMicrophone(ctx))
	require.NoError(t, alice.ctl.ToggleMicrophone(ctx))
	assert.Eventually(t, micOf, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, alice.ctl.ToggleMicrophone(ctx))
	assert.Eventually(t, func() bool { return !micOf() }, 2*time.Second, 10*time.Millisecond)

	local := alice.ctl.Snapshot().Local
	require.NotNil(t, local)
	assert.False(t, local.MicrophoneEnabled)
	assert.NotNil(t, local.AudioTrack, "a paused track stays published")
}

func TestChatThroughEngine(t *testing.T) {
	srv := newRelay(t)
	got := make(chan string, 1)

	catalog, err := media.NewCatalog("a", nil)
	require.NoError(t, err)
	eng := New(Options{})
	ctl := session.NewController(session.Options{
		Engine:  eng,
		Devices: catalog,
		Callbacks: session.Callbacks{OnChat: func(c engine.ChatReceived) {
			got <- c.Text
		}},
	})
	require.NoError(t, ctl.Join(context.Background(), session.JoinRequest{
		Address:              address(srv),
		Credential:           token(t, srv, "room1", "Alice"),
		DisplayName:          "Alice",
		ContinueWithoutMedia: true,
	}))
	t.Cleanup(ctl.Leave)

	bob := join(t, srv, "Bob")
	require.NoError(t, bob.eng.SendChat(context.Background(), "hello"))
	select {
	case text := <-got:
		assert.Equal(t, "hello", text)
	case <-time.After(2 * time.Second):
		t.Fatal("chat not received")
	}
}

func TestCommandsNeedAPublication(t *testing.T) {
	e := New(Options{})
	ctx := context.Background()

	assert.ErrorIs(t, e.Publish(ctx, domain.KindAudio, enginetest.NewTrack("t", domain.KindAudio)), ErrUnsupportedTrack)
	assert.ErrorIs(t, e.Pause(ctx, domain.KindAudio), ErrNotPublished)
	assert.ErrorIs(t, e.Unpublish(ctx, domain.KindVideo), ErrNotPublished)
	assert.ErrorIs(t, e.SendChat(ctx, "x"), ErrNotConnected)
	assert.NoError(t, e.Disconnect())
	assert.NoError(t, e.Disconnect())

	_, err := e.Connect(ctx, "ws://127.0.0.1:1/api/ws/signal", "tok")
	assert.Error(t, err)
}

// linkTo registers a connection to id that has not been negotiated yet.
func linkTo(t *testing.T, e *Engine, id domain.ParticipantID) *peerLink {
	t.Helper()
	conn, err := rtc.NewConnection(webrtc.Configuration{}, id)
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	l := &peerLink{
		conn:   conn,
		tracks: make(map[domain.Kind]*rtc.RemoteTrack),
		muted:  make(map[domain.Kind]bool),
		hidden: make(map[domain.Kind]bool),
	}
	e.mu.Lock()
	e.peers[id] = l
	e.mu.Unlock()
	return l
}

func (e *Engine) pubOf(kind domain.Kind) (publication, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.pubs[kind]
	if !ok {
		return publication{}, false
	}
	return *p, true
}

func TestFailedCommandsRestorePublication(t *testing.T) {
	srv := newRelay(t)
	ctx := context.Background()

	client, err := signalclient.Dial(ctx, address(srv), token(t, srv, "room1", "Alice"), signalclient.Options{})
	require.NoError(t, err)
	e := New(Options{})
	t.Cleanup(func() { _ = e.Disconnect() })
	e.mu.Lock()
	e.client = client
	e.self = "alice"
	e.mu.Unlock()
	bob := linkTo(t, e, "bob")

	catalog, err := media.NewCatalog("alice", []config.DeviceConfig{
		{ID: "mic", Kind: "audio"},
		{ID: "cam", Kind: "video"},
	})
	require.NoError(t, err)
	mic, err := catalog.Acquire(ctx, domain.KindAudio, "mic")
	require.NoError(t, err)
	t.Cleanup(mic.Stop)
	require.NoError(t, e.Publish(ctx, domain.KindAudio, mic))
	assert.True(t, bob.conn.Sending(domain.KindAudio))

	// the relay can no longer be told about changes
	require.NoError(t, client.Close())

	assert.ErrorIs(t, e.Pause(ctx, domain.KindAudio), signalclient.ErrClosed)
	pub, ok := e.pubOf(domain.KindAudio)
	require.True(t, ok)
	assert.False(t, pub.paused)
	assert.True(t, bob.conn.Sending(domain.KindAudio), "an unannounced pause leaves the sender attached")

	cam, err := catalog.Acquire(ctx, domain.KindVideo, "cam")
	require.NoError(t, err)
	t.Cleanup(cam.Stop)
	assert.ErrorIs(t, e.Publish(ctx, domain.KindVideo, cam), signalclient.ErrClosed)
	_, ok = e.pubOf(domain.KindVideo)
	assert.False(t, ok)
	assert.False(t, bob.conn.Sending(domain.KindVideo))

	carol, err := e.ensureLink("carol")
	require.NoError(t, err)
	assert.True(t, carol.conn.Sending(domain.KindAudio))
	assert.False(t, carol.conn.Sending(domain.KindVideo), "a failed publish never reaches later peers")
}
