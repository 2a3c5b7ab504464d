package roster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/engine"
	"github.com/dkeye/Huddle/internal/engine/enginetest"
)

func TestPeerJoinedIsIdempotent(t *testing.T) {
	s := New()
	s.ApplyPeerJoined("u2", "Bob")
	once := s.Snapshot()

	s.ApplyPeerJoined("u2", "Bob")
	twice := s.Snapshot()

	assert.Equal(t, once, twice)
	require.Len(t, twice.Remote, 1)
	bob := twice.Remote["u2"]
	assert.Equal(t, "Bob", bob.DisplayName)
	assert.False(t, bob.MicrophoneEnabled)
	assert.False(t, bob.CameraEnabled)
	assert.Nil(t, bob.AudioTrack)
	assert.Nil(t, bob.VideoTrack)
}

func TestDuplicateJoinKeepsTracks(t *testing.T) {
	s := New()
	video := enginetest.NewTrack("v1", domain.KindVideo)
	s.ApplyPeerJoined("u2", "Bob")
	s.ApplyTrackAvailable("u2", domain.KindVideo, video)

	s.ApplyPeerJoined("u2", "Bob (late)")

	bob := s.Snapshot().Remote["u2"]
	assert.Equal(t, "Bob", bob.DisplayName)
	assert.Equal(t, video, bob.VideoTrack)
	assert.True(t, bob.CameraEnabled)
}

func TestPeerLeftUnknownIsNoop(t *testing.T) {
	s := New()
	s.ApplyPeerJoined("u2", "Bob")
	before := s.Snapshot()

	s.ApplyPeerLeft("ghost")

	assert.Equal(t, before, s.Snapshot())
}

func TestPeerLeftStopsTracks(t *testing.T) {
	s := New()
	audio := enginetest.NewTrack("a1", domain.KindAudio)
	video := enginetest.NewTrack("v1", domain.KindVideo)
	s.ApplyPeerJoined("u2", "Bob")
	s.ApplyTrackAvailable("u2", domain.KindAudio, audio)
	s.ApplyTrackAvailable("u2", domain.KindVideo, video)

	s.ApplyPeerLeft("u2")

	assert.Empty(t, s.Snapshot().Remote)
	assert.True(t, audio.Stopped())
	assert.True(t, video.Stopped())
	_, _, ok := s.TrackOwner("a1")
	assert.False(t, ok)
}

func TestTrackBeforeJoinIsReplayed(t *testing.T) {
	s := New()
	video := enginetest.NewTrack("v1", domain.KindVideo)

	s.ApplyTrackAvailable("u2", domain.KindVideo, video)
	assert.Empty(t, s.Snapshot().Remote)
	assert.Equal(t, 1, s.PendingCount())

	s.ApplyPeerJoined("u2", "Bob")

	bob := s.Snapshot().Remote["u2"]
	assert.Equal(t, video, bob.VideoTrack)
	assert.True(t, bob.CameraEnabled)
	assert.Zero(t, s.PendingCount())
	assert.False(t, video.Stopped())
}

func TestOrderIndependence(t *testing.T) {
	video := enginetest.NewTrack("v1", domain.KindVideo)
	joined := engine.PeerJoined{ID: "u2", DisplayName: "Bob"}
	track := engine.TrackAvailable{PeerID: "u2", Kind: domain.KindVideo, Track: video}

	a := New()
	a.ApplyBatch(joined, track)
	b := New()
	b.ApplyBatch(track, joined)

	assert.Equal(t, a.Snapshot(), b.Snapshot())
}

func TestBufferedMuteIsReplayed(t *testing.T) {
	s := New()
	audio := enginetest.NewTrack("a1", domain.KindAudio)
	s.Apply(engine.TrackAvailable{PeerID: "u2", Kind: domain.KindAudio, Track: audio})
	s.Apply(engine.MuteChanged{PeerID: "u2", Kind: domain.KindAudio, Enabled: false})
	s.Apply(engine.PeerJoined{ID: "u2", DisplayName: "Bob"})

	bob := s.Snapshot().Remote["u2"]
	assert.Equal(t, audio, bob.AudioTrack)
	assert.False(t, bob.MicrophoneEnabled)
}

func TestNewerBufferedTrackReplacesOlder(t *testing.T) {
	s := New()
	first := enginetest.NewTrack("v1", domain.KindVideo)
	second := enginetest.NewTrack("v2", domain.KindVideo)
	s.ApplyTrackAvailable("u2", domain.KindVideo, first)
	s.ApplyTrackAvailable("u2", domain.KindVideo, second)
	s.ApplyPeerJoined("u2", "Bob")

	assert.True(t, first.Stopped())
	assert.Equal(t, second, s.Snapshot().Remote["u2"].VideoTrack)
}

func TestStaleTracksAfterLeaveDoNotResurrect(t *testing.T) {
	s := New()
	s.ApplyPeerJoined("u2", "Bob")
	s.ApplyPeerLeft("u2")

	stale := []*enginetest.Track{
		enginetest.NewTrack("v1", domain.KindVideo),
		enginetest.NewTrack("a1", domain.KindAudio),
		enginetest.NewTrack("v2", domain.KindVideo),
	}
	for _, tr := range stale {
		s.ApplyTrackAvailable("u2", tr.Kind(), tr)
	}

	assert.Empty(t, s.Snapshot().Remote)
	assert.Zero(t, s.PendingCount())
	for _, tr := range stale {
		assert.True(t, tr.Stopped(), tr.ID())
	}

	s.ApplyPeerJoined("u2", "Bob again")
	bob := s.Snapshot().Remote["u2"]
	assert.Equal(t, "Bob again", bob.DisplayName)
	assert.Nil(t, bob.VideoTrack)
	assert.Nil(t, bob.AudioTrack)
}

func TestPeerLeftWinsWithinOnePass(t *testing.T) {
	video := enginetest.NewTrack("v1", domain.KindVideo)
	s := New()
	s.ApplyPeerJoined("u2", "Bob")

	s.ApplyBatch(
		engine.PeerLeft{ID: "u2"},
		engine.TrackAvailable{PeerID: "u2", Kind: domain.KindVideo, Track: video},
	)

	assert.Empty(t, s.Snapshot().Remote)
	assert.True(t, video.Stopped())
}

func TestJoinLeaveInterleavingsKeepOneEntry(t *testing.T) {
	ops := []engine.Event{
		engine.PeerJoined{ID: "u2", DisplayName: "Bob"},
		engine.PeerJoined{ID: "u2", DisplayName: "Bob"},
		engine.PeerLeft{ID: "u2"},
		engine.PeerJoined{ID: "u2", DisplayName: "Bob"},
		engine.PeerLeft{ID: "u2"},
		engine.PeerLeft{ID: "u2"},
		engine.PeerJoined{ID: "u2", DisplayName: "Bob"},
	}
	// every prefix of every rotation of the sequence
	for shift := range ops {
		s := New()
		present := false
		for i := range ops {
			ev := ops[(i+shift)%len(ops)]
			s.Apply(ev)
			switch ev.(type) {
			case engine.PeerJoined:
				present = true
			case engine.PeerLeft:
				present = false
			}
			snap := s.Snapshot()
			assert.LessOrEqual(t, len(snap.Remote), 1)
			_, ok := snap.Remote["u2"]
			assert.Equal(t, present, ok)
		}
	}
}

func TestTrackRemovedKeepsParticipant(t *testing.T) {
	s := New()
	video := enginetest.NewTrack("v1", domain.KindVideo)
	s.ApplyPeerJoined("u2", "Bob")
	s.ApplyTrackAvailable("u2", domain.KindVideo, video)

	s.ApplyTrackRemoved("u2", domain.KindVideo)

	bob, ok := s.Snapshot().Remote["u2"]
	require.True(t, ok)
	assert.Nil(t, bob.VideoTrack)
	assert.False(t, bob.CameraEnabled)
	_, _, indexed := s.TrackOwner("v1")
	assert.False(t, indexed)
}

func TestTrackRemovedNeverStopsTrack(t *testing.T) {
	s := New()
	buffered := enginetest.NewTrack("v1", domain.KindVideo)
	s.ApplyTrackAvailable("u2", domain.KindVideo, buffered)
	s.ApplyTrackRemoved("u2", domain.KindVideo)
	assert.False(t, buffered.Stopped())

	s.ApplyPeerJoined("u2", "Bob")
	assert.Nil(t, s.Snapshot().Remote["u2"].VideoTrack, "removed before join is not replayed")

	s.ApplyTrackAvailable("u2", domain.KindVideo, buffered)
	s.ApplyTrackRemoved("u2", domain.KindVideo)
	assert.False(t, buffered.Stopped())

	s.ApplyTrackAvailable("u2", domain.KindVideo, buffered)
	assert.Equal(t, "v1", s.Snapshot().Remote["u2"].VideoTrack.ID(), "the engine may offer the same track again")

	s.ApplyPeerLeft("u2")
	assert.True(t, buffered.Stopped())
}

func TestMuteIndependentOfTrack(t *testing.T) {
	s := New()
	audio := enginetest.NewTrack("a1", domain.KindAudio)
	s.ApplyPeerJoined("u2", "Bob")
	s.ApplyTrackAvailable("u2", domain.KindAudio, audio)

	s.ApplyMuteState("u2", domain.KindAudio, false)
	bob := s.Snapshot().Remote["u2"]
	assert.Equal(t, audio, bob.AudioTrack, "muted track is retained")
	assert.False(t, bob.MicrophoneEnabled)

	s.ApplyMuteState("u2", domain.KindVideo, true)
	bob = s.Snapshot().Remote["u2"]
	assert.Nil(t, bob.VideoTrack)
	assert.True(t, bob.CameraEnabled, "enabled without a published track")
}

func TestMuteForUnknownIsDropped(t *testing.T) {
	s := New()
	s.ApplyMuteState("ghost", domain.KindAudio, true)
	s.ApplyTrackRemoved("ghost", domain.KindAudio)
	s.ApplyTrackMute("nope", true)

	snap := s.Snapshot()
	assert.Empty(t, snap.Remote)
	assert.Zero(t, s.PendingCount())
}

func TestTrackMuteUsesIndex(t *testing.T) {
	s := New()
	video := enginetest.NewTrack("producer-7", domain.KindVideo)
	s.ApplyPeerJoined("u2", "Bob")
	s.ApplyTrackAvailable("u2", domain.KindVideo, video)

	id, kind, ok := s.TrackOwner("producer-7")
	require.True(t, ok)
	assert.Equal(t, domain.ParticipantID("u2"), id)
	assert.Equal(t, domain.KindVideo, kind)

	s.ApplyTrackMute("producer-7", false)
	assert.False(t, s.Snapshot().Remote["u2"].CameraEnabled)
	s.ApplyTrackMute("producer-7", true)
	assert.True(t, s.Snapshot().Remote["u2"].CameraEnabled)
}

func TestTrackSwapIsAtomic(t *testing.T) {
	s := New()
	camA := enginetest.NewTrack("va", domain.KindVideo)
	camB := enginetest.NewTrack("vb", domain.KindVideo)
	s.ApplyPeerJoined("u2", "Bob")
	s.ApplyTrackAvailable("u2", domain.KindVideo, camA)

	var seen []domain.Track
	s.OnChange(func(snap domain.RoomSnapshot) {
		seen = append(seen, snap.Remote["u2"].VideoTrack)
	})
	s.ApplyTrackAvailable("u2", domain.KindVideo, camB)

	require.Len(t, seen, 1)
	assert.Equal(t, camB, seen[0])
	assert.True(t, camA.Stopped())
	_, _, ok := s.TrackOwner("va")
	assert.False(t, ok)
}

func TestActiveSpeakerClearedOnlyByLeave(t *testing.T) {
	s := New()
	s.ApplyPeerJoined("u2", "Bob")
	s.ApplyPeerJoined("u3", "Carol")
	s.SetActiveSpeaker("u2")

	s.ApplyPeerLeft("u3")
	assert.Equal(t, domain.ParticipantID("u2"), s.ActiveSpeaker())

	s.ApplyPeerLeft("u2")
	assert.Empty(t, s.ActiveSpeaker())
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New()
	s.SetLocal("me", "Alice", true, false)
	s.ApplyPeerJoined("u2", "Bob")

	snap := s.Snapshot()
	snap.Local.MicrophoneEnabled = false
	snap.Remote["u2"] = domain.Participant{ID: "u2", DisplayName: "Mallory"}
	delete(snap.Remote, "u2")
	snap.Remote["u9"] = domain.Participant{ID: "u9"}

	fresh := s.Snapshot()
	assert.True(t, fresh.Local.MicrophoneEnabled)
	assert.Equal(t, "Bob", fresh.Remote["u2"].DisplayName)
	assert.NotContains(t, fresh.Remote, domain.ParticipantID("u9"))
}

func TestLocalParticipant(t *testing.T) {
	s := New()
	s.ApplyPeerJoined("me", "echo of myself")
	s.SetLocal("me", "Alice", false, true)

	snap := s.Snapshot()
	require.NotNil(t, snap.Local)
	assert.True(t, snap.Local.IsLocal)
	assert.Empty(t, snap.Remote, "self echo is folded into the local participant")

	mic := enginetest.NewTrack("m1", domain.KindAudio)
	assert.Nil(t, s.SetLocalTrack(domain.KindAudio, mic))
	next := enginetest.NewTrack("m2", domain.KindAudio)
	assert.Equal(t, mic, s.SetLocalTrack(domain.KindAudio, next))
	assert.False(t, mic.Stopped(), "local tracks are stopped by their owner")

	s.ApplyMuteState("me", domain.KindAudio, true)
	local, ok := s.Local()
	require.True(t, ok)
	assert.False(t, local.MicrophoneEnabled, "network cannot flip local flags")

	s.SetLocalEnabled(domain.KindAudio, true)
	local, _ = s.Local()
	assert.True(t, local.MicrophoneEnabled)
}

func TestResetStopsRemoteTracks(t *testing.T) {
	s := New()
	remote := enginetest.NewTrack("v1", domain.KindVideo)
	buffered := enginetest.NewTrack("v2", domain.KindVideo)
	local := enginetest.NewTrack("m1", domain.KindAudio)
	s.SetLocal("me", "Alice", true, true)
	s.SetLocalTrack(domain.KindAudio, local)
	s.ApplyPeerJoined("u2", "Bob")
	s.ApplyTrackAvailable("u2", domain.KindVideo, remote)
	s.ApplyTrackAvailable("u3", domain.KindVideo, buffered)
	s.SetViewMode(domain.ViewSpeaker)

	s.Reset()

	snap := s.Snapshot()
	assert.Nil(t, snap.Local)
	assert.Empty(t, snap.Remote)
	assert.Equal(t, domain.ViewSpeaker, snap.ViewMode)
	assert.True(t, remote.Stopped())
	assert.True(t, buffered.Stopped())
	assert.False(t, local.Stopped())
}

func TestOnChangeSkipsNoops(t *testing.T) {
	s := New()
	calls := 0
	s.OnChange(func(domain.RoomSnapshot) { calls++ })

	s.ApplyPeerJoined("u2", "Bob")
	s.ApplyPeerJoined("u2", "Bob")
	s.ApplyPeerLeft("ghost")
	s.ApplyTrackAvailable("u3", domain.KindAudio, enginetest.NewTrack("a3", domain.KindAudio))

	assert.Equal(t, 1, calls)
}
