package speaker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/roster"
)

func ids(s ...string) []domain.ParticipantID {
	out := make([]domain.ParticipantID, 0, len(s))
	for _, v := range s {
		out = append(out, domain.ParticipantID(v))
	}
	return out
}

func newRoster() *roster.Store {
	s := roster.New()
	s.SetLocal("u1", "Alice", true, true)
	s.ApplyPeerJoined("u2", "Bob")
	s.ApplyPeerJoined("u3", "Carol")
	return s
}

func TestTopOfRankingWins(t *testing.T) {
	s := newRoster()
	tr := NewTracker(s, 1)

	tr.Observe(ids("u3", "u2"))
	assert.Equal(t, domain.ParticipantID("u3"), s.ActiveSpeaker())

	tr.Observe(ids("u1"))
	assert.Equal(t, domain.ParticipantID("u1"), s.ActiveSpeaker())
}

func TestEmptyReportKeepsSpeaker(t *testing.T) {
	s := newRoster()
	tr := NewTracker(s, 1)

	tr.Observe(ids("u2"))
	tr.Observe(nil)
	tr.Observe(ids())

	assert.Equal(t, domain.ParticipantID("u2"), s.ActiveSpeaker())
}

func TestUnknownIdsAreSkipped(t *testing.T) {
	s := newRoster()
	tr := NewTracker(s, 1)

	tr.Observe(ids("ghost", "u3"))
	assert.Equal(t, domain.ParticipantID("u3"), s.ActiveSpeaker())

	tr.Observe(ids("ghost"))
	assert.Equal(t, domain.ParticipantID("u3"), s.ActiveSpeaker())
}

func TestSmoothingRequiresConsecutiveReports(t *testing.T) {
	s := newRoster()
	tr := NewTracker(s, 3)

	tr.Observe(ids("u2"))
	tr.Observe(ids("u2"))
	assert.Empty(t, s.ActiveSpeaker())
	tr.Observe(ids("u2"))
	assert.Equal(t, domain.ParticipantID("u2"), s.ActiveSpeaker())

	tr.Observe(ids("u3"))
	tr.Observe(ids("u3"))
	tr.Observe(ids("u2"))
	assert.Equal(t, domain.ParticipantID("u2"), s.ActiveSpeaker())
}

func TestLeaveClearsSpeaker(t *testing.T) {
	s := newRoster()
	tr := NewTracker(s, 1)
	tr.Observe(ids("u2"))

	s.ApplyPeerLeft("u2")
	tr.Observe(nil)

	assert.Empty(t, s.ActiveSpeaker())
}
