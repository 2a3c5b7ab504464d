// Package speaker turns ranked audio-level reports into a single stable active speaker.
package speaker

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
)

// Roster is the slice of the roster store the tracker needs.
type Roster interface {
	Known(id domain.ParticipantID) bool
	SetActiveSpeaker(id domain.ParticipantID)
}

// Tracker keeps the last reported loudest speaker. An empty report never clears it.
// Ids the roster does not know yet are skipped, so the loudest known participant wins rather than
// the literal top of the report.
//
// With required > 1 a new candidate must top that many consecutive non-empty reports before it
// replaces the current speaker. This smoothing is off (required == 1) unless configured.
type Tracker struct {
	roster   Roster
	required int

	mu        sync.Mutex
	candidate domain.ParticipantID
	streak    int
}

func NewTracker(roster Roster, required int) *Tracker {
	if required < 1 {
		required = 1
	}
	return &Tracker{roster: roster, required: required}
}

// Observe consumes one ranked report, loudest first.
func (t *Tracker) Observe(ranked []domain.ParticipantID) {
	top, ok := t.firstKnown(ranked)
	if !ok {
		return
	}

	t.mu.Lock()
	if top == t.candidate {
		t.streak++
	} else {
		t.candidate = top
		t.streak = 1
	}
	promote := t.streak >= t.required
	t.mu.Unlock()

	if promote {
		log.Debug().Str("module", "speaker").Str("peer", string(top)).Msg("active speaker")
		t.roster.SetActiveSpeaker(top)
	}
}

// firstKnown skips ids the roster cannot render (not joined yet or already gone).
func (t *Tracker) firstKnown(ranked []domain.ParticipantID) (domain.ParticipantID, bool) {
	for _, id := range ranked {
		if id != "" && t.roster.Known(id) {
			return id, true
		}
	}
	return "", false
}
