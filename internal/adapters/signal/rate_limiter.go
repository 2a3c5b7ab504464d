package signal

import (
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

// ChatLimiter admits at most limit chat messages per participant in any window of length interval.
type ChatLimiter struct {
	mu     sync.Mutex
	sent   map[domain.ParticipantID][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewChatLimiter(limit int, window time.Duration) *ChatLimiter {
	return &ChatLimiter{
		sent:   make(map[domain.ParticipantID][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records a message from id when it fits the window. Otherwise it reports how long until the
// oldest counted message expires.
func (l *ChatLimiter) Allow(id domain.ParticipantID) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	kept := l.sent[id][:0]
	for _, at := range l.sent[id] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	if len(kept) >= l.limit {
		l.sent[id] = kept
		return false, kept[0].Sub(cutoff)
	}
	l.sent[id] = append(kept, now)
	return true, 0
}

func (l *ChatLimiter) Forget(id domain.ParticipantID) {
	l.mu.Lock()
	delete(l.sent, id)
	l.mu.Unlock()
}
