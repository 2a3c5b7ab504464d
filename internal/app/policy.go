package app

import (
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a member whose send queue is full.
type Policy interface {
	OnBackPressure(room core.RoomService, member core.MemberSession) BackpressureAction
	Forget(id domain.ParticipantID)
}

// StrikePolicy drops frames for a slow member until it has overflowed limit times, then kicks it.
type StrikePolicy struct {
	limit int

	mu      sync.Mutex
	strikes map[domain.ParticipantID]int
}

func NewStrikePolicy(limit int) *StrikePolicy {
	if limit < 1 {
		limit = 1
	}
	return &StrikePolicy{limit: limit, strikes: make(map[domain.ParticipantID]int)}
}

func (p *StrikePolicy) OnBackPressure(_ core.RoomService, member core.MemberSession) BackpressureAction {
	id := member.Meta().User.ID
	p.mu.Lock()
	defer p.mu.Unlock()
	p.strikes[id]++
	if p.strikes[id] >= p.limit {
		delete(p.strikes, id)
		return KickMember
	}
	return DropFrame
}

func (p *StrikePolicy) Forget(id domain.ParticipantID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.strikes, id)
}
