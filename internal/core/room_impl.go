package core

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/wire"
)

var ErrNoSuchMember = errors.New("no such member")

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	name domain.RoomName
	mu   sync.RWMutex
	byID map[domain.ParticipantID]MemberSession
}

func NewRoomService(name domain.RoomName) RoomService {
	return &roomImpl{
		name: name,
		byID: make(map[domain.ParticipantID]MemberSession),
	}
}

func (r *roomImpl) Name() domain.RoomName { return r.name }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *roomImpl) Member(id domain.ParticipantID) (MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ms, ok := r.byID[id]
	return ms, ok
}

func (r *roomImpl) AddMember(ms MemberSession) bool {
	id := ms.Meta().User.ID
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; ok {
		return false
	}
	r.byID[id] = ms
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("peer", string(id)).Msg("member added")
	return true
}

func (r *roomImpl) RemoveMember(id domain.ParticipantID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("peer", string(id)).Msg("member removed")
	return true
}

func (r *roomImpl) Broadcast(from domain.ParticipantID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for id, m := range r.byID {
		if id == from {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) SendTo(to domain.ParticipantID, data Frame) error {
	r.mu.RLock()
	m, ok := r.byID[to]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSuchMember
	}
	return m.Signal().TrySend(data)
}

func (r *roomImpl) MembersSnapshot() []wire.Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]wire.Peer, 0, len(r.byID))
	for _, ms := range r.byID {
		u := ms.Meta().User
		out = append(out, wire.Peer{ID: u.ID, Name: u.Username})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *roomImpl) SetAudioLevel(id domain.ParticipantID, level float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ms, ok := r.byID[id]; ok {
		ms.Meta().AudioLevel = level
	}
}

func (r *roomImpl) ActiveSpeakers(threshold float64) []domain.ParticipantID {
	type level struct {
		id    domain.ParticipantID
		value float64
	}
	r.mu.RLock()
	levels := make([]level, 0, len(r.byID))
	for id, ms := range r.byID {
		if v := ms.Meta().AudioLevel; v > 0 && v >= threshold {
			levels = append(levels, level{id: id, value: v})
		}
	}
	r.mu.RUnlock()

	sort.Slice(levels, func(i, j int) bool {
		if levels[i].value != levels[j].value {
			return levels[i].value > levels[j].value
		}
		return levels[i].id < levels[j].id
	})
	out := make([]domain.ParticipantID, len(levels))
	for i, l := range levels {
		out[i] = l.id
	}
	return out
}
