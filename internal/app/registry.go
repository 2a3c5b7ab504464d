package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

type sessionEntry struct {
	RoomName domain.RoomName
	Session  core.MemberSession
	Cancel   context.CancelFunc
}

// Registry tracks every live signaling connection by participant id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.ParticipantID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.ParticipantID]*sessionEntry),
	}
}

// BindSession reports false when the id already has a live connection.
func (r *Registry) BindSession(
	id domain.ParticipantID,
	roomName domain.RoomName,
	sess core.MemberSession,
	cancel context.CancelFunc,
) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return false
	}
	r.sessions[id] = &sessionEntry{
		RoomName: roomName,
		Session:  sess,
		Cancel:   cancel,
	}
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Str("room", string(roomName)).Msg("bound session")
	return true
}

func (r *Registry) GetSession(id domain.ParticipantID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[id]; ok {
		return e.Session, true
	}
	return nil, false
}

// Unbind forgets id only if it is still bound to sess, so a stale connection cannot evict a newer one.
func (r *Registry) Unbind(id domain.ParticipantID, sess core.MemberSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok && e.Session == sess {
		delete(r.sessions, id)
		log.Info().Str("module", "app.registry").Str("peer", string(id)).Msg("unbind session")
	}
}

func (r *Registry) RoomOf(id domain.ParticipantID) (domain.RoomName, core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[id]
	if !ok || entry.RoomName == "" {
		return "", nil, false
	}
	return entry.RoomName, entry.Session, true
}

type regSnap struct {
	ID      domain.ParticipantID
	Session core.MemberSession
}

func (r *Registry) MembersOfRoom(name domain.RoomName) []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0, len(r.sessions))
	for id, e := range r.sessions {
		if e.RoomName == name {
			out = append(out, regSnap{ID: id, Session: e.Session})
		}
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Cancel(id domain.ParticipantID) bool {
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Msg("canceled session")
	return true
}
