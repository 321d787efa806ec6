package app

import (
	"slices"
	"sync"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry maps each online user to exactly one live connection.
// It never closes adapter-owned connections.
type Registry struct {
	mu     sync.RWMutex
	byUser map[domain.UserID]core.SignalConnection
	byConn map[core.ConnectionID]domain.UserID
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[domain.UserID]core.SignalConnection),
		byConn: make(map[core.ConnectionID]domain.UserID),
	}
}

// Register binds uid to conn, silently replacing an earlier binding.
// The superseded connection is returned but left open.
func (r *Registry) Register(uid domain.UserID, conn core.SignalConnection) (core.SignalConnection, error) {
	if !uid.Valid() {
		return nil, domain.ErrInvalidIdentity
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, had := r.byUser[uid]
	if had {
		delete(r.byConn, prev.ID())
	}
	r.byUser[uid] = conn
	r.byConn[conn.ID()] = uid
	l := log.Info().Str("module", "app.registry").Str("uid", string(uid)).Str("conn", string(conn.ID()))
	if had {
		l = l.Str("replaced", string(prev.ID()))
		l.Msg("connection replaced")
		return prev, nil
	}
	l.Msg("connection registered")
	return nil, nil
}

// Unregister removes the binding only when connID is still current for its user.
func (r *Registry) Unregister(connID core.ConnectionID) (domain.UserID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	uid, ok := r.byConn[connID]
	if !ok {
		log.Debug().Str("module", "app.registry").Str("conn", string(connID)).Msg("stale unregister ignored")
		return "", false
	}
	delete(r.byConn, connID)
	if cur, ok := r.byUser[uid]; ok && cur.ID() == connID {
		delete(r.byUser, uid)
	}
	log.Info().Str("module", "app.registry").Str("uid", string(uid)).Str("conn", string(connID)).Msg("connection unregistered")
	return uid, true
}

func (r *Registry) Lookup(uid domain.UserID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byUser[uid]
	return c, ok
}

// UserOf reports which user a connection is registered for.
func (r *Registry) UserOf(connID core.ConnectionID) (domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uid, ok := r.byConn[connID]
	return uid, ok
}

// Online returns the presence set, sorted.
func (r *Registry) Online() []domain.UserID {
	r.mu.RLock()
	out := make([]domain.UserID, 0, len(r.byUser))
	for uid := range r.byUser {
		out = append(out, uid)
	}
	r.mu.RUnlock()
	slices.Sort(out)
	return out
}

func (r *Registry) Connections() []core.SignalConnection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.SignalConnection, 0, len(r.byUser))
	for _, c := range r.byUser {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
