package app

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/Duet/internal/domain"
	"github.com/rs/zerolog/log"
)

// CallRegistry tracks call attempts and calls. Each session is indexed under
// both parties so a busy check is a single map lookup.
type CallRegistry struct {
	mu     sync.Mutex
	byUser map[domain.UserID]*domain.CallSession
	now    func() time.Time
}

func NewCallRegistry() *CallRegistry {
	return &CallRegistry{
		byUser: make(map[domain.UserID]*domain.CallSession),
		now:    time.Now,
	}
}

// TryBeginCall atomically creates a ringing session between caller and callee.
func (c *CallRegistry) TryBeginCall(caller, callee domain.UserID) (domain.CallSession, error) {
	if caller == callee {
		return domain.CallSession{}, domain.ErrSelfCall
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.byUser[callee]; busy {
		return domain.CallSession{}, domain.ErrBusy
	}
	if _, busy := c.byUser[caller]; busy {
		return domain.CallSession{}, domain.ErrAlreadyInCall
	}
	s := domain.NewCallSession(caller, callee, c.now())
	c.byUser[caller] = s
	c.byUser[callee] = s
	log.Info().Str("module", "app.calls").Str("caller", string(caller)).Str("callee", string(callee)).Msg("call ringing")
	return *s, nil
}

// Advance applies one event to the pair's session without any role check.
func (c *CallRegistry) Advance(key domain.PairKey, ev domain.CallEvent) (domain.CallStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.sessionLocked(key)
	if err != nil {
		return domain.CallIdle, err
	}
	return c.stepLocked(s, ev)
}

// Apply is Advance with the role rule evaluated under the same lock.
// The returned session reflects the state after the event.
func (c *CallRegistry) Apply(actor, peer domain.UserID, ev domain.CallEvent) (domain.CallSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.sessionLocked(domain.NewPairKey(actor, peer))
	if err != nil {
		return domain.CallSession{}, err
	}
	if !s.Permits(actor, ev) {
		return *s, fmt.Errorf("%s may not %s: %w", actor, ev, domain.ErrProtocolViolation)
	}
	if _, err := c.stepLocked(s, ev); err != nil {
		return *s, err
	}
	return *s, nil
}

// End removes the session holding key regardless of its status.
func (c *CallRegistry) End(key domain.PairKey) (domain.CallSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.sessionLocked(key)
	if err != nil {
		return domain.CallSession{}, false
	}
	s.Status = domain.CallEnded
	s.UpdatedAt = c.now()
	c.removeLocked(s)
	return *s, true
}

// SessionOf returns a copy of the session uid belongs to.
func (c *CallRegistry) SessionOf(uid domain.UserID) (domain.CallSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.byUser[uid]
	if !ok {
		return domain.CallSession{}, false
	}
	return *s, true
}

func (c *CallRegistry) IsBusy(uid domain.UserID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.byUser[uid]
	return ok
}

// Busy lists every user currently in a session, sorted.
func (c *CallRegistry) Busy() []domain.UserID {
	c.mu.Lock()
	out := make([]domain.UserID, 0, len(c.byUser))
	for uid := range c.byUser {
		out = append(out, uid)
	}
	c.mu.Unlock()
	slices.Sort(out)
	return out
}

func (c *CallRegistry) sessionLocked(key domain.PairKey) (*domain.CallSession, error) {
	s, ok := c.byUser[key.A]
	if !ok || s.Key != key {
		return nil, domain.ErrNoSession
	}
	return s, nil
}

func (c *CallRegistry) stepLocked(s *domain.CallSession, ev domain.CallEvent) (domain.CallStatus, error) {
	next, ok := domain.Transition(s.Status, ev)
	if !ok {
		return s.Status, fmt.Errorf("%s in %s: %w", ev, s.Status, domain.ErrProtocolViolation)
	}
	s.Status = next
	s.UpdatedAt = c.now()
	if next.Terminal() {
		c.removeLocked(s)
	}
	log.Debug().Str("module", "app.calls").Str("pair", s.Key.String()).Str("event", string(ev)).Str("status", string(next)).Msg("call advanced")
	return next, nil
}

func (c *CallRegistry) removeLocked(s *domain.CallSession) {
	if c.byUser[s.Initiator] == s {
		delete(c.byUser, s.Initiator)
	}
	if c.byUser[s.Target] == s {
		delete(c.byUser, s.Target)
	}
	log.Info().Str("module", "app.calls").Str("pair", s.Key.String()).Str("status", string(s.Status)).Msg("call removed")
}
