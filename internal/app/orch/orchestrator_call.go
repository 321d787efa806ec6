package orch

import (
	"errors"

	"github.com/dkeye/Duet/internal/domain"
	"github.com/dkeye/Duet/internal/protocol"
	"github.com/rs/zerolog/log"
)

const (
	msgOffline     = "User is offline"
	msgUnreachable = "User could not be reached"
	msgInCall      = "You are already in a call"
	msgSelfCall    = "You cannot call yourself"
)

func (o *Orchestrator) Initiate(from domain.UserID, e protocol.Initiate) {
	callee := e.CalleeID
	if _, online := o.Registry.Lookup(callee); !online {
		o.send(from, protocol.CallError{Message: msgOffline})
		return
	}
	s, err := o.Calls.TryBeginCall(from, callee)
	switch {
	case errors.Is(err, domain.ErrBusy):
		o.send(from, protocol.Busy{CalleeID: callee})
		return
	case errors.Is(err, domain.ErrAlreadyInCall):
		o.send(from, protocol.CallError{Message: msgInCall})
		return
	case errors.Is(err, domain.ErrSelfCall):
		o.send(from, protocol.CallError{Message: msgSelfCall})
		return
	case err != nil:
		log.Error().Err(err).Str("module", "app.orch").Str("uid", string(from)).Msg("begin call failed")
		return
	}

	caller := e.Caller.Sanitize()
	caller.ID = from
	if !o.send(callee, protocol.Incoming{Caller: caller}) {
		o.Calls.End(s.Key)
		o.send(from, protocol.CallError{Message: msgUnreachable})
		log.Warn().Str("module", "app.orch").Str("uid", string(from)).Str("peer", string(callee)).Msg("ring not delivered")
		return
	}
	log.Info().Str("module", "app.orch").Str("uid", string(from)).Str("peer", string(callee)).Msg("ringing")
	o.broadcastPresence()
}

func (o *Orchestrator) Accept(from domain.UserID, e protocol.Accept) {
	if !o.apply(from, e.CallerID, domain.EventAccept) {
		return
	}
	o.send(e.CallerID, protocol.Accepted{CalleeID: from})
}

func (o *Orchestrator) Reject(from domain.UserID, e protocol.Reject) {
	if !o.apply(from, e.CallerID, domain.EventReject) {
		return
	}
	o.send(e.CallerID, protocol.Rejected{CalleeID: from})
	o.broadcastPresence()
}

func (o *Orchestrator) Offer(from domain.UserID, e protocol.Offer) {
	if !o.apply(from, e.CalleeID, domain.EventOffer) {
		return
	}
	o.send(e.CalleeID, protocol.RemoteOffer{Offer: e.Offer, CallerID: from})
}

func (o *Orchestrator) Answer(from domain.UserID, e protocol.Answer) {
	if !o.apply(from, e.CallerID, domain.EventAnswer) {
		return
	}
	o.send(e.CallerID, protocol.RemoteAnswer{Answer: e.Answer, CalleeID: from})
}

func (o *Orchestrator) Candidate(from domain.UserID, e protocol.Candidate) {
	if !o.apply(from, e.RemoteUserID, domain.EventICECandidate) {
		return
	}
	o.send(e.RemoteUserID, protocol.RemoteCandidate{Candidate: e.Candidate, UserID: from})
}

// End hangs up or cancels. Ending a pair with no session does nothing.
func (o *Orchestrator) End(from domain.UserID, e protocol.End) {
	if !o.apply(from, e.RemoteUserID, domain.EventEnd) {
		return
	}
	o.send(e.RemoteUserID, protocol.Ended{UserID: from})
	o.broadcastPresence()
}

// apply advances the pair's session. Violations are dropped without notice.
func (o *Orchestrator) apply(actor, peer domain.UserID, ev domain.CallEvent) bool {
	if _, err := o.Calls.Apply(actor, peer, ev); err != nil {
		log.Debug().Err(err).Str("module", "app.orch").Str("uid", string(actor)).Str("peer", string(peer)).Str("event", string(ev)).Msg("call event dropped")
		return false
	}
	return true
}
