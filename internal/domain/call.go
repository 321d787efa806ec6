package domain

import "time"

type CallStatus string

const (
	CallIdle        CallStatus = "idle"
	CallRinging     CallStatus = "ringing"
	CallAccepted    CallStatus = "accepted"
	CallNegotiating CallStatus = "negotiating"
	CallConnected   CallStatus = "connected"
	CallEnded       CallStatus = "ended"
	CallRejected    CallStatus = "rejected"
	CallBusy        CallStatus = "busy"
	CallError       CallStatus = "error"
)

// Terminal statuses never persist: the session is removed once reached.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallEnded, CallRejected, CallBusy, CallError:
		return true
	}
	return false
}

type CallEvent string

const (
	EventInitiate           CallEvent = "initiate"
	EventAccept             CallEvent = "accept"
	EventReject             CallEvent = "reject"
	EventOffer              CallEvent = "offer"
	EventAnswer             CallEvent = "answer"
	EventICECandidate       CallEvent = "ice-candidate"
	EventTransportConnected CallEvent = "transport-connected"
	EventEnd                CallEvent = "end"
	EventDisconnect         CallEvent = "disconnect"
)

// Transition is the single table both the server coordinator and the client
// machine follow. ok is false for any pair not listed.
func Transition(from CallStatus, ev CallEvent) (CallStatus, bool) {
	switch ev {
	case EventInitiate:
		if from == CallIdle {
			return CallRinging, true
		}
	case EventAccept:
		if from == CallRinging {
			return CallAccepted, true
		}
	case EventReject:
		if from == CallRinging {
			return CallRejected, true
		}
	case EventOffer:
		if from == CallAccepted {
			return CallNegotiating, true
		}
	case EventAnswer:
		if from == CallNegotiating {
			return CallNegotiating, true
		}
	case EventICECandidate:
		switch from {
		case CallAccepted, CallNegotiating, CallConnected:
			return from, true
		}
	case EventTransportConnected:
		if from == CallNegotiating {
			return CallConnected, true
		}
	case EventEnd, EventDisconnect:
		if from != CallIdle && !from.Terminal() {
			return CallEnded, true
		}
	}
	return from, false
}

// PairKey identifies a call by its unordered pair of parties.
type PairKey struct {
	A UserID
	B UserID
}

func NewPairKey(x, y UserID) PairKey {
	if y < x {
		x, y = y, x
	}
	return PairKey{A: x, B: y}
}

func (k PairKey) String() string { return string(k.A) + "|" + string(k.B) }

type CallSession struct {
	Key       PairKey
	Initiator UserID
	Target    UserID
	Status    CallStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewCallSession(initiator, target UserID, now time.Time) *CallSession {
	return &CallSession{
		Key:       NewPairKey(initiator, target),
		Initiator: initiator,
		Target:    target,
		Status:    CallRinging,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Other returns the party that is not u.
func (s *CallSession) Other(u UserID) UserID {
	if s.Initiator == u {
		return s.Target
	}
	return s.Initiator
}

// Permits enforces who may send which event. Only the target answers a ring
// and an offer, only the initiator sends the offer.
func (s *CallSession) Permits(actor UserID, ev CallEvent) bool {
	switch ev {
	case EventAccept, EventReject, EventAnswer:
		return actor == s.Target
	case EventOffer:
		return actor == s.Initiator
	case EventICECandidate, EventEnd, EventDisconnect, EventTransportConnected:
		return actor == s.Initiator || actor == s.Target
	}
	return false
}
