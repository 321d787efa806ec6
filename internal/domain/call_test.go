package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []CallStatus{
	CallIdle, CallRinging, CallAccepted, CallNegotiating, CallConnected,
	CallEnded, CallRejected, CallBusy, CallError,
}

var allEvents = []CallEvent{
	EventInitiate, EventAccept, EventReject, EventOffer, EventAnswer,
	EventICECandidate, EventTransportConnected, EventEnd, EventDisconnect,
}

func TestTransitionTable(t *testing.T) {
	legal := map[CallStatus]map[CallEvent]CallStatus{
		CallIdle:     {EventInitiate: CallRinging},
		CallRinging:  {EventAccept: CallAccepted, EventReject: CallRejected, EventEnd: CallEnded, EventDisconnect: CallEnded},
		CallAccepted: {EventOffer: CallNegotiating, EventICECandidate: CallAccepted, EventEnd: CallEnded, EventDisconnect: CallEnded},
		CallNegotiating: {
			EventAnswer: CallNegotiating, EventICECandidate: CallNegotiating,
			EventTransportConnected: CallConnected, EventEnd: CallEnded, EventDisconnect: CallEnded,
		},
		CallConnected: {EventICECandidate: CallConnected, EventEnd: CallEnded, EventDisconnect: CallEnded},
	}

	for _, from := range allStatuses {
		for _, ev := range allEvents {
			got, ok := Transition(from, ev)
			want, listed := legal[from][ev]
			if listed {
				assert.Truef(t, ok, "%s --%s--> should be legal", from, ev)
				assert.Equalf(t, want, got, "%s --%s-->", from, ev)
				continue
			}
			assert.Falsef(t, ok, "%s --%s--> should be rejected", from, ev)
			assert.Equalf(t, from, got, "rejected event must not move %s", from)
		}
	}
}

func TestPairKeyIsUnordered(t *testing.T) {
	assert.Equal(t, NewPairKey("u1", "u2"), NewPairKey("u2", "u1"))
	assert.Equal(t, "u1|u2", NewPairKey("u2", "u1").String())
}

func TestCallSessionPermits(t *testing.T) {
	s := NewCallSession("alice", "bob", time.Now())
	require.Equal(t, CallRinging, s.Status)

	assert.True(t, s.Permits("bob", EventAccept))
	assert.False(t, s.Permits("alice", EventAccept))
	assert.True(t, s.Permits("alice", EventOffer))
	assert.False(t, s.Permits("bob", EventOffer))
	assert.True(t, s.Permits("bob", EventAnswer))
	assert.False(t, s.Permits("alice", EventAnswer))
	assert.True(t, s.Permits("alice", EventEnd))
	assert.True(t, s.Permits("bob", EventICECandidate))
	assert.False(t, s.Permits("mallory", EventEnd))
	assert.Equal(t, UserID("bob"), s.Other("alice"))
	assert.Equal(t, UserID("alice"), s.Other("bob"))
}
