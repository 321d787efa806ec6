package orch

import (
	"context"
	"time"

	"github.com/dkeye/Duet/internal/app"
	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/dkeye/Duet/internal/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Orchestrator ties the registries, the message store and the outbound
// connections together. Sends never happen under a registry lock.
type Orchestrator struct {
	Registry *app.Registry
	Calls    *app.CallRegistry
	Policy   app.Policy
	Store    core.MessageStore
	// Relay is optional and reaches users held by another instance.
	Relay core.EventRelay

	NewID func() domain.MessageID
	Now   func() time.Time
}

func New(reg *app.Registry, calls *app.CallRegistry, store core.MessageStore, policy app.Policy) *Orchestrator {
	return &Orchestrator{
		Registry: reg,
		Calls:    calls,
		Policy:   policy,
		Store:    store,
		NewID:    func() domain.MessageID { return domain.MessageID(uuid.NewString()) },
		Now:      time.Now,
	}
}

// Dispatch routes one validated inbound event from uid.
func (o *Orchestrator) Dispatch(uid domain.UserID, ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.Initiate:
		o.Initiate(uid, e)
	case protocol.Accept:
		o.Accept(uid, e)
	case protocol.Reject:
		o.Reject(uid, e)
	case protocol.Offer:
		o.Offer(uid, e)
	case protocol.Answer:
		o.Answer(uid, e)
	case protocol.Candidate:
		o.Candidate(uid, e)
	case protocol.End:
		o.End(uid, e)
	default:
		log.Debug().Str("module", "app.orch").Str("uid", string(uid)).Str("event", ev.Type()).Msg("event not routed")
	}
}

// send delivers ev to uid's local connection. It reports false when uid is
// offline here or the frame was not accepted.
func (o *Orchestrator) send(uid domain.UserID, ev protocol.Event) bool {
	conn, ok := o.Registry.Lookup(uid)
	if !ok {
		return false
	}
	frame, err := protocol.Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Str("event", ev.Type()).Msg("encode failed")
		return false
	}
	return o.sendFrame(uid, conn, frame)
}

// push is send with a fallback to the relay for users not connected here.
func (o *Orchestrator) push(ctx context.Context, uid domain.UserID, ev protocol.Event) {
	frame, err := protocol.Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Str("event", ev.Type()).Msg("encode failed")
		return
	}
	if conn, ok := o.Registry.Lookup(uid); ok {
		o.sendFrame(uid, conn, frame)
		return
	}
	if o.Relay == nil {
		return
	}
	if err := o.Relay.Publish(ctx, uid, frame); err != nil {
		log.Warn().Err(err).Str("module", "app.orch").Str("uid", string(uid)).Str("event", ev.Type()).Msg("relay publish failed")
	}
}

// DeliverLocal hands a frame that arrived over the relay to a local connection.
func (o *Orchestrator) DeliverLocal(uid domain.UserID, frame core.Frame) bool {
	conn, ok := o.Registry.Lookup(uid)
	if !ok {
		return false
	}
	return o.sendFrame(uid, conn, frame)
}

func (o *Orchestrator) sendFrame(uid domain.UserID, conn core.SignalConnection, frame core.Frame) bool {
	if err := conn.TrySend(frame); err != nil {
		o.onBackpressure(uid, conn, err)
		return false
	}
	return true
}

func (o *Orchestrator) onBackpressure(uid domain.UserID, conn core.SignalConnection, err error) {
	action := app.DropFrame
	if o.Policy != nil {
		action = o.Policy.OnBackPressure(uid, conn)
	}
	l := log.Warn().Err(err).Str("module", "app.orch").Str("uid", string(uid)).Str("conn", string(conn.ID()))
	switch action {
	case app.Disconnect:
		l.Msg("slow connection, closing")
		conn.Close()
	case app.DropFrame, app.NoAction:
		l.Msg("frame dropped")
	}
}
