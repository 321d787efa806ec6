package orch

import (
	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/dkeye/Duet/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Connect registers conn for uid and announces the new presence set.
// Replacing a live connection ends any call it was carrying.
func (o *Orchestrator) Connect(uid domain.UserID, conn core.SignalConnection) error {
	prev, err := o.Registry.Register(uid, conn)
	if err != nil {
		return err
	}
	if prev != nil {
		o.endCallOf(uid, "call ended by reconnect")
	}
	o.broadcastPresence()
	return nil
}

// Disconnect unregisters connID. A stale connection, already replaced by a
// newer one for the same user, changes nothing.
func (o *Orchestrator) Disconnect(connID core.ConnectionID) {
	uid, removed := o.Registry.Unregister(connID)
	if !removed {
		return
	}
	o.endCallOf(uid, "call ended by disconnect")
	o.broadcastPresence()
}

// endCallOf drops uid's session, if any, and tells the other party.
func (o *Orchestrator) endCallOf(uid domain.UserID, msg string) {
	s, ok := o.Calls.SessionOf(uid)
	if !ok {
		return
	}
	if _, ended := o.Calls.End(s.Key); ended {
		peer := s.Other(uid)
		o.send(peer, protocol.Ended{UserID: uid, Reason: protocol.ReasonDisconnected})
		log.Info().Str("module", "app.orch").Str("uid", string(uid)).Str("peer", string(peer)).Msg(msg)
	}
}

// Presence returns the current online and busy sets.
func (o *Orchestrator) Presence() protocol.OnlineUsers {
	return protocol.OnlineUsers{
		UserIDs:     o.Registry.Online(),
		BusyUserIDs: o.Calls.Busy(),
	}
}

func (o *Orchestrator) broadcastPresence() {
	p := o.Presence()
	frame, err := protocol.Encode(p)
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Msg("encode presence failed")
		return
	}
	for _, conn := range o.Registry.Connections() {
		uid, ok := o.Registry.UserOf(conn.ID())
		if !ok {
			continue
		}
		o.sendFrame(uid, conn, frame)
	}
	log.Debug().Str("module", "app.orch").Int("online", len(p.UserIDs)).Int("busy", len(p.BusyUserIDs)).Msg("presence broadcast")
}
