package app

import (
	"strings"

	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	Disconnect
)

// Policy decides what happens to a connection whose send buffer is full.
type Policy interface {
	OnBackPressure(uid domain.UserID, conn core.SignalConnection) BackpressureAction
}

// DropPolicy discards the frame and keeps the connection.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(domain.UserID, core.SignalConnection) BackpressureAction {
	return DropFrame
}

// DisconnectPolicy closes slow connections; the read pump then unregisters them.
type DisconnectPolicy struct{}

func (DisconnectPolicy) OnBackPressure(domain.UserID, core.SignalConnection) BackpressureAction {
	return Disconnect
}

// PolicyFor maps the backpressure config value to a Policy. Unknown values drop.
func PolicyFor(name string) Policy {
	if strings.EqualFold(strings.TrimSpace(name), "disconnect") {
		return DisconnectPolicy{}
	}
	return DropPolicy{}
}
