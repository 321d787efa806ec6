package signal

import (
	"github.com/dkeye/Duet/internal/domain"
	"github.com/dkeye/Duet/internal/protocol"
	"github.com/rs/zerolog/log"
)

const msgThrottled = "Too many call attempts, try again later"

func (ctl *SignalWSController) handlePing(c *WsSignalConn) {
	ctl.sendEvent(c, protocol.Pong{})
}

func (ctl *SignalWSController) handleThrottled(c *WsSignalConn, uid domain.UserID) {
	log.Warn().Str("module", "signal").Str("uid", string(uid)).Msg("call:initiate throttled")
	ctl.sendEvent(c, protocol.CallError{Message: msgThrottled})
}
