package signal

import (
	"context"
	"time"

	"github.com/dkeye/Duet/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("conn", string(c.ID())).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("conn", string(c.ID())).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(c.ID())).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.ID())).Msg("ping failed")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(c.ID())).Msg("readPump closing")
		cancel()
		ctl.Orch.Disconnect(c.ID())
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(c.ID())).Msg("readPump read error")
			}
			return
		}
		ctl.handleSignal(c, data)
	}
}

func (ctl *SignalWSController) handleSignal(c *WsSignalConn, data []byte) {
	ev, err := protocol.DecodeInbound(data)
	if err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(c.ID())).Msg("frame dropped")
		return
	}
	if _, ok := ev.(protocol.Ping); ok {
		ctl.handlePing(c)
		return
	}
	// only the current connection of a registered user may signal
	uid, ok := ctl.Orch.Registry.UserOf(c.ID())
	if !ok {
		log.Debug().Str("module", "signal").Str("conn", string(c.ID())).Str("type", ev.Type()).Msg("unregistered connection, event ignored")
		return
	}
	if _, ok := ev.(protocol.Initiate); ok && !ctl.limiter.Allow(uid) {
		ctl.handleThrottled(c, uid)
		return
	}
	ctl.Orch.Dispatch(uid, ev)
}

func (ctl *SignalWSController) sendEvent(c *WsSignalConn, ev protocol.Event) {
	f, err := protocol.Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendEvent encode")
		return
	}
	_ = c.TrySend(f)
}
