package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Cowork/internal/core"
	"github.com/dkeye/Cowork/internal/domain"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.Cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			c.Close()
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cid domain.ConnID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("readPump closing")
		// Abrupt network loss reads the same as an explicit leave.
		ctl.Relay.Disconnect(cid)
		ctl.limiter.Forget(cid)
		c.Close()
	}()

	c.conn.SetReadLimit(ctl.Cfg.ReadLimit)
	readWait := ctl.Cfg.PingPeriod + writeWait
	_ = c.conn.SetReadDeadline(time.Now().Add(readWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("readPump read error")
				return
			}
			ctl.handleSignal(cid, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(cid domain.ConnID, c *WsSignalConn, data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case core.EvtJoinRequest:
		ctl.handleJoin(cid, c, data)
	case core.EvtSignalOffer:
		ctl.handleOffer(cid, c, data)
	case core.EvtSignalAnswer:
		ctl.handleAnswer(cid, c, data)
	case core.EvtSignalCandidate:
		ctl.handleCandidate(cid, c, data)
	case core.EvtUserOnline:
		ctl.Relay.SetOnline(cid, true)
	case core.EvtUserOffline:
		ctl.Relay.SetOnline(cid, false)
	case core.EvtTypingStart:
		ctl.handleTypingStart(cid, c, data)
	case core.EvtTypingPause:
		ctl.Relay.TypingPause(cid)
	case core.EvtFileSelect:
		ctl.handleFileSelect(cid, c, data)
	case core.EvtSendMessage:
		ctl.handleSendMessage(cid, c, data)
	case core.EvtRequestDrawing:
		ctl.Relay.RequestDrawing(cid)
	case core.EvtSyncDrawing:
		ctl.handleSyncDrawing(cid, c, data)
	case core.EvtPing:
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, msg string) {
	ctl.sendJSON(c, core.ErrorEvent{Type: core.EvtError, Error: msg})
}
