package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Cowork/internal/domain"
)

func (ctl *SignalWSController) handleSendMessage(
	cid domain.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	type chatPayload struct {
		Type    string          `json:"type"`
		Message json.RawMessage `json:"message"`
	}
	var p chatPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad chat payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	ctl.Relay.Chat(cid, p.Message)
}

func (ctl *SignalWSController) handleSyncDrawing(
	cid domain.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	type drawingPayload struct {
		Type        string          `json:"type"`
		Target      string          `json:"targetConnectionId"`
		DrawingData json.RawMessage `json:"drawingData"`
	}
	var p drawingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad drawing payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	ctl.Relay.SyncDrawing(cid, domain.ConnID(p.Target), p.DrawingData)
}
