package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Cowork/internal/domain"
)

func (ctl *SignalWSController) handleTypingStart(
	cid domain.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	type typingPayload struct {
		Type           string `json:"type"`
		CursorPosition int    `json:"cursorPosition"`
	}
	var p typingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad typing payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	ctl.Relay.TypingStart(cid, p.CursorPosition)
}

func (ctl *SignalWSController) handleFileSelect(
	cid domain.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	type filePayload struct {
		Type   string `json:"type"`
		FileID string `json:"fileId"`
	}
	var p filePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad file payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	ctl.Relay.SelectFile(cid, p.FileID)
}
