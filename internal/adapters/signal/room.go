package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Cowork/internal/domain"
)

func (ctl *SignalWSController) handleJoin(
	cid domain.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	type joinPayload struct {
		Type     string `json:"type"`
		RoomID   string `json:"roomId"`
		Username string `json:"username"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, "bad_payload")
		return
	}

	if !ctl.limiter.Allow(cid) {
		log.Warn().Str("module", "signal").Str("cid", string(cid)).Msg("join rate limited")
		ctl.sendError(conn, "too_many_join_attempts")
		return
	}

	log.Info().Str("module", "signal").Str("cid", string(cid)).
		Str("room", p.RoomID).Str("username", p.Username).Msg("join request")
	ctl.Relay.Join(cid, domain.RoomID(p.RoomID), p.Username)
}
