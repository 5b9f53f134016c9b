package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Cowork/internal/domain"
)

func (ctl *SignalWSController) handleOffer(
	cid domain.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	type offerPayload struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	var p offerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad offer payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	ctl.Relay.Offer(cid, p.SDP)
}

func (ctl *SignalWSController) handleAnswer(
	cid domain.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	type answerPayload struct {
		Type   string `json:"type"`
		Target string `json:"targetConnectionId"`
		SDP    string `json:"sdp"`
	}
	var p answerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad answer payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	ctl.Relay.Answer(cid, domain.ConnID(p.Target), p.SDP)
}

func (ctl *SignalWSController) handleCandidate(
	cid domain.ConnID,
	conn *WsSignalConn,
	data []byte,
) {
	type candidatePayload struct {
		Type      string          `json:"type"`
		Target    string          `json:"targetConnectionId,omitempty"`
		Candidate json.RawMessage `json:"candidate"`
	}
	var p candidatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	ctl.Relay.Candidate(cid, domain.ConnID(p.Target), p.Candidate)
}
