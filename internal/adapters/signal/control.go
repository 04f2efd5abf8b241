package signal

import (
	"github.com/dkeye/Plaza/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) sendError(conn *WsSignalConn, cause error) {
	b, err := protocol.Encode(protocol.Error{Error: cause.Error()})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendError marshal")
		return
	}
	_ = conn.TrySend(b)
}
