package signal

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Plaza/internal/app"
	"github.com/dkeye/Plaza/internal/domain"
	"github.com/dkeye/Plaza/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ping := time.NewTicker(ctl.cfg.PingPeriod)
	defer func() {
		ping.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
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
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		}
	}
}

// readPump owns the connection's lifetime: when it returns the participant
// is gone from the relay.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, id domain.ParticipantID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("id", string(id)).Msg("readPump closing")
		cancel()
		ctl.Relay.Disconnect(id)
		c.Close()
	}()

	pongWait := 2 * ctl.cfg.PingPeriod
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("id", string(id)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Error().Err(err).Str("module", "signal").Str("id", string(id)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
			ctl.handleFrame(id, c, data)
		}
	}
}

func (ctl *SignalWSController) handleFrame(id domain.ParticipantID, c *WsSignalConn, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("id", string(id)).Msg("undecodable frame")
		ctl.sendError(c, err)
		return
	}

	err = ctl.Relay.Handle(id, msg)
	switch {
	case err == nil:
	case errors.Is(err, app.ErrRecipientAbsent), errors.Is(err, app.ErrNotJoined):
		// best-effort forwarding: the sender is never told
		log.Debug().Err(err).Str("module", "signal").Str("id", string(id)).Str("type", string(msg.Type())).Msg("dropped")
	case errors.Is(err, app.ErrUnexpected):
		ctl.sendError(c, err)
	default:
		log.Warn().Err(err).Str("module", "signal").Str("id", string(id)).Str("type", string(msg.Type())).Msg("relay")
	}
}
