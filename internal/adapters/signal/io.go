package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/natlachat/natla/internal/domain"
)

// envelope is the wire frame in both directions. Requests carry an id
// the reply echoes; events carry neither id nor error.
type envelope struct {
	Type  string          `json:"type"`
	ID    int64           `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

func (ctl *Controller) writePump(ctx context.Context, conn domain.ConnID, c *wsConn) {
	ping := time.NewTicker(ctl.PingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("conn", string(conn)).Msg("ping failed")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(conn)).Msg("write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, conn domain.ConnID, c *wsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(conn)).Msg("connection closing")
		c.Close()
	}()

	if ctl.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.ReadLimit)
	}
	if ctl.PingPeriod > 0 {
		// A peer must answer pings inside this window or the read
		// fails and the disconnect cascade runs.
		pongWait := ctl.PingPeriod * 10 / 9
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("conn", string(conn)).Msg("read ended")
				return
			}
			ctl.dispatch(ctx, conn, c, data)
		}
	}
}

func (ctl *Controller) dispatch(ctx context.Context, conn domain.ConnID, c *wsConn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "getRoomStats":
		ctl.handleRoomStats(conn, c, env)
	case "joinRoom":
		ctl.handleJoinRoom(ctx, conn, c, env)
	case "createTransport":
		ctl.handleCreateTransport(ctx, conn, c, env)
	case "connectTransport":
		ctl.handleConnectTransport(ctx, conn, env)
	case "produce":
		ctl.handleProduce(ctx, conn, c, env)
	case "consume":
		ctl.handleConsume(ctx, conn, c, env)
	case "consumerResume":
		ctl.handleConsumerResume(ctx, conn, c, env)
	case "peer-update":
		ctl.handlePeerUpdate(conn, env)
	case "chat-message":
		ctl.handleChatMessage(conn, c, env)
	case "deleteMessageForMe":
		ctl.handleDeleteMessage(conn, c, env)
	case "deleteRoomHistoryForMe":
		ctl.handleDeleteRoomHistory(conn, c, env)
	case "play-sound":
		ctl.handlePlaySound(conn, env)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *Controller) reply(c *wsConn, typ string, id int64, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("type", typ).Msg("marshal reply")
		return
	}
	ctl.send(c, envelope{Type: typ, ID: id, Data: raw})
}

func (ctl *Controller) replyErr(c *wsConn, typ string, id int64, err error) {
	ctl.send(c, envelope{Type: typ, ID: id, Error: err.Error()})
}

func (ctl *Controller) send(c *wsConn, env envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("marshal envelope")
		return
	}
	_ = c.TrySend(b)
}
