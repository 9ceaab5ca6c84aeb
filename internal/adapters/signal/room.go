package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/natlachat/natla/internal/domain"
)

func (ctl *Controller) handleRoomStats(conn domain.ConnID, c *wsConn, env envelope) {
	var p struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad getRoomStats payload")
		ctl.replyErr(c, env.Type, env.ID, err)
		return
	}
	ctl.reply(c, env.Type, env.ID, ctl.Orch.Stats(domain.RoomID(p.RoomID)))
}

func (ctl *Controller) handleJoinRoom(ctx context.Context, conn domain.ConnID, c *wsConn, env envelope) {
	var p struct {
		RoomID      string `json:"roomId"`
		DisplayName string `json:"displayName"`
		Avatar      string `json:"avatar"`
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad joinRoom payload")
		ctl.replyErr(c, env.Type, env.ID, err)
		return
	}

	res, err := ctl.Orch.Join(ctx, conn, domain.RoomID(p.RoomID), p.DisplayName, p.Avatar)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(conn)).Str("room", p.RoomID).Msg("join failed")
		ctl.replyErr(c, env.Type, env.ID, err)
		return
	}
	ctl.reply(c, env.Type, env.ID, res)
}
