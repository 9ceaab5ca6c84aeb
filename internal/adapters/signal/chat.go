package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/natlachat/natla/internal/domain"
)

func (ctl *Controller) handleChatMessage(conn domain.ConnID, c *wsConn, env envelope) {
	var p struct {
		RoomID   string             `json:"roomId"`
		Message  string             `json:"message"`
		Type     domain.MessageType `json:"type"`
		FileData *domain.FileInfo   `json:"fileData,omitempty"`
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		ctl.replyErr(c, env.Type, env.ID, err)
		return
	}
	if p.Type == "" {
		p.Type = domain.MessageText
	}

	saved, err := ctl.Orch.SendChat(conn, p.Message, p.Type, p.FileData)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(conn)).Msg("chat message rejected")
		ctl.replyErr(c, env.Type, env.ID, err)
		return
	}
	ctl.reply(c, env.Type, env.ID, saved)
}

func (ctl *Controller) handleDeleteMessage(conn domain.ConnID, c *wsConn, env envelope) {
	var p struct {
		MessageID string `json:"messageId"`
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		ctl.replyErr(c, env.Type, env.ID, err)
		return
	}

	if err := ctl.Orch.HideMessage(conn, p.MessageID); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(conn)).Msg("hide message failed")
		ctl.replyErr(c, env.Type, env.ID, err)
		return
	}
	ctl.reply(c, env.Type, env.ID, map[string]bool{"success": true})
}

func (ctl *Controller) handleDeleteRoomHistory(conn domain.ConnID, c *wsConn, env envelope) {
	var p struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		ctl.replyErr(c, env.Type, env.ID, err)
		return
	}

	if err := ctl.Orch.HideRoomHistory(conn, domain.RoomID(p.RoomID)); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(conn)).Msg("hide history failed")
		ctl.replyErr(c, env.Type, env.ID, err)
		return
	}
	ctl.reply(c, env.Type, env.ID, map[string]bool{"success": true})
}
