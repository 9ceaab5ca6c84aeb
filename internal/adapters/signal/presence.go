package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/natlachat/natla/internal/domain"
)

func (ctl *Controller) handlePeerUpdate(conn domain.ConnID, env envelope) {
	var p domain.Presence
	if err := json.Unmarshal(env.Data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad peer-update payload")
		return
	}
	ctl.Orch.UpdatePresence(conn, p)
}

func (ctl *Controller) handlePlaySound(conn domain.ConnID, env envelope) {
	var p struct {
		SoundPath string `json:"soundPath"`
		IsCustom  bool   `json:"isCustom"`
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad play-sound payload")
		return
	}
	ctl.Orch.PlaySound(conn, p.SoundPath, p.IsCustom)
}
