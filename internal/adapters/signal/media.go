package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/natlachat/natla/internal/domain"
	"github.com/natlachat/natla/internal/media"
)

func (ctl *Controller) handleCreateTransport(ctx context.Context, conn domain.ConnID, c *wsConn, env envelope) {
	var p struct {
		IsSender bool `json:"isSender"`
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		ctl.replyErr(c, env.Type, env.ID, err)
		return
	}

	params, err := ctl.Orch.CreateTransport(ctx, conn, p.IsSender)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(conn)).Msg("create transport failed")
		ctl.replyErr(c, env.Type, env.ID, err)
		return
	}
	ctl.reply(c, env.Type, env.ID, params)
}

// connectTransport has no reply channel; failures are only logged and
// the client must not assume success.
func (ctl *Controller) handleConnectTransport(ctx context.Context, conn domain.ConnID, env envelope) {
	var p struct {
		TransportID    string               `json:"transportId"`
		DTLSParameters media.DTLSParameters `json:"dtlsParameters"`
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad connectTransport payload")
		return
	}
	if err := ctl.Orch.ConnectTransport(ctx, conn, p.TransportID, p.DTLSParameters); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(conn)).Msg("connect transport failed")
	}
}

func (ctl *Controller) handleProduce(ctx context.Context, conn domain.ConnID, c *wsConn, env envelope) {
	var p struct {
		TransportID   string              `json:"transportId"`
		Kind          media.Kind          `json:"kind"`
		RTPParameters media.RTPParameters `json:"rtpParameters"`
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		ctl.replyErr(c, env.Type, env.ID, err)
		return
	}

	id, err := ctl.Orch.Produce(ctx, conn, p.TransportID, p.Kind, p.RTPParameters)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(conn)).Msg("produce failed")
		ctl.replyErr(c, env.Type, env.ID, err)
		return
	}
	ctl.reply(c, env.Type, env.ID, map[string]string{"id": id})
}

func (ctl *Controller) handleConsume(ctx context.Context, conn domain.ConnID, c *wsConn, env envelope) {
	var p struct {
		TransportID     string                `json:"transportId"`
		ProducerID      string                `json:"producerId"`
		RTPCapabilities media.RTPCapabilities `json:"rtpCapabilities"`
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		ctl.replyErr(c, env.Type, env.ID, err)
		return
	}

	params, err := ctl.Orch.Consume(ctx, conn, p.TransportID, p.ProducerID, p.RTPCapabilities)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(conn)).Msg("consume failed")
		ctl.replyErr(c, env.Type, env.ID, err)
		return
	}
	ctl.reply(c, env.Type, env.ID, params)
}

func (ctl *Controller) handleConsumerResume(ctx context.Context, conn domain.ConnID, c *wsConn, env envelope) {
	var p struct {
		ConsumerID string `json:"consumerId"`
	}
	if err := json.Unmarshal(env.Data, &p); err != nil {
		ctl.replyErr(c, env.Type, env.ID, err)
		return
	}

	if err := ctl.Orch.ResumeConsumer(ctx, conn, p.ConsumerID); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(conn)).Msg("consumer resume failed")
		ctl.replyErr(c, env.Type, env.ID, err)
		return
	}
	ctl.reply(c, env.Type, env.ID, map[string]any{})
}
