package orch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/natlachat/natla/internal/domain"
	"github.com/natlachat/natla/internal/media"
)

// CreateTransport makes a transport on the peer's room session. The
// isSender flag is advisory; send and receive transports are identical
// on this side of the engine boundary.
func (o *Orchestrator) CreateTransport(ctx context.Context, conn domain.ConnID, isSender bool) (media.TransportParams, error) {
	peer, ok := o.Registry.Get(conn)
	if !ok || peer.RoomID == "" {
		return media.TransportParams{}, fmt.Errorf("peer has no room: %w", ErrNotFound)
	}
	sess, ok := o.Rooms.Get(peer.RoomID)
	if !ok {
		return media.TransportParams{}, fmt.Errorf("room %s: %w", peer.RoomID, ErrNotFound)
	}

	t, err := sess.CreateTransport(ctx)
	if err != nil {
		return media.TransportParams{}, fmt.Errorf("create transport: %w", err)
	}
	// Engine call suspended; the peer may have disconnected meanwhile.
	if !o.Registry.AddTransport(conn, t) {
		t.Close()
		return media.TransportParams{}, ErrNotFound
	}

	log.Debug().Str("module", "orch").Str("conn", string(conn)).Str("transport", t.ID()).Bool("sender", isSender).Msg("transport created")
	return t.Params(), nil
}

// ConnectTransport is fire-and-forget on the wire; errors are returned
// for logging only, the client never gets a reply.
func (o *Orchestrator) ConnectTransport(ctx context.Context, conn domain.ConnID, transportID string, dtls media.DTLSParameters) error {
	t, ok := o.Registry.Transport(conn, transportID)
	if !ok {
		return fmt.Errorf("transport %s: %w", transportID, ErrNotFound)
	}
	if err := t.Connect(ctx, dtls); err != nil {
		return fmt.Errorf("connect transport %s: %w", transportID, err)
	}
	return nil
}

// Produce starts the peer's outbound media and announces it room-wide.
// A new producer also re-runs ghost reconciliation for the display
// name, the same as a join does.
func (o *Orchestrator) Produce(ctx context.Context, conn domain.ConnID, transportID string, kind media.Kind, rtp media.RTPParameters) (string, error) {
	t, ok := o.Registry.Transport(conn, transportID)
	if !ok {
		return "", fmt.Errorf("transport %s: %w", transportID, ErrNotFound)
	}

	p, err := t.Produce(ctx, kind, rtp)
	if err != nil {
		return "", fmt.Errorf("produce: %w", err)
	}

	peer, ok := o.Registry.Get(conn)
	if !ok {
		p.Close()
		return "", ErrNotFound
	}
	o.evictGhosts(peer.RoomID, peer.DisplayName, conn)

	if !o.Registry.AddProducer(conn, p) {
		p.Close()
		return "", ErrNotFound
	}

	log.Info().Str("module", "orch").Str("conn", string(conn)).Str("producer", p.ID()).Msg("producing")
	o.broadcastRoom(peer.RoomID, conn, "new-producer", NewProducerEvent{
		ProducerID:  p.ID(),
		ConnID:      conn,
		DisplayName: peer.DisplayName,
		Avatar:      peer.Avatar,
	})
	return p.ID(), nil
}

// Consume creates a paused consumer for an existing producer. Engine
// refusals (incompatible capabilities, unknown producer) go back to
// the caller; the connection stays up.
func (o *Orchestrator) Consume(ctx context.Context, conn domain.ConnID, transportID, producerID string, caps media.RTPCapabilities) (media.ConsumerParams, error) {
	t, ok := o.Registry.Transport(conn, transportID)
	if !ok {
		return media.ConsumerParams{}, fmt.Errorf("transport %s: %w", transportID, ErrNotFound)
	}

	c, err := t.Consume(ctx, producerID, caps)
	if err != nil {
		return media.ConsumerParams{}, fmt.Errorf("consume producer %s: %w", producerID, err)
	}
	if !o.Registry.AddConsumer(conn, c) {
		c.Close()
		return media.ConsumerParams{}, ErrNotFound
	}

	log.Debug().Str("module", "orch").Str("conn", string(conn)).Str("consumer", c.ID()).Str("producer", producerID).Msg("consumer created")
	return c.Params(), nil
}

func (o *Orchestrator) ResumeConsumer(ctx context.Context, conn domain.ConnID, consumerID string) error {
	c, ok := o.Registry.Consumer(conn, consumerID)
	if !ok {
		return fmt.Errorf("consumer %s: %w", consumerID, ErrNotFound)
	}
	if err := c.Resume(ctx); err != nil {
		return fmt.Errorf("resume consumer %s: %w", consumerID, err)
	}
	return nil
}

// UpdatePresence stores the advisory mute/deafen flags and rebroadcasts
// them; nothing here touches the media path.
func (o *Orchestrator) UpdatePresence(conn domain.ConnID, p domain.Presence) {
	info, ok := o.Registry.SetPresence(conn, p)
	if !ok || info.RoomID == "" {
		return
	}
	o.broadcastRoom(info.RoomID, conn, "peer-update", PeerUpdateEvent{
		PeerID:   conn,
		Muted:    p.Muted,
		Deafened: p.Deafened,
	})
}

// PlaySound relays a soundboard trigger to everyone else in the room.
// Never persisted.
func (o *Orchestrator) PlaySound(conn domain.ConnID, soundPath string, isCustom bool) {
	peer, ok := o.Registry.Get(conn)
	if !ok || peer.RoomID == "" {
		return
	}
	o.broadcastRoom(peer.RoomID, conn, "play-sound", PlaySoundEvent{
		SoundPath: soundPath,
		IsCustom:  isCustom,
		SenderID:  conn,
	})
}
