package orch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/natlachat/natla/internal/domain"
	"github.com/natlachat/natla/internal/media"
	"github.com/natlachat/natla/internal/store"
)

type ExistingProducer struct {
	ProducerID  string        `json:"producerId"`
	ConnID      domain.ConnID `json:"connId"`
	DisplayName string        `json:"displayName"`
	Avatar      string        `json:"avatar,omitempty"`
	Muted       bool          `json:"isMuted"`
	Deafened    bool          `json:"isDeafened"`
}

type JoinResult struct {
	RTPCapabilities   media.RTPCapabilities `json:"rtpCapabilities"`
	ExistingProducers []ExistingProducer    `json:"existingProducers"`
	Messages          []store.Message       `json:"messages"`
}

type RoomStats struct {
	Users []string `json:"users"`
}

// Join puts an authenticated connection into a room and returns what
// the client needs to start: room capabilities, who is already
// producing, and the chat history minus what this user has hidden.
func (o *Orchestrator) Join(ctx context.Context, conn domain.ConnID, roomID domain.RoomID, displayName, avatar string) (JoinResult, error) {
	peer, ok := o.Registry.Get(conn)
	if !ok || peer.User == "" {
		return JoinResult{}, ErrUnauthorized
	}
	if displayName == "" {
		displayName = peer.DisplayName
	}
	if err := domain.ValidDisplayName(displayName); err != nil {
		return JoinResult{}, err
	}

	sess, err := o.Rooms.GetOrCreate(ctx, roomID)
	if err != nil {
		return JoinResult{}, fmt.Errorf("join room %s: %w", roomID, err)
	}
	// The session creation suspended; the connection may be gone.
	if !o.Registry.Exists(conn) {
		return JoinResult{}, ErrNotFound
	}

	o.evictGhosts(roomID, displayName, conn)

	// Media never follows a peer across rooms; whatever this
	// connection was producing or consuming is torn down first.
	o.releaseMedia(conn)

	if !o.Registry.SetRoom(conn, roomID, displayName, avatar) {
		return JoinResult{}, ErrNotFound
	}

	existing := make([]ExistingProducer, 0)
	for _, m := range o.Registry.MembersOfRoom(roomID) {
		if m.Conn == conn {
			continue
		}
		for _, pid := range m.ProducerIDs {
			existing = append(existing, ExistingProducer{
				ProducerID:  pid,
				ConnID:      m.Conn,
				DisplayName: m.DisplayName,
				Avatar:      m.Avatar,
				Muted:       m.Muted,
				Deafened:    m.Deafened,
			})
		}
	}

	messages := o.visibleHistory(string(peer.User), string(roomID))
	if !o.Registry.Exists(conn) {
		return JoinResult{}, ErrNotFound
	}

	log.Info().Str("module", "orch").Str("conn", string(conn)).Str("room", string(roomID)).Str("name", displayName).Msg("peer joined")
	o.broadcastAll("room-update", RoomUpdateEvent{RoomID: roomID})

	return JoinResult{
		RTPCapabilities:   sess.RTPCapabilities(),
		ExistingProducers: existing,
		Messages:          messages,
	}, nil
}

// visibleHistory degrades to an empty history on store failure; chat
// being down must not block joining a room.
func (o *Orchestrator) visibleHistory(userID, roomID string) []store.Message {
	msgs, err := o.Store.RecentMessages(roomID, o.Settings.HistoryLimit)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("room", roomID).Msg("history load failed")
		return []store.Message{}
	}
	if len(msgs) == 0 {
		return []store.Message{}
	}

	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	hidden, err := o.Store.HiddenMessageIDs(userID, ids)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("hidden filter failed")
		return msgs
	}
	if len(hidden) == 0 {
		return msgs
	}

	hiddenSet := make(map[string]struct{}, len(hidden))
	for _, id := range hidden {
		hiddenSet[id] = struct{}{}
	}
	out := make([]store.Message, 0, len(msgs))
	for _, m := range msgs {
		if _, ok := hiddenSet[m.ID]; !ok {
			out = append(out, m)
		}
	}
	return out
}

// evictGhosts removes stale sessions that a newly active identity
// makes obsolete, with the full departure cascade for each.
func (o *Orchestrator) evictGhosts(roomID domain.RoomID, displayName string, incoming domain.ConnID) {
	for _, stale := range o.Ghosts.Stale(o.Registry.MembersOfRoom(roomID), displayName, incoming) {
		log.Warn().Str("module", "orch").Str("conn", string(stale)).Str("name", displayName).Str("room", string(roomID)).Msg("evicting ghost peer")
		o.Disconnect(stale)
	}
}

// releaseMedia tears down everything the connection produced or
// consumed in its current room and announces the closed producers
// there. The session itself stays registered.
func (o *Orchestrator) releaseMedia(conn domain.ConnID) {
	sess, ok := o.Registry.DetachMedia(conn)
	if !ok {
		return
	}
	for _, c := range sess.Consumers() {
		c.Close()
	}
	for id, p := range sess.Producers() {
		o.broadcastRoom(sess.RoomID, conn, "producer-closed", ProducerClosedEvent{
			ProducerID:  id,
			ConnID:      conn,
			DisplayName: sess.Peer.DisplayName,
		})
		p.Close()
	}
	for _, t := range sess.Transports() {
		t.Close()
	}
}

// Stats lists display names of the room's current members. Serves the
// preview screen; no auth-sensitive data.
func (o *Orchestrator) Stats(roomID domain.RoomID) RoomStats {
	stats := RoomStats{Users: make([]string, 0)}
	for _, m := range o.Registry.MembersOfRoom(roomID) {
		stats.Users = append(stats.Users, m.DisplayName)
	}
	return stats
}

// Disconnect runs the full departure cascade: close consumers, close
// and announce producers, close transports, drop the session, notify
// room listeners. Safe to call any number of times.
func (o *Orchestrator) Disconnect(conn domain.ConnID) {
	sess, ok := o.Registry.Unbind(conn)
	if !ok {
		return
	}
	room := sess.RoomID

	for _, c := range sess.Consumers() {
		c.Close()
	}
	for id, p := range sess.Producers() {
		o.broadcastRoom(room, conn, "producer-closed", ProducerClosedEvent{
			ProducerID:  id,
			ConnID:      conn,
			DisplayName: sess.Peer.DisplayName,
		})
		p.Close()
	}
	for _, t := range sess.Transports() {
		t.Close()
	}
	if sess.Signal != nil {
		sess.Signal.Close()
	}

	log.Info().Str("module", "orch").Str("conn", string(conn)).Str("room", string(room)).Msg("peer disconnected")
	if room != "" {
		o.broadcastAll("room-update", RoomUpdateEvent{RoomID: room})
	}
}
