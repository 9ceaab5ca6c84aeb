package orch

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/natlachat/natla/internal/domain"
	"github.com/natlachat/natla/internal/store"
)

// SendChat persists a message with type-dependent retention and
// broadcasts it to the rest of the room. The saved copy (with its
// assigned id) goes back to the sender as the reply.
func (o *Orchestrator) SendChat(conn domain.ConnID, text string, msgType domain.MessageType, file *domain.FileInfo) (store.Message, error) {
	peer, ok := o.Registry.Get(conn)
	if !ok || peer.User == "" {
		return store.Message{}, ErrUnauthorized
	}
	if peer.RoomID == "" {
		return store.Message{}, fmt.Errorf("peer has no room: %w", ErrNotFound)
	}
	if !o.Limiter.Allow("msg:"+string(peer.User), o.Settings.ChatLimit.Limit, o.Settings.ChatLimit.Window) {
		return store.Message{}, ErrRateLimited
	}

	msg := store.Message{
		RoomID:     string(peer.RoomID),
		SenderID:   string(peer.User),
		SenderName: peer.DisplayName,
		Type:       msgType,
		Text:       text,
	}
	retention := o.Settings.TextRetentionHours
	if msgType == domain.MessageFile && file != nil {
		msg.FileID = file.FileID
		msg.FileName = file.FileName
		msg.MimeType = file.MimeType
		msg.FileSize = file.Size
		retention = o.Settings.FileMsgRetentionHours
	}

	saved, err := o.Store.SaveMessage(msg, retention)
	if err != nil {
		// Degrades to "not delivered"; the connection stays alive.
		log.Error().Err(err).Str("module", "orch").Str("conn", string(conn)).Msg("chat save failed")
		return store.Message{}, fmt.Errorf("message not delivered: %w", err)
	}
	// The store write suspended; skip the broadcast if the sender is
	// gone, the message itself is already durable.
	if !o.Registry.Exists(conn) {
		return saved, nil
	}

	o.broadcastRoom(peer.RoomID, conn, "chat-message", saved)
	return saved, nil
}

// HideMessage soft-deletes one message for the calling user only.
func (o *Orchestrator) HideMessage(conn domain.ConnID, messageID string) error {
	peer, ok := o.Registry.Get(conn)
	if !ok || peer.User == "" {
		return ErrUnauthorized
	}
	return o.Store.HideMessage(string(peer.User), messageID)
}

// HideRoomHistory soft-deletes the room's whole current history for
// the calling user.
func (o *Orchestrator) HideRoomHistory(conn domain.ConnID, roomID domain.RoomID) error {
	peer, ok := o.Registry.Get(conn)
	if !ok || peer.User == "" {
		return ErrUnauthorized
	}
	if roomID == "" {
		roomID = peer.RoomID
	}
	return o.Store.HideAllMessages(string(peer.User), string(roomID))
}
