package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

// HiddenMarkerTTL is how long a hidden-message marker outlives its
// creation before the user sees the message again (if the message
// itself still exists by then).
const HiddenMarkerTTL = 30 * 24 * time.Hour

// SaveMessage stamps identity and expiry and persists the message.
// The returned copy carries the assigned ID.
func (s *Store) SaveMessage(msg Message, retentionHours int) (Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = s.now()
	msg.ExpiresAt = msg.CreatedAt.Add(time.Duration(retentionHours) * time.Hour)

	if err := s.db.Create(&msg).Error; err != nil {
		return Message{}, fmt.Errorf("save message: %w", err)
	}
	return msg, nil
}

// RecentMessages returns the newest limit messages of a room in
// chronological order, excluding expired ones.
func (s *Store) RecentMessages(roomID string, limit int) ([]Message, error) {
	var msgs []Message
	err := s.db.
		Where("room_id = ? AND expires_at > ?", roomID, s.now()).
		Order("created_at DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// HideMessage records that messageID is invisible to userID. Hiding an
// already-hidden message is a no-op, not an error.
func (s *Store) HideMessage(userID, messageID string) error {
	now := s.now()
	rec := HiddenMessage{
		UserID:    userID,
		MessageID: messageID,
		CreatedAt: now,
		ExpiresAt: now.Add(HiddenMarkerTTL),
	}
	err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("hide message: %w", err)
	}
	return nil
}

// HiddenMessageIDs returns the subset of messageIDs hidden for userID.
func (s *Store) HiddenMessageIDs(userID string, messageIDs []string) ([]string, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var ids []string
	err := s.db.Model(&HiddenMessage{}).
		Where("user_id = ? AND message_id IN ? AND expires_at > ?", userID, messageIDs, s.now()).
		Pluck("message_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("hidden message ids: %w", err)
	}
	return ids, nil
}

// HideAllMessages hides every current message of a room for one user.
// Messages already hidden are skipped silently.
func (s *Store) HideAllMessages(userID, roomID string) error {
	now := s.now()
	var ids []string
	err := s.db.Model(&Message{}).
		Where("room_id = ? AND expires_at > ?", roomID, now).
		Pluck("id", &ids).Error
	if err != nil {
		return fmt.Errorf("hide all: list messages: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	recs := make([]HiddenMessage, 0, len(ids))
	for _, id := range ids {
		recs = append(recs, HiddenMessage{
			UserID:    userID,
			MessageID: id,
			CreatedAt: now,
			ExpiresAt: now.Add(HiddenMarkerTTL),
		})
	}
	err = s.db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(recs, 100).Error
	if err != nil {
		return fmt.Errorf("hide all: insert markers: %w", err)
	}
	return nil
}
