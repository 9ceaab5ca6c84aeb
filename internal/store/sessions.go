package store

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/natlachat/natla/internal/domain"
)

// CreateSession issues a fresh anonymous identity.
func (s *Store) CreateSession() (AuthSession, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return AuthSession{}, fmt.Errorf("create session: %w", err)
	}
	now := s.now()
	sess := AuthSession{
		Token:      hex.EncodeToString(buf),
		UserID:     uuid.NewString(),
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(s.SessionTTL),
	}
	if err := s.db.Create(&sess).Error; err != nil {
		return AuthSession{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// ValidateSession resolves a token to its user and slides the expiry
// window forward. Unknown and expired tokens both yield ErrInvalidToken.
func (s *Store) ValidateSession(token string) (domain.UserID, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	now := s.now()

	var sess AuthSession
	err := s.db.Where("token = ? AND expires_at > ?", token, now).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("validate session: %w", err)
	}

	err = s.db.Model(&AuthSession{}).Where("token = ?", token).Updates(map[string]any{
		"last_seen_at": now,
		"expires_at":   now.Add(s.SessionTTL),
	}).Error
	if err != nil {
		return "", fmt.Errorf("renew session: %w", err)
	}
	return domain.UserID(sess.UserID), nil
}
