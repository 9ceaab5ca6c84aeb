// Package store persists chat messages, per-user hidden-message
// markers, anonymous auth sessions and upload metadata.
//
// Retention is enforced at read time (every query carries an expiry
// predicate) and reclaimed by SweepExpired, so visible behavior does
// not depend on how often the sweeper runs.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/natlachat/natla/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Message is an immutable chat entry. File payload fields are only set
// for type "file"; the bytes live on disk under FileID.
type Message struct {
	ID         string             `gorm:"primaryKey;size:36" json:"id"`
	RoomID     string             `gorm:"index;size:64" json:"roomId"`
	SenderID   string             `gorm:"size:36" json:"senderId"`
	SenderName string             `gorm:"size:36" json:"senderName"`
	Type       domain.MessageType `gorm:"size:8" json:"type"`
	Text       string             `json:"text,omitempty"`
	FileID     string             `gorm:"size:36" json:"fileId,omitempty"`
	FileName   string             `json:"fileName,omitempty"`
	MimeType   string             `json:"mimeType,omitempty"`
	FileSize   int64              `json:"fileSize,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
	ExpiresAt  time.Time          `gorm:"index" json:"expiresAt"`
}

// HiddenMessage marks one message invisible to one user. The marker
// expires on its own; the message is untouched.
type HiddenMessage struct {
	UserID    string    `gorm:"primaryKey;size:36"`
	MessageID string    `gorm:"primaryKey;size:36"`
	CreatedAt time.Time
	ExpiresAt time.Time `gorm:"index"`
}

// AuthSession is an anonymous identity with a sliding expiry.
type AuthSession struct {
	Token      string    `gorm:"primaryKey;size:64"`
	UserID     string    `gorm:"uniqueIndex;size:36"`
	CreatedAt  time.Time
	LastSeenAt time.Time
	ExpiresAt  time.Time `gorm:"index"`
}

// File is upload metadata; the payload sits in the upload directory.
type File struct {
	ID        string `gorm:"primaryKey;size:36" json:"fileId"`
	OwnerID   string `gorm:"size:36" json:"-"`
	Name      string `json:"fileName"`
	MimeType  string `json:"mimeType"`
	Size      int64  `json:"size"`
	CreatedAt time.Time `json:"-"`
}

type Store struct {
	db  *gorm.DB
	now func() time.Time

	SessionTTL time.Duration
}

func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.AutoMigrate(&Message{}, &HiddenMessage{}, &AuthSession{}, &File{}); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return &Store{
		db:         db,
		now:        time.Now,
		SessionTTL: 7 * 24 * time.Hour,
	}, nil
}

// SweepExpired reclaims rows whose expiry elapsed. Visibility never
// depends on this; queries filter on expiry themselves.
func (s *Store) SweepExpired() error {
	now := s.now()
	for _, m := range []any{&Message{}, &HiddenMessage{}, &AuthSession{}} {
		if err := s.db.Where("expires_at <= ?", now).Delete(m).Error; err != nil {
			return fmt.Errorf("sweep expired: %w", err)
		}
	}
	log.Debug().Str("module", "store").Msg("expired rows swept")
	return nil
}

// RunSweeper sweeps on the given interval until stop is closed.
func (s *Store) RunSweeper(interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if err := s.SweepExpired(); err != nil {
				log.Error().Err(err).Str("module", "store").Msg("sweep failed")
			}
		}
	}
}
