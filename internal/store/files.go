package store

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SaveFile records upload metadata and returns the assigned file id.
func (s *Store) SaveFile(ownerID, name, mimeType string, size int64) (File, error) {
	f := File{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      name,
		MimeType:  mimeType,
		Size:      size,
		CreatedAt: s.now(),
	}
	if err := s.db.Create(&f).Error; err != nil {
		return File{}, fmt.Errorf("save file: %w", err)
	}
	return f, nil
}

// DeleteFile removes upload metadata. Used when writing the bytes to
// disk failed after the row was created.
func (s *Store) DeleteFile(fileID string) error {
	if err := s.db.Delete(&File{}, "id = ?", fileID).Error; err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

func (s *Store) FileMeta(fileID string) (File, error) {
	var f File
	err := s.db.First(&f, "id = ?", fileID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return File{}, ErrNotFound
	}
	if err != nil {
		return File{}, fmt.Errorf("file meta: %w", err)
	}
	return f, nil
}
