package http

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/natlachat/natla/internal/app"
	"github.com/natlachat/natla/internal/config"
	"github.com/natlachat/natla/internal/store"
)

type FileHandler struct {
	Store       *store.Store
	Limiter     *app.FixedWindowLimiter
	UploadLimit config.RateLimit
	Dir         string
	MaxBytes    int64
}

// Upload stores a file under a generated id. Bytes land in Dir, the
// metadata in the store; the chat message referencing it is a separate
// signaling operation.
func (h *FileHandler) Upload(c *gin.Context) {
	userID, err := h.Store.ValidateSession(bearerToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if !h.Limiter.Allow("upload:"+string(userID), h.UploadLimit.Limit, h.UploadLimit.Window) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	if h.MaxBytes > 0 && fh.Size > h.MaxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	name := fh.Filename
	if v := c.PostForm("fileName"); v != "" {
		name = v
	}
	meta, err := h.Store.SaveFile(string(userID), name, fh.Header.Get("Content-Type"), fh.Size)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("save file meta failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	if err := c.SaveUploadedFile(fh, filepath.Join(h.Dir, meta.ID)); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("store upload failed")
		if derr := h.Store.DeleteFile(meta.ID); derr != nil {
			log.Error().Err(derr).Str("module", "adapters.http").Str("file", meta.ID).Msg("orphan metadata cleanup failed")
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}

	log.Info().Str("module", "adapters.http").Str("file", meta.ID).Str("user", string(userID)).Int64("size", meta.Size).Msg("file uploaded")
	c.JSON(http.StatusOK, gin.H{
		"fileId":   meta.ID,
		"fileName": meta.Name,
		"mimeType": meta.MimeType,
		"size":     meta.Size,
	})
}

// Download streams a stored file. The token rides a query parameter so
// plain <a> links work.
func (h *FileHandler) Download(c *gin.Context) {
	if _, err := h.Store.ValidateSession(c.Query("token")); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	meta, err := h.Store.FileMeta(c.Param("fileId"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "download failed"})
		return
	}

	path := filepath.Join(h.Dir, meta.ID)
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.FileAttachment(path, meta.Name)
}

// RunFileSweeper deletes on-disk files older than retention,
// independent of the chat store's own message TTL.
func RunFileSweeper(dir string, retention, interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			SweepDir(dir, retention)
		}
	}
}

func SweepDir(dir string, retention time.Duration) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("file sweep: read dir")
		return
	}
	cutoff := time.Now().Add(-retention)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Str("file", e.Name()).Msg("file sweep: remove")
			continue
		}
		log.Info().Str("module", "adapters.http").Str("file", e.Name()).Msg("expired file removed")
	}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
