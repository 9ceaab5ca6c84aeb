package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/natlachat/natla/internal/app"
	"github.com/natlachat/natla/internal/config"
	"github.com/natlachat/natla/internal/store"
)

type AuthHandler struct {
	Store   *store.Store
	Limiter *app.FixedWindowLimiter
	Limit   config.RateLimit
}

// CreateSession issues an anonymous identity, rate-limited per IP.
func (h *AuthHandler) CreateSession(c *gin.Context) {
	if !h.Limiter.Allow("sess:"+c.ClientIP(), h.Limit.Limit, h.Limit.Window) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	sess, err := h.Store.CreateSession()
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("create session failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session creation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":    sess.UserID,
		"token":     sess.Token,
		"expiresAt": sess.ExpiresAt,
	})
}
