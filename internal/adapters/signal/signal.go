// Package signal is the websocket signaling surface: one bidirectional
// channel per connection carrying request/reply operations and
// room-wide broadcast events.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/natlachat/natla/internal/app/orch"
	"github.com/natlachat/natla/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// SessionValidator resolves a client token to a user id. Implemented
// by the store; treated as an external collaborator here.
type SessionValidator interface {
	ValidateSession(token string) (domain.UserID, error)
}

type Controller struct {
	Orch       *orch.Orchestrator
	Validator  SessionValidator
	ReadLimit  int64
	PingPeriod time.Duration
}

// wsConn wraps one websocket with a buffered outbound queue. TrySend
// never blocks; a full queue drops the frame.
type wsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal authenticates the token, upgrades the connection and
// runs the pumps. An invalid token never gets a socket.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	token := c.Query("token")
	userID, err := ctl.Validator.ValidateSession(token)
	if err != nil {
		log.Warn().Str("module", "signal").Msg("rejected connection: invalid token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &wsConn{
		conn: ws,
		send: make(chan []byte, 32),
	}
	connID := domain.ConnID(uuid.NewString())
	log.Info().Str("module", "signal").Str("conn", string(connID)).Str("user", string(userID)).Msg("new WS connection")

	ctl.Orch.Registry.Bind(connID, userID, conn)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, connID, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, connID, conn)
		ctl.Orch.Disconnect(connID)
	}()
}
