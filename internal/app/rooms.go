package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/natlachat/natla/internal/domain"
	"github.com/natlachat/natla/internal/media"
)

// Rooms maps room ids to their media sessions. A room is created
// lazily on first join and, matching the reference behavior, is never
// destroyed for the lifetime of the process.
type Rooms struct {
	pool *media.Pool

	mu    sync.RWMutex
	rooms map[domain.RoomID]media.Session
}

func NewRooms(pool *media.Pool) *Rooms {
	return &Rooms{pool: pool, rooms: make(map[domain.RoomID]media.Session)}
}

// GetOrCreate returns the room's media session, creating it on the
// next scheduled worker if unknown. Idempotent for existing rooms.
func (r *Rooms) GetOrCreate(ctx context.Context, id domain.RoomID) (media.Session, error) {
	r.mu.RLock()
	sess, ok := r.rooms[id]
	r.mu.RUnlock()
	if ok {
		return sess, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok = r.rooms[id]; ok {
		return sess, nil
	}
	worker := r.pool.Next()
	sess, err := worker.CreateSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("create media session for room %s: %w", id, err)
	}
	r.rooms[id] = sess
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room created")
	return sess, nil
}

func (r *Rooms) Get(id domain.RoomID) (media.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.rooms[id]
	return sess, ok
}

// Count exists so a capacity policy can be layered on later; there is
// deliberately no eviction path today.
func (r *Rooms) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
