package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/natlachat/natla/internal/domain"
	"github.com/natlachat/natla/internal/media"
)

// SignalConn abstracts the signaling transport of one connection.
// Owned by the adapter; the adapter must Close() it.
type SignalConn interface {
	TrySend([]byte) error
	Close()
}

// PeerSession is the server-side state of one connection: identity,
// room membership, presence flags and owned media resources. All
// access goes through the Registry, which holds the lock.
type PeerSession struct {
	Peer   domain.Peer
	RoomID domain.RoomID
	Signal SignalConn

	transports map[string]media.Transport
	producers  map[string]media.Producer
	consumers  map[string]media.Consumer
}

// Transports returns the owned transports. Only valid on a session
// handed out by Unbind or DetachMedia (cleanup paths).
func (p *PeerSession) Transports() map[string]media.Transport { return p.transports }
func (p *PeerSession) Producers() map[string]media.Producer   { return p.producers }
func (p *PeerSession) Consumers() map[string]media.Consumer   { return p.consumers }

// PeerInfo is a read-only snapshot for broadcasts and responses.
type PeerInfo struct {
	domain.Peer
	RoomID      domain.RoomID
	ProducerIDs []string
}

// Registry maps connection ids to peer sessions. It is the only
// shared membership view; every lookup after a suspension point must
// go back through it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.ConnID]*PeerSession
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.ConnID]*PeerSession)}
}

// Bind registers a freshly authenticated connection. There is at most
// one session per connection id.
func (r *Registry) Bind(conn domain.ConnID, user domain.UserID, signal SignalConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[conn] = &PeerSession{
		Peer:       domain.Peer{Conn: conn, User: user, DisplayName: domain.DefaultDisplayName(conn)},
		Signal:     signal,
		transports: make(map[string]media.Transport),
		producers:  make(map[string]media.Producer),
		consumers:  make(map[string]media.Consumer),
	}
	log.Info().Str("module", "app.registry").Str("conn", string(conn)).Str("user", string(user)).Msg("session bound")
}

// Unbind removes the session and hands its resources to the caller for
// cleanup. The second call for the same id is a no-op.
func (r *Registry) Unbind(conn domain.ConnID) (*PeerSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[conn]
	if !ok {
		return nil, false
	}
	delete(r.sessions, conn)
	log.Info().Str("module", "app.registry").Str("conn", string(conn)).Msg("session unbound")
	return sess, true
}

func (r *Registry) Exists(conn domain.ConnID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[conn]
	return ok
}

func (r *Registry) Get(conn domain.ConnID) (PeerInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[conn]
	if !ok {
		return PeerInfo{}, false
	}
	return snapshot(sess), true
}

// SetRoom places the session into a room and refreshes its identity.
func (r *Registry) SetRoom(conn domain.ConnID, room domain.RoomID, displayName, avatar string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[conn]
	if !ok {
		return false
	}
	sess.RoomID = room
	if displayName != "" {
		sess.Peer.DisplayName = displayName
	}
	sess.Peer.Avatar = avatar
	sess.Peer.Presence = domain.Presence{}
	log.Info().Str("module", "app.registry").Str("conn", string(conn)).Str("room", string(room)).Msg("joined room")
	return true
}

// DetachMedia swaps the session's media maps for fresh ones and hands
// the old ones to the caller for teardown. Resources never follow a
// peer across rooms; Join detaches before re-admitting.
func (r *Registry) DetachMedia(conn domain.ConnID) (*PeerSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[conn]
	if !ok {
		return nil, false
	}
	detached := &PeerSession{
		Peer:       sess.Peer,
		RoomID:     sess.RoomID,
		transports: sess.transports,
		producers:  sess.producers,
		consumers:  sess.consumers,
	}
	sess.transports = make(map[string]media.Transport)
	sess.producers = make(map[string]media.Producer)
	sess.consumers = make(map[string]media.Consumer)
	return detached, true
}

func (r *Registry) SetPresence(conn domain.ConnID, p domain.Presence) (PeerInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[conn]
	if !ok {
		return PeerInfo{}, false
	}
	sess.Peer.Presence = p
	return snapshot(sess), true
}

func (r *Registry) AddTransport(conn domain.ConnID, t media.Transport) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[conn]
	if !ok {
		return false
	}
	sess.transports[t.ID()] = t
	return true
}

func (r *Registry) Transport(conn domain.ConnID, id string) (media.Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[conn]
	if !ok {
		return nil, false
	}
	t, ok := sess.transports[id]
	return t, ok
}

func (r *Registry) AddProducer(conn domain.ConnID, p media.Producer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[conn]
	if !ok {
		return false
	}
	sess.producers[p.ID()] = p
	return true
}

func (r *Registry) AddConsumer(conn domain.ConnID, c media.Consumer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[conn]
	if !ok {
		return false
	}
	sess.consumers[c.ID()] = c
	return true
}

func (r *Registry) Consumer(conn domain.ConnID, id string) (media.Consumer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[conn]
	if !ok {
		return nil, false
	}
	c, ok := sess.consumers[id]
	return c, ok
}

// MembersOfRoom snapshots every session currently in the room.
func (r *Registry) MembersOfRoom(room domain.RoomID) []PeerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []PeerInfo
	for _, sess := range r.sessions {
		if sess.RoomID == room {
			out = append(out, snapshot(sess))
		}
	}
	return out
}

// SignalsOfRoom collects signal connections for a room broadcast,
// optionally excluding one connection.
func (r *Registry) SignalsOfRoom(room domain.RoomID, except domain.ConnID) []SignalConn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []SignalConn
	for conn, sess := range r.sessions {
		if sess.RoomID != room || conn == except || sess.Signal == nil {
			continue
		}
		out = append(out, sess.Signal)
	}
	return out
}

// AllSignals collects every connection, joined or not. Used for the
// global room-update event that feeds room previews.
func (r *Registry) AllSignals() []SignalConn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SignalConn, 0, len(r.sessions))
	for _, sess := range r.sessions {
		if sess.Signal != nil {
			out = append(out, sess.Signal)
		}
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func snapshot(sess *PeerSession) PeerInfo {
	info := PeerInfo{Peer: sess.Peer, RoomID: sess.RoomID}
	for id := range sess.producers {
		info.ProducerIDs = append(info.ProducerIDs, id)
	}
	return info
}
