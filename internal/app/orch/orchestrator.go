// Package orch coordinates the peer session lifecycle: join, media
// setup, chat, presence and disconnect. Handlers here may suspend on
// the store or the media engine; every continuation re-fetches its
// peer from the registry and aborts if a disconnect won the race.
package orch

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/natlachat/natla/internal/app"
	"github.com/natlachat/natla/internal/config"
	"github.com/natlachat/natla/internal/domain"
	"github.com/natlachat/natla/internal/store"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limit exceeded")
)

type Settings struct {
	ChatLimit             config.RateLimit
	TextRetentionHours    int
	FileMsgRetentionHours int
	HistoryLimit          int
}

type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.Rooms
	Store    *store.Store
	Limiter  *app.FixedWindowLimiter
	Ghosts   app.GhostPolicy
	Settings Settings
}

// Event is the broadcast envelope shared with the signaling adapter.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type RoomUpdateEvent struct {
	RoomID domain.RoomID `json:"roomId"`
}

type NewProducerEvent struct {
	ProducerID  string        `json:"producerId"`
	ConnID      domain.ConnID `json:"connId"`
	DisplayName string        `json:"displayName"`
	Avatar      string        `json:"avatar,omitempty"`
}

type ProducerClosedEvent struct {
	ProducerID  string        `json:"producerId"`
	ConnID      domain.ConnID `json:"connId"`
	DisplayName string        `json:"displayName"`
}

type PeerUpdateEvent struct {
	PeerID   domain.ConnID `json:"peerId"`
	Muted    bool          `json:"isMuted"`
	Deafened bool          `json:"isDeafened"`
}

type PlaySoundEvent struct {
	SoundPath string        `json:"soundPath"`
	IsCustom  bool          `json:"isCustom"`
	SenderID  domain.ConnID `json:"senderId"`
}

// broadcastRoom fans an event out to every member of the room except
// one connection. Fire-and-forget: slow receivers just drop it.
func (o *Orchestrator) broadcastRoom(room domain.RoomID, except domain.ConnID, typ string, data any) {
	b, err := json.Marshal(Event{Type: typ, Data: data})
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("event", typ).Msg("marshal event")
		return
	}
	for _, sig := range o.Registry.SignalsOfRoom(room, except) {
		_ = sig.TrySend(b)
	}
}

// broadcastAll reaches every connection, joined or not. Room previews
// listen for room-update before joining anything.
func (o *Orchestrator) broadcastAll(typ string, data any) {
	b, err := json.Marshal(Event{Type: typ, Data: data})
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("event", typ).Msg("marshal event")
		return
	}
	for _, sig := range o.Registry.AllSignals() {
		_ = sig.TrySend(b)
	}
}
