package orch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natlachat/natla/internal/app"
	"github.com/natlachat/natla/internal/config"
	"github.com/natlachat/natla/internal/domain"
	"github.com/natlachat/natla/internal/media"
	"github.com/natlachat/natla/internal/store"
)

// recSignal records every frame sent to it so tests can assert on
// broadcast traffic.
type recSignal struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (s *recSignal) TrySend(b []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, b)
	return nil
}

func (s *recSignal) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *recSignal) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// eventsOf decodes the recorded frames and keeps those of one type.
func (s *recSignal) eventsOf(t *testing.T, typ string) []json.RawMessage {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []json.RawMessage
	for _, f := range s.frames {
		var raw struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(f, &raw))
		if raw.Type == typ {
			out = append(out, raw.Data)
		}
	}
	return out
}

func newTestOrch(t *testing.T) *Orchestrator {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)

	pool, err := media.NewPool(context.Background(), media.NewLoopbackEngine(), 1, media.WorkerSettings{}, nil)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return &Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRooms(pool),
		Store:    st,
		Limiter:  app.NewFixedWindowLimiter(),
		Ghosts:   app.DisplayNameGhostPolicy{},
		Settings: Settings{
			ChatLimit:             config.RateLimit{Limit: 3, Window: time.Hour},
			TextRetentionHours:    720,
			FileMsgRetentionHours: 24,
			HistoryLimit:          50,
		},
	}
}

func join(t *testing.T, o *Orchestrator, conn domain.ConnID, user domain.UserID, name string) *recSignal {
	t.Helper()
	sig := &recSignal{}
	o.Registry.Bind(conn, user, sig)
	_, err := o.Join(context.Background(), conn, "genel", name, "")
	require.NoError(t, err)
	return sig
}

func TestJoin_Unauthorized(t *testing.T) {
	o := newTestOrch(t)

	_, err := o.Join(context.Background(), "nope", "genel", "Ahmet", "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Bound but never authenticated is just as dead.
	o.Registry.Bind("c1", "", &recSignal{})
	_, err = o.Join(context.Background(), "c1", "genel", "Ahmet", "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestJoin_RejectsBadDisplayName(t *testing.T) {
	o := newTestOrch(t)
	o.Registry.Bind("c1", "u1", &recSignal{})

	_, err := o.Join(context.Background(), "c1", "genel", strings.Repeat("a", 37), "")
	assert.ErrorIs(t, err, domain.ErrNameTooLong)
}

func TestJoin_ReturnsCapabilitiesProducersAndHistory(t *testing.T) {
	o := newTestOrch(t)
	ctx := context.Background()

	join(t, o, "c1", "u1", "Ahmet")
	params, err := o.CreateTransport(ctx, "c1", true)
	require.NoError(t, err)
	pid, err := o.Produce(ctx, "c1", params.ID, media.KindAudio, media.RTPParameters{})
	require.NoError(t, err)

	_, err = o.SendChat("c1", "merhaba", domain.MessageText, nil)
	require.NoError(t, err)

	sig2 := &recSignal{}
	o.Registry.Bind("c2", "u2", sig2)
	res, err := o.Join(ctx, "c2", "genel", "Zeynep", "")
	require.NoError(t, err)

	require.Len(t, res.ExistingProducers, 1)
	assert.Equal(t, pid, res.ExistingProducers[0].ProducerID)
	assert.Equal(t, "Ahmet", res.ExistingProducers[0].DisplayName)

	require.Len(t, res.Messages, 1)
	assert.Equal(t, "merhaba", res.Messages[0].Text)

	require.NotEmpty(t, res.RTPCapabilities.Codecs)
	assert.Equal(t, webrtc.MimeTypeOpus, res.RTPCapabilities.Codecs[0].MimeType)
}

func TestJoin_HistoryOmitsHiddenMessages(t *testing.T) {
	o := newTestOrch(t)
	ctx := context.Background()

	join(t, o, "c1", "u1", "Ahmet")
	saved, err := o.SendChat("c1", "silinecek", domain.MessageText, nil)
	require.NoError(t, err)
	_, err = o.SendChat("c1", "kalacak", domain.MessageText, nil)
	require.NoError(t, err)

	sig2 := &recSignal{}
	o.Registry.Bind("c2", "u2", sig2)
	_, err = o.Join(ctx, "c2", "genel", "Zeynep", "")
	require.NoError(t, err)
	require.NoError(t, o.HideMessage("c2", saved.ID))

	// Rejoin to reload history.
	res, err := o.Join(ctx, "c2", "genel", "Zeynep", "")
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "kalacak", res.Messages[0].Text)
}

func TestJoin_EvictsGhostWithSameName(t *testing.T) {
	o := newTestOrch(t)
	ctx := context.Background()

	sig1 := join(t, o, "s1", "u1", "Ahmet")
	bystander := join(t, o, "s3", "u3", "Zeynep")

	sig2 := &recSignal{}
	o.Registry.Bind("s2", "u2", sig2)
	_, err := o.Join(ctx, "s2", "genel", "Ahmet", "")
	require.NoError(t, err)

	assert.False(t, o.Registry.Exists("s1"), "stale session must be gone")
	assert.True(t, sig1.isClosed(), "stale signal must be closed")
	assert.True(t, o.Registry.Exists("s2"))
	assert.True(t, o.Registry.Exists("s3"))

	// The bystander heard about both departures and arrivals via
	// room-update, never a duplicate producer-closed.
	assert.Empty(t, bystander.eventsOf(t, "producer-closed"))
	assert.NotEmpty(t, bystander.eventsOf(t, "room-update"))
}

func TestJoin_SwitchingRoomsReleasesOldMedia(t *testing.T) {
	o := newTestOrch(t)
	ctx := context.Background()

	join(t, o, "c1", "u1", "Ahmet")
	watcher := join(t, o, "c2", "u2", "Zeynep")

	params, err := o.CreateTransport(ctx, "c1", true)
	require.NoError(t, err)
	pid, err := o.Produce(ctx, "c1", params.ID, media.KindAudio, media.RTPParameters{})
	require.NoError(t, err)

	_, err = o.Join(ctx, "c1", "diger", "Ahmet", "")
	require.NoError(t, err)

	// The old room hears the producer close exactly once.
	events := watcher.eventsOf(t, "producer-closed")
	require.Len(t, events, 1)
	var ev ProducerClosedEvent
	require.NoError(t, json.Unmarshal(events[0], &ev))
	assert.Equal(t, pid, ev.ProducerID)

	// Nothing crossed over into the new room.
	info, ok := o.Registry.Get("c1")
	require.True(t, ok)
	assert.Empty(t, info.ProducerIDs)

	sig3 := &recSignal{}
	o.Registry.Bind("c3", "u3", sig3)
	res, err := o.Join(ctx, "c3", "diger", "Mert", "")
	require.NoError(t, err)
	assert.Empty(t, res.ExistingProducers, "stale producers must not be advertised")

	// The old transport is gone with the old room.
	_, err = o.Produce(ctx, "c1", params.ID, media.KindAudio, media.RTPParameters{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDisconnect_CascadeRunsOnce(t *testing.T) {
	o := newTestOrch(t)
	ctx := context.Background()

	join(t, o, "c1", "u1", "Ahmet")
	params, err := o.CreateTransport(ctx, "c1", true)
	require.NoError(t, err)
	_, err = o.Produce(ctx, "c1", params.ID, media.KindAudio, media.RTPParameters{})
	require.NoError(t, err)

	other := join(t, o, "c2", "u2", "Zeynep")

	o.Disconnect("c1")
	o.Disconnect("c1")

	assert.False(t, o.Registry.Exists("c1"))
	assert.Len(t, other.eventsOf(t, "producer-closed"), 1, "cascade must not repeat")
}

func TestProduce_BroadcastsNewProducer(t *testing.T) {
	o := newTestOrch(t)
	ctx := context.Background()

	join(t, o, "c1", "u1", "Ahmet")
	other := join(t, o, "c2", "u2", "Zeynep")

	params, err := o.CreateTransport(ctx, "c1", true)
	require.NoError(t, err)
	pid, err := o.Produce(ctx, "c1", params.ID, media.KindAudio, media.RTPParameters{})
	require.NoError(t, err)

	events := other.eventsOf(t, "new-producer")
	require.Len(t, events, 1)
	var ev NewProducerEvent
	require.NoError(t, json.Unmarshal(events[0], &ev))
	assert.Equal(t, pid, ev.ProducerID)
	assert.Equal(t, "Ahmet", ev.DisplayName)
}

func TestProduce_UnknownTransport(t *testing.T) {
	o := newTestOrch(t)
	join(t, o, "c1", "u1", "Ahmet")

	_, err := o.Produce(context.Background(), "c1", "missing", media.KindAudio, media.RTPParameters{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConsume_EngineRefusalsPropagate(t *testing.T) {
	o := newTestOrch(t)
	ctx := context.Background()

	join(t, o, "c1", "u1", "Ahmet")
	send, err := o.CreateTransport(ctx, "c1", true)
	require.NoError(t, err)
	pid, err := o.Produce(ctx, "c1", send.ID, media.KindAudio, media.RTPParameters{})
	require.NoError(t, err)

	join(t, o, "c2", "u2", "Zeynep")
	recv, err := o.CreateTransport(ctx, "c2", false)
	require.NoError(t, err)

	_, err = o.Consume(ctx, "c2", recv.ID, "no-such-producer", media.OpusCapabilities())
	assert.ErrorIs(t, err, media.ErrUnknownProducer)

	videoOnly := media.RTPCapabilities{
		Codecs: []webrtc.RTPCodecCapability{{MimeType: "video/VP8", ClockRate: 90000}},
	}
	_, err = o.Consume(ctx, "c2", recv.ID, pid, videoOnly)
	assert.ErrorIs(t, err, media.ErrIncompatibleCapabilities)

	// Both refusals left the session intact.
	assert.True(t, o.Registry.Exists("c2"))
}

func TestConsumeAndResume(t *testing.T) {
	o := newTestOrch(t)
	ctx := context.Background()

	join(t, o, "c1", "u1", "Ahmet")
	send, err := o.CreateTransport(ctx, "c1", true)
	require.NoError(t, err)
	pid, err := o.Produce(ctx, "c1", send.ID, media.KindAudio, media.RTPParameters{})
	require.NoError(t, err)

	join(t, o, "c2", "u2", "Zeynep")
	recv, err := o.CreateTransport(ctx, "c2", false)
	require.NoError(t, err)

	params, err := o.Consume(ctx, "c2", recv.ID, pid, media.OpusCapabilities())
	require.NoError(t, err)
	assert.Equal(t, pid, params.ProducerID)

	require.NoError(t, o.ResumeConsumer(ctx, "c2", params.ID))
}

func TestResumeConsumer_Unknown(t *testing.T) {
	o := newTestOrch(t)
	join(t, o, "c1", "u1", "Ahmet")

	err := o.ResumeConsumer(context.Background(), "c1", "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSendChat_PersistsAndBroadcastsToOthersOnly(t *testing.T) {
	o := newTestOrch(t)

	sender := join(t, o, "c1", "u1", "Ahmet")
	other := join(t, o, "c2", "u2", "Zeynep")

	saved, err := o.SendChat("c1", "merhaba", domain.MessageText, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "Ahmet", saved.SenderName)

	events := other.eventsOf(t, "chat-message")
	require.Len(t, events, 1)
	var got store.Message
	require.NoError(t, json.Unmarshal(events[0], &got))
	assert.Equal(t, saved.ID, got.ID)

	assert.Empty(t, sender.eventsOf(t, "chat-message"), "sender gets the reply, not the broadcast")
}

func TestSendChat_FileRetention(t *testing.T) {
	o := newTestOrch(t)
	join(t, o, "c1", "u1", "Ahmet")

	saved, err := o.SendChat("c1", "", domain.MessageFile, &domain.FileInfo{
		FileID:   "f1",
		FileName: "notes.txt",
		MimeType: "text/plain",
		Size:     42,
	})
	require.NoError(t, err)
	assert.Equal(t, "f1", saved.FileID)
	assert.Equal(t, saved.CreatedAt.Add(24*time.Hour), saved.ExpiresAt)
}

func TestSendChat_RateLimited(t *testing.T) {
	o := newTestOrch(t)
	join(t, o, "c1", "u1", "Ahmet")

	for i := 0; i < 3; i++ {
		_, err := o.SendChat("c1", "spam", domain.MessageText, nil)
		require.NoError(t, err)
	}
	_, err := o.SendChat("c1", "spam", domain.MessageText, nil)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestSendChat_RequiresRoom(t *testing.T) {
	o := newTestOrch(t)
	o.Registry.Bind("c1", "u1", &recSignal{})

	_, err := o.SendChat("c1", "merhaba", domain.MessageText, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHideRoomHistory_DefaultsToCurrentRoom(t *testing.T) {
	o := newTestOrch(t)
	ctx := context.Background()

	join(t, o, "c1", "u1", "Ahmet")
	_, err := o.SendChat("c1", "eski", domain.MessageText, nil)
	require.NoError(t, err)

	join(t, o, "c2", "u2", "Zeynep")
	require.NoError(t, o.HideRoomHistory("c2", ""))

	res, err := o.Join(ctx, "c2", "genel", "Zeynep", "")
	require.NoError(t, err)
	assert.Empty(t, res.Messages)
}

func TestUpdatePresence_BroadcastsToRoom(t *testing.T) {
	o := newTestOrch(t)

	join(t, o, "c1", "u1", "Ahmet")
	other := join(t, o, "c2", "u2", "Zeynep")

	o.UpdatePresence("c1", domain.Presence{Muted: true})

	events := other.eventsOf(t, "peer-update")
	require.Len(t, events, 1)
	var ev PeerUpdateEvent
	require.NoError(t, json.Unmarshal(events[0], &ev))
	assert.Equal(t, domain.ConnID("c1"), ev.PeerID)
	assert.True(t, ev.Muted)
	assert.False(t, ev.Deafened)
}

func TestPlaySound_RelayedNotPersisted(t *testing.T) {
	o := newTestOrch(t)
	ctx := context.Background()

	sender := join(t, o, "c1", "u1", "Ahmet")
	other := join(t, o, "c2", "u2", "Zeynep")

	o.PlaySound("c1", "/sounds/airhorn.mp3", false)

	require.Len(t, other.eventsOf(t, "play-sound"), 1)
	assert.Empty(t, sender.eventsOf(t, "play-sound"))

	res, err := o.Join(ctx, "c2", "genel", "Zeynep", "")
	require.NoError(t, err)
	assert.Empty(t, res.Messages, "sound triggers never reach history")
}

func TestStats_ListsDisplayNames(t *testing.T) {
	o := newTestOrch(t)

	join(t, o, "c1", "u1", "Ahmet")
	join(t, o, "c2", "u2", "Zeynep")

	stats := o.Stats("genel")
	assert.ElementsMatch(t, []string{"Ahmet", "Zeynep"}, stats.Users)
	assert.Empty(t, o.Stats("bos").Users)
}
