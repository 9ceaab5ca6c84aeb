package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natlachat/natla/internal/domain"
)

// testClock lets tests move time instead of waiting for it.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func setupTestStore(t *testing.T) (*Store, *testClock) {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)

	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	s.now = clock.Now
	return s, clock
}

func textMessage(room, sender, text string) Message {
	return Message{
		RoomID:     room,
		SenderID:   sender,
		SenderName: "Ahmet",
		Type:       domain.MessageText,
		Text:       text,
	}
}

func TestSaveMessage_StampsRetention(t *testing.T) {
	s, clock := setupTestStore(t)

	saved, err := s.SaveMessage(textMessage("genel", "u1", "merhaba"), 720)
	require.NoError(t, err)

	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, clock.Now(), saved.CreatedAt)
	assert.Equal(t, saved.CreatedAt.Add(720*time.Hour), saved.ExpiresAt)
}

func TestRecentMessages_ChronologicalAndLimited(t *testing.T) {
	s, clock := setupTestStore(t)

	for _, text := range []string{"one", "two", "three"} {
		_, err := s.SaveMessage(textMessage("genel", "u1", text), 720)
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}

	msgs, err := s.RecentMessages("genel", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Text)
	assert.Equal(t, "three", msgs[1].Text)
}

func TestRecentMessages_ExcludesExpired(t *testing.T) {
	s, clock := setupTestStore(t)

	_, err := s.SaveMessage(textMessage("genel", "u1", "short lived"), 24)
	require.NoError(t, err)

	msgs, err := s.RecentMessages("genel", 50)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	clock.Advance(25 * time.Hour)

	msgs, err = s.RecentMessages("genel", 50)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestHideMessage_Idempotent(t *testing.T) {
	s, _ := setupTestStore(t)

	saved, err := s.SaveMessage(textMessage("genel", "u1", "gone for me"), 720)
	require.NoError(t, err)

	require.NoError(t, s.HideMessage("u2", saved.ID))
	require.NoError(t, s.HideMessage("u2", saved.ID))

	hidden, err := s.HiddenMessageIDs("u2", []string{saved.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{saved.ID}, hidden)
}

func TestHiddenMessageIDs_SubsetAndPerUser(t *testing.T) {
	s, _ := setupTestStore(t)

	m1, err := s.SaveMessage(textMessage("genel", "u1", "a"), 720)
	require.NoError(t, err)
	m2, err := s.SaveMessage(textMessage("genel", "u1", "b"), 720)
	require.NoError(t, err)

	require.NoError(t, s.HideMessage("u2", m1.ID))

	hidden, err := s.HiddenMessageIDs("u2", []string{m1.ID, m2.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{m1.ID}, hidden)

	// Another user sees everything.
	hidden, err = s.HiddenMessageIDs("u3", []string{m1.ID, m2.ID})
	require.NoError(t, err)
	assert.Empty(t, hidden)
}

func TestHiddenMarker_ExpiresAfterThirtyDays(t *testing.T) {
	s, clock := setupTestStore(t)

	saved, err := s.SaveMessage(textMessage("genel", "u1", "back again"), 1440)
	require.NoError(t, err)
	require.NoError(t, s.HideMessage("u2", saved.ID))

	clock.Advance(31 * 24 * time.Hour)

	hidden, err := s.HiddenMessageIDs("u2", []string{saved.ID})
	require.NoError(t, err)
	assert.Empty(t, hidden)
}

func TestHideAllMessages_ToleratesExistingMarkers(t *testing.T) {
	s, _ := setupTestStore(t)

	m1, err := s.SaveMessage(textMessage("genel", "u1", "a"), 720)
	require.NoError(t, err)
	m2, err := s.SaveMessage(textMessage("genel", "u1", "b"), 720)
	require.NoError(t, err)
	_, err = s.SaveMessage(textMessage("diger", "u1", "other room"), 720)
	require.NoError(t, err)

	// One marker pre-exists; the bulk insert must not fail on it.
	require.NoError(t, s.HideMessage("u2", m1.ID))
	require.NoError(t, s.HideAllMessages("u2", "genel"))

	hidden, err := s.HiddenMessageIDs("u2", []string{m1.ID, m2.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{m1.ID, m2.ID}, hidden)
}

func TestSweepExpired_RemovesRows(t *testing.T) {
	s, clock := setupTestStore(t)

	_, err := s.SaveMessage(textMessage("genel", "u1", "old"), 24)
	require.NoError(t, err)

	clock.Advance(25 * time.Hour)
	require.NoError(t, s.SweepExpired())

	var count int64
	require.NoError(t, s.db.Model(&Message{}).Count(&count).Error)
	assert.Zero(t, count)
}
