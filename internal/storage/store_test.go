package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/centsalert/internal/availability"
)

func testSnapshot(takenAt time.Time, records ...availability.Record) *availability.Snapshot {
	available := 0
	for _, r := range records {
		if r.Status == availability.StatusAvailable {
			available++
		}
	}
	return &availability.Snapshot{
		ID:             uuid.NewString(),
		TakenAt:        takenAt,
		Records:        records,
		TotalCount:     len(records),
		AvailableCount: available,
	}
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	store := NewSnapshotStore(newTestDB(t))

	latest, err := store.GetLatest()
	require.NoError(t, err)
	assert.Nil(t, latest, "empty history has no latest snapshot")

	snap := testSnapshot(time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC), availability.Record{
		SlotID:      "bologna|2025-06-12",
		Status:      availability.StatusAvailable,
		Capacity:    3,
		Institution: "Bologna University",
		City:        "Bologna",
		TestDate:    "2025-06-12",
	})
	require.NoError(t, store.Append(snap))

	latest, err = store.GetLatest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, snap.ID, latest.ID)
	assert.Equal(t, snap.TotalCount, latest.TotalCount)
	require.Len(t, latest.Records, 1)
	assert.Equal(t, snap.Records[0], latest.Records[0])
}

func TestSnapshotStoreHistoryOrder(t *testing.T) {
	store := NewSnapshotStore(newTestDB(t))
	base := time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(testSnapshot(base.Add(time.Duration(i)*time.Minute))))
	}

	history, err := store.History(2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].TakenAt.After(history[1].TakenAt), "history must be newest first")

	latest, err := store.GetLatest()
	require.NoError(t, err)
	assert.Equal(t, history[0].ID, latest.ID)
}

func TestSubscriberUpsert(t *testing.T) {
	store := NewSubscriberStore(newTestDB(t))

	created, err := store.Upsert("ada@example.com", "Ada", "pic1")
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.NotEmpty(t, created.UserID)
	assert.False(t, created.AlertTelegram)

	// Connect a channel, then log in again: profile refreshes, channel
	// settings survive.
	require.NoError(t, store.ConnectTelegram(created.UserID, "12345"))

	again, err := store.Upsert("ada@example.com", "Ada L.", "pic2")
	require.NoError(t, err)
	assert.Equal(t, created.UserID, again.UserID)
	assert.Equal(t, "Ada L.", again.Name)
	assert.Equal(t, "12345", again.TelegramChatID)
	assert.True(t, again.AlertTelegram, "connecting telegram opts the user in")
}

func TestSubscriberAlertsAndChannels(t *testing.T) {
	store := NewSubscriberStore(newTestDB(t))
	sub, err := store.Upsert("bob@example.com", "Bob", "")
	require.NoError(t, err)

	require.NoError(t, store.ConnectPhone(sub.UserID, "+390000000001"))
	require.NoError(t, store.UpdateAlerts(sub.UserID, false, true, true))

	got, err := store.GetByID(sub.UserID)
	require.NoError(t, err)
	assert.Equal(t, "+390000000001", got.PhoneNumber)
	assert.False(t, got.OptedIn(ChannelTelegram))
	assert.True(t, got.OptedIn(ChannelSMS))
	assert.True(t, got.OptedIn(ChannelVoice))
	assert.Equal(t, "+390000000001", got.AddressFor(ChannelVoice))
	assert.Empty(t, got.AddressFor(ChannelTelegram))
}

func TestDisableTelegramByChatID(t *testing.T) {
	store := NewSubscriberStore(newTestDB(t))
	sub, err := store.Upsert("carol@example.com", "Carol", "")
	require.NoError(t, err)
	require.NoError(t, store.ConnectTelegram(sub.UserID, "777"))

	n, err := store.DisableTelegramByChatID("777")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.GetByID(sub.UserID)
	require.NoError(t, err)
	assert.False(t, got.AlertTelegram)
	assert.Equal(t, "777", got.TelegramChatID, "the chat stays connected, only alerts turn off")

	n, err = store.DisableTelegramByChatID("unknown")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSessionLifecycle(t *testing.T) {
	db := newTestDB(t)
	subs := NewSubscriberStore(db)
	sessions := NewSessionStore(db)

	sub, err := subs.Upsert("dora@example.com", "Dora", "")
	require.NoError(t, err)

	require.NoError(t, sessions.Create("tok-live", sub.UserID, time.Now().Add(time.Hour)))
	require.NoError(t, sessions.Create("tok-dead", sub.UserID, time.Now().Add(-time.Hour)))

	live, err := sessions.Get("tok-live")
	require.NoError(t, err)
	require.NotNil(t, live)
	assert.Equal(t, sub.UserID, live.UserID)

	dead, err := sessions.Get("tok-dead")
	require.NoError(t, err)
	assert.Nil(t, dead, "expired sessions resolve to nil")

	require.NoError(t, sessions.Delete("tok-live"))
	gone, err := sessions.Get("tok-live")
	require.NoError(t, err)
	assert.Nil(t, gone)
}
