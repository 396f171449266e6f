package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/centsalert/internal/availability"
	"github.com/user/centsalert/internal/channel"
	"github.com/user/centsalert/internal/storage"
	"github.com/user/centsalert/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init(false, "")
	m.Run()
}

// senderFunc adapts a function to the channel.Sender interface.
type senderFunc func(ctx context.Context, address, message string) error

func (f senderFunc) Send(ctx context.Context, address, message string) error {
	return f(ctx, address, message)
}

// fakeLedger enforces the idempotence key in memory the way the sqlite
// partial unique index does.
type fakeLedger struct {
	mu      sync.Mutex
	records []storage.Delivery
}

func (f *fakeLedger) key(d *storage.Delivery) string {
	return strings.Join([]string{d.UserID, string(d.Channel), d.SlotID, d.NewStatus, d.Cycle}, "|")
}

func (f *fakeLedger) Record(d *storage.Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d.Status == storage.DeliverySent {
		for i := range f.records {
			if f.records[i].Status == storage.DeliverySent && f.key(&f.records[i]) == f.key(d) {
				return storage.ErrDuplicateDelivery
			}
		}
	}
	f.records = append(f.records, *d)
	return nil
}

func (f *fakeLedger) WasSent(userID string, ch storage.Channel, slotID, newStatus, cycle string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		r := &f.records[i]
		if r.Status == storage.DeliverySent && r.UserID == userID && r.Channel == ch &&
			r.SlotID == slotID && r.NewStatus == newStatus && r.Cycle == cycle {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLedger) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.records {
		if r.Status == storage.DeliverySent {
			n++
		}
	}
	return n
}

func testEvent(capacity int) availability.Transition {
	now := time.Date(2025, 6, 12, 10, 0, 7, 0, time.UTC)
	return availability.Transition{
		SlotID:         "bologna university|bologna|2025-06-12|cent@casa",
		PreviousStatus: availability.StatusFull,
		NewStatus:      availability.StatusAvailable,
		ObservedAt:     now,
		SnapshotID:     "snap-1",
		Record: availability.Record{
			SlotID:      "bologna university|bologna|2025-06-12|cent@casa",
			Status:      availability.StatusAvailable,
			Capacity:    capacity,
			Institution: "Bologna University",
			Region:      "Emilia-Romagna",
			City:        "Bologna",
			Deadline:    "2025-06-01",
			TestDate:    "2025-06-12",
		},
	}
}

func telegramTarget(userID, chatID string) Target {
	return Target{
		Subscriber: storage.Subscriber{UserID: userID, TelegramChatID: chatID, AlertTelegram: true},
		Channel:    storage.ChannelTelegram,
	}
}

func TestDispatchRecordsSentWithPayload(t *testing.T) {
	ledger := &fakeLedger{}
	var sentMessage string
	var mu sync.Mutex
	senders := map[storage.Channel]channel.Sender{
		storage.ChannelTelegram: senderFunc(func(_ context.Context, _, message string) error {
			mu.Lock()
			sentMessage = message
			mu.Unlock()
			return nil
		}),
	}

	c := NewCoordinator(senders, ledger, 30*time.Second)
	stats := c.Dispatch(context.Background(), testEvent(3), []Target{telegramTarget("u1", "111")})

	assert.Equal(t, Stats{Sent: 1}, stats)
	require.Len(t, ledger.records, 1)

	rec := ledger.records[0]
	assert.Equal(t, storage.DeliverySent, rec.Status)
	assert.Equal(t, "u1", rec.UserID)
	assert.NotEmpty(t, rec.NotificationID)
	assert.Contains(t, rec.Message, "Spots: 3")
	assert.Contains(t, sentMessage, "Bologna University")
}

func TestDispatchAtMostOncePerCycle(t *testing.T) {
	ledger := &fakeLedger{}
	sendCalls := 0
	var mu sync.Mutex
	senders := map[storage.Channel]channel.Sender{
		storage.ChannelTelegram: senderFunc(func(_ context.Context, _, _ string) error {
			mu.Lock()
			sendCalls++
			mu.Unlock()
			return nil
		}),
	}

	c := NewCoordinator(senders, ledger, 30*time.Second)
	event := testEvent(3)
	targets := []Target{telegramTarget("u1", "111")}

	first := c.Dispatch(context.Background(), event, targets)
	second := c.Dispatch(context.Background(), event, targets)

	assert.Equal(t, Stats{Sent: 1}, first)
	assert.Equal(t, Stats{Skipped: 1}, second, "re-dispatch in the same cycle must skip")
	assert.Equal(t, 1, sendCalls, "the external channel must not be reached twice")
	assert.Equal(t, 1, ledger.sentCount())
}

func TestDispatchFailureIsolation(t *testing.T) {
	ledger := &fakeLedger{}
	senders := map[storage.Channel]channel.Sender{
		storage.ChannelTelegram: senderFunc(func(_ context.Context, address, _ string) error {
			if address == "bad" {
				return fmt.Errorf("%w: chat not found", channel.ErrInvalidAddress)
			}
			return nil
		}),
	}

	c := NewCoordinator(senders, ledger, 30*time.Second)
	targets := []Target{
		telegramTarget("u1", "bad"),
		telegramTarget("u2", "222"),
	}
	stats := c.Dispatch(context.Background(), testEvent(3), targets)

	assert.Equal(t, 1, stats.Sent, "one failing tuple must not block the other")
	assert.Equal(t, 1, stats.Failed)
	require.Len(t, ledger.records, 2)

	for _, rec := range ledger.records {
		switch rec.UserID {
		case "u1":
			assert.Equal(t, storage.DeliveryFailed, rec.Status)
			assert.Contains(t, rec.ErrorReason, "invalid address")
		case "u2":
			assert.Equal(t, storage.DeliverySent, rec.Status)
			assert.Empty(t, rec.ErrorReason)
		}
	}
}

func TestDispatchUnknownChannelSkipped(t *testing.T) {
	ledger := &fakeLedger{}
	c := NewCoordinator(map[storage.Channel]channel.Sender{}, ledger, 30*time.Second)

	stats := c.Dispatch(context.Background(), testEvent(1), []Target{telegramTarget("u1", "111")})
	assert.Equal(t, Stats{Skipped: 1}, stats)
	assert.Empty(t, ledger.records)
}

func TestCycleBucketCollapsesWithinInterval(t *testing.T) {
	c := NewCoordinator(nil, nil, 30*time.Second)
	base := time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, c.cycleBucket(base.Add(2*time.Second)), c.cycleBucket(base.Add(28*time.Second)))
	assert.NotEqual(t, c.cycleBucket(base), c.cycleBucket(base.Add(31*time.Second)))
}
