package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/centsalert/internal/availability"
	"github.com/user/centsalert/internal/dispatch"
	"github.com/user/centsalert/internal/storage"
	"github.com/user/centsalert/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Init(false, "")
	m.Run()
}

type fakeFetcher struct {
	mu    sync.Mutex
	rows  []availability.RawRow
	err   error
	delay time.Duration
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context) ([]availability.RawRow, error) {
	f.mu.Lock()
	rows, err, delay := f.rows, f.err, f.delay
	f.calls++
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return rows, err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memSnapshots struct {
	mu    sync.Mutex
	snaps []*availability.Snapshot
}

func (m *memSnapshots) GetLatest() (*availability.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.snaps) == 0 {
		return nil, nil
	}
	return m.snaps[len(m.snaps)-1], nil
}

func (m *memSnapshots) Append(snap *availability.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps = append(m.snaps, snap)
	return nil
}

func (m *memSnapshots) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snaps)
}

type fakeSubscribers struct {
	subs []storage.Subscriber
}

func (f *fakeSubscribers) ListAll() ([]storage.Subscriber, error) {
	return f.subs, nil
}

type fakeDispatcher struct {
	mu     sync.Mutex
	events []availability.Transition
}

func (f *fakeDispatcher) Dispatch(_ context.Context, event availability.Transition, targets []dispatch.Target) dispatch.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return dispatch.Stats{Sent: len(targets)}
}

func (f *fakeDispatcher) received() []availability.Transition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]availability.Transition(nil), f.events...)
}

func calendarRow(status string, spots string) availability.RawRow {
	return availability.RawRow{
		StatusText:   status,
		Institution:  "Bologna University",
		Region:       "Emilia-Romagna",
		City:         "Bologna",
		Deadline:     "2025-06-01",
		CapacityText: spots,
		TestDate:     "2025-06-12",
		DeliveryMode: "CENT@CASA",
	}
}

func oneSubscriber() *fakeSubscribers {
	return &fakeSubscribers{subs: []storage.Subscriber{
		{UserID: "u1", TelegramChatID: "111", AlertTelegram: true},
	}}
}

func waitForCycles(t *testing.T, s *Scheduler, n int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.Status().CyclesRun >= n
	}, 3*time.Second, 10*time.Millisecond)
}

func TestBaselineCycleEmitsNothing(t *testing.T) {
	fetcher := &fakeFetcher{rows: []availability.RawRow{calendarRow("POSTI DISPONIBILI", "5")}}
	snaps := &memSnapshots{}
	disp := &fakeDispatcher{}

	s := New(fetcher, snaps, oneSubscriber(), disp, time.Minute)
	defer s.Stop()

	require.True(t, s.TriggerNow())
	waitForCycles(t, s, 1)

	assert.Equal(t, 1, snaps.count(), "baseline snapshot must be persisted")
	assert.Empty(t, disp.received(), "no notifications on the first run ever")
}

func TestTransitionDispatchedWithCapacity(t *testing.T) {
	// Previous poll saw the slot full.
	baseline, _ := availability.Normalize(
		[]availability.RawRow{calendarRow("POSTI ESAURITI", "")},
		time.Now().Add(-time.Minute).UTC(),
	)
	snaps := &memSnapshots{snaps: []*availability.Snapshot{baseline}}

	fetcher := &fakeFetcher{rows: []availability.RawRow{calendarRow("POSTI DISPONIBILI", "3")}}
	disp := &fakeDispatcher{}

	s := New(fetcher, snaps, oneSubscriber(), disp, time.Minute)
	defer s.Stop()

	require.True(t, s.TriggerNow())
	waitForCycles(t, s, 1)

	events := disp.received()
	require.Len(t, events, 1, "exactly one transition for the slot opening")
	assert.Equal(t, availability.StatusFull, events[0].PreviousStatus)
	assert.Equal(t, availability.StatusAvailable, events[0].NewStatus)
	assert.Equal(t, 3, events[0].Record.Capacity)
	assert.Equal(t, 2, snaps.count())
}

func TestConcurrentTriggersCoalesced(t *testing.T) {
	fetcher := &fakeFetcher{
		rows:  []availability.RawRow{calendarRow("POSTI ESAURITI", "")},
		delay: 300 * time.Millisecond,
	}
	snaps := &memSnapshots{}
	disp := &fakeDispatcher{}

	s := New(fetcher, snaps, oneSubscriber(), disp, time.Minute)
	defer s.Stop()

	require.True(t, s.TriggerNow())
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StateRunning, s.State())
	assert.False(t, s.TriggerNow(), "second trigger while running must be coalesced")

	waitForCycles(t, s, 1)
	assert.Equal(t, 1, fetcher.callCount(), "only one fetch for both triggers")
	assert.Equal(t, 1, snaps.count(), "coalesced trigger must not produce a second snapshot")
}

func TestFetchFailureKeepsPreviousSnapshot(t *testing.T) {
	baseline, _ := availability.Normalize(
		[]availability.RawRow{calendarRow("POSTI ESAURITI", "")},
		time.Now().Add(-time.Minute).UTC(),
	)
	snaps := &memSnapshots{snaps: []*availability.Snapshot{baseline}}

	fetcher := &fakeFetcher{err: errors.New("source unreachable")}
	disp := &fakeDispatcher{}

	s := New(fetcher, snaps, oneSubscriber(), disp, time.Minute)
	defer s.Stop()

	require.True(t, s.TriggerNow())
	require.Eventually(t, func() bool {
		return s.Status().CyclesError >= 1
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, snaps.count(), "failed cycle must not persist a snapshot")
	assert.Empty(t, disp.received())
	assert.Equal(t, int64(0), s.Status().CyclesRun)
}
