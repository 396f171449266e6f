// Package scheduler drives the poll cycle: fetch, normalize, diff,
// dispatch. At most one cycle is in flight at a time; timer ticks and
// manual triggers that arrive while a cycle runs are coalesced into
// no-ops.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/centsalert/internal/availability"
	"github.com/user/centsalert/internal/dispatch"
	"github.com/user/centsalert/internal/storage"
	"github.com/user/centsalert/pkg/logger"
)

// Scheduler states.
const (
	StateIdle int32 = iota
	StateRunning
	StateCooldown
)

// cooldown is the pause between a cycle finishing and the scheduler
// accepting the next trigger.
const cooldown = 2 * time.Second

// Fetcher supplies raw calendar rows for one poll.
type Fetcher interface {
	Fetch(ctx context.Context) ([]availability.RawRow, error)
}

// SnapshotStore is the snapshot persistence the scheduler needs.
type SnapshotStore interface {
	GetLatest() (*availability.Snapshot, error)
	Append(snap *availability.Snapshot) error
}

// SubscriberLister returns the full subscriber set.
type SubscriberLister interface {
	ListAll() ([]storage.Subscriber, error)
}

// Dispatcher delivers one transition to its targets.
type Dispatcher interface {
	Dispatch(ctx context.Context, event availability.Transition, targets []dispatch.Target) dispatch.Stats
}

// Stats is a point-in-time view of the scheduler's counters.
type Stats struct {
	State       int32     `json:"-"`
	StateName   string    `json:"state"`
	CyclesRun   int64     `json:"cycles_run"`
	CyclesError int64     `json:"cycles_failed"`
	Transitions int64     `json:"transitions_detected"`
	DroppedRows int64     `json:"rows_dropped"`
	LastCycleAt time.Time `json:"last_cycle_at"`
}

// Scheduler runs the poll cycle on a fixed cadence with manual-trigger
// support.
type Scheduler struct {
	fetcher     Fetcher
	snapshots   SnapshotStore
	subscribers SubscriberLister
	dispatcher  Dispatcher

	interval     time.Duration
	cycleTimeout time.Duration

	state       atomic.Int32
	cyclesRun   atomic.Int64
	cyclesError atomic.Int64
	transitions atomic.Int64
	droppedRows atomic.Int64
	lastCycle   atomic.Int64 // unix seconds

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler. interval is the poll cadence; each cycle is
// bounded by twice the interval or one minute, whichever is larger.
func New(fetcher Fetcher, snapshots SnapshotStore, subscribers SubscriberLister, dispatcher Dispatcher, interval time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	cycleTimeout := 2 * interval
	if cycleTimeout < time.Minute {
		cycleTimeout = time.Minute
	}

	return &Scheduler{
		fetcher:      fetcher,
		snapshots:    snapshots,
		subscribers:  subscribers,
		dispatcher:   dispatcher,
		interval:     interval,
		cycleTimeout: cycleTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start begins the polling loop. The first cycle runs immediately to
// establish a baseline snapshot.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.pollLoop()
	logger.Info().Dur("interval", s.interval).Msg("Poll scheduler started")
}

// Stop gracefully stops the scheduler, waiting for any in-flight cycle.
func (s *Scheduler) Stop() {
	logger.Info().Msg("Stopping poll scheduler")
	s.cancel()
	s.wg.Wait()
}

// TriggerNow requests an immediate cycle. Returns false if a cycle is
// already running or cooling down, in which case the request is
// coalesced into the in-flight one.
func (s *Scheduler) TriggerNow() bool {
	return s.tryStart("manual")
}

// State returns the current scheduler state.
func (s *Scheduler) State() int32 {
	return s.state.Load()
}

// Status returns the scheduler's counters for the health endpoint.
func (s *Scheduler) Status() Stats {
	state := s.state.Load()
	return Stats{
		State:       state,
		StateName:   stateName(state),
		CyclesRun:   s.cyclesRun.Load(),
		CyclesError: s.cyclesError.Load(),
		Transitions: s.transitions.Load(),
		DroppedRows: s.droppedRows.Load(),
		LastCycleAt: time.Unix(s.lastCycle.Load(), 0).UTC(),
	}
}

func (s *Scheduler) pollLoop() {
	defer s.wg.Done()

	// Baseline cycle: the diff engine emits nothing without a previous
	// snapshot, so a cold start is silent.
	s.tryStart("startup")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tryStart("timer")
		}
	}
}

// tryStart claims the single in-flight slot and runs a cycle in the
// caller's goroutine for timer ticks or detached for manual triggers.
// The IDLE→RUNNING compare-and-swap is the overlap-prevention guard.
func (s *Scheduler) tryStart(reason string) bool {
	if !s.state.CompareAndSwap(StateIdle, StateRunning) {
		logger.Debug().Str("reason", reason).Msg("Cycle already in flight, trigger coalesced")
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runCycle(reason)

		s.state.Store(StateCooldown)
		select {
		case <-time.After(cooldown):
		case <-s.ctx.Done():
		}
		s.state.Store(StateIdle)
	}()
	return true
}

// runCycle executes one full poll cycle. Every failure is contained: a
// fetch or persistence error ends the cycle with the previous snapshot
// still latest, and the next tick retries naturally.
func (s *Scheduler) runCycle(reason string) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(s.ctx, s.cycleTimeout)
	defer cancel()

	logger.Debug().Str("reason", reason).Msg("Poll cycle started")

	rows, err := s.fetcher.Fetch(ctx)
	if err != nil {
		s.cyclesError.Add(1)
		logger.Error().Err(err).Msg("Fetch failed, keeping previous snapshot")
		return
	}

	snap, dropped := availability.Normalize(rows, time.Now().UTC())
	if dropped > 0 {
		s.droppedRows.Add(int64(dropped))
		logger.Warn().Int("dropped", dropped).Msg("Rows failed validation and were dropped")
	}

	prev, err := s.snapshots.GetLatest()
	if err != nil {
		s.cyclesError.Add(1)
		logger.Error().Err(err).Msg("Failed to load previous snapshot")
		return
	}

	if err := s.snapshots.Append(snap); err != nil {
		s.cyclesError.Add(1)
		logger.Error().Err(err).Msg("Failed to persist snapshot")
		return
	}

	events := availability.Diff(prev, snap)
	if prev == nil {
		logger.Info().Int("records", snap.TotalCount).Msg("Baseline snapshot established, no notifications")
	}

	if len(events) > 0 {
		s.transitions.Add(int64(len(events)))
		s.dispatchAll(ctx, events)
	}

	s.cyclesRun.Add(1)
	s.lastCycle.Store(time.Now().Unix())
	logger.Info().
		Dur("elapsed", time.Since(start)).
		Int("records", snap.TotalCount).
		Int("available", snap.AvailableCount).
		Int("transitions", len(events)).
		Msg("Poll cycle complete")
}

func (s *Scheduler) dispatchAll(ctx context.Context, events []availability.Transition) {
	subs, err := s.subscribers.ListAll()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list subscribers, skipping dispatch")
		return
	}

	targets := dispatch.Resolve(subs)
	if len(targets) == 0 {
		logger.Debug().Int("events", len(events)).Msg("No eligible subscribers")
		return
	}

	for _, event := range events {
		logger.Info().
			Str("slot_id", event.SlotID).
			Str("institution", event.Record.Institution).
			Int("capacity", event.Record.Capacity).
			Msg("Slot opened")
		s.dispatcher.Dispatch(ctx, event, targets)
	}
}

func stateName(state int32) string {
	switch state {
	case StateRunning:
		return "running"
	case StateCooldown:
		return "cooldown"
	default:
		return "idle"
	}
}
