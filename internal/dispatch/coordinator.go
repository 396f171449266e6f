package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/user/centsalert/internal/availability"
	"github.com/user/centsalert/internal/channel"
	"github.com/user/centsalert/internal/storage"
	"github.com/user/centsalert/pkg/logger"
)

const sendTimeout = 15 * time.Second

// Ledger is the subset of the delivery ledger the coordinator needs.
type Ledger interface {
	Record(d *storage.Delivery) error
	WasSent(userID string, ch storage.Channel, slotID, newStatus, cycle string) (bool, error)
}

// Stats summarizes one dispatch of a transition.
type Stats struct {
	Sent    int
	Failed  int
	Skipped int
}

// Coordinator delivers one transition to a set of targets. Each target
// is attempted independently: a timeout or provider error on one tuple
// is recorded as FAILED and never blocks the others. There is no
// automatic retry; a transition that stays available across polls is
// not re-diffed as new, so delivery is at most once per physical
// transition.
type Coordinator struct {
	senders      map[storage.Channel]channel.Sender
	limiters     map[storage.Channel]*rate.Limiter
	ledger       Ledger
	pollInterval time.Duration
}

// NewCoordinator creates a dispatch coordinator. pollInterval is used
// to bucket observation times into cycles for the idempotence key, so
// overlapping triggers inside one poll window collapse onto the same
// key.
func NewCoordinator(senders map[storage.Channel]channel.Sender, ledger Ledger, pollInterval time.Duration) *Coordinator {
	return &Coordinator{
		senders: senders,
		limiters: map[storage.Channel]*rate.Limiter{
			// Telegram allows ~30 messages/second to distinct chats.
			storage.ChannelTelegram: rate.NewLimiter(rate.Limit(25), 5),
			storage.ChannelSMS:      rate.NewLimiter(rate.Limit(10), 2),
			storage.ChannelVoice:    rate.NewLimiter(rate.Limit(1), 1),
		},
		ledger:       ledger,
		pollInterval: pollInterval,
	}
}

// Dispatch fans a transition out to every target and waits for all
// attempts to finish, so returning implies every delivery was at least
// attempted and recorded.
func (c *Coordinator) Dispatch(ctx context.Context, event availability.Transition, targets []Target) Stats {
	cycle := c.cycleBucket(event.ObservedAt)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		stats Stats
	)

	for _, target := range targets {
		wg.Add(1)
		go func(t Target) {
			defer wg.Done()
			outcome := c.deliverOne(ctx, event, t, cycle)
			mu.Lock()
			switch outcome {
			case outcomeSent:
				stats.Sent++
			case outcomeFailed:
				stats.Failed++
			case outcomeSkipped:
				stats.Skipped++
			}
			mu.Unlock()
		}(target)
	}
	wg.Wait()

	logger.Info().
		Str("slot_id", event.SlotID).
		Int("sent", stats.Sent).
		Int("failed", stats.Failed).
		Int("skipped", stats.Skipped).
		Msg("Transition dispatched")
	return stats
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeSkipped
)

// deliverOne attempts delivery for a single tuple and records exactly
// one ledger row for the outcome.
func (c *Coordinator) deliverOne(ctx context.Context, event availability.Transition, t Target, cycle string) outcome {
	sub := t.Subscriber

	// Skip tuples already delivered in this cycle. The unique
	// constraint below still backstops a race between this check and
	// the insert.
	sent, err := c.ledger.WasSent(sub.UserID, t.Channel, event.SlotID, string(event.NewStatus), cycle)
	if err != nil {
		logger.Warn().Err(err).Str("user_id", sub.UserID).Msg("Failed to check delivery ledger")
	} else if sent {
		logger.Debug().
			Str("user_id", sub.UserID).
			Str("channel", string(t.Channel)).
			Str("slot_id", event.SlotID).
			Msg("Already delivered this cycle, skipping")
		return outcomeSkipped
	}

	sender, ok := c.senders[t.Channel]
	if !ok {
		logger.Warn().Str("channel", string(t.Channel)).Msg("No sender configured for channel")
		return outcomeSkipped
	}

	if limiter := c.limiters[t.Channel]; limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return c.recordOutcome(event, t, cycle, err)
		}
	}

	message := messageFor(t.Channel, event.Record)

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	sendErr := sender.Send(sendCtx, sub.AddressFor(t.Channel), message)
	return c.recordOutcome(event, t, cycle, sendErr)
}

// recordOutcome writes the ledger row for one attempt. A duplicate-key
// error from the ledger means another in-flight cycle already sent this
// tuple; it is benign and counted as a skip.
func (c *Coordinator) recordOutcome(event availability.Transition, t Target, cycle string, sendErr error) outcome {
	d := &storage.Delivery{
		NotificationID: uuid.NewString(),
		UserID:         t.Subscriber.UserID,
		Channel:        t.Channel,
		SlotID:         event.SlotID,
		NewStatus:      string(event.NewStatus),
		Cycle:          cycle,
		Message:        messageFor(t.Channel, event.Record),
		Status:         storage.DeliverySent,
		SentAt:         time.Now().UTC(),
	}
	if sendErr != nil {
		d.Status = storage.DeliveryFailed
		d.ErrorReason = sendErr.Error()
	}

	if err := c.ledger.Record(d); err != nil {
		if errors.Is(err, storage.ErrDuplicateDelivery) {
			logger.Debug().
				Str("user_id", d.UserID).
				Str("channel", string(d.Channel)).
				Msg("Duplicate delivery suppressed by ledger")
			return outcomeSkipped
		}
		logger.Error().Err(err).Str("user_id", d.UserID).Msg("Failed to record delivery")
	}

	if sendErr != nil {
		logger.Warn().
			Err(sendErr).
			Str("user_id", d.UserID).
			Str("channel", string(d.Channel)).
			Str("slot_id", d.SlotID).
			Msg("Delivery failed")
		return outcomeFailed
	}
	return outcomeSent
}

// cycleBucket truncates an observation time to the poll cadence so all
// triggers within one poll window share an idempotence key.
func (c *Coordinator) cycleBucket(observedAt time.Time) string {
	interval := c.pollInterval
	if interval <= 0 {
		interval = time.Second
	}
	return observedAt.UTC().Truncate(interval).Format(time.RFC3339)
}
