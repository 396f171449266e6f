package storage

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ErrDuplicateDelivery is returned by Record when a SENT row already
// exists for the same idempotence key. The dispatch coordinator treats
// it as already-delivered and skips the tuple.
var ErrDuplicateDelivery = errors.New("delivery already recorded for this cycle")

// DeliveryLedger is the append-only record of every attempted
// notification. The idempotence key (user, channel, slot, status,
// cycle) is enforced by a unique constraint on SENT rows, so the write
// path is safe under concurrent append without a lock.
type DeliveryLedger struct {
	db *Database
}

// NewDeliveryLedger creates a new delivery ledger.
func NewDeliveryLedger(db *Database) *DeliveryLedger {
	return &DeliveryLedger{db: db}
}

// Record appends one delivery attempt. Returns ErrDuplicateDelivery if
// a SENT row with the same idempotence key already exists.
func (l *DeliveryLedger) Record(d *Delivery) error {
	query := `
		INSERT INTO deliveries (
			notification_id, user_id, channel, slot_id, new_status,
			cycle, message, status, error_reason, sent_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := l.db.Exec(query,
		d.NotificationID, d.UserID, d.Channel, d.SlotID, d.NewStatus,
		d.Cycle, d.Message, d.Status, d.ErrorReason, d.SentAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ErrDuplicateDelivery
		}
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

// WasSent reports whether a SENT delivery already exists for the
// idempotence key. The coordinator checks this before attempting a
// send, so an overlapping trigger does not reach the external channel
// twice.
func (l *DeliveryLedger) WasSent(userID string, channel Channel, slotID, newStatus, cycle string) (bool, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM deliveries
		WHERE user_id = ? AND channel = ? AND slot_id = ? AND new_status = ? AND cycle = ? AND status = ?
	`
	err := l.db.Get(&count, query, userID, channel, slotID, newStatus, cycle, DeliverySent)
	if err != nil {
		return false, fmt.Errorf("failed to check delivery: %w", err)
	}
	return count > 0, nil
}

// HistoryByUser returns a subscriber's delivery records, newest first.
func (l *DeliveryLedger) HistoryByUser(userID string, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []Delivery
	query := `SELECT * FROM deliveries WHERE user_id = ? ORDER BY sent_at DESC, id DESC LIMIT ?`
	if err := l.db.Select(&records, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to get delivery history: %w", err)
	}
	return records, nil
}
