// Package storage provides database operations and data models.
package storage

import "time"

// Channel identifies a notification delivery mechanism.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelSMS      Channel = "sms"
	ChannelVoice    Channel = "voice"
)

// AllChannels returns every supported notification channel.
func AllChannels() []Channel {
	return []Channel{ChannelTelegram, ChannelSMS, ChannelVoice}
}

// Delivery status values.
const (
	DeliverySent   = "sent"
	DeliveryFailed = "failed"
)

// Subscriber represents a user account with its channel addresses and
// per-channel opt-in flags. Mutated only by explicit user action, never
// by the dispatch pipeline.
type Subscriber struct {
	UserID         string    `db:"user_id" json:"user_id"`
	Email          string    `db:"email" json:"email"`
	Name           string    `db:"name" json:"name"`
	Picture        string    `db:"picture" json:"picture,omitempty"`
	TelegramChatID string    `db:"telegram_chat_id" json:"telegram_chat_id,omitempty"`
	PhoneNumber    string    `db:"phone_number" json:"phone_number,omitempty"`
	AlertTelegram  bool      `db:"alert_telegram" json:"alert_telegram"`
	AlertSMS       bool      `db:"alert_sms" json:"alert_sms"`
	AlertVoice     bool      `db:"alert_voice" json:"alert_voice"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// AddressFor returns the subscriber's address for a channel, or the
// empty string if none is configured.
func (s *Subscriber) AddressFor(ch Channel) string {
	switch ch {
	case ChannelTelegram:
		return s.TelegramChatID
	case ChannelSMS, ChannelVoice:
		return s.PhoneNumber
	default:
		return ""
	}
}

// OptedIn reports whether the subscriber has enabled alerts on a channel.
func (s *Subscriber) OptedIn(ch Channel) bool {
	switch ch {
	case ChannelTelegram:
		return s.AlertTelegram
	case ChannelSMS:
		return s.AlertSMS
	case ChannelVoice:
		return s.AlertVoice
	default:
		return false
	}
}

// Session represents an authenticated browser session.
type Session struct {
	Token     string    `db:"session_token"`
	UserID    string    `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

// Delivery is one row of the append-only delivery ledger: a single
// attempted notification for one (subscriber, channel, transition).
type Delivery struct {
	ID             int64     `db:"id" json:"-"`
	NotificationID string    `db:"notification_id" json:"notification_id"`
	UserID         string    `db:"user_id" json:"user_id"`
	Channel        Channel   `db:"channel" json:"channel"`
	SlotID         string    `db:"slot_id" json:"slot_id"`
	NewStatus      string    `db:"new_status" json:"new_status"`
	Cycle          string    `db:"cycle" json:"-"`
	Message        string    `db:"message" json:"message"`
	Status         string    `db:"status" json:"status"`
	ErrorReason    string    `db:"error_reason" json:"error_reason,omitempty"`
	SentAt         time.Time `db:"sent_at" json:"sent_at"`
}

// snapshotRow is the persisted form of a snapshot, with records
// serialized as JSON.
type snapshotRow struct {
	ID             int64     `db:"id"`
	SnapshotID     string    `db:"snapshot_id"`
	TakenAt        time.Time `db:"taken_at"`
	TotalCount     int       `db:"total_count"`
	AvailableCount int       `db:"available_count"`
	Records        string    `db:"records"`
}
