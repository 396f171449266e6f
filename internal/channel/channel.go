// Package channel provides the external notification senders: Telegram
// messages, SMS, and voice calls.
//
// Every sender failure maps to one of three kinds so the dispatch
// coordinator can treat them uniformly while the ledger keeps the kind
// for diagnostics.
package channel

import (
	"context"
	"errors"
)

// Sender failure kinds.
var (
	ErrRateLimited    = errors.New("rate limited by provider")
	ErrInvalidAddress = errors.New("invalid address")
	ErrUnreachable    = errors.New("provider unreachable")
)

// Sender delivers one message to one address on a single channel.
// Implementations must bound the attempt with the context deadline and
// return an error wrapping one of the failure kinds above.
type Sender interface {
	Send(ctx context.Context, address, message string) error
}
