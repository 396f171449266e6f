// Package dispatch fans notifications out to eligible subscribers and
// records every attempt in the delivery ledger.
package dispatch

import (
	"github.com/user/centsalert/internal/storage"
)

// Target is one (subscriber, channel) pair eligible for delivery.
type Target struct {
	Subscriber storage.Subscriber
	Channel    storage.Channel
}

// Resolve computes the targets for a transition: every subscriber, on
// every channel where the opt-in flag is set and an address is
// configured. There is no geographic or institution filtering; all
// subscribers see all transitions.
//
// Pure function over its inputs; safe to call concurrently.
func Resolve(subscribers []storage.Subscriber) []Target {
	var targets []Target
	for _, sub := range subscribers {
		for _, ch := range storage.AllChannels() {
			if sub.OptedIn(ch) && sub.AddressFor(ch) != "" {
				targets = append(targets, Target{Subscriber: sub, Channel: ch})
			}
		}
	}
	return targets
}
