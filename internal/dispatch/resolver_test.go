package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/centsalert/internal/storage"
)

func TestResolveEligibility(t *testing.T) {
	subs := []storage.Subscriber{
		{
			// Eligible on telegram and sms.
			UserID:         "u1",
			TelegramChatID: "111",
			PhoneNumber:    "+390000000001",
			AlertTelegram:  true,
			AlertSMS:       true,
		},
		{
			// Opted in to sms but no phone number: never eligible.
			UserID:        "u2",
			AlertSMS:      true,
			AlertTelegram: true,
		},
		{
			// Address configured but opted out everywhere.
			UserID:         "u3",
			TelegramChatID: "333",
			PhoneNumber:    "+390000000003",
		},
		{
			// Voice only.
			UserID:      "u4",
			PhoneNumber: "+390000000004",
			AlertVoice:  true,
		},
	}

	targets := Resolve(subs)
	require.Len(t, targets, 3)

	byUser := map[string][]storage.Channel{}
	for _, tgt := range targets {
		byUser[tgt.Subscriber.UserID] = append(byUser[tgt.Subscriber.UserID], tgt.Channel)
	}

	assert.ElementsMatch(t, []storage.Channel{storage.ChannelTelegram, storage.ChannelSMS}, byUser["u1"])
	assert.NotContains(t, byUser, "u2")
	assert.NotContains(t, byUser, "u3")
	assert.ElementsMatch(t, []storage.Channel{storage.ChannelVoice}, byUser["u4"])
}

func TestResolveEmptySet(t *testing.T) {
	assert.Empty(t, Resolve(nil))
	assert.Empty(t, Resolve([]storage.Subscriber{}))
}
