package channel

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender sends alerts as Telegram messages via the bot API.
type TelegramSender struct {
	api *tgbotapi.BotAPI
}

// NewTelegramSender creates a sender backed by an authorized bot API.
func NewTelegramSender(api *tgbotapi.BotAPI) *TelegramSender {
	return &TelegramSender{api: api}
}

// Send delivers a message to the chat identified by address.
func (t *TelegramSender) Send(ctx context.Context, address, message string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	chatID, err := strconv.ParseInt(address, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad chat id %q", ErrInvalidAddress, address)
	}

	msg := tgbotapi.NewMessage(chatID, message)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := t.api.Send(msg); err != nil {
		return classifyTelegramError(err)
	}
	return nil
}

// classifyTelegramError maps bot API errors onto the sender failure
// kinds. The API reports problems as message text, so this is a
// substring match on the known responses.
func classifyTelegramError(err error) error {
	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "too many requests"):
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case strings.Contains(text, "chat not found"),
		strings.Contains(text, "bot was blocked"),
		strings.Contains(text, "user is deactivated"):
		return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	default:
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
}
