package telegram

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/user/centsalert/internal/storage"
	"github.com/user/centsalert/pkg/logger"
)

// Handlers manages command handling for the bot.
type Handlers struct {
	api       *tgbotapi.BotAPI
	store     *storage.SubscriberStore
	startTime time.Time
}

// NewHandlers creates a new handlers instance.
func NewHandlers(api *tgbotapi.BotAPI, store *storage.SubscriberStore) *Handlers {
	return &Handlers{
		api:   api,
		store: store,
	}
}

// SetStartTime sets the bot start time for uptime calculation.
func (h *Handlers) SetStartTime(t time.Time) {
	h.startTime = t
}

// HandleCommand routes commands to appropriate handlers.
func (h *Handlers) HandleCommand(msg *tgbotapi.Message) {
	command := msg.Command()

	logger.Debug().
		Str("command", command).
		Int64("chat_id", msg.Chat.ID).
		Msg("Received command")

	switch command {
	case "start":
		h.handleStart(msg)
	case "id":
		h.handleID(msg)
	case "status":
		h.handleStatus(msg)
	case "stop":
		h.handleStop(msg)
	case "help":
		h.handleHelp(msg)
	default:
		h.ReplyWithChatID(msg)
	}
}

// handleStart greets the user and shows the chat ID to paste into the
// dashboard's connect form.
func (h *Handlers) handleStart(msg *tgbotapi.Message) {
	name := msg.From.FirstName
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf(
		"👋 <b>Welcome to CEnT-S Alert, %s!</b>\n\n"+
			"🔑 Your Chat ID is:\n\n<code>%d</code>\n\n"+
			"👆 <b>Tap to copy</b>, then paste it in the app.\n\n"+
			"✅ You'll receive instant alerts when CENT@CASA spots open!",
		name, msg.Chat.ID,
	)
	h.sendReply(msg.Chat.ID, text)
}

func (h *Handlers) handleID(msg *tgbotapi.Message) {
	h.sendReply(msg.Chat.ID, fmt.Sprintf("🔑 Your Chat ID: <code>%d</code>", msg.Chat.ID))
}

func (h *Handlers) handleStatus(msg *tgbotapi.Message) {
	uptime := time.Since(h.startTime).Round(time.Second)
	text := fmt.Sprintf(
		"🤖 <b>Bot Status: ONLINE</b>\n\n"+
			"⏱ Uptime: %s\n\n"+
			"Your Chat ID: <code>%d</code>",
		uptime, msg.Chat.ID,
	)
	h.sendReply(msg.Chat.ID, text)
}

// handleStop disables Telegram alerts for every account connected to
// this chat.
func (h *Handlers) handleStop(msg *tgbotapi.Message) {
	chatID := fmt.Sprintf("%d", msg.Chat.ID)
	n, err := h.store.DisableTelegramByChatID(chatID)
	if err != nil {
		logger.Error().Err(err).Str("chat_id", chatID).Msg("Failed to disable alerts")
		h.sendReply(msg.Chat.ID, "Something went wrong, please try again.")
		return
	}
	if n == 0 {
		h.sendReply(msg.Chat.ID, "No connected account found for this chat.")
		return
	}
	h.sendReply(msg.Chat.ID, "🔕 Alerts disabled. Reconnect in the app to re-enable.")
}

func (h *Handlers) handleHelp(msg *tgbotapi.Message) {
	text := fmt.Sprintf(
		"🤖 <b>CEnT-S Alert Bot Commands</b>\n\n"+
			"/start - Get your Chat ID\n"+
			"/id - Show your Chat ID\n"+
			"/status - Check bot status\n"+
			"/stop - Disable alerts\n"+
			"/help - Show this help\n\n"+
			"Your Chat ID: <code>%d</code>",
		msg.Chat.ID,
	)
	h.sendReply(msg.Chat.ID, text)
}

// ReplyWithChatID answers anything unrecognized with the chat ID, so
// the connect flow never dead-ends.
func (h *Handlers) ReplyWithChatID(msg *tgbotapi.Message) {
	text := fmt.Sprintf(
		"Your Chat ID: <code>%d</code>\n\nCommands: /start /status /help",
		msg.Chat.ID,
	)
	h.sendReply(msg.Chat.ID, text)
}

// sendReply sends an HTML-formatted reply to a chat.
func (h *Handlers) sendReply(chatID int64, text string) {
	reply := tgbotapi.NewMessage(chatID, text)
	reply.ParseMode = tgbotapi.ModeHTML
	reply.DisableWebPagePreview = true

	if _, err := h.api.Send(reply); err != nil {
		logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send reply")
	}
}
