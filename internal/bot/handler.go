package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const (
	textOnly = "I can only read text messages. Tell me what you'd like, for example \"book a table for 2 tomorrow at 7pm\"."
	timedOut = "Sorry, that took too long. Please send your message again."
)

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	sessionID := SessionID(chatID)
	l := zerolog.Ctx(ctx)

	if msg.IsCommand() {
		countUpdate("command")
		b.handleCommand(ctx, msg.Command(), sessionID, chatID)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		countUpdate("unsupported")
		b.sendMessage(chatID, textOnly)
		return
	}
	countUpdate("message")

	l.Debug().Str("session_id", sessionID).Int("length", len(text)).Msg("Handling message")

	b.typing(chatID)
	reply, err := b.engine.HandleTurn(ctx, text, sessionID)
	if err != nil {
		l.Warn().Err(err).Str("session_id", sessionID).Msg("turn abandoned")
		b.sendMessage(chatID, timedOut)
		return
	}
	b.sendMessage(chatID, reply.Text)
}

// handleCommand: /start and /reset wipe the conversation, /help shows the menu.
func (b *Bot) handleCommand(ctx context.Context, command, sessionID string, chatID int64) {
	switch command {
	case "start", "reset":
		existed := b.engine.Reset(ctx, sessionID)
		zerolog.Ctx(ctx).Info().Str("session_id", sessionID).Bool("existed", existed).Msg("session reset")
		b.sendMessage(chatID, b.engine.ResetReply())
	case "help":
		reply, err := b.engine.HandleTurn(ctx, "help", sessionID)
		if err != nil {
			b.sendMessage(chatID, timedOut)
			return
		}
		b.sendMessage(chatID, reply.Text)
	default:
		b.sendMessage(chatID, "Unknown command. Use /reset to start over or just tell me what you need.")
	}
}
