// Package bot is the Telegram transport: every chat maps onto one dialogue
// session and every text message is one turn.
package bot

import (
	"context"
	"strconv"
	"time"

	"tablechat/internal/dialogue"
	"tablechat/internal/domain"
	"tablechat/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ChatEngine is the core contract the bot drives.
type ChatEngine interface {
	HandleTurn(ctx context.Context, message, sessionID string) (dialogue.Reply, error)
	Reset(ctx context.Context, sessionID string) bool
	ResetReply() string
}

type Bot struct {
	tg      domain.TelegramSender
	engine  ChatEngine
	timeout time.Duration
	logger  *zerolog.Logger
}

func NewBot(tg domain.TelegramSender, engine ChatEngine, logger *zerolog.Logger) *Bot {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Bot{
		tg:      tg,
		engine:  engine,
		timeout: 90 * time.Second,
		logger:  logger,
	}
}

// SessionID maps a Telegram chat onto a dialogue session.
func SessionID(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

// Start polls for updates until ctx is done or the channel closes.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tg.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tg.GetSelf().UserName).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

// Stop stops receiving Telegram updates (best-effort).
func (b *Bot) Stop() {
	if b == nil || b.tg == nil {
		return
	}
	b.tg.StopReceivingUpdates()
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.Chat == nil {
		return
	}

	updateCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	l := b.logger.With().
		Str("request_id", uuid.NewString()).
		Int64("chat_id", update.Message.Chat.ID).
		Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(update.Message.Chat.ID, func() {
		b.handleMessage(updateCtx, update.Message)
	})
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.tg.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

// typing is cosmetic; a failure is only logged.
func (b *Bot) typing(chatID int64) {
	if _, err := b.tg.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		b.logger.Debug().Err(err).Int64("chat_id", chatID).Msg("chat action failed")
	}
}

func countUpdate(kind string) {
	metrics.IncBotUpdate(kind)
}
