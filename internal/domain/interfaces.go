package domain

import (
	"context"
	"errors"
	"time"

	"tablechat/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BookingClient is the booking service the dialogue dispatches to.
// Implementations return the sentinel errors of the booking package.
type BookingClient interface {
	CheckAvailability(ctx context.Context, query models.AvailabilityQuery) (*models.Availability, error)
	CreateBooking(ctx context.Context, req models.BookingRequest) (*models.Booking, error)
	GetBooking(ctx context.Context, reference string) (*models.Booking, error)
	UpdateBooking(ctx context.Context, reference string, changes models.BookingChanges) (*models.Booking, error)
	CancelBooking(ctx context.Context, reference string) error
}

var (
	ErrOracleTimeout     = errors.New("oracle timed out")
	ErrOracleUnavailable = errors.New("oracle unavailable")
)

// Oracle is a text generation backend. It may be slow or fail; callers
// always have a deterministic fallback.
type Oracle interface {
	Generate(ctx context.Context, prompt string, timeout time.Duration) (string, error)
	Name() string
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}
