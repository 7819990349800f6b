package app

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"tablechat/internal/config"
	"tablechat/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type idleTelegram struct {
	domain.TelegramSender
	updates chan tgbotapi.Update
	stopped chan struct{}
}

func (f *idleTelegram) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *idleTelegram) GetSelf() tgbotapi.User { return tgbotapi.User{UserName: "tablechat_bot"} }

func (f *idleTelegram) StopReceivingUpdates() { close(f.stopped) }

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func stubTelegram(t *testing.T, fn func(config.TelegramConfig) (domain.TelegramSender, error)) {
	t.Helper()
	orig := dialTelegram
	dialTelegram = fn
	t.Cleanup(func() { dialTelegram = orig })
}

func TestServe_BotFailureStartsNothing(t *testing.T) {
	tests := []struct {
		name  string
		token string
		dial  error
	}{
		{"missing token", "", nil},
		{"telegram unreachable", "123:abc", errors.New("telegram auth: no route")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dialled := false
			stubTelegram(t, func(config.TelegramConfig) (domain.TelegramSender, error) {
				dialled = true
				return nil, tt.dial
			})

			port := freePort(t)
			cfg := &config.Config{}
			cfg.API.HTTP.Port = port
			cfg.Telegram.BotToken = tt.token
			logger := zerolog.Nop()

			errCh := make(chan error, 1)
			go func() { errCh <- Serve(context.Background(), &App{}, cfg, true, true, &logger) }()

			select {
			case err := <-errCh:
				require.Error(t, err)
			case <-time.After(2 * time.Second):
				t.Fatal("Serve kept running after the bot failed")
			}
			assert.Equal(t, tt.token != "", dialled)

			ln, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(port))
			require.NoError(t, err, "HTTP port must stay free")
			_ = ln.Close()
		})
	}
}

func TestServe_BotOnlyStopsWithContext(t *testing.T) {
	tg := &idleTelegram{updates: make(chan tgbotapi.Update), stopped: make(chan struct{})}
	stubTelegram(t, func(config.TelegramConfig) (domain.TelegramSender, error) { return tg, nil })

	cfg := &config.Config{}
	cfg.Telegram.BotToken = "123:abc"
	logger := zerolog.Nop()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- Serve(ctx, &App{}, cfg, false, true, &logger) }()

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop")
	}
	select {
	case <-tg.stopped:
	default:
		t.Fatal("bot was not stopped")
	}
}

func TestServe_NothingToServe(t *testing.T) {
	logger := zerolog.Nop()
	assert.Error(t, Serve(context.Background(), &App{}, &config.Config{}, false, false, &logger))
}
