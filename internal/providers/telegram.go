package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"

	"fleetwatch/internal/logging"
	"fleetwatch/internal/models"
	"fleetwatch/internal/utils"
)

// TelegramSender is the part of *bot.Bot the channel uses.
type TelegramSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// TelegramChannel sends Markdown alerts to one or more chats.
type TelegramChannel struct {
	name    string
	chatIDs []int64
	sender  TelegramSender
	limiter *rate.Limiter
	logger  *logging.Logger

	attempts   int
	retryDelay time.Duration
}

// NewTelegramChannel creates a bot client for token. GetMe is skipped so
// construction does not need network access.
func NewTelegramChannel(name, token string, chatIDs []int64, limiter *rate.Limiter, logger *logging.Logger) (*TelegramChannel, error) {
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	return newTelegramChannel(name, b, chatIDs, limiter, logger), nil
}

func newTelegramChannel(name string, sender TelegramSender, chatIDs []int64, limiter *rate.Limiter, logger *logging.Logger) *TelegramChannel {
	if name == "" {
		name = models.ChannelTelegram
	}
	return &TelegramChannel{
		name:       name,
		chatIDs:    chatIDs,
		sender:     sender,
		limiter:    limiter,
		logger:     logger,
		attempts:   3,
		retryDelay: time.Second,
	}
}

// NewTelegramLimiter allows perSecond messages per second with an equal burst.
func NewTelegramLimiter(perSecond int) *rate.Limiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	return rate.NewLimiter(rate.Limit(float64(perSecond)), perSecond)
}

func (c *TelegramChannel) Name() string { return c.name }

func (c *TelegramChannel) Send(ctx context.Context, alert models.ActiveAlert, event models.Event) bool {
	text := telegramText(alert, event)
	ok := true
	for _, chatID := range c.chatIDs {
		if err := c.limiter.Wait(ctx); err != nil {
			c.logger.Errorf("Telegram rate limit wait for alert %s aborted: %v", alert.ID, err)
			return false
		}
		err := utils.Retry(ctx, c.logger, c.attempts, c.retryDelay, func() error {
			params := &bot.SendMessageParams{
				ChatID:    chatID,
				Text:      text,
				ParseMode: "Markdown",
			}
			if _, err := c.sender.SendMessage(ctx, params); err != nil {
				return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", chatID, err)
			}
			return nil
		})
		if err != nil {
			c.logger.Errorf("Telegram delivery of alert %s failed: %v", alert.ID, err)
			ok = false
		}
	}
	return ok
}
