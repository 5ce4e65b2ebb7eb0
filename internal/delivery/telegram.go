package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramPrefix marks owners that came from the Telegram webhook.
const TelegramPrefix = "tg:"

// telegramAPI is the part of tgbotapi.BotAPI used for sending.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends replies through the Telegram Bot API.
type Telegram struct {
	api telegramAPI
}

// NewTelegram connects to the Bot API with token.
func NewTelegram(token string) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram: %w", err)
	}
	return &Telegram{api: api}, nil
}

// TelegramOwner returns the owner identity for a Telegram chat.
func TelegramOwner(chatID int64) string {
	return TelegramPrefix + strconv.FormatInt(chatID, 10)
}

// Deliver sends text to the chat encoded in recipient ("tg:<chat id>").
func (t *Telegram) Deliver(ctx context.Context, recipient, text string) error {
	chatID, err := strconv.ParseInt(strings.TrimPrefix(recipient, TelegramPrefix), 10, 64)
	if err != nil {
		return Permanent(fmt.Errorf("bad telegram recipient %q: %w", recipient, err))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err = t.api.Send(tgbotapi.NewMessage(chatID, text))
	if err == nil {
		return nil
	}

	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
		return Permanent(err)
	}
	return err
}
