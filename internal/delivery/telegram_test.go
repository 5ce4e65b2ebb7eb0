package delivery

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeTelegram struct {
	err  error
	sent []tgbotapi.MessageConfig
}

func (f *fakeTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, f.err
}

func TestTelegramDeliver(t *testing.T) {
	api := &fakeTelegram{}
	tg := &Telegram{api: api}

	if err := tg.Deliver(context.Background(), TelegramOwner(42), "hello"); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(api.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(api.sent))
	}
	if api.sent[0].ChatID != 42 || api.sent[0].Text != "hello" {
		t.Errorf("unexpected message: %+v", api.sent[0])
	}
}

func TestTelegramDeliverErrors(t *testing.T) {
	tests := []struct {
		name      string
		recipient string
		err       error
		permanent bool
	}{
		{"bad recipient", "tg:abc", nil, true},
		{"forbidden", "tg:1", &tgbotapi.Error{Code: 403, Message: "bot was blocked"}, true},
		{"rate limited", "tg:1", &tgbotapi.Error{Code: 429, Message: "too many requests"}, false},
		{"network", "tg:1", errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tg := &Telegram{api: &fakeTelegram{err: tt.err}}
			err := tg.Deliver(context.Background(), tt.recipient, "hi")
			if err == nil {
				t.Fatal("expected error")
			}
			if IsPermanent(err) != tt.permanent {
				t.Errorf("IsPermanent = %v, want %v", IsPermanent(err), tt.permanent)
			}
		})
	}
}
