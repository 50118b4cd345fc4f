package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mymmrac/telego"
)

// Sender delivers one rendered message to one chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, msg Message) error
}

// TelegramSender sends notifications through the Bot API. Messages with
// a photo go out as a photo with caption; when that fails (dead image
// URL, caption limits) the sender falls back to a plain text message so
// the alert is never lost.
type TelegramSender struct {
	bot     *telego.Bot
	timeout time.Duration
	logger  *slog.Logger
}

// NewTelegramSender validates the token against the Bot API and returns
// a ready sender.
func NewTelegramSender(token string, timeout time.Duration, logger *slog.Logger) (*TelegramSender, error) {
	bot, err := telego.NewBot(token, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramSender{
		bot:     bot,
		timeout: timeout,
		logger:  logger.With("component", "telegram"),
	}, nil
}

func (s *TelegramSender) Send(ctx context.Context, chatID int64, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	markup := keyboard(msg.Button)

	if msg.PhotoURL != "" {
		_, err := s.bot.SendPhoto(ctx, &telego.SendPhotoParams{
			ChatID:      telego.ChatID{ID: chatID},
			Photo:       telego.InputFile{URL: msg.PhotoURL},
			Caption:     msg.Text,
			ParseMode:   telego.ModeHTML,
			ReplyMarkup: markup,
		})
		if err == nil {
			return nil
		}
		s.logger.Warn("photo send failed, falling back to text",
			"chat_id", chatID, "error", err)
	}

	_, err := s.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:    telego.ChatID{ID: chatID},
		Text:      msg.Text,
		ParseMode: telego.ModeHTML,
		LinkPreviewOptions: &telego.LinkPreviewOptions{
			IsDisabled: true,
		},
		ReplyMarkup: markup,
	})
	if err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return nil
}

func keyboard(btn *Button) *telego.InlineKeyboardMarkup {
	if btn == nil {
		return nil
	}
	return &telego.InlineKeyboardMarkup{
		InlineKeyboard: [][]telego.InlineKeyboardButton{
			{{Text: btn.Text, URL: btn.URL}},
		},
	}
}
