package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrTransport wraps failures reported by the chat API.
var ErrTransport = errors.New("telegram transport failure")

// Transport is the outbound side of the chat. Texts are HTML; a nil keyboard
// sends or leaves the message without buttons.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup, replyTo int) (int, error)
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, kb *tgbotapi.InlineKeyboardMarkup) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	SendAnimation(ctx context.Context, chatID int64, url string, replyTo int) error
}

type telegramTransport struct {
	api *tgbotapi.BotAPI
}

func newTelegramTransport(api *tgbotapi.BotAPI) *telegramTransport {
	return &telegramTransport{api: api}
}

func (t *telegramTransport) SendMessage(ctx context.Context, chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup, replyTo int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyToMessageID = replyTo
	if kb != nil {
		msg.ReplyMarkup = *kb
	}
	sent, err := t.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("%w: send message: %v", ErrTransport, err)
	}
	return sent.MessageID, nil
}

func (t *telegramTransport) EditMessage(ctx context.Context, chatID int64, messageID int, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.ReplyMarkup = kb
	if _, err := t.api.Request(edit); err != nil {
		if notModified(err) {
			return nil
		}
		return fmt.Errorf("%w: edit message: %v", ErrTransport, err)
	}
	return nil
}

func (t *telegramTransport) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("%w: delete message: %v", ErrTransport, err)
	}
	return nil
}

func (t *telegramTransport) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("%w: callback ack: %v", ErrTransport, err)
	}
	return nil
}

func (t *telegramTransport) SendAnimation(ctx context.Context, chatID int64, url string, replyTo int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	anim := tgbotapi.NewAnimation(chatID, tgbotapi.FileURL(url))
	anim.ReplyToMessageID = replyTo
	if _, err := t.api.Send(anim); err != nil {
		return fmt.Errorf("%w: send animation: %v", ErrTransport, err)
	}
	return nil
}

// notModified reports Telegram's refusal to apply an edit that changes
// nothing. The message already shows the wanted state.
func notModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}
