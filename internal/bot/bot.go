package bot

import (
	"context"
	"fmt"
	"runtime/debug"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/Barahlush/housekeeper-tg-bot/internal/config"
	"github.com/Barahlush/housekeeper-tg-bot/internal/service"
)

// Bot aggregates the Telegram API with the dispatcher.
type Bot struct {
	api        *tgbotapi.BotAPI
	dispatcher *Dispatcher
	cfg        config.TelegramConfig
	log        *logrus.Entry
}

// Services are the collaborators the bot dispatches to.
type Services struct {
	Tasks   *service.TaskService
	Members *service.MemberService
	Digest  *service.DigestService
	Flavor  Flavor
}

func New(cfg config.TelegramConfig, svc Services, log *logrus.Entry) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log = log.WithField("component", "bot")
	log.WithField("account", api.Self.UserName).Info("bot authorized")

	return &Bot{
		api: api,
		dispatcher: NewDispatcher(DispatcherOptions{
			Tasks:        svc.Tasks,
			Members:      svc.Members,
			Digest:       svc.Digest,
			Flavor:       svc.Flavor,
			Transport:    newTelegramTransport(api),
			DeleteSource: cfg.DeleteSourceMessages,
			Log:          log,
		}),
		cfg: cfg,
		log: log,
	}, nil
}

// Start polls updates until ctx is cancelled. Updates are handled by at most
// cfg.Workers goroutines; Start returns after the in-flight ones finish.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = b.cfg.PollTimeout
	updateConfig.AllowedUpdates = []string{"message", "callback_query"}
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.WithField("workers", b.cfg.Workers).Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	workers := pool.New().WithMaxGoroutines(b.cfg.Workers)
	for update := range updates {
		workers.Go(func() {
			b.handleUpdate(ctx, update)
		})
	}
	workers.Wait()

	return ctx.Err()
}

// SendDigests posts the open-task digest to every registered chat.
func (b *Bot) SendDigests(ctx context.Context) error {
	return b.dispatcher.SendDigests(ctx)
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithField("update_id", update.UpdateID).Errorf("panic while handling update: %v\n%s", r, debug.Stack())
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		if ev, ok := buttonEvent(update.CallbackQuery); ok {
			b.dispatcher.HandleButton(ctx, ev)
		}
	case update.Message != nil:
		if ev, ok := messageEvent(update.Message); ok {
			b.dispatcher.HandleMessage(ctx, ev)
		}
	}
}

func messageEvent(msg *tgbotapi.Message) (MessageEvent, bool) {
	if msg.From == nil || msg.From.IsBot || msg.Chat == nil || msg.Text == "" {
		return MessageEvent{}, false
	}
	ev := MessageEvent{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		From:      sender(msg.From),
		Text:      msg.Text,
	}
	if msg.IsCommand() {
		ev.Command = msg.Command()
		ev.Text = msg.CommandArguments()
	}
	return ev, true
}

func buttonEvent(cb *tgbotapi.CallbackQuery) (ButtonEvent, bool) {
	if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return ButtonEvent{}, false
	}
	return ButtonEvent{
		CallbackID:  cb.ID,
		ChatID:      cb.Message.Chat.ID,
		MessageID:   cb.Message.MessageID,
		MessageText: cb.Message.Text,
		From:        sender(cb.From),
		Data:        cb.Data,
	}, true
}

func sender(u *tgbotapi.User) Sender {
	return Sender{ID: u.ID, Username: u.UserName, FirstName: u.FirstName, LastName: u.LastName}
}
