package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Barahlush/housekeeper-tg-bot/internal/flavor"
	"github.com/Barahlush/housekeeper-tg-bot/internal/repository"
	"github.com/Barahlush/housekeeper-tg-bot/internal/service"
)

// Flavor decorates tasks. Empty results mean "nothing to add".
type Flavor interface {
	TaskNote(ctx context.Context, text string) string
	CelebrationURL(ctx context.Context) string
}

// Sender identifies the user behind an inbound event.
type Sender struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

func (s Sender) profile() service.Profile {
	return service.Profile{TelegramID: s.ID, Username: s.Username, FirstName: s.FirstName, LastName: s.LastName}
}

// MessageEvent is a text message posted in a chat. Command is set, without
// the slash, when the message is a bot command.
type MessageEvent struct {
	ChatID    int64
	MessageID int
	From      Sender
	Text      string
	Command   string
}

// ButtonEvent is a press on an inline button attached to MessageID.
type ButtonEvent struct {
	CallbackID  string
	ChatID      int64
	MessageID   int
	MessageText string
	From        Sender
	Data        string
}

// Dispatcher maps inbound events to service calls and renders the outcome.
type Dispatcher struct {
	tasks        *service.TaskService
	members      *service.MemberService
	digest       *service.DigestService
	flavor       Flavor
	transport    Transport
	deleteSource bool
	log          *logrus.Entry
}

type DispatcherOptions struct {
	Tasks     *service.TaskService
	Members   *service.MemberService
	Digest    *service.DigestService
	Flavor    Flavor
	Transport Transport
	// DeleteSource removes command and task-text messages once handled.
	DeleteSource bool
	Log          *logrus.Entry
}

func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	fl := opts.Flavor
	if fl == nil {
		fl = flavor.Nop{}
	}
	return &Dispatcher{
		tasks:        opts.Tasks,
		members:      opts.Members,
		digest:       opts.Digest,
		flavor:       fl,
		transport:    opts.Transport,
		deleteSource: opts.DeleteSource,
		log:          opts.Log.WithField("component", "dispatch"),
	}
}

func (d *Dispatcher) eventLog(chatID int64, messageID int, userID int64) *logrus.Entry {
	return d.log.WithFields(logrus.Fields{
		"event_id":   uuid.NewString(),
		"chat_id":    chatID,
		"message_id": messageID,
		"user":       userID,
	})
}

// HandleMessage runs a command or turns the text into a new task.
func (d *Dispatcher) HandleMessage(ctx context.Context, ev MessageEvent) {
	log := d.eventLog(ev.ChatID, ev.MessageID, ev.From.ID)

	if ev.Command != "" {
		log = log.WithField("command", ev.Command)
		log.Info("command received")
		d.handleCommand(ctx, log, ev)
		return
	}
	if strings.TrimSpace(ev.Text) == "" {
		return
	}
	d.createTask(ctx, log, ev)
}

func (d *Dispatcher) handleCommand(ctx context.Context, log *logrus.Entry, ev MessageEvent) {
	switch ev.Command {
	case "start":
		d.handleStart(ctx, log, ev)
	case "add_me":
		d.handleAddMe(ctx, log, ev)
	case "tasks":
		d.handleTasks(ctx, log, ev)
	case "help":
		d.notice(ctx, log, ev.ChatID, helpText)
	default:
		d.notice(ctx, log, ev.ChatID, "Команда не поддерживается. Загляни в /help.")
	}
	d.dropSource(ctx, log, ev)
}

const helpText = "ℹ️ <b>Как я работаю</b>\n" +
	"Напиши в чат текст задачи, и я предложу её кому-нибудь из участников. " +
	"Чаще предлагаю тем, кто сделал меньше.\n\n" +
	"• /start — подключить чат\n" +
	"• /add_me — добавить себя в участники\n" +
	"• /tasks — открытые задачи\n" +
	"• /help — эта подсказка"

func (d *Dispatcher) handleStart(ctx context.Context, log *logrus.Entry, ev MessageEvent) {
	if _, _, err := d.members.EnsureChat(ctx, ev.ChatID); err != nil {
		log.WithError(err).Error("register chat")
		d.notice(ctx, log, ev.ChatID, failureText)
		return
	}
	text := "👋 Привет! Я помогу распределять домашние дела.\n\n" + helpText
	if _, err := d.transport.SendMessage(ctx, ev.ChatID, text, nil, 0); err != nil {
		log.WithError(err).Warn("send greeting")
	}
}

func (d *Dispatcher) handleAddMe(ctx context.Context, log *logrus.Entry, ev MessageEvent) {
	user, added, err := d.members.Register(ctx, ev.ChatID, ev.From.profile())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		d.notice(ctx, log, ev.ChatID, "Чат ещё не подключён. Сначала выполни /start.")
	case err != nil:
		log.WithError(err).Error("register member")
		d.notice(ctx, log, ev.ChatID, failureText)
	case added:
		d.notice(ctx, log, ev.ChatID, fmt.Sprintf("🙌 %s теперь в списке участников!", escape(user.DisplayName())))
	default:
		d.notice(ctx, log, ev.ChatID, fmt.Sprintf("%s уже в списке участников.", escape(user.DisplayName())))
	}
}

func (d *Dispatcher) handleTasks(ctx context.Context, log *logrus.Entry, ev MessageEvent) {
	text, _, err := d.digest.OpenTasksSummary(ctx, ev.ChatID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		d.notice(ctx, log, ev.ChatID, "Чат ещё не подключён. Сначала выполни /start.")
	case err != nil:
		log.WithError(err).Error("build task list")
		d.notice(ctx, log, ev.ChatID, failureText)
	default:
		d.notice(ctx, log, ev.ChatID, text)
	}
}

func (d *Dispatcher) createTask(ctx context.Context, log *logrus.Entry, ev MessageEvent) {
	creator, err := d.members.Member(ctx, ev.ChatID, ev.From.ID)
	if err != nil {
		d.replyError(ctx, log, ev.ChatID, err)
		return
	}

	messageID, err := d.transport.SendMessage(ctx, ev.ChatID, creatingTask, nil, 0)
	if err != nil {
		log.WithError(err).Error("send task placeholder")
		return
	}
	log = log.WithField("task_message_id", messageID)

	note := d.flavor.TaskNote(ctx, ev.Text)
	task, err := d.tasks.Create(ctx, service.TaskInput{
		ChatID:    ev.ChatID,
		CreatorID: creator.TelegramID,
		Text:      ev.Text,
		Note:      note,
		MessageID: messageID,
	})
	if err != nil {
		if delErr := d.transport.DeleteMessage(ctx, ev.ChatID, messageID); delErr != nil {
			log.WithError(delErr).Warn("delete task placeholder")
		}
		d.replyError(ctx, log, ev.ChatID, err)
		return
	}

	ref := service.TaskRef{ChatID: ev.ChatID, MessageID: messageID}
	shown := *task
	tr, err := d.tasks.Offer(ctx, ref)
	switch {
	case err == nil:
		shown = tr.Task
	case errors.Is(err, service.ErrNoCandidates):
		d.notice(ctx, log, ev.ChatID, noCandidatesText)
	default:
		log.WithError(err).Error("offer task")
	}

	text, kb := renderTask(shown, nil)
	if err := d.showTask(ctx, ev.ChatID, messageID, text, kb); err != nil {
		log.WithError(err).Error("render task")
		d.notice(ctx, log, ev.ChatID, failureText)
		return
	}
	d.dropSource(ctx, log, ev)
}

// showTask replaces the placeholder with the rendered task, trying twice.
func (d *Dispatcher) showTask(ctx context.Context, chatID int64, messageID int, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	err := d.transport.EditMessage(ctx, chatID, messageID, text, kb)
	if err == nil || ctx.Err() != nil {
		return err
	}
	return d.transport.EditMessage(ctx, chatID, messageID, text, kb)
}

// HandleButton applies the pressed button. The callback is answered exactly
// once, with a toast when the press had no effect.
func (d *Dispatcher) HandleButton(ctx context.Context, ev ButtonEvent) {
	log := d.eventLog(ev.ChatID, ev.MessageID, ev.From.ID).WithField("button", ev.Data)
	log.Debug("button pressed")

	switch ev.Data {
	case cbDismissRemove:
		d.answer(ctx, log, ev, "")
		if err := d.transport.DeleteMessage(ctx, ev.ChatID, ev.MessageID); err != nil {
			log.WithError(err).Warn("delete notice")
		}
	case cbDismissKeep:
		d.answer(ctx, log, ev, "")
		if err := d.transport.EditMessage(ctx, ev.ChatID, ev.MessageID, keptNotice(ev.MessageText), nil); err != nil {
			log.WithError(err).Warn("keep notice")
		}
	case cbOfferAccept, cbOfferDecline, cbTaskDone, cbTaskCancel:
		d.transition(ctx, log, ev)
	default:
		log.Warn("unknown button")
		d.answer(ctx, log, ev, "")
	}
}

func (d *Dispatcher) transition(ctx context.Context, log *logrus.Entry, ev ButtonEvent) {
	ref := service.TaskRef{ChatID: ev.ChatID, MessageID: ev.MessageID}

	var (
		tr  *service.Transition
		err error
	)
	switch ev.Data {
	case cbOfferAccept:
		tr, err = d.tasks.Accept(ctx, ref, ev.From.ID)
	case cbOfferDecline:
		tr, err = d.tasks.Decline(ctx, ref, ev.From.ID)
	case cbTaskDone:
		tr, err = d.tasks.Complete(ctx, ref, ev.From.ID)
	case cbTaskCancel:
		tr, err = d.tasks.Remove(ctx, ref, ev.From.ID)
	}
	if err != nil {
		d.answer(ctx, log, ev, toastFor(log, err))
		if errors.Is(err, service.ErrInvalidTransition) {
			d.refresh(ctx, log, ref)
		}
		return
	}

	if ev.Data == cbTaskCancel {
		d.answer(ctx, log, ev, "Задача отменена")
		if err := d.transport.DeleteMessage(ctx, ev.ChatID, ev.MessageID); err != nil {
			log.WithError(err).Warn("delete cancelled task")
		}
		return
	}

	toast := ""
	text, kb := renderTask(tr.Task, &tr.Actor)
	if tr.NoAlternative {
		toast = noAlternativeText
		text, kb = renderNoAlternative(tr.Task)
	}
	if err := d.transport.EditMessage(ctx, ev.ChatID, ev.MessageID, text, kb); err != nil {
		// The transition is committed; a repeated press re-renders it.
		log.WithError(err).Error("render task")
		toast = failureText
	}
	d.answer(ctx, log, ev, toast)

	if ev.Data == cbTaskDone {
		d.celebrate(ctx, log, ev)
	}
}

// refresh re-renders the task after a lost race so the message shows the
// committed state.
func (d *Dispatcher) refresh(ctx context.Context, log *logrus.Entry, ref service.TaskRef) {
	task, err := d.tasks.Get(ctx, ref)
	if err != nil {
		log.WithError(err).Debug("refresh task")
		return
	}
	text, kb := renderTask(*task, nil)
	if err := d.transport.EditMessage(ctx, ref.ChatID, ref.MessageID, text, kb); err != nil {
		log.WithError(err).Debug("refresh task message")
	}
}

func (d *Dispatcher) celebrate(ctx context.Context, log *logrus.Entry, ev ButtonEvent) {
	url := d.flavor.CelebrationURL(ctx)
	if url == "" {
		return
	}
	if err := d.transport.SendAnimation(ctx, ev.ChatID, url, ev.MessageID); err != nil {
		log.WithError(err).Warn("send celebration")
	}
}

// SendDigests posts the open-task list to every registered chat that has
// open tasks.
func (d *Dispatcher) SendDigests(ctx context.Context) error {
	chats, err := d.members.ListChats(ctx)
	if err != nil {
		return err
	}
	for _, chat := range chats {
		if err := ctx.Err(); err != nil {
			return err
		}
		log := d.log.WithField("chat_id", chat.TelegramID)
		text, n, err := d.digest.OpenTasksSummary(ctx, chat.TelegramID)
		if err != nil {
			log.WithError(err).Error("build digest")
			continue
		}
		if n == 0 {
			continue
		}
		d.notice(ctx, log, chat.TelegramID, text)
	}
	return nil
}

const (
	failureText       = "😵 Что-то пошло не так. Попробуй ещё раз."
	noCandidatesText  = "Некому предложить задачу: в чате нет участников. Добавьтесь через /add_me."
	noAlternativeText = "Нет кандидатов, кроме тебя, чтобы сделать задачу, увы."
)

func (d *Dispatcher) replyError(ctx context.Context, log *logrus.Entry, chatID int64, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		d.notice(ctx, log, chatID, "Чат ещё не подключён. Сначала выполни /start.")
	case errors.Is(err, service.ErrNotMember):
		d.notice(ctx, log, chatID, "Чтобы создавать задачи, добавься в участники: /add_me.")
	case errors.Is(err, service.ErrEmptyText):
	default:
		log.WithError(err).Error("create task")
		d.notice(ctx, log, chatID, failureText)
	}
}

func toastFor(log *logrus.Entry, err error) string {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return "Задача не найдена"
	case errors.Is(err, service.ErrInvalidTransition):
		return "Эту задачу уже обработали"
	case errors.Is(err, service.ErrNotMember):
		return "Сначала добавься в участники: /add_me"
	case errors.Is(err, service.ErrForbidden):
		return "Это предложение не тебе"
	default:
		log.WithError(err).Error("apply transition")
		return "Что-то пошло не так, попробуй ещё раз"
	}
}

func (d *Dispatcher) notice(ctx context.Context, log *logrus.Entry, chatID int64, text string) {
	body, kb := renderNotice(text)
	if _, err := d.transport.SendMessage(ctx, chatID, body, kb, 0); err != nil {
		log.WithError(err).Warn("send notice")
	}
}

func (d *Dispatcher) answer(ctx context.Context, log *logrus.Entry, ev ButtonEvent, text string) {
	if err := d.transport.AnswerCallback(ctx, ev.CallbackID, text); err != nil {
		log.WithError(err).Warn("callback ack")
	}
}

func (d *Dispatcher) dropSource(ctx context.Context, log *logrus.Entry, ev MessageEvent) {
	if !d.deleteSource {
		return
	}
	if err := d.transport.DeleteMessage(ctx, ev.ChatID, ev.MessageID); err != nil {
		log.WithError(err).Warn("delete source message")
	}
}
