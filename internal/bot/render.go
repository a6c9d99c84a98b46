package bot

import (
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Barahlush/housekeeper-tg-bot/internal/model"
)

const (
	cbOfferAccept   = "offer:accept"
	cbOfferDecline  = "offer:decline"
	cbTaskDone      = "task:done"
	cbTaskCancel    = "task:cancel"
	cbDismissRemove = "dismiss:remove"
	cbDismissKeep   = "dismiss:keep"
)

const (
	btnAccept  = "Ок"
	btnDecline = "Не могу"
	btnDone    = "Выполнить"
	btnCancel  = "Отменить"
	btnRemove  = "Удали"
	btnKeep    = "Оставь"

	dismissQuestion = "Удалить это сообщение или оставить?"
	creatingTask    = "⏳ Создаю задачу…"
	deadlineLayout  = "02.01 15:04"
)

func escape(s string) string {
	return html.EscapeString(s)
}

// renderTask builds the task message for the task's current state. actor is
// the member whose action produced this state and may be nil.
func renderTask(task model.Task, actor *model.User) (string, *tgbotapi.InlineKeyboardMarkup) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("#task от %s\n\n", escape(task.Creator.DisplayName())))
	sb.WriteString(fmt.Sprintf("<b>%s</b>", escape(strings.TrimSpace(task.Text))))
	if note := strings.TrimSpace(task.Note); note != "" {
		sb.WriteString(fmt.Sprintf("\n\n<i>%s</i>", escape(note)))
	}
	if !task.Deadline.IsZero() {
		sb.WriteString(fmt.Sprintf("\n\n⏰ до %s", task.Deadline.Local().Format(deadlineLayout)))
	}
	sb.WriteString("\n\n")

	switch task.State() {
	case model.StateUnassigned:
		sb.WriteString("🙈 Исполнитель пока не выбран.")
		return sb.String(), taskKeyboard()
	case model.StateOffered:
		sb.WriteString(fmt.Sprintf("❓ %s, возьмёшься за задачу?", escape(name(task.Candidate))))
		return sb.String(), offerKeyboard()
	case model.StateAssigned:
		sb.WriteString(fmt.Sprintf("⭐ %s вызвался сделать задачу!", escape(name(task.Executor))))
		return sb.String(), taskKeyboard()
	default:
		sb.WriteString(fmt.Sprintf("✅ %s сделал задачу!", escape(name(task.Executor))))
		if actor != nil && task.Executor != nil && actor.ID != task.Executor.ID {
			sb.WriteString(fmt.Sprintf("\nОтметил %s.", escape(actor.DisplayName())))
		}
		return sb.String(), nil
	}
}

// renderNoAlternative shows the offer after a decline that found nobody else
// to ask.
func renderNoAlternative(task model.Task) (string, *tgbotapi.InlineKeyboardMarkup) {
	text, kb := renderTask(task, nil)
	return text + "\n🤷 Других кандидатов нет, предложение остаётся в силе.", kb
}

// renderNotice appends the dismiss question and buttons to a service message.
func renderNotice(text string) (string, *tgbotapi.InlineKeyboardMarkup) {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnRemove, cbDismissRemove),
			tgbotapi.NewInlineKeyboardButtonData(btnKeep, cbDismissKeep),
		),
	)
	return strings.TrimSpace(text) + "\n\n" + dismissQuestion, &kb
}

// keptNotice turns the plain text of a notice back into HTML without the
// dismiss question.
func keptNotice(plain string) string {
	plain = strings.TrimSpace(plain)
	plain = strings.TrimSuffix(plain, dismissQuestion)
	return escape(strings.TrimSpace(plain))
}

func taskKeyboard() *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(taskRow())
	return &kb
}

func offerKeyboard() *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnAccept, cbOfferAccept),
			tgbotapi.NewInlineKeyboardButtonData(btnDecline, cbOfferDecline),
		),
		taskRow(),
	)
	return &kb
}

func taskRow() []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(btnDone, cbTaskDone),
		tgbotapi.NewInlineKeyboardButtonData(btnCancel, cbTaskCancel),
	)
}

func name(u *model.User) string {
	if u == nil {
		return "кто-то"
	}
	return u.DisplayName()
}
