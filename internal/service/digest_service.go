package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/Barahlush/housekeeper-tg-bot/internal/model"
	"github.com/Barahlush/housekeeper-tg-bot/internal/repository"
)

// DigestService builds the human-readable list of a chat's open tasks.
type DigestService struct {
	repo repository.Repository
	now  func() time.Time
}

func NewDigestService(repo repository.Repository) *DigestService {
	return &DigestService{repo: repo, now: time.Now}
}

// OpenTasksSummary renders the open tasks of the chat as HTML. The count is
// the number of listed tasks so callers can skip empty digests.
func (s *DigestService) OpenTasksSummary(ctx context.Context, chatID int64) (string, int, error) {
	chat, err := s.repo.FindChat(ctx, chatID)
	if err != nil {
		return "", 0, err
	}
	tasks, err := s.repo.ListOpenTasks(ctx, chat.ID)
	if err != nil {
		return "", 0, err
	}
	return FormatDigest(tasks, s.now()), len(tasks), nil
}

// FormatDigest renders tasks in the given order relative to now.
func FormatDigest(tasks []model.Task, now time.Time) string {
	var builder strings.Builder
	builder.WriteString("📋 <b>Открытые задачи</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("02.01.2006")))

	if len(tasks) == 0 {
		builder.WriteString("— нет открытых задач\n")
		return strings.TrimSpace(builder.String())
	}
	for _, task := range tasks {
		builder.WriteString(formatDigestTask(task, now))
	}
	return strings.TrimSpace(builder.String())
}

func formatDigestTask(task model.Task, now time.Time) string {
	var sb strings.Builder

	icon := "🟢"
	if !task.Deadline.IsZero() && now.After(task.Deadline) {
		icon = "⚠️"
	}
	sb.WriteString(fmt.Sprintf("%s %s", icon, html.EscapeString(strings.TrimSpace(task.Text))))

	switch task.State() {
	case model.StateAssigned:
		sb.WriteString(fmt.Sprintf("\n   👤 делает %s", html.EscapeString(personName(task.Executor))))
	case model.StateOffered:
		sb.WriteString(fmt.Sprintf("\n   ❓ предложена %s", html.EscapeString(personName(task.Candidate))))
	default:
		sb.WriteString("\n   🙈 никто не взялся")
	}

	if !task.Deadline.IsZero() {
		d := task.Deadline.In(now.Location())
		if now.After(d) {
			sb.WriteString(fmt.Sprintf("\n   ⏰ до %s · <b>просрочено</b>", d.Format("02.01 15:04")))
		} else {
			sb.WriteString(fmt.Sprintf("\n   ⏰ до %s", d.Format("02.01 15:04")))
		}
	}

	sb.WriteByte('\n')
	return sb.String()
}

func personName(u *model.User) string {
	if u == nil {
		return "?"
	}
	return u.DisplayName()
}
