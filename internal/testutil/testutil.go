// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"io"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/Barahlush/housekeeper-tg-bot/internal/config"
	"github.com/Barahlush/housekeeper-tg-bot/internal/model"
	"github.com/Barahlush/housekeeper-tg-bot/internal/repository"
)

// Logger returns an entry that discards everything.
func Logger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// OpenStore opens a migrated SQLite database in a temporary directory. The
// database is closed when the test ends.
func OpenStore(t testing.TB) *repository.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "housekeeper.db")
	db, err := repository.NewDB(config.DatabaseConfig{Driver: repository.DriverSQLite, DSN: path}, Logger())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return repository.NewStore(db)
}

// SeedChat registers the chat and adds one member per Telegram id, in order.
// Usernames are "u<id>".
func SeedChat(t testing.TB, store repository.Repository, chatID int64, memberIDs ...int64) (*model.Chat, []model.User) {
	t.Helper()
	ctx := context.Background()

	chat, _, err := store.EnsureChat(ctx, chatID)
	if err != nil {
		t.Fatalf("ensure chat: %v", err)
	}
	users := make([]model.User, 0, len(memberIDs))
	for _, id := range memberIDs {
		user, err := store.SaveProfile(ctx, model.User{TelegramID: id, Username: username(id)})
		if err != nil {
			t.Fatalf("upsert user %d: %v", id, err)
		}
		if err := store.AddMember(ctx, chat.ID, user.ID); err != nil {
			t.Fatalf("add member %d: %v", id, err)
		}
		users = append(users, *user)
	}
	return chat, users
}

// SeedFinished stores n finished tasks in the chat with executor as executor.
// Message ids start at firstMessageID.
func SeedFinished(t testing.TB, store repository.Repository, chat *model.Chat, executor model.User, n, firstMessageID int) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < n; i++ {
		executorID := executor.ID
		task := model.Task{
			ChatID:     chat.ID,
			CreatorID:  executor.ID,
			ExecutorID: &executorID,
			Text:       "seeded",
			IsFinished: true,
			MessageID:  firstMessageID + i,
		}
		if err := store.CreateTask(ctx, &task); err != nil {
			t.Fatalf("seed task: %v", err)
		}
	}
}

func username(id int64) string {
	return "u" + strconv.FormatInt(id, 10)
}
