package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Barahlush/housekeeper-tg-bot/internal/model"
)

var (
	// ErrNotFound is returned when a user, chat or task does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrStaleState is returned by guarded writes when the row no longer
	// matches the state the caller read.
	ErrStaleState = errors.New("stale task state")
)

// Repository is the transactional entity store used by the services.
type Repository interface {
	// WithTransaction runs fn against a repository bound to one transaction.
	// The transaction commits when fn returns nil.
	WithTransaction(ctx context.Context, fn func(tx Repository) error) error

	SaveProfile(ctx context.Context, profile model.User) (*model.User, error)
	FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)

	EnsureChat(ctx context.Context, telegramID int64) (*model.Chat, bool, error)
	FindChat(ctx context.Context, telegramID int64) (*model.Chat, error)
	ListChats(ctx context.Context) ([]model.Chat, error)
	AddMember(ctx context.Context, chatID, userID uint) error
	IsMember(ctx context.Context, chatID, userID uint) (bool, error)
	GetChatMembers(ctx context.Context, chatID uint) ([]model.User, error)

	CreateTask(ctx context.Context, task *model.Task) error
	GetTaskByMessage(ctx context.Context, chatID uint, messageID int) (*model.Task, error)
	ListOpenTasks(ctx context.Context, chatID uint) ([]model.Task, error)
	CountTasksByExecutor(ctx context.Context, chatID, userID uint) (int64, error)
	OfferTask(ctx context.Context, taskID, candidateID uint) error
	ReofferTask(ctx context.Context, taskID, fromID, toID uint) error
	SetExecutor(ctx context.Context, taskID, candidateID uint) error
	SetFinished(ctx context.Context, taskID uint, prevExecutorID *uint, executorID uint, finishedAt time.Time) error
	DeleteTask(ctx context.Context, taskID uint) error
}

// Store implements Repository on top of gorm.
type Store struct {
	*UserRepository
	*ChatRepository
	*TaskRepository
	db *gorm.DB
}

var _ Repository = (*Store)(nil)

func NewStore(db *gorm.DB) *Store {
	return &Store{
		UserRepository: NewUserRepository(db),
		ChatRepository: NewChatRepository(db),
		TaskRepository: NewTaskRepository(db),
		db:             db,
	}
}

func (s *Store) WithTransaction(ctx context.Context, fn func(tx Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
