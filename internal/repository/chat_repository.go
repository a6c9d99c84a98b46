package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Barahlush/housekeeper-tg-bot/internal/model"
)

const chatMembersTable = "chat_members"

// ChatRepository manages chats and their membership.
type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// EnsureChat returns the chat with the given Telegram id, creating it on first
// use. The boolean reports whether the chat was created.
func (r *ChatRepository) EnsureChat(ctx context.Context, telegramID int64) (*model.Chat, bool, error) {
	var chat model.Chat
	db := r.db.WithContext(ctx)
	err := db.Where("telegram_id = ?", telegramID).First(&chat).Error
	switch {
	case err == nil:
		return &chat, false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		chat = model.Chat{TelegramID: telegramID}
		if err := db.Create(&chat).Error; err != nil {
			return nil, false, fmt.Errorf("create chat: %w", err)
		}
		return &chat, true, nil
	default:
		return nil, false, fmt.Errorf("find chat: %w", err)
	}
}

func (r *ChatRepository) FindChat(ctx context.Context, telegramID int64) (*model.Chat, error) {
	var chat model.Chat
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&chat).Error; err != nil {
		return nil, fmt.Errorf("find chat %d: %w", telegramID, notFound(err))
	}
	return &chat, nil
}

func (r *ChatRepository) ListChats(ctx context.Context) ([]model.Chat, error) {
	var chats []model.Chat
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&chats).Error; err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}

// AddMember links the user to the chat. Adding an existing member is a no-op.
func (r *ChatRepository) AddMember(ctx context.Context, chatID, userID uint) error {
	row := map[string]interface{}{"chat_id": chatID, "user_id": userID}
	err := r.db.WithContext(ctx).Table(chatMembersTable).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (r *ChatRepository) IsMember(ctx context.Context, chatID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Table(chatMembersTable).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check member: %w", err)
	}
	return count > 0, nil
}

// GetChatMembers lists members ordered by registration id so that callers
// iterating the pool see a stable order.
func (r *ChatRepository) GetChatMembers(ctx context.Context, chatID uint) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Joins("JOIN chat_members ON chat_members.user_id = users.id").
		Where("chat_members.chat_id = ?", chatID).
		Order("users.id ASC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return users, nil
}
