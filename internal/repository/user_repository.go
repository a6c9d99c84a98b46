package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Barahlush/housekeeper-tg-bot/internal/model"
)

// profileColumns are overwritten every time a member shows up with a newer
// Telegram profile. The row id and created_at never change.
var profileColumns = []string{"first_name", "last_name", "username", "updated_at"}

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// SaveProfile inserts the user keyed by TelegramID or refreshes the names of
// the existing row, and returns the stored row.
func (r *UserRepository) SaveProfile(ctx context.Context, profile model.User) (*model.User, error) {
	row := model.User{
		TelegramID: profile.TelegramID,
		FirstName:  profile.FirstName,
		LastName:   profile.LastName,
		Username:   profile.Username,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "telegram_id"}},
			DoUpdates: clause.AssignmentColumns(profileColumns),
		}).
		Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("save profile %d: %w", profile.TelegramID, err)
	}
	return r.FindByTelegramID(ctx, profile.TelegramID)
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		return nil, fmt.Errorf("find user %d: %w", telegramID, notFound(err))
	}
	return &user, nil
}
