package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/Barahlush/housekeeper-tg-bot/internal/model"
	"github.com/Barahlush/housekeeper-tg-bot/internal/repository"
)

// Profile is the Telegram identity of a user as seen in an update.
type Profile struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
}

// MemberService registers chats and their members.
type MemberService struct {
	repo repository.Repository
	log  *logrus.Entry
}

func NewMemberService(repo repository.Repository, log *logrus.Entry) *MemberService {
	return &MemberService{repo: repo, log: log.WithField("component", "members")}
}

// EnsureChat registers the chat. The flag reports whether it was new.
func (s *MemberService) EnsureChat(ctx context.Context, chatID int64) (*model.Chat, bool, error) {
	chat, created, err := s.repo.EnsureChat(ctx, chatID)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.log.WithField("chat_id", chatID).Info("chat registered")
	}
	return chat, created, nil
}

// Register refreshes the user's profile and adds them to a registered chat.
// The flag reports whether the user was not a member before.
func (s *MemberService) Register(ctx context.Context, chatID int64, p Profile) (*model.User, bool, error) {
	var (
		user  *model.User
		added bool
	)
	err := s.repo.WithTransaction(ctx, func(tx repository.Repository) error {
		chat, err := tx.FindChat(ctx, chatID)
		if err != nil {
			return err
		}
		user, err = tx.SaveProfile(ctx, model.User{
			TelegramID: p.TelegramID,
			FirstName:  p.FirstName,
			LastName:   p.LastName,
			Username:   p.Username,
		})
		if err != nil {
			return err
		}
		member, err := tx.IsMember(ctx, chat.ID, user.ID)
		if err != nil {
			return err
		}
		if member {
			added = false
			return nil
		}
		added = true
		return tx.AddMember(ctx, chat.ID, user.ID)
	})
	if err != nil {
		return nil, false, err
	}

	if added {
		s.log.WithFields(logrus.Fields{"chat_id": chatID, "user": p.TelegramID}).Info("member added")
	}
	return user, added, nil
}

// Member returns the user if they are registered in the chat. An unknown chat
// yields repository.ErrNotFound, an unknown or foreign user ErrNotMember.
func (s *MemberService) Member(ctx context.Context, chatID, telegramID int64) (*model.User, error) {
	chat, err := s.repo.FindChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.FindByTelegramID(ctx, telegramID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotMember
	}
	if err != nil {
		return nil, err
	}
	ok, err := s.repo.IsMember(ctx, chat.ID, user.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotMember
	}
	return user, nil
}

// Members lists the registered members of a chat.
func (s *MemberService) Members(ctx context.Context, chatID int64) ([]model.User, error) {
	chat, err := s.repo.FindChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetChatMembers(ctx, chat.ID)
}

// ListChats returns every registered chat.
func (s *MemberService) ListChats(ctx context.Context) ([]model.Chat, error) {
	return s.repo.ListChats(ctx)
}
