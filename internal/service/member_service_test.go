package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Barahlush/housekeeper-tg-bot/internal/repository"
	"github.com/Barahlush/housekeeper-tg-bot/internal/testutil"
)

func TestMemberService_Register(t *testing.T) {
	store := testutil.OpenStore(t)
	svc := NewMemberService(store, testutil.Logger())
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, testChat, Profile{TelegramID: 1}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("register before /start: err = %v, want ErrNotFound", err)
	}

	_, created, err := svc.EnsureChat(ctx, testChat)
	if err != nil || !created {
		t.Fatalf("EnsureChat: created=%v err=%v", created, err)
	}
	if _, created, _ := svc.EnsureChat(ctx, testChat); created {
		t.Error("second EnsureChat should not create")
	}

	user, added, err := svc.Register(ctx, testChat, Profile{TelegramID: 1, Username: "anna"})
	if err != nil || !added {
		t.Fatalf("Register: added=%v err=%v", added, err)
	}
	if user.DisplayName() != "@anna" {
		t.Errorf("DisplayName = %q", user.DisplayName())
	}

	_, added, err = svc.Register(ctx, testChat, Profile{TelegramID: 1, FirstName: "Anna", LastName: "K"})
	if err != nil {
		t.Fatalf("Register again: %v", err)
	}
	if added {
		t.Error("repeated Register should report an existing member")
	}

	members, err := svc.Members(ctx, testChat)
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("Members = %d, want 1", len(members))
	}
	if members[0].DisplayName() != "Anna K" {
		t.Errorf("profile not refreshed, DisplayName = %q", members[0].DisplayName())
	}

	chats, err := svc.ListChats(ctx)
	if err != nil || len(chats) != 1 {
		t.Fatalf("ListChats = %v, %v", chats, err)
	}
}
