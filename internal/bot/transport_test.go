package bot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func newTestTransport(t *testing.T, editReply string) *telegramTransport {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"hk","username":"hk_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/editMessageText"):
			_, _ = w.Write([]byte(editReply))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	api, err := tgbotapi.NewBotAPIWithClient("token", srv.URL+"/bot%s/%s", srv.Client())
	if err != nil {
		t.Fatalf("NewBotAPIWithClient: %v", err)
	}
	return newTelegramTransport(api)
}

func TestEditMessage_NotModifiedIsSuccess(t *testing.T) {
	tr := newTestTransport(t, `{"ok":false,"error_code":400,"description":"Bad Request: message is not modified: specified new message content and reply markup are exactly the same"}`)
	if err := tr.EditMessage(context.Background(), chatID, 7, "text", nil); err != nil {
		t.Fatalf("EditMessage = %v, want nil", err)
	}
}

func TestEditMessage_OtherFailuresAreTransportErrors(t *testing.T) {
	tr := newTestTransport(t, `{"ok":false,"error_code":400,"description":"Bad Request: message to edit not found"}`)
	err := tr.EditMessage(context.Background(), chatID, 7, "text", nil)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("EditMessage = %v, want ErrTransport", err)
	}
}
