package flavor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Barahlush/housekeeper-tg-bot/internal/config"
	"github.com/Barahlush/housekeeper-tg-bot/internal/testutil"
)

func newClient(cfg config.FlavorConfig) *Client {
	return New(cfg, testutil.Logger())
}

func TestTaskNote(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"replies": [" не забудь перчатки…»"]}`))
	}))
	defer srv.Close()

	c := newClient(config.FlavorConfig{TextURL: srv.URL, Timeout: time.Second})
	note := c.TaskNote(context.Background(), "Вынести МУСОР")

	if !strings.HasPrefix(got.Prompt, "Задание тебе - вынести мусор. ") {
		t.Errorf("prompt = %q", got.Prompt)
	}
	if got.Length != noteLength {
		t.Errorf("length = %d, want %d", got.Length, noteLength)
	}

	matched := false
	for _, p := range prePrompts {
		if note == p+" не забудь перчатки" {
			matched = true
		}
		if strings.HasSuffix(got.Prompt, p) && !strings.HasPrefix(note, p) {
			t.Errorf("note %q does not start with the prompt's preprompt %q", note, p)
		}
	}
	if !matched {
		t.Errorf("note = %q", note)
	}
}

func TestTaskNote_FailsSoft(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer broken.Close()
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"replies": []}`))
	}))
	defer empty.Close()

	for name, c := range map[string]*Client{
		"timeout":  newClient(config.FlavorConfig{TextURL: slow.URL, Timeout: 50 * time.Millisecond}),
		"status":   newClient(config.FlavorConfig{TextURL: broken.URL, Timeout: time.Second}),
		"empty":    newClient(config.FlavorConfig{TextURL: empty.URL, Timeout: time.Second}),
		"disabled": newClient(config.FlavorConfig{}),
	} {
		if note := c.TaskNote(context.Background(), "полить цветы"); note != "" {
			t.Errorf("%s: note = %q, want empty", name, note)
		}
	}
}

func TestCelebrationURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("api_key") != "key" || q.Get("limit") != "25" || q.Get("rating") != "g" {
			t.Errorf("query = %v", q)
		}
		_, _ = w.Write([]byte(`{"data": [
			{"images": {"original": {"url": "https://gif/1"}}},
			{"images": {"original": {"url": "https://gif/2"}}}
		]}`))
	}))
	defer srv.Close()

	c := newClient(config.FlavorConfig{GiphyURL: srv.URL, GiphyAPIKey: "key", Timeout: time.Second})
	got := c.CelebrationURL(context.Background())
	if got != "https://gif/1" && got != "https://gif/2" {
		t.Fatalf("CelebrationURL = %q", got)
	}
}

func TestCelebrationURL_Disabled(t *testing.T) {
	c := newClient(config.FlavorConfig{GiphyURL: "http://127.0.0.1:1"})
	if got := c.CelebrationURL(context.Background()); got != "" {
		t.Errorf("without api key got %q", got)
	}
	if got := (Nop{}).CelebrationURL(context.Background()); got != "" {
		t.Errorf("Nop returned %q", got)
	}
}
