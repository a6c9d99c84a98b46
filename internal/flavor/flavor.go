// Package flavor decorates tasks with generated notes and celebration media.
// Every lookup is bounded by a timeout and fails soft: on any problem the
// result is an empty string and a warning is logged.
package flavor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Barahlush/housekeeper-tg-bot/internal/config"
)

const (
	noteLength = 39
	giphyLimit = 25
	giphyRated = "g"
)

var prePrompts = []string{
	"Важное примечание к этой задаче:",
	"Важное замечание к этой задаче:",
	"Важно помнить об этой задаче:",
}

var noteCleaner = strings.NewReplacer("…", "", "»", "")

// Client talks to the text generator and to Giphy.
type Client struct {
	http     *http.Client
	textURL  string
	giphyURL string
	giphyKey string
	log      *logrus.Entry

	mu  sync.Mutex
	rnd *rand.Rand
}

func New(cfg config.FlavorConfig, log *logrus.Entry) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		textURL:  strings.TrimSpace(cfg.TextURL),
		giphyURL: strings.TrimSpace(cfg.GiphyURL),
		giphyKey: strings.TrimSpace(cfg.GiphyAPIKey),
		log:      log.WithField("component", "flavor"),
		rnd:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	Length int    `json:"length"`
}

type generateResponse struct {
	Replies []string `json:"replies"`
}

// TaskNote asks the generator to continue a remark about the task.
func (c *Client) TaskNote(ctx context.Context, text string) string {
	if c.textURL == "" || strings.TrimSpace(text) == "" {
		return ""
	}

	preprompt := prePrompts[c.intn(len(prePrompts))]
	body, err := json.Marshal(generateRequest{
		Prompt: fmt.Sprintf("Задание тебе - %s. %s", strings.ToLower(strings.TrimSpace(text)), preprompt),
		Length: noteLength,
	})
	if err != nil {
		c.log.WithError(err).Warn("encode note request")
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.textURL, bytes.NewReader(body))
	if err != nil {
		c.log.WithError(err).Warn("build note request")
		return ""
	}
	req.Header.Set("Content-Type", "application/json")

	var out generateResponse
	if err := c.do(req, &out); err != nil {
		c.log.WithError(err).Warn("note generation failed")
		return ""
	}
	if len(out.Replies) == 0 {
		return ""
	}
	reply := strings.TrimSpace(noteCleaner.Replace(out.Replies[0]))
	if reply == "" {
		return ""
	}
	return preprompt + " " + reply
}

type giphyResponse struct {
	Data []struct {
		Images struct {
			Original struct {
				URL string `json:"url"`
			} `json:"original"`
		} `json:"images"`
	} `json:"data"`
}

// CelebrationURL returns a random trending animation.
func (c *Client) CelebrationURL(ctx context.Context) string {
	if c.giphyURL == "" || c.giphyKey == "" {
		return ""
	}

	u, err := url.Parse(c.giphyURL)
	if err != nil {
		c.log.WithError(err).Warn("parse giphy url")
		return ""
	}
	q := u.Query()
	q.Set("api_key", c.giphyKey)
	q.Set("limit", fmt.Sprint(giphyLimit))
	q.Set("rating", giphyRated)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		c.log.WithError(err).Warn("build giphy request")
		return ""
	}

	var out giphyResponse
	if err := c.do(req, &out); err != nil {
		c.log.WithError(err).Warn("giphy lookup failed")
		return ""
	}

	urls := make([]string, 0, len(out.Data))
	for _, gif := range out.Data {
		if gif.Images.Original.URL != "" {
			urls = append(urls, gif.Images.Original.URL)
		}
	}
	if len(urls) == 0 {
		return ""
	}
	return urls[c.intn(len(urls))]
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) intn(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rnd.IntN(n)
}

// Nop provides no flavor at all.
type Nop struct{}

func (Nop) TaskNote(context.Context, string) string { return "" }

func (Nop) CelebrationURL(context.Context) string { return "" }
