// Package telegram is a minimal Telegram Bot API transport: one outbound
// sendMessage call, one long-polling getUpdates loop, and a static command
// router. It knows nothing about what the messages mean.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/datawire/dlib/dlog"
)

const defaultAPIURL = "https://api.telegram.org"

// pollTimeout is the server-side hold of a getUpdates call. The HTTP client
// timeout must exceed it or every idle poll would end in a client-side error.
const pollTimeout = 30 * time.Second

// Config selects and authenticates the chat transport.
type Config struct {
	// Enabled is a tristate: nil means "on when both credentials are present",
	// anything else is an explicit operator decision.
	Enabled *bool
	Token   string
	ChatID  string
}

// Active reports whether the transport should run.
func (c Config) Active() bool {
	if c.Enabled != nil {
		return *c.Enabled
	}
	return c.Token != "" && c.ChatID != ""
}

// Client talks to the Telegram Bot API on behalf of one bot in one chat.
type Client struct {
	apiURL     string
	token      string
	chatID     string
	sendClient *http.Client
	pollClient *http.Client
}

// NewClient validates cfg and returns a ready Client. It is an error to
// construct a client for an active transport that lacks credentials; callers
// are expected to treat that error as fatal at startup.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Token == "" || cfg.ChatID == "" {
		return nil, errors.New("chat notifications are enabled but the bot token or chat id is missing")
	}
	return &Client{
		apiURL:     defaultAPIURL,
		token:      cfg.Token,
		chatID:     cfg.ChatID,
		sendClient: &http.Client{Timeout: 10 * time.Second},
		pollClient: &http.Client{Timeout: pollTimeout + 5*time.Second},
	}, nil
}

// SendMessage posts text to the configured chat as HTML and reports success.
// Failures are logged, never escalated; a lost notification must not affect
// the caller.
func (c *Client) SendMessage(ctx context.Context, text string) bool {
	body, err := json.Marshal(map[string]any{
		"chat_id":              c.chatID,
		"text":                 text,
		"parse_mode":           "HTML",
		"disable_notification": false,
	})
	if err != nil {
		dlog.Errorf(ctx, "telegram: marshal sendMessage: %v", err)
		return false
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", c.apiURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		dlog.Errorf(ctx, "telegram: build sendMessage: %v", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.sendClient.Do(req)
	if err != nil {
		dlog.Warnf(ctx, "telegram: sendMessage: %v", err)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		det, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		dlog.Warnf(ctx, "telegram: sendMessage status %d: %s", resp.StatusCode, det)
		return false
	}
	return true
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// getUpdates long-polls the API for updates with ids >= offset. The call
// blocks up to pollTimeout when no updates are pending.
func (c *Client) getUpdates(ctx context.Context, offset int64) ([]update, error) {
	url := fmt.Sprintf("%s/bot%s/getUpdates?offset=%d&timeout=%d", c.apiURL, c.token, offset, int(pollTimeout.Seconds()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.pollClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("getUpdates status %d", resp.StatusCode)
	}
	var parsed struct {
		OK     bool     `json:"ok"`
		Result []update `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(err, "decode getUpdates")
	}
	if !parsed.OK {
		return nil, errors.New("getUpdates answered ok=false")
	}
	return parsed.Result, nil
}
