// Package telegram wraps the Bot API client used for delivering
// circulars and polling group commands.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"
)

const defaultAPIURL = "https://api.telegram.org"

type Config struct {
	Token   string
	Timeout time.Duration

	// URL and Offline redirect the client at a test server and skip
	// the getMe probe. Production wiring leaves both zero.
	URL     string
	Offline bool
}

type Client struct {
	bot *tele.Bot
	log zerolog.Logger

	// Long polls are issued outside telebot so they can be aborted by
	// context; telebot's client carries a fixed timeout instead.
	apiURL     string
	token      string
	poll       *http.Client
	reqTimeout time.Duration
}

// Update mirrors the fields of a Bot API update that the command
// listener consumes.
type Update struct {
	ID      int64    `json:"update_id"`
	Message *Message `json:"message"`
}

type Message struct {
	ID   int    `json:"message_id"`
	Text string `json:"text"`
	Chat Chat   `json:"chat"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// IsGroup reports whether the chat is a group or supergroup.
func (c Chat) IsGroup() bool {
	return c.Type == "group" || c.Type == "supergroup"
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	ReplyTo        int
}

func New(cfg Config, log zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.URL,
		Offline: cfg.Offline,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	apiURL := cfg.URL
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &Client{
		bot:        b,
		log:        log,
		apiURL:     apiURL,
		token:      cfg.Token,
		poll:       &http.Client{},
		reqTimeout: timeout,
	}, nil
}

// Username returns the bot account name reported by getMe.
func (c *Client) Username() string {
	if c.bot.Me == nil {
		return ""
	}
	return c.bot.Me.Username
}

// SendMessage delivers text to a chat and returns the new message id.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts SendOptions) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	sendOpt := &tele.SendOptions{
		ParseMode:             opts.ParseMode,
		DisableWebPagePreview: opts.DisablePreview,
	}
	if opts.ReplyTo != 0 {
		sendOpt.ReplyTo = &tele.Message{ID: opts.ReplyTo, Chat: &tele.Chat{ID: chatID}}
	}

	msg, err := c.bot.Send(tele.ChatID(chatID), text, sendOpt)
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// GetUpdates long-polls the Bot API starting at offset. The caller
// owns the offset cursor; this method never acknowledges updates on
// its own. The request is issued directly rather than through telebot
// so that cancelling ctx aborts an in-flight poll immediately; the
// deadline leaves the server the full long-poll window plus the
// regular request timeout for the transfer.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	payload, err := json.Marshal(map[string]any{
		"offset":          offset,
		"timeout":         int(timeout.Seconds()),
		"allowed_updates": []string{"message"},
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout+c.reqTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiURL+"/bot"+c.token+"/getUpdates", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.poll.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed struct {
		OK          bool     `json:"ok"`
		Description string   `json:"description"`
		Result      []Update `json:"result"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode getUpdates response: %w", err)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("getUpdates: telegram: %s", parsed.Description)
	}
	return parsed.Result, nil
}
