// Package notify delivers best-effort Telegram messages. Delivery
// failures are logged and never fail the game flow that triggered them.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.telegram.org"

var ErrNotConfigured = errors.New("telegram not configured")

// Config is the stored bot configuration.
type Config struct {
	BotToken string `json:"botToken"`
	ChatID   string `json:"chatId"`
}

func (c Config) complete() bool {
	return c.BotToken != "" && c.ChatID != ""
}

// Telegram posts messages through the Bot API.
type Telegram struct {
	client  *http.Client
	baseURL string
}

func NewTelegram() *Telegram {
	return &Telegram{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: defaultBaseURL,
	}
}

// NewTelegramWithBase points the client at a different API host.
// Used by tests.
func NewTelegramWithBase(baseURL string) *Telegram {
	t := NewTelegram()
	t.baseURL = strings.TrimRight(baseURL, "/")
	return t
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Send posts text to the configured chat with HTML formatting. An
// incomplete config short-circuits with ErrNotConfigured so callers can
// treat notifications as optional.
func (t *Telegram) Send(ctx context.Context, cfg Config, text string) error {
	if !cfg.complete() {
		return ErrNotConfigured
	}
	payload := map[string]string{
		"chat_id":    cfg.ChatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	resp, err := t.post(ctx, cfg.BotToken, "sendMessage", payload)
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("telegram: %s", apiError(resp))
	}
	return nil
}

// SendAsync fires Send on its own goroutine and only logs the outcome.
func (t *Telegram) SendAsync(cfg Config, text string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := t.Send(ctx, cfg, text); err != nil && !errors.Is(err, ErrNotConfigured) {
			log.Printf("[Notify] telegram send failed: %v", err)
		}
	}()
}

// TestConnection verifies the bot token via getMe and, when a chat is
// configured, sends a probe message. It returns the bot's display name
// when the token checks out.
func (t *Telegram) TestConnection(ctx context.Context, cfg Config) (botName string, err error) {
	if cfg.BotToken == "" {
		return "", ErrNotConfigured
	}
	resp, err := t.post(ctx, cfg.BotToken, "getMe", nil)
	if err != nil {
		return "", err
	}
	if !resp.OK {
		return "", fmt.Errorf("invalid bot token: %s", apiError(resp))
	}
	var me struct {
		FirstName string `json:"first_name"`
		Username  string `json:"username"`
	}
	_ = json.Unmarshal(resp.Result, &me)
	botName = me.FirstName
	if botName == "" {
		botName = me.Username
	}
	if botName == "" {
		botName = "Bot"
	}

	if cfg.ChatID == "" {
		return botName, fmt.Errorf("chat id missing: bot %s verified but cannot send", botName)
	}
	probe := fmt.Sprintf("Connection test OK\nBot: %s\nChat ID: %s\n%s",
		botName, cfg.ChatID, time.Now().Format(time.RFC1123))
	sendResp, err := t.post(ctx, cfg.BotToken, "sendMessage", map[string]string{
		"chat_id": cfg.ChatID,
		"text":    probe,
	})
	if err != nil {
		return botName, err
	}
	if !sendResp.OK {
		hint := apiError(sendResp)
		if strings.Contains(hint, "chat not found") {
			hint += " (add the bot to the group and check the chat id)"
		}
		if strings.Contains(hint, "bot was blocked") {
			hint += " (the bot was blocked; add it again)"
		}
		return botName, fmt.Errorf("telegram: %s", hint)
	}
	return botName, nil
}

func (t *Telegram) post(ctx context.Context, token, method string, payload any) (*apiResponse, error) {
	url := fmt.Sprintf("%s/bot%s/%s", t.baseURL, token, method)
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	httpResp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var resp apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		if httpResp.StatusCode != http.StatusOK {
			return &apiResponse{Description: fmt.Sprintf("HTTP %d", httpResp.StatusCode)}, nil
		}
		return nil, err
	}
	return &resp, nil
}

func apiError(resp *apiResponse) string {
	if resp.Description != "" {
		return resp.Description
	}
	return "unknown error"
}
