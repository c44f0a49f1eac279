// Package line provides the LINE Messaging API surface this service needs:
// the webhook event model, reply and push delivery, and message content
// download.
//
// Delivery is two-phase. A reply token is single-use and expires shortly
// after the webhook is delivered, so it is spent immediately on an
// acknowledgment. Results that take longer are sent with push, which only
// needs the user's id.
//
// Reference: https://developers.line.biz/en/reference/messaging-api/
package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/line-video-coach/internal/config"
	"github.com/fpang/line-video-coach/internal/media"
)

const (
	// DefaultAPIBaseURL serves reply and push.
	DefaultAPIBaseURL = "https://api.line.me"

	// DefaultDataBaseURL serves message content downloads.
	DefaultDataBaseURL = "https://api-data.line.me"

	defaultTimeout = 30 * time.Second

	// maxErrorBody caps how much of an error response is kept for diagnostics.
	maxErrorBody = 4 << 10
)

// Client calls the LINE Messaging API with a channel access token.
type Client struct {
	httpClient  *http.Client
	accessToken string
	apiBaseURL  string
	dataBaseURL string
}

// NewClient creates a Messaging API client. An empty accessToken is allowed
// here and reported on the first call.
func NewClient(accessToken string) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: defaultTimeout},
		accessToken: accessToken,
		apiBaseURL:  DefaultAPIBaseURL,
		dataBaseURL: DefaultDataBaseURL,
	}
}

// NewClientFromConfig creates a client from the LINE section of the config.
func NewClientFromConfig(cfg config.LINEConfig) *Client {
	c := NewClient(cfg.ChannelAccessToken)
	if cfg.APIBaseURL != "" {
		c.apiBaseURL = cfg.APIBaseURL
	}
	if cfg.DataBaseURL != "" {
		c.dataBaseURL = cfg.DataBaseURL
	}
	if cfg.Timeout > 0 {
		c.httpClient.Timeout = cfg.Timeout
	}
	return c
}

// --- API request types ---

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type replyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []textMessage `json:"messages"`
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []textMessage `json:"messages"`
}

// APIError is a non-2xx response from the Messaging API.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("LINE %s failed: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// --- Delivery ---

// Reply sends text with a single-use reply token. The token is spent by this
// call whatever the outcome; callers must not retry.
func (c *Client) Reply(ctx context.Context, replyToken, text string) error {
	body := replyRequest{
		ReplyToken: replyToken,
		Messages:   []textMessage{{Type: "text", Text: TruncateText(text)}},
	}
	if err := c.postJSON(ctx, "reply", c.apiBaseURL+"/v2/bot/message/reply", body); err != nil {
		return err
	}
	log.Debug().Int("textLength", len(text)).Msg("LINE reply sent")
	return nil
}

// Push sends text to a user id. Text over MaxTextRunes is truncated with a
// visible marker rather than rejected or split.
func (c *Client) Push(ctx context.Context, userID, text string) error {
	body := pushRequest{
		To:       userID,
		Messages: []textMessage{{Type: "text", Text: TruncateText(text)}},
	}
	if err := c.postJSON(ctx, "push", c.apiBaseURL+"/v2/bot/message/push", body); err != nil {
		return err
	}
	log.Debug().Str("userId", userID).Int("textLength", len(text)).Msg("LINE push sent")
	return nil
}

// --- Content ---

// Content downloads the binary payload of a media message. The whole body is
// read into memory. limit > 0 caps the number of bytes read; a larger body
// fails with media.ErrTooLarge. A non-2xx status is returned as *APIError.
func (c *Client) Content(ctx context.Context, messageID string, limit int64) ([]byte, string, error) {
	token, err := config.Require("LINE_CHANNEL_ACCESS_TOKEN", c.accessToken)
	if err != nil {
		return nil, "", err
	}

	endpoint := fmt.Sprintf("%s/v2/bot/message/%s/content", c.dataBaseURL, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("content request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", readAPIError("content", resp)
	}

	data, err := media.ReadAllLimited(resp.Body, limit)
	if err != nil {
		return nil, "", fmt.Errorf("read content %s: %w", messageID, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// --- HTTP helpers ---

func (c *Client) postJSON(ctx context.Context, op, endpoint string, payload any) error {
	token, err := config.Require("LINE_CHANNEL_ACCESS_TOKEN", c.accessToken)
	if err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(op, resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func readAPIError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
}
