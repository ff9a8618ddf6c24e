// Package messenger sends messages through the Messenger Platform Send API
// and decodes its webhook payloads.
package messenger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"unicode/utf8"

	"github.com/ashureev/easely-bot/internal/config"
	"github.com/ashureev/easely-bot/internal/metrics"
	"github.com/go-resty/resty/v2"
)

// Platform limits.
const (
	maxTextLength      = 2000
	maxQuickReplies    = 13
	maxQuickReplyTitle = 20
	maxButtons         = 3
)

// QuickReply is a tappable suggestion shown under a message.
type QuickReply struct {
	ContentType string `json:"content_type"`
	Title       string `json:"title"`
	Payload     string `json:"payload"`
}

// NewQuickReply builds a text quick reply, truncating the title to the
// platform's 20 character limit.
func NewQuickReply(title, payload string) QuickReply {
	return QuickReply{
		ContentType: "text",
		Title:       truncateRunes(title, maxQuickReplyTitle),
		Payload:     payload,
	}
}

// Button is a button template entry.
type Button struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// URLButton opens url in the in-app browser.
func URLButton(title, url string) Button {
	return Button{Type: "web_url", Title: title, URL: url}
}

// PostbackButton sends payload back as a postback event.
func PostbackButton(title, payload string) Button {
	return Button{Type: "postback", Title: title, Payload: payload}
}

type recipient struct {
	ID string `json:"id"`
}

type sendRequest struct {
	Recipient    recipient      `json:"recipient"`
	Message      map[string]any `json:"message,omitempty"`
	SenderAction string         `json:"sender_action,omitempty"`
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Client is a Send API client for one Facebook Page.
type Client struct {
	http  *resty.Client
	token string
}

// NewClient creates a Send API client. Without a page access token the
// client only logs outgoing messages, which keeps local development usable.
func NewClient(cfg config.MessengerConfig) *Client {
	client := resty.New().
		SetBaseURL(cfg.GraphAPIURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout).
		SetError(&graphError{})
	if cfg.PageAccessToken != "" {
		client.SetQueryParam("access_token", cfg.PageAccessToken)
	}

	return &Client{
		http:  client,
		token: cfg.PageAccessToken,
	}
}

// SendText sends plain text, splitting it into several messages when it
// exceeds the platform limit.
func (c *Client) SendText(ctx context.Context, userID, text string) error {
	for _, chunk := range splitText(text, maxTextLength) {
		if err := c.send(ctx, "text", sendRequest{
			Recipient: recipient{ID: userID},
			Message:   map[string]any{"text": chunk},
		}); err != nil {
			return err
		}
	}
	return nil
}

// SendQuickReplies sends text with up to 13 quick replies.
func (c *Client) SendQuickReplies(ctx context.Context, userID, text string, replies []QuickReply) error {
	if len(replies) > maxQuickReplies {
		replies = replies[:maxQuickReplies]
	}
	return c.send(ctx, "quick_replies", sendRequest{
		Recipient: recipient{ID: userID},
		Message: map[string]any{
			"text":          truncateRunes(text, maxTextLength),
			"quick_replies": replies,
		},
	})
}

// SendButtons sends a button template with up to 3 buttons.
func (c *Client) SendButtons(ctx context.Context, userID, text string, buttons []Button) error {
	if len(buttons) > maxButtons {
		buttons = buttons[:maxButtons]
	}
	return c.send(ctx, "buttons", sendRequest{
		Recipient: recipient{ID: userID},
		Message: map[string]any{
			"attachment": map[string]any{
				"type": "template",
				"payload": map[string]any{
					"template_type": "button",
					"text":          truncateRunes(text, 640),
					"buttons":       buttons,
				},
			},
		},
	})
}

// SendTypingIndicator toggles the typing bubble.
func (c *Client) SendTypingIndicator(ctx context.Context, userID string, on bool) error {
	action := "typing_off"
	if on {
		action = "typing_on"
	}
	return c.send(ctx, "sender_action", sendRequest{
		Recipient:    recipient{ID: userID},
		SenderAction: action,
	})
}

func (c *Client) send(ctx context.Context, kind string, body sendRequest) error {
	if c.token == "" {
		slog.Debug("Messenger dry run", "type", kind, "recipient", body.Recipient.ID, "message", body.Message, "action", body.SenderAction)
		metrics.GraphSendsTotal.WithLabelValues(kind, "dry_run").Inc()
		return nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post("/me/messages")
	if err != nil {
		metrics.GraphSendsTotal.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("send %s: %w", kind, err)
	}
	metrics.GraphSendsTotal.WithLabelValues(kind, strconv.Itoa(resp.StatusCode())).Inc()

	if resp.IsError() {
		if ge, ok := resp.Error().(*graphError); ok && ge.Error.Message != "" {
			return fmt.Errorf("send %s: graph API error (status %d, code %d): %s",
				kind, resp.StatusCode(), ge.Error.Code, ge.Error.Message)
		}
		return fmt.Errorf("send %s: graph API error (status %d): %s", kind, resp.StatusCode(), resp.String())
	}
	return nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// splitText breaks s into chunks of at most n runes, preferring newlines.
func splitText(s string, n int) []string {
	r := []rune(s)
	if len(r) <= n {
		return []string{s}
	}

	var chunks []string
	for len(r) > n {
		cut := n
		for i := n; i > n/2; i-- {
			if r[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(r[:cut]))
		r = r[cut:]
	}
	if len(r) > 0 {
		chunks = append(chunks, string(r))
	}
	return chunks
}
