package messenger

import (
	"context"
	"fmt"
)

// MenuItem is a persistent menu entry: a postback or a web URL.
type MenuItem struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Payload string `json:"payload,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Profile is the page's Messenger profile.
type Profile struct {
	GetStartedPayload string
	Greeting          string
	Menu              []MenuItem
}

// SetupProfile configures the get-started button, greeting text and
// persistent menu in a single messenger_profile call.
func (c *Client) SetupProfile(ctx context.Context, p Profile) error {
	if c.token == "" {
		return fmt.Errorf("setup profile: PAGE_ACCESS_TOKEN is not configured")
	}

	body := map[string]any{}
	if p.GetStartedPayload != "" {
		body["get_started"] = map[string]string{"payload": p.GetStartedPayload}
	}
	if p.Greeting != "" {
		body["greeting"] = []map[string]string{{"locale": "default", "text": p.Greeting}}
	}
	if len(p.Menu) > 0 {
		body["persistent_menu"] = []map[string]any{{
			"locale":                  "default",
			"composer_input_disabled": false,
			"call_to_actions":         p.Menu,
		}}
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post("/me/messenger_profile")
	if err != nil {
		return fmt.Errorf("setup profile: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("setup profile: graph API error (status %d): %s", resp.StatusCode(), resp.String())
	}
	return nil
}
