// README: SMS provider client; fire-and-forget with a bounded timeout.
package sms

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"platera/internal/config"
)

type Client struct {
	client *resty.Client
	sender string
}

func NewClient(cfg config.SMSConfig) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(time.Duration(cfg.TimeoutSec) * time.Second).
			SetHeader("Authorization", "Bearer "+cfg.APIKey),
		sender: cfg.Sender,
	}
}

// Send returns an error on failure; callers treat it as best-effort and
// never let it block or roll back the triggering transition.
func (c *Client) Send(ctx context.Context, phone, text string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"from": c.sender,
			"to":   phone,
			"text": text,
		}).
		Post("/messages")
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("sms provider status %d", resp.StatusCode())
	}
	return nil
}
