package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const defaultWebhookTimeout = 10 * time.Second

func init() {
	Register("webhook", func(cfg Config) (Provider, error) {
		return NewWebhook(cfg)
	})
}

// Webhook relays codes to an SMS gateway over HTTP. The gateway owns the
// carrier integration; this side only reports delivery success or failure.
type Webhook struct {
	url          string
	sender       string
	instructions string
	client       *http.Client
}

// NewWebhook creates a webhook provider from its sub-configuration. Keys:
// url (required), sender, instructions, timeout (Go duration).
func NewWebhook(cfg Config) (*Webhook, error) {
	u := cfg["url"]
	if u == "" {
		return nil, errors.New("webhook provider: url is required")
	}

	sender := cfg["sender"]
	if sender == "" {
		sender = "SMS"
	}
	instructions := cfg["instructions"]
	if instructions == "" {
		instructions = fmt.Sprintf("A verification code has been sent by SMS from %s.", sender)
	}

	timeout := defaultWebhookTimeout
	if raw := cfg["timeout"]; raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("webhook provider: invalid timeout %q: %w", raw, err)
		}
		timeout = d
	}

	return &Webhook{
		url:          u,
		sender:       sender,
		instructions: instructions,
		client:       &http.Client{Timeout: timeout},
	}, nil
}

func (w *Webhook) SendCode(ctx context.Context, phone, code string) error {
	body, err := json.Marshal(map[string]string{
		"to":   phone,
		"code": code,
		"from": w.sender,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: gateway returned %s", ErrDelivery, resp.Status)
	}
	return nil
}

func (w *Webhook) SenderID() string { return w.sender }

func (w *Webhook) Instructions() string { return w.instructions }
