package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

type webhookPayload struct {
	MsgType     string      `json:"msgtype"`
	Text        webhookText `json:"text"`
	Name        string      `json:"name"`
	TriggerTime string      `json:"trigger_time"`
}

type webhookText struct {
	Content string `json:"content"`
}

// Webhook posts alarms as JSON to an HTTP endpoint. The body is
// DingTalk/WeCom compatible and also carries the raw fields.
type Webhook struct {
	url    string
	client *http.Client
}

type WebhookOption func(*Webhook)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *Webhook) {
		if c != nil {
			w.client = c
		}
	}
}

func NewWebhook(url string, opts ...WebhookOption) (*Webhook, error) {
	if url == "" {
		return nil, errors.New("notifier: webhook url is empty")
	}
	w := &Webhook{url: url, client: &http.Client{Timeout: 10 * time.Second}}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

func (w *Webhook) Notify(ctx context.Context, name, triggerTime string) error {
	body, err := json.Marshal(webhookPayload{
		MsgType:     "text",
		Text:        webhookText{Content: Text(name, triggerTime)},
		Name:        name,
		TriggerTime: triggerTime,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notifier: webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notifier: webhook: non-2xx response %d", resp.StatusCode)
	}
	return nil
}
