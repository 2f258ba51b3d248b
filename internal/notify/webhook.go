package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// webhookTimeout keeps a slow alert channel from stalling the pipeline tail.
const webhookTimeout = 5 * time.Second

// Webhook posts summaries to a Slack-style incoming webhook. Its own
// failures are logged and swallowed.
type Webhook struct {
	url    string
	client *http.Client
	logger logrus.FieldLogger
}

// NewWebhook creates a webhook notifier.
func NewWebhook(url string, logger logrus.FieldLogger) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: webhookTimeout},
		logger: logger,
	}
}

// Compile-time interface check.
var _ Notifier = (*Webhook)(nil)

type webhookPayload struct {
	Text      string `json:"text"`
	Username  string `json:"username"`
	IconEmoji string `json:"icon_emoji"`
}

// Notify implements Notifier.
func (w *Webhook) Notify(ctx context.Context, summary Summary) {
	if w.url == "" {
		return
	}

	payload := webhookPayload{
		Text:      renderText(summary),
		Username:  "ETL Bot",
		IconEmoji: ":gear:",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		w.logger.WithError(err).Warn("webhook notify: marshal payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.logger.WithError(err).Warn("webhook notify: create request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.WithError(err).Warn("webhook notify: post")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		w.logger.WithError(fmt.Errorf("http status %d", resp.StatusCode)).
			Warn("webhook notify: rejected")
	}
}
