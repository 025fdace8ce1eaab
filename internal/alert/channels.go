package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

const channelTimeout = 10 * time.Second

// httpChannel posts JSON documents to one URL.
type httpChannel struct {
	name   string
	url    string
	client *http.Client
}

func newHTTPChannel(name, url string) httpChannel {
	return httpChannel{name: name, url: url, client: &http.Client{Timeout: channelTimeout}}
}

func (c httpChannel) Name() string { return c.name }

func (c httpChannel) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", c.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s alert: %w", c.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s returned status %d", c.name, resp.StatusCode)
	}
	return nil
}

// SlackAlerter posts to a Slack incoming webhook.
type SlackAlerter struct{ httpChannel }

func NewSlackAlerter(webhookURL string) *SlackAlerter {
	return &SlackAlerter{newHTTPChannel("slack", webhookURL)}
}

func (s *SlackAlerter) Send(ctx context.Context, a Alert) error {
	return s.post(ctx, map[string]string{"text": slackText(a)})
}

var slackEmoji = map[AlertType]string{
	AlertTypeRecovery:          ":white_check_mark:",
	AlertTypeRevocationBacklog: ":hourglass:",
	AlertTypeReconcileFailed:   ":rotating_light:",
}

// slackText renders a in Slack mrkdwn with fields sorted by key.
func slackText(a Alert) string {
	emoji, ok := slackEmoji[a.Type]
	if !ok {
		emoji = ":warning:"
	}
	lines := []string{fmt.Sprintf("%s *[%s]* %s: %s", emoji, a.Type, a.Chain, a.Title), a.Message}
	if len(a.Fields) == 0 {
		return strings.Join(lines, "\n")
	}

	keys := make([]string, 0, len(a.Fields))
	for k := range a.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("- *%s*: %s", k, a.Fields[k]))
	}
	return strings.Join(lines, "\n") + "\n"
}

// WebhookAlerter posts the alert as a flat JSON document.
type WebhookAlerter struct{ httpChannel }

func NewWebhookAlerter(url string) *WebhookAlerter {
	return &WebhookAlerter{newHTTPChannel("webhook", url)}
}

type webhookPayload struct {
	Type    AlertType         `json:"type"`
	Chain   string            `json:"chain"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Time    string            `json:"time"`
}

func (w *WebhookAlerter) Send(ctx context.Context, a Alert) error {
	return w.post(ctx, webhookPayload{
		Type:    a.Type,
		Chain:   a.Chain,
		Title:   a.Title,
		Message: a.Message,
		Fields:  a.Fields,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}
