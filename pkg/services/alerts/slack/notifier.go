package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/services/alerts"
)

type Settings struct {
	WebhookURL string
	Client     *http.Client
}

type notifier struct {
	settings Settings
}

func NewNotifier(settings Settings) alerts.Notifier {
	if settings.Client == nil {
		settings.Client = http.DefaultClient
	}
	return &notifier{settings: settings}
}

type message struct {
	Attachments []attachment `json:"attachments"`
}

type attachment struct {
	Color  string  `json:"color"`
	Blocks []block `json:"blocks"`
}

type block struct {
	Type string `json:"type"`
	Text text   `json:"text"`
}

type text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (n *notifier) Channel() alerts.Channel {
	return alerts.ChannelSlack
}

func (n *notifier) Configured() bool {
	return n.settings.WebhookURL != ""
}

func (n *notifier) Send(ctx context.Context, alert alerts.Alert, _ []string) error {
	payload, err := json.Marshal(message{
		Attachments: []attachment{{
			Color: alert.Color,
			Blocks: []block{{
				Type: "section",
				Text: text{Type: "mrkdwn", Text: alert.Chat},
			}},
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to encode slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.settings.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.settings.Client.Do(req)
	if err != nil {
		return domain.NewTransportError("slack", "post webhook", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.NewTransportError("slack", "post webhook", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}
