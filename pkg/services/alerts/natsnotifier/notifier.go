package natsnotifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/services/alerts"
)

const DefaultSubject = "sentinel.findings"

type Settings struct {
	URL            string
	Subject        string
	ConnectTimeout time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		Subject:        DefaultSubject,
		ConnectTimeout: 5 * time.Second,
	}
}

// publisher is the part of *nats.Conn the notifier uses.
type publisher interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

type Notifier struct {
	settings Settings
	connect  func() (publisher, error)

	mu   sync.Mutex
	conn publisher
}

func NewNotifier(settings Settings) *Notifier {
	defaults := DefaultSettings()
	if settings.Subject == "" {
		settings.Subject = defaults.Subject
	}
	if settings.ConnectTimeout <= 0 {
		settings.ConnectTimeout = defaults.ConnectTimeout
	}
	n := &Notifier{settings: settings}
	n.connect = func() (publisher, error) {
		nc, err := nats.Connect(settings.URL,
			nats.Name("cloud-sentinel"),
			nats.Timeout(settings.ConnectTimeout),
			nats.MaxReconnects(10),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			return nil, err
		}
		return nc, nil
	}
	return n
}

func (n *Notifier) Channel() alerts.Channel {
	return alerts.ChannelNATS
}

func (n *Notifier) Configured() bool {
	return n.settings.URL != ""
}

// Send publishes the alert event and flushes so a delivery failure surfaces here.
func (n *Notifier) Send(ctx context.Context, alert alerts.Alert, _ []string) error {
	data, err := json.Marshal(alert.Event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	conn, err := n.connection()
	if err != nil {
		return domain.NewTransportError("nats", "connect", err)
	}
	if err := conn.Publish(n.settings.Subject, data); err != nil {
		return domain.NewTransportError("nats", "publish", err)
	}
	if err := conn.FlushWithContext(ctx); err != nil {
		return domain.NewTransportError("nats", "flush", err)
	}
	return nil
}

func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
}

func (n *Notifier) connection() (publisher, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil {
		return n.conn, nil
	}
	conn, err := n.connect()
	if err != nil {
		return nil, err
	}
	n.conn = conn
	return conn, nil
}
