package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/services/alerts"
)

type Settings struct {
	Host     string
	Port     int
	Username string
	Password string
	// From defaults to Username.
	From string
	// RequireTLS refuses servers that do not offer STARTTLS.
	RequireTLS bool
}

func DefaultSettings() Settings {
	return Settings{
		Host:       "smtp.gmail.com",
		Port:       587,
		RequireTLS: true,
	}
}

type notifier struct {
	settings Settings
	now      func() time.Time
}

func NewNotifier(settings Settings) alerts.Notifier {
	if settings.Port == 0 {
		settings.Port = DefaultSettings().Port
	}
	if settings.From == "" {
		settings.From = settings.Username
	}
	return &notifier{settings: settings, now: time.Now}
}

func (n *notifier) Channel() alerts.Channel {
	return alerts.ChannelEmail
}

func (n *notifier) Configured() bool {
	return n.settings.Host != "" && n.settings.Username != "" && n.settings.Password != ""
}

func (n *notifier) Send(ctx context.Context, alert alerts.Alert, recipients []string) error {
	if len(recipients) == 0 {
		return errors.New("no email recipients")
	}

	addr := net.JoinHostPort(n.settings.Host, strconv.Itoa(n.settings.Port))
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return domain.NewTransportError("smtp", "dial", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, n.settings.Host)
	if err != nil {
		_ = conn.Close()
		return domain.NewTransportError("smtp", "handshake", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: n.settings.Host}); err != nil {
			return domain.NewTransportError("smtp", "starttls", err)
		}
	} else if n.settings.RequireTLS {
		return domain.NewTransportError("smtp", "starttls", errors.New("server does not support STARTTLS"))
	}

	if ok, _ := client.Extension("AUTH"); ok {
		auth := smtp.PlainAuth("", n.settings.Username, n.settings.Password, n.settings.Host)
		if err := client.Auth(auth); err != nil {
			return domain.NewTransportError("smtp", "auth", err)
		}
	}

	if err := client.Mail(n.settings.From); err != nil {
		return domain.NewTransportError("smtp", "mail", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return domain.NewTransportError("smtp", "rcpt", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return domain.NewTransportError("smtp", "data", err)
	}
	if _, err := w.Write(n.message(alert, recipients)); err != nil {
		_ = w.Close()
		return domain.NewTransportError("smtp", "data", err)
	}
	if err := w.Close(); err != nil {
		return domain.NewTransportError("smtp", "data", err)
	}

	if err := client.Quit(); err != nil {
		return domain.NewTransportError("smtp", "quit", err)
	}
	return nil
}

func (n *notifier) message(alert alerts.Alert, recipients []string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", n.settings.From)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", alert.Subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", n.now().UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "X-Priority-Severity: %s\r\n", alert.Priority)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(alert.Body, "\n", "\r\n"))
	buf.WriteString("\r\n")
	return buf.Bytes()
}
