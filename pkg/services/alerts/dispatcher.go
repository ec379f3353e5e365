package alerts

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Notifier sends an alert over one channel.
type Notifier interface {
	Channel() Channel
	// Configured reports whether the channel has an endpoint and credentials.
	Configured() bool
	Send(ctx context.Context, alert Alert, recipients []string) error
}

type Settings struct {
	// Timeout bounds one send (default: 10s)
	Timeout time.Duration
}

func DefaultSettings() Settings {
	return Settings{Timeout: 10 * time.Second}
}

// Dispatcher fans an alert out to every channel. Channels are independent: a
// failing or slow channel never prevents another from being attempted.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert Alert, recipients []string) map[Channel]bool
	Channels() []Channel
}

type dispatcher struct {
	notifiers []Notifier
	settings  Settings
}

func NewDispatcher(notifiers []Notifier, settings Settings) Dispatcher {
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultSettings().Timeout
	}
	list := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			list = append(list, n)
		}
	}
	return &dispatcher{notifiers: list, settings: settings}
}

func (d *dispatcher) Channels() []Channel {
	channels := make([]Channel, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		channels = append(channels, n.Channel())
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })
	return channels
}

func (d *dispatcher) Dispatch(ctx context.Context, alert Alert, recipients []string) map[Channel]bool {
	results := make(map[Channel]bool, len(d.notifiers))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	// every result is settled before any send starts
	var configured []Notifier
	for _, n := range d.notifiers {
		channel := n.Channel()
		results[channel] = false
		if !n.Configured() {
			zerolog.Ctx(ctx).Debug().Str("channel", string(channel)).Msg("alert channel not configured, skipping")
			continue
		}
		configured = append(configured, n)
	}

	for _, n := range configured {
		channel := n.Channel()
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok := d.send(ctx, n, alert, recipients)
			mu.Lock()
			results[channel] = ok
			mu.Unlock()
		}()
	}
	wg.Wait()

	return results
}

func (d *dispatcher) send(ctx context.Context, n Notifier, alert Alert, recipients []string) (ok bool) {
	logger := zerolog.Ctx(ctx).With().Str("channel", string(n.Channel())).Logger()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Err(fmt.Errorf("panic: %v", r)).Msg("alert channel panicked")
			ok = false
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.settings.Timeout)
	defer cancel()

	if err := n.Send(ctx, alert, recipients); err != nil {
		logger.Error().Err(err).Msg("failed to send alert")
		return false
	}
	logger.Debug().Msg("alert sent")
	return true
}
