package alerts

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockNotifier struct {
	mock.Mock
	channel    Channel
	configured bool
}

func (m *mockNotifier) Channel() Channel {
	return m.channel
}

func (m *mockNotifier) Configured() bool {
	return m.configured
}

func (m *mockNotifier) Send(ctx context.Context, alert Alert, recipients []string) error {
	args := m.Called(ctx, alert, recipients)
	return args.Error(0)
}

func TestDispatcher_Dispatch(t *testing.T) {
	alert := Alert{Subject: "s", Chat: "c"}
	recipients := []string{"ops@example.com"}

	t.Run("configured and unconfigured channel", func(t *testing.T) {
		slack := &mockNotifier{channel: ChannelSlack, configured: true}
		slack.On("Send", mock.Anything, alert, recipients).Return(nil)
		email := &mockNotifier{channel: ChannelEmail, configured: false}

		results := NewDispatcher([]Notifier{slack, email}, DefaultSettings()).Dispatch(context.Background(), alert, recipients)

		assert.Equal(t, map[Channel]bool{ChannelSlack: true, ChannelEmail: false}, results)
		slack.AssertExpectations(t)
		email.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("configured channel ahead of many unconfigured ones", func(t *testing.T) {
		slack := &mockNotifier{channel: ChannelSlack, configured: true}
		slack.On("Send", mock.Anything, alert, recipients).Return(nil)
		notifiers := []Notifier{slack}
		expected := map[Channel]bool{ChannelSlack: true}
		for i := 0; i < 200; i++ {
			channel := Channel(fmt.Sprintf("webhook-%03d", i))
			notifiers = append(notifiers, &mockNotifier{channel: channel})
			expected[channel] = false
		}
		d := NewDispatcher(notifiers, DefaultSettings())

		for i := 0; i < 50; i++ {
			assert.Equal(t, expected, d.Dispatch(context.Background(), alert, recipients))
		}
		slack.AssertNumberOfCalls(t, "Send", 50)
	})

	t.Run("failing channel does not block others", func(t *testing.T) {
		slack := &mockNotifier{channel: ChannelSlack, configured: true}
		slack.On("Send", mock.Anything, alert, recipients).Return(errors.New("webhook down"))
		nats := &mockNotifier{channel: ChannelNATS, configured: true}
		nats.On("Send", mock.Anything, alert, recipients).Return(nil)

		results := NewDispatcher([]Notifier{slack, nats}, DefaultSettings()).Dispatch(context.Background(), alert, recipients)

		assert.Equal(t, map[Channel]bool{ChannelSlack: false, ChannelNATS: true}, results)
	})

	t.Run("slow channel is bounded by the timeout", func(t *testing.T) {
		slow := &mockNotifier{channel: ChannelEmail, configured: true}
		slow.On("Send", mock.Anything, alert, recipients).Return(context.DeadlineExceeded).Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		})
		fast := &mockNotifier{channel: ChannelSlack, configured: true}
		fast.On("Send", mock.Anything, alert, recipients).Return(nil)

		start := time.Now()
		results := NewDispatcher([]Notifier{slow, fast}, Settings{Timeout: 50 * time.Millisecond}).
			Dispatch(context.Background(), alert, recipients)

		assert.Less(t, time.Since(start), 2*time.Second)
		assert.Equal(t, map[Channel]bool{ChannelEmail: false, ChannelSlack: true}, results)
	})

	t.Run("panicking channel reports false", func(t *testing.T) {
		bad := &mockNotifier{channel: ChannelNATS, configured: true}
		bad.On("Send", mock.Anything, alert, recipients).Run(func(mock.Arguments) {
			panic("boom")
		})

		results := NewDispatcher([]Notifier{bad}, DefaultSettings()).Dispatch(context.Background(), alert, recipients)

		assert.Equal(t, map[Channel]bool{ChannelNATS: false}, results)
	})

	t.Run("no channels", func(t *testing.T) {
		d := NewDispatcher(nil, Settings{})
		assert.Empty(t, d.Dispatch(context.Background(), alert, nil))
		assert.Empty(t, d.Channels())
	})
}

func TestDispatcher_Channels(t *testing.T) {
	d := NewDispatcher([]Notifier{
		&mockNotifier{channel: ChannelSlack},
		&mockNotifier{channel: ChannelEmail},
		nil,
	}, DefaultSettings())

	assert.Equal(t, []Channel{ChannelEmail, ChannelSlack}, d.Channels())
}
