package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/services/alerts"
)

func TestNotifier_Send(t *testing.T) {
	alert := alerts.Alert{Color: "#FF0000", Chat: "*Security Issue Detected*"}

	t.Run("posts attachment with severity color", func(t *testing.T) {
		var got message
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		n := NewNotifier(Settings{WebhookURL: srv.URL})
		require.True(t, n.Configured())
		require.NoError(t, n.Send(context.Background(), alert, nil))

		require.Len(t, got.Attachments, 1)
		assert.Equal(t, "#FF0000", got.Attachments[0].Color)
		require.Len(t, got.Attachments[0].Blocks, 1)
		assert.Equal(t, "section", got.Attachments[0].Blocks[0].Type)
		assert.Equal(t, "mrkdwn", got.Attachments[0].Blocks[0].Text.Type)
		assert.Equal(t, "*Security Issue Detected*", got.Attachments[0].Blocks[0].Text.Text)
	})

	t.Run("non-2xx status is a transport error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()

		err := NewNotifier(Settings{WebhookURL: srv.URL}).Send(context.Background(), alert, nil)

		var te *domain.TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "slack", te.System)
		assert.Contains(t, err.Error(), "403")
	})

	t.Run("unconfigured", func(t *testing.T) {
		n := NewNotifier(Settings{})
		assert.False(t, n.Configured())
		assert.Equal(t, alerts.ChannelSlack, n.Channel())
	})
}
