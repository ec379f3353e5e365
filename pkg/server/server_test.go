package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/cloud-sentinel/pkg/models/api"
	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/services/lifecycle"
	"github.com/de-tools/cloud-sentinel/pkg/services/metrics"
	"github.com/de-tools/cloud-sentinel/pkg/services/remediation"
	"github.com/de-tools/cloud-sentinel/pkg/services/rules"
	"github.com/de-tools/cloud-sentinel/pkg/services/scan"
	"github.com/de-tools/cloud-sentinel/pkg/store/findings"
	"github.com/de-tools/cloud-sentinel/pkg/store/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := domain.ClockFunc(func() time.Time { return now })

	orch, err := scan.NewOrchestrator(context.Background(), nil,
		rules.NewEvaluator(rules.DefaultSettings(), clock), scan.DefaultSettings(), clock)
	require.NoError(t, err)

	plan := remediation.HandlerFunc(func(f domain.Finding) (remediation.Action, error) {
		return remediation.Action{Description: "fix " + f.Resource.ID}, nil
	})
	m := metrics.New()
	service, err := lifecycle.NewService(lifecycle.Dependencies{
		Store:         findings.NewStore(memory.NewStore(), domain.Degraded("store unreachable"), time.Second, clock),
		Orchestrators: map[domain.Provider]scan.Orchestrator{domain.ProviderAWS: orch},
		Remediation: remediation.NewDispatcher(map[domain.ResourceKind]remediation.Handler{
			domain.KindBucket: plan,
		}, remediation.DefaultSettings()),
		Metrics: m,
		Clock:   clock,
	}, lifecycle.Settings{})
	require.NoError(t, err)

	logger := zerolog.New(zerolog.NewTestWriter(t))
	webAPI := NewWebAPI(logger, Config{
		Addr: ":0",
		Dependencies: Dependencies{
			Service: service,
			Metrics: m.Handler(),
		},
	})

	srv := httptest.NewServer(webAPI.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestWebAPI_Endpoints(t *testing.T) {
	srv := newTestServer(t)

	t.Run("health reports degraded components", func(t *testing.T) {
		var health api.Health
		assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/healthz", &health))
		assert.Equal(t, "degraded", health.Status)
		assert.Equal(t, "degraded", health.Capabilities["store"].State)
		assert.Equal(t, "store unreachable", health.Capabilities["store"].Reason)
	})

	t.Run("demo scan", func(t *testing.T) {
		var scanResp api.ScanResponse
		assert.Equal(t, http.StatusOK, do(t, http.MethodPost, srv.URL+"/api/v1/scans?demo=true", &scanResp))
		assert.Equal(t, "demo", scanResp.Mode)
		assert.Equal(t, 3, scanResp.Stored)
		assert.Equal(t, 3, scanResp.Report.FindingsCount)
		assert.Equal(t, "AWS", scanResp.Report.CloudProvider)
	})

	t.Run("list and filter findings", func(t *testing.T) {
		var all []api.Finding
		assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/api/v1/findings", &all))
		assert.Len(t, all, 3)

		var high []api.Finding
		assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/api/v1/findings?severity=high&status=open", &high))
		require.Len(t, high, 1)
		assert.Equal(t, "aws-demo-001", high[0].ID)

		var limited []api.Finding
		assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/api/v1/findings?limit=2", &limited))
		assert.Len(t, limited, 2)

		var apiErr api.Error
		assert.Equal(t, http.StatusBadRequest, do(t, http.MethodGet, srv.URL+"/api/v1/findings?severity=urgent", &apiErr))
		assert.Contains(t, apiErr.Message, "unknown severity")
		assert.Equal(t, http.StatusBadRequest, do(t, http.MethodGet, srv.URL+"/api/v1/findings?limit=-1", nil))
	})

	t.Run("get finding", func(t *testing.T) {
		var f api.Finding
		assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/api/v1/findings/aws-demo-002", &f))
		assert.Equal(t, api.SeverityMedium, f.Severity)
		assert.Equal(t, "OPEN", f.Status)

		assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, srv.URL+"/api/v1/findings/nope", nil))
	})

	t.Run("remediate", func(t *testing.T) {
		var resp api.RemediationResponse
		assert.Equal(t, http.StatusOK, do(t, http.MethodPost, srv.URL+"/api/v1/findings/aws-demo-001/remediate", &resp))
		assert.Equal(t, "SUCCESS", resp.Outcome)
		assert.Equal(t, "REMEDIATED", resp.Status)
		assert.Equal(t, "Simulated: fix example-public-bucket", resp.Message)

		assert.Equal(t, http.StatusOK, do(t, http.MethodPost, srv.URL+"/api/v1/findings/aws-demo-003/remediate", &resp))
		assert.Equal(t, "UNSUPPORTED", resp.Outcome)
		assert.Equal(t, "OPEN", resp.Status)

		var records []api.RemediationRecord
		assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/api/v1/findings/aws-demo-001/remediations", &records))
		require.Len(t, records, 1)
		assert.True(t, records[0].Simulated)

		assert.Equal(t, http.StatusNotFound, do(t, http.MethodPost, srv.URL+"/api/v1/findings/nope/remediate", nil))
	})

	t.Run("suppress", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, do(t, http.MethodPost, srv.URL+"/api/v1/findings/aws-demo-002/suppress", nil))
		assert.Equal(t, http.StatusConflict, do(t, http.MethodPost, srv.URL+"/api/v1/findings/aws-demo-002/suppress", nil))
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		assert.True(t, strings.Contains(string(body), `sentinel_scans_total{mode="demo",provider="AWS"} 1`))
		assert.True(t, strings.Contains(string(body), `sentinel_component_degraded{component="store"} 1`))
	})
}

func TestWebAPI_StartStops(t *testing.T) {
	webAPI := NewWebAPI(zerolog.Nop(), Config{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- webAPI.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
