package findings

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/de-tools/cloud-sentinel/pkg/adapters"
	"github.com/de-tools/cloud-sentinel/pkg/models/api"
	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/models/store"
	"github.com/de-tools/cloud-sentinel/pkg/services/lifecycle"
	"github.com/de-tools/cloud-sentinel/pkg/services/scan"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

type Handler struct {
	service lifecycle.Service
}

func NewHandler(service lifecycle.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) ListFindings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	filter, limit, err := parseQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	found, err := h.service.Findings(ctx, filter, limit)
	if err != nil {
		logger.Error().Err(err).Msg("failed to query findings")
		writeError(w, r, statusFor(err), err)
		return
	}

	writeJSON(w, r, http.StatusOK, adapters.MapFindingsDomainToApi(found))
}

func (h *Handler) GetFinding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	f, found, err := h.service.Finding(ctx, id)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("finding_id", id).Msg("failed to get finding")
		writeError(w, r, statusFor(err), err)
		return
	}
	if !found {
		writeError(w, r, http.StatusNotFound, fmt.Errorf("finding %s not found", id))
		return
	}

	writeJSON(w, r, http.StatusOK, adapters.MapFindingDomainToApi(f))
}

func (h *Handler) ListRemediations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	records, err := h.service.Remediations(ctx, id)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("finding_id", id).Msg("failed to list remediations")
		writeError(w, r, statusFor(err), err)
		return
	}

	response := make([]api.RemediationRecord, 0, len(records))
	for _, rec := range records {
		response = append(response, adapters.MapRemediationDomainToApi(rec))
	}
	writeJSON(w, r, http.StatusOK, response)
}

func (h *Handler) Remediate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	out, found, err := h.service.Remediate(ctx, id)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("finding_id", id).Msg("failed to remediate finding")
		writeError(w, r, statusFor(err), err)
		return
	}
	if !found {
		writeError(w, r, http.StatusNotFound, fmt.Errorf("finding %s not found", id))
		return
	}

	message := out.Result.Action
	if out.Result.Err != nil {
		message = out.Result.Err.Error()
	}
	writeJSON(w, r, http.StatusOK, api.RemediationResponse{
		FindingID: id,
		Outcome:   string(out.Result.Outcome),
		Message:   message,
		Status:    string(out.Finding.Status),
	})
}

func (h *Handler) Suppress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	applied, found, err := h.service.Suppress(ctx, id)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("finding_id", id).Msg("failed to suppress finding")
		writeError(w, r, statusFor(err), err)
		return
	}
	if !found {
		writeError(w, r, http.StatusNotFound, fmt.Errorf("finding %s not found", id))
		return
	}
	if !applied {
		writeError(w, r, http.StatusConflict, fmt.Errorf("finding %s is not open", id))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	demo, err := parseBool(q.Get("demo"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid demo flag: %w", err))
		return
	}
	alert, err := parseBool(q.Get("alert"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid alert flag: %w", err))
		return
	}
	provider := domain.ProviderAWS
	if v := q.Get("provider"); v != "" {
		if provider, err = domain.ParseProvider(v); err != nil {
			writeError(w, r, http.StatusBadRequest, err)
			return
		}
	}

	out, err := h.service.Scan(ctx, lifecycle.ScanRequest{Provider: provider, Mode: scan.ParseMode(demo), Alert: alert})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("scan failed")
		writeError(w, r, statusFor(err), err)
		return
	}

	response := api.ScanResponse{
		Report:    adapters.MapScanReportDomainToApi(out.Report),
		Stored:    out.Stored,
		Unchanged: out.Unchanged,
	}
	providers := make([]string, 0, len(out.Results))
	for p := range out.Results {
		providers = append(providers, string(p))
	}
	sort.Strings(providers)
	var reasons []string
	for _, p := range providers {
		res := out.Results[domain.Provider(p)]
		if response.Mode == "" {
			response.Mode = string(res.Mode)
		} else if response.Mode != string(res.Mode) {
			response.Mode = "mixed"
		}
		if !res.Capability.IsLive() {
			reasons = append(reasons, p+": "+res.Capability.Reason)
		}
	}
	response.Reason = strings.Join(reasons, "; ")

	writeJSON(w, r, http.StatusOK, response)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	caps := h.service.Capabilities()
	status := "ok"
	for _, c := range caps {
		if !c.IsLive() {
			status = "degraded"
		}
	}
	writeJSON(w, r, http.StatusOK, api.Health{
		Status:       status,
		Capabilities: adapters.MapCapabilitiesDomainToApi(caps),
	})
}

func parseQuery(r *http.Request) (store.FindingFilter, int, error) {
	q := r.URL.Query()
	var filter store.FindingFilter

	if v := q.Get("status"); v != "" {
		status, err := domain.ParseStatus(v)
		if err != nil {
			return filter, 0, err
		}
		filter.Status = string(status)
	}
	if v := q.Get("severity"); v != "" {
		sev, err := domain.ParseSeverity(v)
		if err != nil {
			return filter, 0, err
		}
		filter.Severity = sev.String()
	}
	if v := q.Get("provider"); v != "" {
		provider, err := domain.ParseProvider(v)
		if err != nil {
			return filter, 0, err
		}
		if provider != domain.ProviderAll {
			filter.Provider = string(provider)
		}
	}

	limit := defaultLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return filter, 0, fmt.Errorf("invalid limit %q", v)
		}
		limit = min(n, maxLimit)
	}
	return filter, limit, nil
}

func parseBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

func statusFor(err error) int {
	var te *domain.TransportError
	if errors.As(err, &te) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	writeJSON(w, r, status, api.Error{Message: err.Error()})
}
