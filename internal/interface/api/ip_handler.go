package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/zinrai/wan-ip-provider/internal/domain"
	"github.com/zinrai/wan-ip-provider/internal/usecase"
)

const notAvailable = "N/A"

type IPHandler struct {
	useCase        *usecase.IPUseCase
	limiter        *RefreshLimiter
	refreshEnabled bool
	logger         *zap.Logger
}

func NewIPHandler(useCase *usecase.IPUseCase, limiter *RefreshLimiter, refreshEnabled bool, logger *zap.Logger) *IPHandler {
	return &IPHandler{
		useCase:        useCase,
		limiter:        limiter,
		refreshEnabled: refreshEnabled,
		logger:         logger,
	}
}

type ipEntry struct {
	IPv4 string `json:"ipv4"`
	IPv6 string `json:"ipv6"`
}

type messageResponse struct {
	Message string    `json:"message"`
	Data    []ipEntry `json:"data,omitempty"`
}

func entries(record *domain.IPRecord) []ipEntry {
	if record == nil {
		return []ipEntry{}
	}
	return []ipEntry{{
		IPv4: domain.Deref(record.IPv4, notAvailable),
		IPv6: domain.Deref(record.IPv6, notAvailable),
	}}
}

func (h *IPHandler) HandleIPs(w http.ResponseWriter, r *http.Request) {
	record, err := h.useCase.CurrentRecord(r.Context())
	if err != nil {
		h.storeError(w, err)
		return
	}
	if record == nil {
		writeJSON(w, http.StatusOK, struct {
			Message string    `json:"message"`
			Data    []ipEntry `json:"data"`
		}{"No IP addresses found", []ipEntry{}})
		return
	}
	writeJSON(w, http.StatusOK, entries(record))
}

func (h *IPHandler) HandleIPv4(w http.ResponseWriter, r *http.Request) {
	record, err := h.useCase.CurrentRecord(r.Context())
	if err != nil {
		h.storeError(w, err)
		return
	}
	if record == nil || record.IPv4 == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "IPv4 address not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ipv4": *record.IPv4})
}

func (h *IPHandler) HandleIPv6(w http.ResponseWriter, r *http.Request) {
	record, err := h.useCase.CurrentRecord(r.Context())
	if err != nil {
		h.storeError(w, err)
		return
	}
	if record == nil || record.IPv6 == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "IPv6 address not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ipv6": *record.IPv6})
}

func (h *IPHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if !h.refreshEnabled {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "This endpoint is disabled by configuration."})
		return
	}

	ok, wait := h.limiter.Allow()
	if !ok {
		secs := retrySeconds(wait)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeJSON(w, http.StatusTooManyRequests, struct {
			Detail            string `json:"detail"`
			RetryAfterSeconds int    `json:"retry_after_seconds"`
		}{
			Detail:            fmt.Sprintf("Rate limit exceeded. Please wait %d seconds before retrying.", secs),
			RetryAfterSeconds: secs,
		})
		return
	}

	result := h.useCase.RefreshPublicIP(r.Context())
	switch {
	case result.IsRenewalFailure():
		h.logger.Error("failed to force public IP refresh", zap.Error(result.Err))
		writeJSON(w, http.StatusBadGateway, messageResponse{Message: "Failed to force public IP refresh"})
	case result.Err != nil:
		h.logger.Error("public IP refresh did not complete", zap.Error(result.Err))
		writeJSON(w, http.StatusBadGateway, messageResponse{
			Message: fmt.Sprintf("Router renewal was triggered but the refresh did not complete: %v", result.Err),
		})
	default:
		writeJSON(w, http.StatusOK, messageResponse{
			Message: "Refreshed public IP successfully",
			Data:    entries(result.Record),
		})
	}
}

func (h *IPHandler) HandleWANStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.useCase.WANStatistics(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	if r.URL.Query().Has("format") {
		writeJSON(w, http.StatusOK, usecase.NewHumanWANStats(stats))
		return
	}
	writeJSON(w, http.StatusOK, usecase.NewRawWANStats(stats))
}

func (h *IPHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.useCase.CheckHealth(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *IPHandler) storeError(w http.ResponseWriter, err error) {
	h.logger.Error("failed to read IP record", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read stored addresses"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
