package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/smartcanteen/api/internal/forecast"
)

// Forecaster defines the predictor calls needed by forecast handlers.
// Satisfied by *forecast.Client.
type Forecaster interface {
	Orders(ctx context.Context, days int) (json.RawMessage, error)
	Items(ctx context.Context, days, top int) (json.RawMessage, error)
}

// ForecastHandler proxies demand forecasts.
type ForecastHandler struct {
	client Forecaster
}

// NewForecastHandler creates a new ForecastHandler.
func NewForecastHandler(client Forecaster) *ForecastHandler {
	return &ForecastHandler{client: client}
}

// RegisterRoutes registers forecast endpoints on the given Chi router.
func (h *ForecastHandler) RegisterRoutes(r chi.Router) {
	r.Get("/forecast/orders", h.Orders)
	r.Get("/forecast/items", h.Items)
}

func (h *ForecastHandler) Orders(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", forecast.DefaultDays, 1, forecast.MaxDays)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	body, err := h.client.Orders(r.Context(), days)
	h.respond(w, body, err)
}

func (h *ForecastHandler) Items(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", forecast.DefaultDays, 1, forecast.MaxDays)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	top, err := intParam(r, "top", forecast.DefaultTop, 1, forecast.MaxTop)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	body, err := h.client.Items(r.Context(), days, top)
	h.respond(w, body, err)
}

// respond passes the predictor's JSON through unchanged. Every failure is
// reported as a generic 500.
func (h *ForecastHandler) respond(w http.ResponseWriter, body json.RawMessage, err error) {
	if err != nil {
		if !errors.Is(err, forecast.ErrUpstreamUnavailable) {
			log.Printf("ERROR: forecast: %v", err)
		} else {
			log.Printf("WARN: forecast: %v", err)
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Forecast service error"})
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// intParam reads an optional integer query parameter within [lo, hi].
func intParam(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return 0, fmt.Errorf("%s must be an integer between %d and %d", name, lo, hi)
	}
	return v, nil
}
