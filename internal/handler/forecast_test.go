package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/smartcanteen/api/internal/forecast"
	"github.com/smartcanteen/api/internal/handler"
)

// --- Mock Forecaster ---

type mockForecaster struct {
	err error

	gotDays, gotTop int
	calls           int
}

func (m *mockForecaster) Orders(_ context.Context, days int) (json.RawMessage, error) {
	m.calls++
	m.gotDays = days
	if m.err != nil {
		return nil, m.err
	}
	return json.RawMessage(`{"forecast":{"dates":["2026-01-02"],"values":[40]}}`), nil
}

func (m *mockForecaster) Items(_ context.Context, days, top int) (json.RawMessage, error) {
	m.calls++
	m.gotDays, m.gotTop = days, top
	if m.err != nil {
		return nil, m.err
	}
	return json.RawMessage(`{"top_items":[{"name":"Chicken Biryani","qty":30}]}`), nil
}

func setupForecastRouter(f *mockForecaster) *chi.Mux {
	h := handler.NewForecastHandler(f)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestForecastOrders_Defaults(t *testing.T) {
	f := &mockForecaster{}
	router := setupForecastRouter(f)

	rr := doRequest(t, router, "GET", "/forecast/orders", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if f.gotDays != 2 {
		t.Errorf("days: got %d, want 2", f.gotDays)
	}
	resp := decodeResponse(t, rr)
	if _, ok := resp["forecast"]; !ok {
		t.Errorf("expected body to be passed through, got %v", resp)
	}
}

func TestForecastItems_Params(t *testing.T) {
	f := &mockForecaster{}
	router := setupForecastRouter(f)

	rr := doRequest(t, router, "GET", "/forecast/items", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if f.gotDays != 2 || f.gotTop != 5 {
		t.Errorf("defaults: got days=%d top=%d, want 2/5", f.gotDays, f.gotTop)
	}

	rr = doRequest(t, router, "GET", "/forecast/items?days=14&top=49", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if f.gotDays != 14 || f.gotTop != 49 {
		t.Errorf("got days=%d top=%d, want 14/49", f.gotDays, f.gotTop)
	}
}

func TestForecast_OutOfRange(t *testing.T) {
	f := &mockForecaster{}
	router := setupForecastRouter(f)

	for _, path := range []string{
		"/forecast/orders?days=0",
		"/forecast/orders?days=15",
		"/forecast/orders?days=two",
		"/forecast/items?top=0",
		"/forecast/items?top=50",
	} {
		rr := doRequest(t, router, "GET", path, nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", path, rr.Code)
		}
	}
	if f.calls != 0 {
		t.Errorf("upstream should not be called, got %d calls", f.calls)
	}
}

func TestForecast_UpstreamFailure(t *testing.T) {
	f := &mockForecaster{err: fmt.Errorf("%w: connection refused", forecast.ErrUpstreamUnavailable)}
	router := setupForecastRouter(f)

	for _, path := range []string{"/forecast/orders", "/forecast/items"} {
		rr := doRequest(t, router, "GET", path, nil)
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("%s: got %d, want 500", path, rr.Code)
		}
		if resp := decodeResponse(t, rr); resp["error"] != "Forecast service error" {
			t.Errorf("%s: error: got %v", path, resp["error"])
		}
	}
}
