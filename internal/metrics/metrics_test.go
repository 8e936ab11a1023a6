package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetrics_RegistersOnFreshRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.OrdersTotal.WithLabelValues("BUY").Add(2)
	m.SkippedTotal.WithLabelValues("short_window").Inc()
	start := time.Unix(1700000000, 0)
	m.ObservePass(start, start.Add(1500*time.Millisecond), nil)
	m.ObservePass(start, start.Add(time.Second), errors.New("x"))

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	byName := make(map[string]float64)
	for _, f := range families {
		for _, mt := range f.GetMetric() {
			switch {
			case mt.GetCounter() != nil:
				byName[f.GetName()] += mt.GetCounter().GetValue()
			case mt.GetGauge() != nil:
				byName[f.GetName()] = mt.GetGauge().GetValue()
			}
		}
	}
	if byName["advisor_orders_total"] != 2 {
		t.Errorf("orders = %v", byName["advisor_orders_total"])
	}
	if byName["advisor_passes_total"] != 2 {
		t.Errorf("passes = %v", byName["advisor_passes_total"])
	}
	if byName["advisor_last_pass_timestamp_seconds"] != 1700000001 {
		t.Errorf("last pass = %v", byName["advisor_last_pass_timestamp_seconds"])
	}

	// A second registry must accept a second set without panicking.
	NewMetrics(prometheus.NewRegistry())
}

func TestHealthStatus_ServeHTTP(t *testing.T) {
	h := NewHealthStatus()
	h.RecordPass(time.Now(), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body map[string]any
	json.NewDecoder(rec.Body).Decode(&body)
	if rec.Code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("code=%d body=%v", rec.Code, body)
	}

	h.SetRedisEnabled(true)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	body = nil
	json.NewDecoder(rec.Body).Decode(&body)
	if rec.Code != http.StatusOK || body["status"] != "degraded" {
		t.Errorf("redis down: code=%d body=%v", rec.Code, body)
	}

	h.mu.Lock()
	h.StoreOK = false
	h.mu.Unlock()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("store down: code=%d", rec.Code)
	}
}

func TestServer_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.FetchFailures.Inc()

	srv := NewServer(":0", NewHealthStatus(), reg, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "advisor_fetch_failures_total 1") {
		t.Errorf("metrics output missing counter:\n%s", rec.Body.String())
	}
}
