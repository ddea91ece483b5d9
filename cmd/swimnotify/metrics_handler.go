package main

import (
	"encoding/json"
	"net/http"

	"swimnotify/internal/metrics"
	"swimnotify/internal/service"
	"swimnotify/internal/tracing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// prometheusHandler serves the gateway registry plus Go runtime metrics in
// the Prometheus exposition format
func (s *Server) prometheusHandler() http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		metrics.NewCollector(metrics.Default()),
		collectors.NewGoCollector(),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorLog:      s.logger.WithField(service.LogFieldComponent, "metrics"),
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// handleMetrics returns the metrics registry as JSON, or in the Prometheus
// format with ?format=prometheus
func (s *Server) handleMetrics() http.HandlerFunc {
	exposition := s.prometheusHandler()
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")

		if r.URL.Query().Get("format") == "prometheus" {
			exposition.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(metrics.Default().Snapshot()); err != nil {
			s.logger.WithFields(logrus.Fields{
				service.LogFieldRequestID: tracing.RequestID(r.Context()),
				service.LogFieldTraceID:   tracing.TraceID(r.Context()),
			}).WithError(err).Error("Failed to encode metrics response")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}
