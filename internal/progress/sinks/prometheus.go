package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/depop-feed/internal/progress"
)

// PrometheusSink turns progress events into run, tier, and endpoint metrics.
// When a textfile path is set, Close writes the registry there so a
// node-exporter textfile collector can pick up the batch job's results.
type PrometheusSink struct {
	gatherer prometheus.Gatherer
	textfile string

	runsCompleted *prometheus.CounterVec
	runDuration   prometheus.Histogram
	lastSuccess   prometheus.Gauge
	listings      prometheus.Gauge

	tierResults  *prometheus.CounterVec
	tierDuration *prometheus.HistogramVec

	endpointResults *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against reg. textfile may be
// empty to skip the file export.
func NewPrometheusSink(reg *prometheus.Registry, textfile string) (*PrometheusSink, error) {
	if reg == nil {
		return nil, fmt.Errorf("prometheus registry is required")
	}
	s := &PrometheusSink{
		gatherer: reg,
		textfile: textfile,
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "depopfeed_runs_completed_total",
			Help: "Pipeline runs partitioned by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "depopfeed_run_duration_seconds",
			Help:    "Wall time per pipeline run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "depopfeed_last_success_timestamp_seconds",
			Help: "Unix time of the last run that published or kept a feed.",
		}),
		listings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "depopfeed_listings",
			Help: "Listings in the batch produced by the last run.",
		}),
		tierResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "depopfeed_tier_results_total",
			Help: "Acquisition tier outcomes.",
		}, []string{"tier", "result"}),
		tierDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "depopfeed_tier_duration_seconds",
			Help:    "Time spent per acquisition tier.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 180, 600},
		}, []string{"tier"}),
		endpointResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "depopfeed_endpoint_responses_total",
			Help: "API endpoint responses partitioned by endpoint, status class, and result.",
		}, []string{"endpoint", "status_class", "result"}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsCompleted,
		s.runDuration,
		s.lastSuccess,
		s.listings,
		s.tierResults,
		s.tierDuration,
		s.endpointResults,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunDone:
		s.runsCompleted.WithLabelValues(labelOr(evt.Result, "success")).Inc()
		s.lastSuccess.Set(float64(evt.TS.Unix()))
		s.listings.Set(float64(evt.Count))
		s.observeRun(evt)
	case progress.StageRunError:
		s.runsCompleted.WithLabelValues("error").Inc()
		s.observeRun(evt)
	case progress.StageTierDone:
		s.tierResults.WithLabelValues(evt.Tier, labelOr(evt.Result, "unknown")).Inc()
		if evt.Dur > 0 {
			s.tierDuration.WithLabelValues(evt.Tier).Observe(evt.Dur.Seconds())
		}
	case progress.StageEndpointDone:
		statusClass := labelOr(string(evt.StatusClass), string(progress.StatusOther))
		s.endpointResults.WithLabelValues(evt.Endpoint, statusClass, labelOr(evt.Result, "unknown")).Inc()
	}
}

func (s *PrometheusSink) observeRun(evt progress.Event) {
	if evt.Dur > 0 {
		s.runDuration.Observe(evt.Dur.Seconds())
	}
}

// Close writes the textfile export when configured.
func (s *PrometheusSink) Close(context.Context) error {
	if s.textfile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(s.textfile, s.gatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func labelOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
