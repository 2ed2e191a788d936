package telemetry

import (
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the merge engine. All methods are
// safe on a nil receiver.
type Metrics struct {
    // Records emitted by platform and attribution quality
    RecordsMerged *prometheus.CounterVec

    // Skipped records by kind ("ad", "lead")
    RecordErrors *prometheus.CounterVec

    // Name matches resolved through the substring fallback
    SubstringFallbacks prometheus.Counter

    // Final alert flags raised by flag name
    AlertsRaised *prometheus.CounterVec

    // Duration of each batch stage
    StageDuration *prometheus.HistogramVec

    Batches prometheus.Counter
}

// New creates the merge metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
    factory := promauto.With(reg)

    return &Metrics{
        RecordsMerged: factory.NewCounterVec(prometheus.CounterOpts{
            Name: "cerberus_records_merged_total",
            Help: "Unified records produced by platform and attribution quality",
        }, []string{"platform", "attribution_quality"}),

        RecordErrors: factory.NewCounterVec(prometheus.CounterOpts{
            Name: "cerberus_record_errors_total",
            Help: "Input records skipped because they could not be parsed",
        }, []string{"kind"}),

        SubstringFallbacks: factory.NewCounter(prometheus.CounterOpts{
            Name: "cerberus_substring_fallback_total",
            Help: "Campaign name attributions resolved by substring containment",
        }),

        AlertsRaised: factory.NewCounterVec(prometheus.CounterOpts{
            Name: "cerberus_alerts_raised_total",
            Help: "Final alert flags raised by flag",
        }, []string{"flag"}),

        StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
            Name:    "cerberus_merge_stage_duration_seconds",
            Help:    "Duration of merge batch stages",
            Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
        }, []string{"stage"}),

        Batches: factory.NewCounter(prometheus.CounterOpts{
            Name: "cerberus_batches_total",
            Help: "Merge batches completed",
        }),
    }
}

func (m *Metrics) IncrementRecordsMerged(platform, quality string) {
    if m != nil {
        m.RecordsMerged.WithLabelValues(platform, quality).Inc()
    }
}

func (m *Metrics) IncrementRecordErrors(kind string) {
    if m != nil {
        m.RecordErrors.WithLabelValues(kind).Inc()
    }
}

func (m *Metrics) IncrementSubstringFallback() {
    if m != nil {
        m.SubstringFallbacks.Inc()
    }
}

func (m *Metrics) IncrementAlert(flag string) {
    if m != nil {
        m.AlertsRaised.WithLabelValues(flag).Inc()
    }
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
    if m != nil {
        m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
    }
}

func (m *Metrics) IncrementBatches() {
    if m != nil {
        m.Batches.Inc()
    }
}
