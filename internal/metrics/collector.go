// Package metrics holds the Prometheus collectors chanmover exports and the
// HTTP endpoint serving them.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Registry is the process-wide registry every chanmover collector lives in.
var Registry = prometheus.NewRegistry()

var startTime = time.Now()

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "chanmover_uptime_seconds",
			Help: "Time since start in seconds",
		}, func() float64 { return Uptime().Seconds() }),
	)
}

var factory = promauto.With(Registry)

var (
	MessagesRelocated = factory.NewCounter(prometheus.CounterOpts{
		Name: "chanmover_messages_relocated_total",
		Help: "Messages re-posted in a destination channel",
	})
	MessagesDeleted = factory.NewCounter(prometheus.CounterOpts{
		Name: "chanmover_messages_deleted_total",
		Help: "Messages deleted",
	})
	BulkDeleteCalls = factory.NewCounter(prometheus.CounterOpts{
		Name: "chanmover_bulk_delete_calls_total",
		Help: "Bulk delete requests issued",
	})
	SingleDeleteCalls = factory.NewCounter(prometheus.CounterOpts{
		Name: "chanmover_single_delete_calls_total",
		Help: "Single message delete requests issued",
	})
	DispatchTimeouts = factory.NewCounter(prometheus.CounterOpts{
		Name: "chanmover_dispatch_timeouts_total",
		Help: "Webhook dispatches skipped after timing out",
	})
	WebhooksCreated = factory.NewCounter(prometheus.CounterOpts{
		Name: "chanmover_webhooks_created_total",
		Help: "Webhooks created for relocation",
	})
	AttachmentBytes = factory.NewCounter(prometheus.CounterOpts{
		Name: "chanmover_attachment_bytes_total",
		Help: "Attachment bytes downloaded for re-upload",
	})
	OperationsFailed = factory.NewCounter(prometheus.CounterOpts{
		Name: "chanmover_operations_failed_total",
		Help: "Operations that ended with an error",
	})
	ActiveOperations = factory.NewGauge(prometheus.GaugeOpts{
		Name: "chanmover_active_operations",
		Help: "Operations currently running",
	})

	operationsStarted = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "chanmover_operations_total",
		Help: "Operations started",
	}, []string{"op"})

	OperationLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "chanmover_operation_seconds",
		Help:    "Operation duration in seconds",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
	})
	DispatchLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "chanmover_dispatch_seconds",
		Help:    "Webhook dispatch latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 30, 60},
	})
)

// Operations returns the started-operations counter for op.
func Operations(op string) prometheus.Counter {
	return operationsStarted.WithLabelValues(op)
}

// Uptime returns how long the process has been running.
func Uptime() time.Duration {
	return time.Since(startTime)
}

// Snapshot returns the current value of every chanmover counter and gauge,
// keyed by series name. Histograms report their sample count.
func Snapshot() map[string]float64 {
	families, err := Registry.Gather()
	if err != nil {
		return nil
	}
	out := make(map[string]float64)
	for _, mf := range families {
		name := mf.GetName()
		if !strings.HasPrefix(name, "chanmover_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			key := series(name, m.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				out[key] = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				out[key] = m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				out[key+"_count"] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func series(name string, labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return name
	}
	pairs := make([]string, 0, len(labels))
	for _, l := range labels {
		pairs = append(pairs, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
	}
	sort.Strings(pairs)
	return name + "{" + strings.Join(pairs, ",") + "}"
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Serve exposes the registry at endpoint on addr until ctx is cancelled.
func Serve(ctx context.Context, addr, endpoint string, logger *slog.Logger) error {
	if endpoint == "" {
		endpoint = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(endpoint, Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", "addr", addr, "path", endpoint)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
