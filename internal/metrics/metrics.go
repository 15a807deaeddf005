// Package metrics provides Prometheus metrics for monitoring the agent.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// NavigationsTotal counts tracked page navigations by kind.
	NavigationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amplify_navigations_total",
			Help: "Total page navigations observed",
		},
		[]string{"kind"},
	)

	// SessionsStarted counts page sessions started.
	SessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "amplify_sessions_started_total",
			Help: "Total page sessions started",
		},
	)

	// SessionsEligible counts sessions where the creator was registered.
	SessionsEligible = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "amplify_sessions_eligible_total",
			Help: "Total sessions with a registered creator",
		},
	)

	// AcquisitionDuration tracks time from navigation to an attached target.
	AcquisitionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "amplify_acquisition_duration_seconds",
			Help:    "Time from navigation to interception attached",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~256s
		},
	)

	// ClicksIntercepted counts intercepted like-button clicks.
	ClicksIntercepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "amplify_clicks_intercepted_total",
			Help: "Total like-button clicks intercepted",
		},
	)

	// FlowsOpened counts payment flows by outcome.
	FlowsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amplify_flows_total",
			Help: "Total payment flows by outcome",
		},
		[]string{"outcome"},
	)

	// TipsSent counts confirmed transactions.
	TipsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "amplify_tips_sent_total",
			Help: "Total confirmed tip transactions",
		},
	)

	// TipAmountTotal accumulates confirmed tip value.
	TipAmountTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "amplify_tip_amount_total",
			Help: "Total confirmed tip amount in SOL",
		},
	)

	// BridgeRequestsTotal counts bridge exchanges by kind and status.
	BridgeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amplify_bridge_requests_total",
			Help: "Total bridge exchanges by kind and status",
		},
		[]string{"kind", "status"},
	)

	// BackendRequestsTotal counts backend API calls by endpoint and status.
	BackendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amplify_backend_requests_total",
			Help: "Total backend API calls by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	// MemoryUsageBytes shows current memory usage.
	MemoryUsageBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "amplify_memory_usage_bytes",
			Help: "Current memory usage in bytes (alloc)",
		},
	)

	// MemorySysBytes shows system memory obtained.
	MemorySysBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "amplify_memory_sys_bytes",
			Help: "Total memory obtained from system",
		},
	)

	// GoroutineCount shows current goroutine count.
	GoroutineCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "amplify_goroutines",
			Help: "Current number of goroutines",
		},
	)

	// BuildInfo provides build information as labels.
	BuildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "amplify_build_info",
			Help: "Build information",
		},
		[]string{"version", "go_version"},
	)
)

func init() {
	prometheus.MustRegister(
		NavigationsTotal,
		SessionsStarted,
		SessionsEligible,
		AcquisitionDuration,
		ClicksIntercepted,
		FlowsOpened,
		TipsSent,
		TipAmountTotal,
		BridgeRequestsTotal,
		BackendRequestsTotal,
		MemoryUsageBytes,
		MemorySysBytes,
		GoroutineCount,
		BuildInfo,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// StartMemoryCollector starts a goroutine that periodically updates memory metrics.
func StartMemoryCollector(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			updateMemoryMetrics()
		case <-stopCh:
			return
		}
	}
}

func updateMemoryMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	MemoryUsageBytes.Set(float64(m.Alloc))
	MemorySysBytes.Set(float64(m.Sys))
	GoroutineCount.Set(float64(runtime.NumGoroutine()))
}

// RecordTip records a confirmed tip transaction.
func RecordTip(amount float64) {
	TipsSent.Inc()
	TipAmountTotal.Add(amount)
}

// RecordBridgeRequest records one completed bridge exchange.
func RecordBridgeRequest(kind, status string) {
	BridgeRequestsTotal.WithLabelValues(kind, status).Inc()
}

// RecordBackendRequest records one backend API call.
func RecordBackendRequest(endpoint, status string) {
	BackendRequestsTotal.WithLabelValues(endpoint, status).Inc()
}
