package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rpclink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rpclink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	messagesRead = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rpclink",
			Subsystem: "transport",
			Name:      "messages_read_total",
			Help:      "Messages decoded and routed by the reader worker.",
		},
		[]string{"transport", "kind"},
	)
	messagesWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rpclink",
			Subsystem: "transport",
			Name:      "messages_written_total",
			Help:      "Messages serialized by the writer worker.",
		},
		[]string{"transport", "kind"},
	)
	messagesDiscarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rpclink",
			Subsystem: "transport",
			Name:      "messages_discarded_total",
			Help:      "Outbound messages consumed but not written because the writer exit flag was set.",
		},
		[]string{"transport", "kind"},
	)
	workerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rpclink",
			Subsystem: "transport",
			Name:      "worker_errors_total",
			Help:      "Fatal worker errors.",
		},
		[]string{"transport", "worker"},
	)
	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "rpclink",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Messages waiting in a classified queue.",
		},
		[]string{"transport", "kind"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			messagesRead,
			messagesWritten,
			messagesDiscarded,
			workerErrors,
			queueDepth,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordMessageRead(transport, kind string) {
	RegisterMetrics()
	messagesRead.WithLabelValues(transport, kind).Inc()
}

func RecordMessageWritten(transport, kind string) {
	RegisterMetrics()
	messagesWritten.WithLabelValues(transport, kind).Inc()
}

func RecordMessageDiscarded(transport, kind string) {
	RegisterMetrics()
	messagesDiscarded.WithLabelValues(transport, kind).Inc()
}

func RecordWorkerError(transport, worker string) {
	RegisterMetrics()
	workerErrors.WithLabelValues(transport, worker).Inc()
}

func SetQueueDepth(transport, kind string, depth int) {
	RegisterMetrics()
	queueDepth.WithLabelValues(transport, kind).Set(float64(depth))
}
