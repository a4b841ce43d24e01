package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the orchestration engine
type Metrics struct {
	// Authentication metrics
	LoginsStarted       prometheus.Counter
	LoginsCompleted     prometheus.Counter
	LoginsFailed        *prometheus.CounterVec
	ActiveLoginFlows    prometheus.Gauge
	SessionsRestored    prometheus.Counter
	SessionsInvalidated prometheus.Counter

	// Account metrics
	ActiveAccounts  prometheus.Gauge
	AccountSwitches prometheus.Counter

	// Rate limiter metrics
	FloodWaitsTotal  prometheus.Counter
	FloodWaitSeconds prometheus.Histogram

	// Transfer metrics
	TasksSubmitted   prometheus.Counter
	TasksFinished    *prometheus.CounterVec
	TasksRunning     prometheus.Gauge
	TasksQueued      prometheus.Gauge
	TransferBytes    *prometheus.CounterVec
	TransferDuration prometheus.Histogram
	TransferRetries  prometheus.Counter

	// Kafka metrics
	KafkaMessagesProduced prometheus.Counter
	KafkaProduceErrors    *prometheus.CounterVec
}

var (
	// DefaultMetrics is the default metrics instance
	DefaultMetrics *Metrics
	once           sync.Once
)

// GetDefaultMetrics returns the singleton metrics instance
func GetDefaultMetrics() *Metrics {
	once.Do(func() {
		DefaultMetrics = NewMetrics()
	})
	return DefaultMetrics
}

func init() {
	// Initialize DefaultMetrics on package import
	GetDefaultMetrics()
}

// NewMetrics creates a new Metrics instance with all counters and gauges
func NewMetrics() *Metrics {
	return &Metrics{
		// Authentication metrics
		LoginsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "televault_logins_started_total",
			Help: "Total number of login flows started",
		}),
		LoginsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "televault_logins_completed_total",
			Help: "Total number of login flows that reached connected state",
		}),
		LoginsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "televault_logins_failed_total",
				Help: "Total number of failed login flows",
			},
			[]string{"reason"},
		),
		ActiveLoginFlows: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "televault_active_login_flows",
			Help: "Current number of in-flight login flows",
		}),
		SessionsRestored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "televault_sessions_restored_total",
			Help: "Total number of accounts restored from persisted sessions",
		}),
		SessionsInvalidated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "televault_sessions_invalidated_total",
			Help: "Total number of persisted sessions invalidated",
		}),

		// Account metrics
		ActiveAccounts: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "televault_active_accounts",
			Help: "Current number of connected account handles",
		}),
		AccountSwitches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "televault_account_switches_total",
			Help: "Total number of active account switches",
		}),

		// Rate limiter metrics
		FloodWaitsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "televault_flood_waits_total",
			Help: "Total number of flood wait responses from the provider",
		}),
		FloodWaitSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "televault_flood_wait_seconds",
			Help:    "Server-mandated flood wait durations in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),

		// Transfer metrics
		TasksSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "televault_transfer_tasks_submitted_total",
			Help: "Total number of transfer tasks submitted",
		}),
		TasksFinished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "televault_transfer_tasks_finished_total",
				Help: "Total number of finished transfer tasks by outcome",
			},
			[]string{"outcome"},
		),
		TasksRunning: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "televault_transfer_tasks_running",
			Help: "Current number of running transfer tasks",
		}),
		TasksQueued: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "televault_transfer_tasks_queued",
			Help: "Current number of queued transfer tasks",
		}),
		TransferBytes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "televault_transfer_bytes_total",
				Help: "Total bytes transferred by direction",
			},
			[]string{"direction"},
		),
		TransferDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "televault_transfer_duration_seconds",
			Help:    "Duration of completed transfer tasks in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		TransferRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "televault_transfer_chunk_retries_total",
			Help: "Total number of chunk-level retries during transfers",
		}),

		// Kafka metrics
		KafkaMessagesProduced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "televault_kafka_messages_produced_total",
			Help: "Total number of task events produced to Kafka",
		}),
		KafkaProduceErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "televault_kafka_produce_errors_total",
				Help: "Total number of Kafka produce errors",
			},
			[]string{"error_type"},
		),
	}
}
