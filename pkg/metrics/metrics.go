package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Dispatcher DispatcherMetrics
	Scheduler  SchedulerMetrics
	Mailer     MailerMetrics
	Kafka      KafkaMetrics
	API        APIMetrics
	Repo       RepoMetrics
}

type DispatcherMetrics struct {
	EventsTotal       *prometheus.CounterVec
	BatchSize         prometheus.Histogram
	HandlerDuration   *prometheus.HistogramVec
	UnmatchedProvider *prometheus.CounterVec
	LeasesReclaimed   prometheus.Counter
}

type SchedulerMetrics struct {
	EnrollmentsTotal *prometheus.CounterVec
	BatchSize        prometheus.Histogram
	SendDuration     *prometheus.HistogramVec
	MissingStage     prometheus.Counter
}

type MailerMetrics struct {
	SendsTotal      *prometheus.CounterVec
	AttemptDuration *prometheus.HistogramVec
}

type KafkaMetrics struct {
	ProducerOperationsTotal *prometheus.CounterVec
	ConsumerMessagesTotal   *prometheus.CounterVec
	ConsumerProcessDuration *prometheus.HistogramVec
	ConsumerRebalancesTotal *prometheus.CounterVec
	ConsumerInFlight        *prometheus.GaugeVec
}

type APIMetrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

type RepoMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	DurationSeconds *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Dispatcher: DispatcherMetrics{
			EventsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "outreach",
				Subsystem: "dispatcher",
				Name:      "events_total",
				Help:      "Outbox events by type and terminal result.",
			}, []string{"type", "result"}), // processed|failed|no_handler

			BatchSize: f.NewHistogram(prometheus.HistogramOpts{
				Namespace: "outreach",
				Subsystem: "dispatcher",
				Name:      "batch_size",
				Help:      "Events claimed per ProcessEvents call.",
				Buckets:   []float64{0, 1, 5, 10, 25, 50},
			}),

			HandlerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "outreach",
				Subsystem: "dispatcher",
				Name:      "handler_duration_seconds",
				Help:      "Engagement handler duration by event type.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"type"}),

			UnmatchedProvider: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "outreach",
				Subsystem: "dispatcher",
				Name:      "unmatched_provider_ids_total",
				Help:      "Provider callbacks whose message id resolved no delivery record.",
			}, []string{"type"}),

			LeasesReclaimed: f.NewCounter(prometheus.CounterOpts{
				Namespace: "outreach",
				Subsystem: "dispatcher",
				Name:      "leases_reclaimed_total",
				Help:      "Events returned to PENDING after their processing lease expired.",
			}),
		},

		Scheduler: SchedulerMetrics{
			EnrollmentsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "outreach",
				Subsystem: "scheduler",
				Name:      "enrollments_total",
				Help:      "Enrollments handled per outcome.",
			}, []string{"result"}), // sent|completed|retry|gave_up

			BatchSize: f.NewHistogram(prometheus.HistogramOpts{
				Namespace: "outreach",
				Subsystem: "scheduler",
				Name:      "batch_size",
				Help:      "Enrollments claimed per ProcessOutreachQueue call.",
				Buckets:   []float64{0, 1, 5, 10, 25, 50},
			}),

			SendDuration: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "outreach",
				Subsystem: "scheduler",
				Name:      "send_duration_seconds",
				Help:      "End-to-end duration of one enrollment send.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"result"}),

			MissingStage: f.NewCounter(prometheus.CounterOpts{
				Namespace: "outreach",
				Subsystem: "scheduler",
				Name:      "missing_pipeline_stage_total",
				Help:      "Pipeline stage transitions skipped because the named stage does not exist.",
			}),
		},

		Mailer: MailerMetrics{
			SendsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "outreach",
				Subsystem: "mailer",
				Name:      "sends_total",
				Help:      "Provider send calls by result.",
			}, []string{"result"}), // ok|error

			AttemptDuration: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "outreach",
				Subsystem: "mailer",
				Name:      "attempt_duration_seconds",
				Help:      "Latency per provider API attempt.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"result"}),
		},

		Kafka: KafkaMetrics{
			ProducerOperationsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "outreach",
				Subsystem: "kafka",
				Name:      "producer_operations_total",
				Help:      "Total produce operations (one call) by result.",
			}, []string{"topic", "result"}), // success|failed|permanent|canceled

			ConsumerMessagesTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "outreach",
				Subsystem: "kafka",
				Name:      "consumer_messages_total",
				Help:      "Total consumed Kafka messages by topic.",
			}, []string{"topic"}),

			ConsumerProcessDuration: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "outreach",
				Subsystem: "kafka",
				Name:      "consumer_process_duration_seconds",
				Help:      "Kafka message processing duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"topic"}),

			ConsumerRebalancesTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "outreach",
				Subsystem: "kafka",
				Name:      "consumer_rebalances_total",
				Help:      "Consumer rebalance lifecycle events.",
			}, []string{"event"}),

			ConsumerInFlight: f.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "outreach",
				Subsystem: "kafka",
				Name:      "consumer_inflight_messages",
				Help:      "Messages currently being processed.",
			}, []string{"topic"}),
		},

		API: APIMetrics{
			HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "outreach",
				Subsystem: "api",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests by method, path and status.",
			}, []string{"method", "path", "status"}),

			HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "outreach",
				Subsystem: "api",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency.",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			}, []string{"method", "path", "status"}),
		},

		Repo: RepoMetrics{
			RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "outreach",
				Subsystem: "db",
				Name:      "requests_total",
				Help:      "Total DB requests by operation, name and result.",
			}, []string{"op", "name", "result"}),

			DurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "outreach",
				Subsystem: "db",
				Name:      "request_duration_seconds",
				Help:      "DB request duration in seconds.",
				Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			}, []string{"op", "name", "result"}),
		},
	}
}
