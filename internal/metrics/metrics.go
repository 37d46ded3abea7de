package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DeploymentsTotal counts finished deployment jobs by terminal state.
	DeploymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deployd_deployments_total",
			Help: "Deployment jobs by terminal state",
		},
		[]string{"target", "state"},
	)

	// DeploymentDuration observes wall-clock time of finished deployments.
	DeploymentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deployd_deployment_duration_seconds",
			Help:    "Deployment duration from admission to terminal state",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"target"},
	)

	// TriggerRejections counts trigger requests rejected before job creation.
	TriggerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deployd_trigger_rejections_total",
			Help: "Trigger requests rejected synchronously, by error code",
		},
		[]string{"code"},
	)

	// ServiceUp reports the last observed health of a monitored service.
	ServiceUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "deployd_service_up",
			Help: "1 when the last probe of the service succeeded",
		},
		[]string{"service", "kind"},
	)

	// ProbeDuration observes health probe round-trip time.
	ProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deployd_probe_duration_seconds",
			Help:    "Service health probe duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)
)
