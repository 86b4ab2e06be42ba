// Package metrics records deployment outcomes and pushes them to a Prometheus Pushgateway.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/farhad-zada/holders-collaborators-claims/internal/config"
)

// Deployment status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusDryRun  = "dry_run"
)

// Recorder holds the deployment metrics on a private registry.
// A short-lived CLI run has nothing to scrape, so the registry is pushed instead.
type Recorder struct {
	registry *prometheus.Registry
	cfg      config.MetricsConfig

	deploymentsTotal *prometheus.CounterVec
	deployDuration   *prometheus.HistogramVec
	gasUsed          *prometheus.GaugeVec
}

// New creates a Recorder.
func New(cfg config.MetricsConfig) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	if cfg.Job == "" {
		cfg.Job = "claimsctl"
	}

	return &Recorder{
		registry: reg,
		cfg:      cfg,
		deploymentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "claimsctl_deployments_total",
				Help: "Total number of contract deployments",
			},
			[]string{"network", "status"},
		),
		deployDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "claimsctl_deploy_duration_seconds",
				Help:    "Time from signer acquisition to mined receipt",
				Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300, 600},
			},
			[]string{"network"},
		),
		gasUsed: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "claimsctl_deploy_gas_used",
				Help: "Gas used by the last deployment",
			},
			[]string{"network"},
		),
	}
}

// Enabled reports whether a Pushgateway is configured.
func (r *Recorder) Enabled() bool {
	return r.cfg.PushgatewayURL != ""
}

// ObserveDeployment records one deployment attempt.
func (r *Recorder) ObserveDeployment(network, status string, duration time.Duration, gasUsed uint64) {
	r.deploymentsTotal.WithLabelValues(network, status).Inc()
	r.deployDuration.WithLabelValues(network).Observe(duration.Seconds())
	if status == StatusSuccess {
		r.gasUsed.WithLabelValues(network).Set(float64(gasUsed))
	}
}

// Push sends the registry to the Pushgateway. It is a no-op when none is configured.
func (r *Recorder) Push(ctx context.Context) error {
	if !r.Enabled() {
		return nil
	}
	err := push.New(r.cfg.PushgatewayURL, r.cfg.Job).
		Gatherer(r.registry).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
