// Package metrics records what each deployment declared. Metrics live on a
// private registry and are pushed to a Pushgateway since objsign is a
// short-lived process.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/systmms/objsign/internal/stack"
)

// JobName is the Pushgateway job objsign pushes under
const JobName = "objsign"

// Recorder holds the deployment metrics
type Recorder struct {
	registry *prometheus.Registry

	statements         *prometheus.GaugeVec
	secrets            *prometheus.GaugeVec
	discoveryAttrs     *prometheus.GaugeVec
	rotationSerial     *prometheus.GaugeVec
	deploymentsTotal   *prometheus.CounterVec
	deploymentDuration *prometheus.HistogramVec
}

// NewRecorder creates a recorder with its own registry
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		statements: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "objsign_policy_statements",
				Help: "Number of permission statements granted to signing identities",
			},
			[]string{"stack", "level"},
		),
		secrets: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "objsign_secret_records",
				Help: "Number of declared signing secrets",
			},
			[]string{"stack", "kind"},
		),
		discoveryAttrs: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "objsign_discovery_attributes",
				Help: "Number of attributes on the published discovery instance",
			},
			[]string{"stack"},
		),
		rotationSerial: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "objsign_rotation_serial",
				Help: "Configured rotation serial of the signing access key",
			},
			[]string{"stack"},
		),
		deploymentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "objsign_deployments_total",
				Help: "Total number of stack submissions",
			},
			[]string{"stack", "result", "rotation"},
		),
		deploymentDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "objsign_deployment_duration_seconds",
				Help:    "Duration of stack submissions in seconds",
				Buckets: []float64{1, 5, 30, 60, 300, 900, 1800},
			},
			[]string{"stack"},
		),
	}
}

// Registry exposes the recorder's registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveStack records the shape of an assembled stack
func (r *Recorder) ObserveStack(s *stack.Stack) {
	bucket, object := 0, 0
	for _, sc := range s.Providers.Scopes {
		bucket += len(sc.Bucket)
		object += len(sc.Object)
	}
	r.statements.WithLabelValues(s.Name, "bucket").Set(float64(bucket))
	r.statements.WithLabelValues(s.Name, "object").Set(float64(object))

	managed, placeholder := 0, 0
	for _, sec := range s.Providers.Secrets {
		if sec.Placeholder {
			placeholder++
		} else {
			managed++
		}
	}
	r.secrets.WithLabelValues(s.Name, "managed").Set(float64(managed))
	r.secrets.WithLabelValues(s.Name, "placeholder").Set(float64(placeholder))

	r.discoveryAttrs.WithLabelValues(s.Name).Set(float64(len(s.Discovery.Attributes)))
	if serial := s.RotationSerial(); serial >= 0 {
		r.rotationSerial.WithLabelValues(s.Name).Set(float64(serial))
	}
}

// ObserveDeployment records one submission
func (r *Recorder) ObserveDeployment(stackName, rotation string, took time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.deploymentsTotal.WithLabelValues(stackName, result, rotation).Inc()
	r.deploymentDuration.WithLabelValues(stackName).Observe(took.Seconds())
}

// Push sends the registry to a Pushgateway, grouped by stack
func (r *Recorder) Push(ctx context.Context, url, stackName string) error {
	err := push.New(url, JobName).
		Gatherer(r.registry).
		Grouping("stack", stackName).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
