package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rxtech-lab/cardify-mcp/internal/apperrors"
	"github.com/rxtech-lab/cardify-mcp/internal/services"
)

// Redemption outcomes
const (
	RedemptionRedeemed = "redeemed"
	RedemptionRejected = "rejected"
	RedemptionError    = "error"
)

// Metrics holds the service's Prometheus collectors
type Metrics struct {
	deploymentSteps    *prometheus.CounterVec
	deploymentFailures *prometheus.CounterVec
	deploymentDuration prometheus.Histogram
	redemptions        *prometheus.CounterVec
}

// NewRegistry returns a registry carrying the Go runtime and process collectors
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// New creates the collectors and registers them with registry
func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	m := &Metrics{}
	m.deploymentSteps = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "cardify_deployment_steps_total",
		Help: "Total number of deployment steps completed, by step",
	}, []string{"step"})
	m.deploymentFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "cardify_deployment_failures_total",
		Help: "Total number of failed deployment steps, by step and error kind",
	}, []string{"step", "kind"})
	m.deploymentDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "cardify_deployment_duration_seconds",
		Help:    "time from attempt creation to completion",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17m
	})
	m.redemptions = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "cardify_redemptions_total",
		Help: "Total number of redemption requests, by outcome",
	}, []string{"result"})
	return m
}

func (m *Metrics) ObserveStep(step string) {
	m.deploymentSteps.WithLabelValues(step).Inc()
}

func (m *Metrics) ObserveFailure(step string, kind apperrors.Kind) {
	m.deploymentFailures.WithLabelValues(step, string(kind)).Inc()
}

func (m *Metrics) ObserveDeployment(elapsed time.Duration) {
	m.deploymentDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRedemption(result string) {
	m.redemptions.WithLabelValues(result).Inc()
}

type instrumentedLedger struct {
	services.LedgerService
	metrics *Metrics
}

// InstrumentLedger counts redemption outcomes of ledger
func InstrumentLedger(ledger services.LedgerService, m *Metrics) services.LedgerService {
	return &instrumentedLedger{LedgerService: ledger, metrics: m}
}

func (l *instrumentedLedger) Redeem(ctx context.Context, collectionAddress, code, redeemer string) (*services.RedemptionResult, error) {
	result, err := l.LedgerService.Redeem(ctx, collectionAddress, code, redeemer)
	switch {
	case err == nil:
		l.metrics.ObserveRedemption(RedemptionRedeemed)
	case errors.Is(err, apperrors.ErrCodeNotFoundOrAlreadyUsed), apperrors.KindOf(err) == apperrors.KindValidation:
		l.metrics.ObserveRedemption(RedemptionRejected)
	default:
		l.metrics.ObserveRedemption(RedemptionError)
	}
	return result, err
}
