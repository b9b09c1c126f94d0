package hooks

import (
	"context"
	"time"

	"github.com/rxtech-lab/cardify-mcp/internal/apperrors"
	"github.com/rxtech-lab/cardify-mcp/internal/metrics"
	"github.com/rxtech-lab/cardify-mcp/internal/models"
	"github.com/rxtech-lab/cardify-mcp/internal/services"
)

type MetricsHook struct {
	metrics *metrics.Metrics
	now     func() time.Time
}

// CanHandle implements Hook.
func (h *MetricsHook) CanHandle(step models.DeploymentStep) bool {
	return true
}

// OnStepCompleted implements Hook.
func (h *MetricsHook) OnStepCompleted(ctx context.Context, step models.DeploymentStep, attempt models.DeploymentAttempt) error {
	if step == models.StepFailed {
		failedAt := string(attempt.Step)
		if attempt.FailedStep != nil {
			failedAt = string(*attempt.FailedStep)
		}
		h.metrics.ObserveFailure(failedAt, apperrors.Kind(attempt.LastErrorKind))
		return nil
	}

	h.metrics.ObserveStep(string(step))
	if step == models.StepCompleted && !attempt.CreatedAt.IsZero() {
		h.metrics.ObserveDeployment(h.now().Sub(attempt.CreatedAt))
	}
	return nil
}

func NewMetricsHook(m *metrics.Metrics) services.Hook {
	return &MetricsHook{
		metrics: m,
		now:     time.Now,
	}
}
