package services

import (
	"context"

	"github.com/rxtech-lab/cardify-mcp/internal/models"
)

// Hook is used to perform actions when a deployment attempt reaches a step
type Hook interface {
	// CanHandle is used to check if the hook handles the step. StepFailed is
	// reported when an attempt records a failure.
	CanHandle(step models.DeploymentStep) bool
	// OnStepCompleted is called after the attempt has been saved with the new step
	OnStepCompleted(ctx context.Context, step models.DeploymentStep, attempt models.DeploymentAttempt) error
}
