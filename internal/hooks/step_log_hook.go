package hooks

import (
	"context"
	"log"

	"github.com/rxtech-lab/cardify-mcp/internal/models"
	"github.com/rxtech-lab/cardify-mcp/internal/services"
)

// StepLogHook writes one line per completed milestone so an attempt's history
// can be followed in the logs.
type StepLogHook struct {
	logf func(format string, args ...interface{})
}

// CanHandle implements Hook.
func (h *StepLogHook) CanHandle(step models.DeploymentStep) bool {
	switch step {
	case models.StepContractDeployed, models.StepOwnershipTransferred,
		models.StepCommitmentsRegistered, models.StepCompleted:
		return true
	}
	return false
}

// OnStepCompleted implements Hook.
func (h *StepLogHook) OnStepCompleted(ctx context.Context, step models.DeploymentStep, attempt models.DeploymentAttempt) error {
	switch step {
	case models.StepContractDeployed:
		h.logf("[deployment] attempt %s deployed %s in tx %s", attempt.ID, attempt.ContractAddress, attempt.DeployTxHash)
	case models.StepOwnershipTransferred:
		h.logf("[deployment] attempt %s transferred %s to %s", attempt.ID, attempt.ContractAddress, attempt.Request.Data().OwnerAddress)
	case models.StepCommitmentsRegistered:
		h.logf("[deployment] attempt %s registered %d commitments in %d txs", attempt.ID, len(attempt.Commitments), len(attempt.RegistrationTxHashes))
	case models.StepCompleted:
		h.logf("[deployment] attempt %s completed for user %s", attempt.ID, attempt.UserID)
	}
	return nil
}

func NewStepLogHook() services.Hook {
	return &StepLogHook{
		logf: log.Printf,
	}
}
