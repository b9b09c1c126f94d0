package services

import (
	"context"

	"github.com/rxtech-lab/cardify-mcp/internal/models"
)

type HookService interface {
	AddHook(hook Hook) error
	OnStepCompleted(ctx context.Context, step models.DeploymentStep, attempt models.DeploymentAttempt) error
}

type hookService struct {
	hooks []Hook
}

func NewHookService() HookService {
	return &hookService{
		hooks: []Hook{},
	}
}

func (h *hookService) AddHook(hook Hook) error {
	h.hooks = append(h.hooks, hook)
	return nil
}

func (h *hookService) OnStepCompleted(ctx context.Context, step models.DeploymentStep, attempt models.DeploymentAttempt) error {
	for _, hook := range h.hooks {
		if hook.CanHandle(step) {
			if err := hook.OnStepCompleted(ctx, step, attempt); err != nil {
				return err
			}
		}
	}
	return nil
}
