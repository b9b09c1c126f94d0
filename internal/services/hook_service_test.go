package services_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/rxtech-lab/cardify-mcp/internal/models"
	"github.com/rxtech-lab/cardify-mcp/internal/services"
	"github.com/stretchr/testify/suite"
)

// mockHook implements the Hook interface for testing
type mockHook struct {
	name           string
	supportedSteps []models.DeploymentStep
	callCount      int
	lastStep       models.DeploymentStep
	lastAttempt    *models.DeploymentAttempt
	shouldError    bool
	errorMessage   string
}

func newMockHook(name string, supportedSteps ...models.DeploymentStep) *mockHook {
	return &mockHook{
		name:           name,
		supportedSteps: supportedSteps,
	}
}

func (m *mockHook) CanHandle(step models.DeploymentStep) bool {
	for _, supported := range m.supportedSteps {
		if supported == step {
			return true
		}
	}
	return false
}

func (m *mockHook) OnStepCompleted(ctx context.Context, step models.DeploymentStep, attempt models.DeploymentAttempt) error {
	m.callCount++
	m.lastStep = step
	m.lastAttempt = &attempt

	if m.shouldError {
		return fmt.Errorf("%s", m.errorMessage)
	}
	return nil
}

func (m *mockHook) reset() {
	m.callCount = 0
	m.lastStep = ""
	m.lastAttempt = nil
	m.shouldError = false
	m.errorMessage = ""
}

type HookServiceTestSuite struct {
	suite.Suite
	hookService services.HookService
}

func (suite *HookServiceTestSuite) SetupTest() {
	// Create a fresh service for each test to avoid state leakage
	suite.hookService = services.NewHookService()
}

func (suite *HookServiceTestSuite) TestAddHook() {
	hook := newMockHook("test-hook", models.StepContractDeployed)
	suite.NoError(suite.hookService.AddHook(hook))

	attempt := models.DeploymentAttempt{ID: "attempt-1", Step: models.StepContractDeployed}
	err := suite.hookService.OnStepCompleted(context.Background(), models.StepContractDeployed, attempt)
	suite.NoError(err)
	suite.Equal(1, hook.callCount)
}

func (suite *HookServiceTestSuite) TestOnStepCompleted() {
	hook1 := newMockHook("hook1", models.StepContractDeployed)
	hook2 := newMockHook("hook2", models.StepFailed)
	hook3 := newMockHook("hook3", models.StepContractDeployed, models.StepFailed)

	suite.NoError(suite.hookService.AddHook(hook1))
	suite.NoError(suite.hookService.AddHook(hook2))
	suite.NoError(suite.hookService.AddHook(hook3))

	attempt := models.DeploymentAttempt{
		ID:              "attempt-123",
		Step:            models.StepContractDeployed,
		ContractAddress: "0x5fbdb2315678afecb367f032d93f642f64180aa3",
	}

	suite.Run("Deployed step", func() {
		hook1.reset()
		hook2.reset()
		hook3.reset()

		err := suite.hookService.OnStepCompleted(context.Background(), models.StepContractDeployed, attempt)
		suite.NoError(err)

		suite.Equal(1, hook1.callCount)
		suite.Equal(0, hook2.callCount)
		suite.Equal(1, hook3.callCount)

		suite.Equal(models.StepContractDeployed, hook1.lastStep)
		suite.Require().NotNil(hook1.lastAttempt)
		suite.Equal("attempt-123", hook1.lastAttempt.ID)
		suite.Equal(attempt.ContractAddress, hook1.lastAttempt.ContractAddress)
	})

	suite.Run("Failed step", func() {
		hook1.reset()
		hook2.reset()
		hook3.reset()

		err := suite.hookService.OnStepCompleted(context.Background(), models.StepFailed, attempt)
		suite.NoError(err)

		suite.Equal(0, hook1.callCount)
		suite.Equal(1, hook2.callCount)
		suite.Equal(1, hook3.callCount)
	})

	suite.Run("Unhandled step", func() {
		hook1.reset()
		hook2.reset()
		hook3.reset()

		err := suite.hookService.OnStepCompleted(context.Background(), models.StepPersisted, attempt)
		suite.NoError(err)

		suite.Equal(0, hook1.callCount+hook2.callCount+hook3.callCount)
	})
}

func (suite *HookServiceTestSuite) TestHookError() {
	failing := newMockHook("failing", models.StepCompleted)
	after := newMockHook("after", models.StepCompleted)
	failing.shouldError = true
	failing.errorMessage = "hook failed"

	suite.NoError(suite.hookService.AddHook(failing))
	suite.NoError(suite.hookService.AddHook(after))

	err := suite.hookService.OnStepCompleted(context.Background(), models.StepCompleted, models.DeploymentAttempt{ID: "attempt-1"})
	suite.Error(err)
	suite.Contains(err.Error(), "hook failed")
	suite.Equal(1, failing.callCount)
	// Hooks after a failing hook are not called
	suite.Equal(0, after.callCount)
}

func (suite *HookServiceTestSuite) TestNoHooks() {
	err := suite.hookService.OnStepCompleted(context.Background(), models.StepValidated, models.DeploymentAttempt{})
	suite.NoError(err)
}

func TestHookServiceTestSuite(t *testing.T) {
	suite.Run(t, new(HookServiceTestSuite))
}
