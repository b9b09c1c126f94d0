package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rxtech-lab/cardify-mcp/internal/apperrors"
	"github.com/rxtech-lab/cardify-mcp/internal/chain"
	"github.com/rxtech-lab/cardify-mcp/internal/chain/chaintest"
	"github.com/rxtech-lab/cardify-mcp/internal/codes"
	"github.com/rxtech-lab/cardify-mcp/internal/models"
	"github.com/rxtech-lab/cardify-mcp/internal/services"
	"github.com/stretchr/testify/suite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// stepHook runs fn when an attempt reaches step
type stepHook struct {
	step models.DeploymentStep
	fn   func(attempt models.DeploymentAttempt)
}

func (h *stepHook) CanHandle(step models.DeploymentStep) bool {
	return step == h.step
}

func (h *stepHook) OnStepCompleted(ctx context.Context, step models.DeploymentStep, attempt models.DeploymentAttempt) error {
	h.fn(attempt)
	return nil
}

// flakyLedger fails RecordCollection a fixed number of times before delegating
type flakyLedger struct {
	services.LedgerService
	mu       sync.Mutex
	failures int
	calls    int
	// failWith replaces the default transient error
	failWith error
}

func (l *flakyLedger) RecordCollection(ctx context.Context, collection *models.Collection, rows []models.RedemptionCode) error {
	l.mu.Lock()
	l.calls++
	fail := l.failures > 0
	if fail {
		l.failures--
	}
	l.mu.Unlock()

	if fail && l.failWith != nil {
		return l.failWith
	}
	if fail {
		return apperrors.Wrap(apperrors.KindPersistenceTransient, apperrors.CodePersistenceUnavailable, "database unavailable", errors.New("connection refused"))
	}
	return l.LedgerService.RecordCollection(ctx, collection, rows)
}

type OrchestratorTestSuite struct {
	suite.Suite
	ctx          context.Context
	db           *gorm.DB
	backend      *chaintest.Backend
	client       chain.Client
	factories    map[chain.CollectionKind]common.Address
	credits      services.CreditService
	ledger       services.LedgerService
	hooks        services.HookService
	orchestrator services.OrchestratorService
}

func (suite *OrchestratorTestSuite) SetupTest() {
	suite.build(nil)
}

// build wires a fresh orchestrator. wrap lets a test replace the ledger.
func (suite *OrchestratorTestSuite) build(wrap func(services.LedgerService) services.LedgerService) {
	suite.ctx = context.Background()
	suite.db = newTestDB(suite.T())
	suite.backend = chaintest.NewBackend()
	suite.client, _ = chaintest.NewClient(suite.T(), suite.backend)

	suite.factories = map[chain.CollectionKind]common.Address{
		chain.KindERC1155: suite.backend.AddFactory(chain.KindERC1155),
		chain.KindERC721:  suite.backend.AddFactory(chain.KindERC721),
	}

	suite.credits = services.NewCreditService(suite.db)
	suite.ledger = services.NewLedgerService(suite.db)
	suite.hooks = services.NewHookService()

	ledger := suite.ledger
	if wrap != nil {
		ledger = wrap(suite.ledger)
	}

	suite.orchestrator = suite.newOrchestrator(ledger)

	_, err := suite.credits.Grant(suite.ctx, "user-1", 100, "")
	suite.Require().NoError(err)
}

// newOrchestrator returns another worker over the same database and chain
func (suite *OrchestratorTestSuite) newOrchestrator(ledger services.LedgerService) services.OrchestratorService {
	return services.NewOrchestratorService(
		suite.db,
		codes.NewGenerator(),
		services.NewDeployerService(suite.client, suite.factories),
		services.NewRegistrarService(suite.client, 2),
		ledger,
		suite.credits,
		suite.hooks,
		services.OrchestratorConfig{
			CreditCost:     10,
			PersistRetries: 2,
			PersistBackoff: time.Millisecond,
			DefaultKind:    chain.KindERC1155,
			MaxCodes:       1000,
			LeaseDuration:  time.Minute,
		},
	)
}

func (suite *OrchestratorTestSuite) setLease(attemptID, owner string, until time.Time) {
	suite.Require().NoError(suite.db.Model(&models.DeploymentAttempt{}).
		Where("id = ?", attemptID).
		UpdateColumns(map[string]interface{}{"lease_owner": owner, "lease_until": until}).Error)
}

func (suite *OrchestratorTestSuite) request() models.DeploymentRequest {
	return models.DeploymentRequest{
		Name:         "Cardify Genesis",
		Symbol:       "CARD",
		Description:  "First drop",
		MetadataURI:  "https://gateway.pinata.cloud/ipfs/" + testCID,
		MaxSupply:    5,
		MintPrice:    "0.01",
		RoyaltyBps:   500,
		OwnerAddress: "0x70997970C51812dc3A010C7d01b50e20d17dc79C",
	}
}

func (suite *OrchestratorTestSuite) balance() int64 {
	balance, err := suite.credits.GetBalance(suite.ctx, "user-1")
	suite.Require().NoError(err)
	return balance
}

func (suite *OrchestratorTestSuite) assertRecorded(result *services.DeploymentResult) {
	address := common.HexToAddress(result.CollectionAddress)
	onChain, ok := suite.backend.Collection(address)
	suite.Require().True(ok)
	suite.Equal(common.HexToAddress(testOwner), onChain.Owner)
	suite.Equal("ipfs://"+testCID+"/", onChain.BaseURI)

	stored, err := suite.ledger.ListCodes(suite.ctx, result.CollectionAddress, nil)
	suite.Require().NoError(err)
	suite.Len(stored, len(result.Codes))
	for _, code := range stored {
		suite.Equal(codes.Commit(code.Code).Hex(), code.Hash)
		suite.True(onChain.Valid[common.HexToHash(code.Hash)], "commitment of %s registered", code.Code)
	}
}

func (suite *OrchestratorTestSuite) TestDeploySuccess() {
	var reached []models.DeploymentStep
	for _, step := range []models.DeploymentStep{
		models.StepValidated, models.StepCodesGenerated, models.StepContractDeployed,
		models.StepOwnershipTransferred, models.StepCommitmentsRegistered, models.StepPersisted, models.StepCompleted,
	} {
		step := step
		suite.NoError(suite.hooks.AddHook(&stepHook{step: step, fn: func(models.DeploymentAttempt) {
			reached = append(reached, step)
		}}))
	}

	result, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "", suite.request())
	suite.Require().NoError(err)
	suite.True(result.Success)
	suite.Equal(services.DeploymentStatusCompleted, result.Status)
	suite.Len(result.Codes, 5)
	suite.NotEmpty(result.TransactionHash)
	suite.Equal(int64(10), result.CreditsDeducted)
	suite.Require().NotNil(result.NewCreditBalance)
	suite.Equal(int64(90), *result.NewCreditBalance)
	suite.Equal(int64(90), suite.balance())
	suite.Len(reached, 7)

	suite.assertRecorded(result)
	// 5 commitments in batches of 2
	suite.Equal(3, suite.backend.SentCount(chaintest.MethodAddValidCodes))

	attempt, err := suite.orchestrator.GetAttempt(suite.ctx, result.AttemptID)
	suite.Require().NoError(err)
	suite.Equal(models.StepCompleted, attempt.Status())
	suite.NotNil(attempt.CompletedAt)
	suite.Len(attempt.RegistrationTxHashes, 3)
	suite.True(attempt.CreditsDeducted)

	collection := models.Collection{}
	suite.Require().NoError(suite.db.First(&collection, "address = ?", result.CollectionAddress).Error)
	suite.Equal("user-1", collection.UserID)
	suite.Equal(testOwner, collection.RoyaltyRecipient)
	suite.Equal("10000000000000000", collection.MintPrice.String())
	suite.Require().NotNil(collection.CID)
	suite.Equal(testCID, *collection.CID)
}

func (suite *OrchestratorTestSuite) TestReplayReturnsStoredResult() {
	first, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "key-1", suite.request())
	suite.Require().NoError(err)
	sent := len(suite.backend.Sent())

	second, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "key-1", suite.request())
	suite.Require().NoError(err)
	suite.True(second.Replayed)
	suite.Equal(first.AttemptID, second.AttemptID)
	suite.Equal(first.CollectionAddress, second.CollectionAddress)
	suite.Equal(first.Codes, second.Codes)
	suite.Equal(sent, len(suite.backend.Sent()))
	suite.Equal(int64(90), suite.balance())
}

func (suite *OrchestratorTestSuite) TestFingerprintDeduplicatesWithoutKey() {
	first, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "", suite.request())
	suite.Require().NoError(err)

	second, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "", suite.request())
	suite.Require().NoError(err)
	suite.Equal(first.AttemptID, second.AttemptID)
	suite.Equal(1, suite.backend.SentCount(chaintest.MethodCreateCollection))

	other := suite.request()
	other.Name = "Second Drop"
	third, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "", other)
	suite.Require().NoError(err)
	suite.NotEqual(first.AttemptID, third.AttemptID)
	suite.Equal(int64(80), suite.balance())
}

func (suite *OrchestratorTestSuite) TestKeyReusedForDifferentRequest() {
	_, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "key-1", suite.request())
	suite.Require().NoError(err)

	other := suite.request()
	other.Symbol = "OTHER"
	_, err = suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "key-1", other)
	suite.Equal(apperrors.CodeIdempotencyKeyReused, apperrors.CodeOf(err))
}

func (suite *OrchestratorTestSuite) TestRegistrationReverted() {
	suite.backend.RevertNext(chaintest.MethodAddValidCodes)

	_, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "key-b", suite.request())
	suite.Require().Error(err)

	var deployErr *services.DeploymentError
	suite.Require().True(errors.As(err, &deployErr))
	suite.Equal(models.StepCommitmentsRegistered, deployErr.FailedStep)
	suite.False(deployErr.Retryable)
	suite.NotEmpty(deployErr.CollectionAddress)
	suite.Equal(apperrors.KindChainFatal, apperrors.KindOf(err))

	attempt, err := suite.orchestrator.GetAttempt(suite.ctx, deployErr.AttemptID)
	suite.Require().NoError(err)
	suite.Equal(models.StepFailed, attempt.Status())
	suite.Equal(models.StepOwnershipTransferred, attempt.Step)
	suite.False(attempt.CreditsDeducted)
	suite.Equal(int64(100), suite.balance())

	var count int64
	suite.db.Model(&models.Collection{}).Count(&count)
	suite.Equal(int64(0), count)

	// Retrying a fatal failure returns the stored failure without touching the chain
	sent := len(suite.backend.Sent())
	_, err = suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "key-b", suite.request())
	suite.Require().True(errors.As(err, &deployErr))
	suite.Equal(models.StepCommitmentsRegistered, deployErr.FailedStep)
	suite.Equal(apperrors.CodeTransactionReverted, apperrors.CodeOf(err))
	suite.Equal(sent, len(suite.backend.Sent()))
}

// a registration batch times out and the retry waits for it
func (suite *OrchestratorTestSuite) TestRegistrationTimeoutResumes() {
	var once sync.Once
	suite.NoError(suite.hooks.AddHook(&stepHook{step: models.StepOwnershipTransferred, fn: func(models.DeploymentAttempt) {
		once.Do(func() { suite.backend.HoldNextReceipts(1) })
	}}))

	_, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "key-c", suite.request())
	var deployErr *services.DeploymentError
	suite.Require().True(errors.As(err, &deployErr))
	suite.Equal(models.StepCommitmentsRegistered, deployErr.FailedStep)
	suite.True(deployErr.Retryable)
	suite.True(errors.Is(err, apperrors.ErrTransactionTimedOut))

	attempt, err := suite.orchestrator.GetAttempt(suite.ctx, deployErr.AttemptID)
	suite.Require().NoError(err)
	suite.NotEmpty(attempt.PendingTxHash)
	suite.Equal([]string{attempt.PendingTxHash}, []string(attempt.RegistrationTxHashes))

	suite.backend.Release()
	result, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "key-c", suite.request())
	suite.Require().NoError(err)
	suite.Equal(services.DeploymentStatusCompleted, result.Status)
	suite.assertRecorded(result)

	suite.Equal(1, suite.backend.SentCount(chaintest.MethodCreateCollection))
	suite.Equal(1, suite.backend.SentCount(chaintest.MethodTransferOwnership))
	// the held batch is awaited, the remaining two are sent on resume
	suite.Equal(3, suite.backend.SentCount(chaintest.MethodAddValidCodes))
	suite.Equal(int64(90), suite.balance())
}

// persistence is down after the chain work finished
func (suite *OrchestratorTestSuite) TestPersistenceRecoversWithoutRedeploy() {
	flaky := &flakyLedger{failures: 3}
	suite.build(func(inner services.LedgerService) services.LedgerService {
		flaky.LedgerService = inner
		return flaky
	})

	result, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "key-d", suite.request())
	suite.Require().NoError(err)
	suite.True(result.Success)
	suite.Equal(services.DeploymentStatusDeployedNotRecorded, result.Status)
	suite.NotEmpty(result.CollectionAddress)
	suite.Len(result.Codes, 5)
	suite.Equal(int64(0), result.CreditsDeducted)
	suite.Equal(int64(100), suite.balance())
	suite.Equal(2, flaky.calls)

	// One failure left: the reconciler's first try fails and its retry succeeds
	completed, err := suite.orchestrator.ReconcilePending(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(1, completed)
	suite.Equal(4, flaky.calls)

	attempt, err := suite.orchestrator.GetAttempt(suite.ctx, result.AttemptID)
	suite.Require().NoError(err)
	suite.Equal(models.StepCompleted, attempt.Status())
	suite.Equal(result.Codes, []string(attempt.Codes))
	suite.assertRecorded(result)

	suite.Equal(1, suite.backend.SentCount(chaintest.MethodCreateCollection))
	suite.Equal(int64(90), suite.balance())

	// Nothing is left for the reconciler
	completed, err = suite.orchestrator.ReconcilePending(suite.ctx)
	suite.NoError(err)
	suite.Equal(0, completed)
}

func (suite *OrchestratorTestSuite) TestInsufficientCredit() {
	_, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-2", "key-e", suite.request())
	suite.True(errors.Is(err, apperrors.ErrInsufficientCredit))
	suite.Equal(403, apperrors.HTTPStatus(err))
	suite.Empty(suite.backend.Sent())

	var deployErr *services.DeploymentError
	suite.Require().True(errors.As(err, &deployErr))
	suite.True(deployErr.Retryable)

	_, err = suite.credits.Grant(suite.ctx, "user-2", 10, "")
	suite.Require().NoError(err)
	result, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-2", "key-e", suite.request())
	suite.Require().NoError(err)
	suite.Equal(services.DeploymentStatusCompleted, result.Status)
	suite.Require().NotNil(result.NewCreditBalance)
	suite.Equal(int64(0), *result.NewCreditBalance)
}

func (suite *OrchestratorTestSuite) TestConcurrentCallIsRejected() {
	entered := make(chan struct{})
	release := make(chan struct{})
	suite.NoError(suite.hooks.AddHook(&stepHook{step: models.StepCodesGenerated, fn: func(models.DeploymentAttempt) {
		close(entered)
		<-release
	}}))

	done := make(chan error, 1)
	go func() {
		_, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "key-f", suite.request())
		done <- err
	}()

	<-entered
	_, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "key-f", suite.request())
	suite.True(errors.Is(err, apperrors.ErrAttemptInProgress))
	suite.Equal(409, apperrors.HTTPStatus(err))

	close(release)
	suite.NoError(<-done)
	suite.Equal(1, suite.backend.SentCount(chaintest.MethodCreateCollection))
}

func (suite *OrchestratorTestSuite) TestUnacknowledgedDeployIsAwaited() {
	suite.backend.AcceptNextSendThenFail(context.DeadlineExceeded)

	result, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "key-ack", suite.request())
	suite.Require().NoError(err)
	suite.Equal(services.DeploymentStatusCompleted, result.Status)
	suite.assertRecorded(result)

	suite.Equal(1, suite.backend.SentCount(chaintest.MethodCreateCollection))
	attempt, err := suite.orchestrator.GetAttempt(suite.ctx, result.AttemptID)
	suite.Require().NoError(err)
	suite.Equal(suite.backend.Sent()[0].Hash.Hex(), attempt.DeployTxHash)
}

func (suite *OrchestratorTestSuite) TestUnacknowledgedTransferIsAwaited() {
	suite.NoError(suite.hooks.AddHook(&stepHook{step: models.StepContractDeployed, fn: func(models.DeploymentAttempt) {
		suite.backend.AcceptNextSendThenFail(errors.New("connection reset by peer"))
	}}))

	result, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "key-ack-2", suite.request())
	suite.Require().NoError(err)
	suite.Equal(services.DeploymentStatusCompleted, result.Status)
	suite.Equal(1, suite.backend.SentCount(chaintest.MethodTransferOwnership))
}

func (suite *OrchestratorTestSuite) TestDroppedDeployIsResubmitted() {
	suite.backend.FailNextSend(errors.New("connection reset by peer"))

	_, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "key-drop", suite.request())
	var deployErr *services.DeploymentError
	suite.Require().True(errors.As(err, &deployErr))
	suite.Equal(models.StepContractDeployed, deployErr.FailedStep)
	suite.True(deployErr.Retryable)
	suite.True(errors.Is(err, apperrors.ErrTransactionDropped))

	attempt, err := suite.orchestrator.GetAttempt(suite.ctx, deployErr.AttemptID)
	suite.Require().NoError(err)
	suite.Empty(attempt.DeployTxHash)
	suite.Equal(0, suite.backend.SentCount(chaintest.MethodCreateCollection))

	result, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "key-drop", suite.request())
	suite.Require().NoError(err)
	suite.Equal(services.DeploymentStatusCompleted, result.Status)
	suite.Equal(1, suite.backend.SentCount(chaintest.MethodCreateCollection))
}

// a crash before the batch hashes were saved must not register the codes twice
func (suite *OrchestratorTestSuite) TestResumeWithoutBatchHashesSkipsRegisteredCodes() {
	flaky := &flakyLedger{failures: 2}
	suite.build(func(inner services.LedgerService) services.LedgerService {
		flaky.LedgerService = inner
		return flaky
	})

	result, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "key-crash", suite.request())
	suite.Require().NoError(err)
	suite.Equal(services.DeploymentStatusDeployedNotRecorded, result.Status)
	suite.Equal(3, suite.backend.SentCount(chaintest.MethodAddValidCodes))

	suite.Require().NoError(suite.db.Model(&models.DeploymentAttempt{}).
		Where("id = ?", result.AttemptID).
		UpdateColumns(map[string]interface{}{
			"step":                   models.StepOwnershipTransferred,
			"registration_tx_hashes": datatypes.JSONSlice[string](nil),
			"pending_tx_hash":        "",
		}).Error)

	resumed, err := suite.orchestrator.Resume(suite.ctx, result.AttemptID)
	suite.Require().NoError(err)
	suite.Equal(services.DeploymentStatusCompleted, resumed.Status)
	suite.assertRecorded(resumed)
	suite.Equal(3, suite.backend.SentCount(chaintest.MethodAddValidCodes))
	suite.Equal(1, suite.backend.SentCount(chaintest.MethodCreateCollection))
}

func (suite *OrchestratorTestSuite) TestPermanentPersistErrorIsNotRetried() {
	flaky := &flakyLedger{failures: 1, failWith: apperrors.Conflict(apperrors.CodeCollectionExists, "collection already recorded")}
	suite.build(func(inner services.LedgerService) services.LedgerService {
		flaky.LedgerService = inner
		return flaky
	})

	result, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "key-perm", suite.request())
	suite.Require().NoError(err)
	suite.Equal(services.DeploymentStatusDeployedNotRecorded, result.Status)
	suite.Equal(1, flaky.calls)
}

func (suite *OrchestratorTestSuite) TestLeaseBlocksOtherWorker() {
	entered := make(chan string, 1)
	release := make(chan struct{})
	suite.NoError(suite.hooks.AddHook(&stepHook{step: models.StepCodesGenerated, fn: func(attempt models.DeploymentAttempt) {
		entered <- attempt.ID
		<-release
	}}))

	done := make(chan error, 1)
	go func() {
		_, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "key-lease", suite.request())
		done <- err
	}()
	attemptID := <-entered

	other := suite.newOrchestrator(suite.ledger)
	_, err := other.Resume(suite.ctx, attemptID)
	suite.True(errors.Is(err, apperrors.ErrAttemptInProgress))

	incomplete, err := other.ListIncomplete(suite.ctx)
	suite.Require().NoError(err)
	for _, attempt := range incomplete {
		suite.NotEqual(attemptID, attempt.ID)
	}

	close(release)
	suite.Require().NoError(<-done)
	suite.Equal(1, suite.backend.SentCount(chaintest.MethodCreateCollection))

	stored := models.DeploymentAttempt{}
	suite.Require().NoError(suite.db.First(&stored, "id = ?", attemptID).Error)
	suite.Empty(stored.LeaseOwner)
	suite.Nil(stored.LeaseUntil)
}

func (suite *OrchestratorTestSuite) TestExpiredLeaseIsTakenOver() {
	flaky := &flakyLedger{failures: 2}
	suite.build(func(inner services.LedgerService) services.LedgerService {
		flaky.LedgerService = inner
		return flaky
	})
	first, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "key-expired", suite.request())
	suite.Require().NoError(err)
	suite.Equal(services.DeploymentStatusDeployedNotRecorded, first.Status)

	other := suite.newOrchestrator(suite.ledger)

	suite.setLease(first.AttemptID, "crashed-worker", time.Now().UTC().Add(time.Hour))
	_, err = other.Resume(suite.ctx, first.AttemptID)
	suite.True(errors.Is(err, apperrors.ErrAttemptInProgress))
	incomplete, err := other.ListIncomplete(suite.ctx)
	suite.Require().NoError(err)
	suite.Empty(incomplete)

	suite.setLease(first.AttemptID, "crashed-worker", time.Now().UTC().Add(-time.Second))
	incomplete, err = other.ListIncomplete(suite.ctx)
	suite.Require().NoError(err)
	suite.Len(incomplete, 1)

	result, err := other.Resume(suite.ctx, first.AttemptID)
	suite.Require().NoError(err)
	suite.Equal(services.DeploymentStatusCompleted, result.Status)
	suite.assertRecorded(result)
	suite.Equal(1, suite.backend.SentCount(chaintest.MethodCreateCollection))
	suite.Equal(2, flaky.calls)
}

func (suite *OrchestratorTestSuite) TestLostLeaseStopsRun() {
	suite.NoError(suite.hooks.AddHook(&stepHook{step: models.StepCodesGenerated, fn: func(attempt models.DeploymentAttempt) {
		suite.setLease(attempt.ID, "other-worker", time.Now().UTC().Add(time.Hour))
	}}))

	_, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "key-lost", suite.request())
	suite.True(errors.Is(err, apperrors.ErrAttemptInProgress))
	suite.Equal(1, suite.backend.SentCount(chaintest.MethodCreateCollection))
	suite.Equal(0, suite.backend.SentCount(chaintest.MethodTransferOwnership))

	stored := models.DeploymentAttempt{}
	suite.Require().NoError(suite.db.Where("lease_owner = ?", "other-worker").First(&stored).Error)
	suite.Equal(models.StepCodesGenerated, stored.Step)
	suite.Empty(stored.DeployTxHash)
}

func (suite *OrchestratorTestSuite) TestValidation() {
	tests := []struct {
		name   string
		mutate func(*models.DeploymentRequest)
	}{
		{"missing name", func(r *models.DeploymentRequest) { r.Name = " " }},
		{"supply too small", func(r *models.DeploymentRequest) { r.MaxSupply = 4 }},
		{"supply too large", func(r *models.DeploymentRequest) { r.MaxSupply = 1001 }},
		{"royalty too large", func(r *models.DeploymentRequest) { r.RoyaltyBps = 10001 }},
		{"bad owner", func(r *models.DeploymentRequest) { r.OwnerAddress = "0x123" }},
		{"bad royalty recipient", func(r *models.DeploymentRequest) { r.RoyaltyRecipient = "nope" }},
		{"bad mint price", func(r *models.DeploymentRequest) { r.MintPrice = "-1" }},
		{"bad collection type", func(r *models.DeploymentRequest) { r.CollectionType = "erc20" }},
		{"missing metadata", func(r *models.DeploymentRequest) { r.MetadataURI = "" }},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			req := suite.request()
			tt.mutate(&req)
			_, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "", req)
			suite.Equal(apperrors.KindValidation, apperrors.KindOf(err))
			suite.Equal(400, apperrors.HTTPStatus(err))
		})
	}
	suite.Empty(suite.backend.Sent())

	_, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "", "", suite.request())
	suite.Equal(401, apperrors.HTTPStatus(err))
}

func (suite *OrchestratorTestSuite) TestERC721Deployment() {
	req := suite.request()
	req.CollectionType = chain.KindERC721
	req.RoyaltyRecipient = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"

	result, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "", req)
	suite.Require().NoError(err)

	onChain, ok := suite.backend.Collection(common.HexToAddress(result.CollectionAddress))
	suite.Require().True(ok)
	suite.Equal(chain.KindERC721, onChain.Kind)

	collection := models.Collection{}
	suite.Require().NoError(suite.db.First(&collection, "address = ?", result.CollectionAddress).Error)
	suite.Equal(chain.KindERC721, collection.CollectionType)
	suite.Equal("0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc", collection.RoyaltyRecipient)
}

func (suite *OrchestratorTestSuite) TestOwnershipMismatchIsIncident() {
	intruder := common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
	suite.backend.OverrideNextOwner(intruder)

	_, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "", suite.request())
	var deployErr *services.DeploymentError
	suite.Require().True(errors.As(err, &deployErr))
	suite.Equal(models.StepOwnershipTransferred, deployErr.FailedStep)
	suite.False(deployErr.Retryable)
	suite.True(errors.Is(err, apperrors.ErrOwnershipTransferMismatch))
	suite.Equal(500, apperrors.HTTPStatus(err))
	suite.Equal(0, suite.backend.SentCount(chaintest.MethodAddValidCodes))
}

func (suite *OrchestratorTestSuite) TestMissingEventIsIncident() {
	suite.backend.DropNextEvent()

	_, err := suite.orchestrator.DeployCollectionWithCodes(suite.ctx, "user-1", "", suite.request())
	var deployErr *services.DeploymentError
	suite.Require().True(errors.As(err, &deployErr))
	suite.Equal(models.StepContractDeployed, deployErr.FailedStep)
	suite.Empty(deployErr.CollectionAddress)
	suite.Equal(apperrors.CodeEventNotFound, apperrors.CodeOf(err))
}

func (suite *OrchestratorTestSuite) TestGetAttemptNotFound() {
	_, err := suite.orchestrator.GetAttempt(suite.ctx, "missing")
	suite.Equal(apperrors.CodeAttemptNotFound, apperrors.CodeOf(err))

	_, err = suite.orchestrator.Resume(suite.ctx, "missing")
	suite.Equal(apperrors.KindNotFound, apperrors.KindOf(err))
}

func (suite *OrchestratorTestSuite) TestRunReconcilerStopsWithContext() {
	ctx, cancel := context.WithCancel(suite.ctx)
	done := make(chan struct{})
	go func() {
		suite.orchestrator.RunReconciler(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		suite.Fail("reconciler did not stop")
	}
}

func TestOrchestratorTestSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorTestSuite))
}
