package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rxtech-lab/cardify-mcp/internal/apperrors"
	"github.com/rxtech-lab/cardify-mcp/internal/chain"
	"github.com/rxtech-lab/cardify-mcp/internal/codes"
	"github.com/rxtech-lab/cardify-mcp/internal/models"
	"github.com/rxtech-lab/cardify-mcp/internal/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DeploymentStatus string

const (
	DeploymentStatusCompleted             DeploymentStatus = "completed"
	DeploymentStatusDeployedNotRecorded   DeploymentStatus = "deployed_not_recorded"
	DeploymentStatusRecordedCreditPending DeploymentStatus = "recorded_credit_pending"
	DeploymentStatusInProgress            DeploymentStatus = "in_progress"
)

// DeploymentResult is returned once the collection exists on-chain. Status tells
// whether the database record and the credit debit have caught up.
type DeploymentResult struct {
	Success           bool             `json:"success"`
	AttemptID         string           `json:"attemptId"`
	Status            DeploymentStatus `json:"status"`
	CollectionAddress string           `json:"collectionAddress"`
	Codes             []string         `json:"codes"`
	TransactionHash   string           `json:"transactionHash"`
	CreditsDeducted   int64            `json:"creditsDeducted"`
	NewCreditBalance  *int64           `json:"newCreditBalance,omitempty"`
	Replayed          bool             `json:"replayed,omitempty"`
}

// DeploymentError reports the step an attempt failed at
type DeploymentError struct {
	AttemptID         string
	FailedStep        models.DeploymentStep
	CollectionAddress string
	Retryable         bool
	Err               error
}

func (e *DeploymentError) Error() string {
	return fmt.Sprintf("deployment failed at %s: %v", e.FailedStep, e.Err)
}

func (e *DeploymentError) Unwrap() error {
	return e.Err
}

type OrchestratorConfig struct {
	CreditCost     int64
	PersistRetries int
	PersistBackoff time.Duration
	DefaultKind    chain.CollectionKind
	MaxCodes       int
	// ReconcileGrace keeps the reconciler away from attempts that were just created
	ReconcileGrace time.Duration
	// LeaseDuration is how long a claim on an attempt lasts without a save.
	// It must outlast a transaction confirmation timeout.
	LeaseDuration time.Duration
}

// DefaultLeaseDuration applies when OrchestratorConfig.LeaseDuration is unset
const DefaultLeaseDuration = 5 * time.Minute

var errLeaseLost = apperrors.Conflict(apperrors.CodeAttemptInProgress, "deployment attempt was claimed by another worker")

type OrchestratorService interface {
	DeployCollectionWithCodes(ctx context.Context, userID, idempotencyKey string, req models.DeploymentRequest) (*DeploymentResult, error)
	// Resume continues an attempt from its last completed step
	Resume(ctx context.Context, attemptID string) (*DeploymentResult, error)
	GetAttempt(ctx context.Context, attemptID string) (*models.DeploymentAttempt, error)
	ListIncomplete(ctx context.Context) ([]models.DeploymentAttempt, error)
	// ReconcilePending resumes unfinished attempts and returns how many completed
	ReconcilePending(ctx context.Context) (int, error)
	RunReconciler(ctx context.Context, interval time.Duration)
}

type orchestratorService struct {
	db        *gorm.DB
	generator *codes.Generator
	deployer  DeployerService
	registrar RegistrarService
	ledger    LedgerService
	credits   CreditService
	hooks     HookService
	cfg       OrchestratorConfig
	locks     *attemptLocks
	// owner identifies this orchestrator in attempt leases
	owner string
}

func NewOrchestratorService(
	db *gorm.DB,
	generator *codes.Generator,
	deployer DeployerService,
	registrar RegistrarService,
	ledger LedgerService,
	credits CreditService,
	hooks HookService,
	cfg OrchestratorConfig,
) OrchestratorService {
	if cfg.PersistRetries <= 0 {
		cfg.PersistRetries = 1
	}
	if cfg.DefaultKind == "" {
		cfg.DefaultKind = chain.KindERC1155
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = DefaultLeaseDuration
	}
	return &orchestratorService{
		db:        db,
		generator: generator,
		deployer:  deployer,
		registrar: registrar,
		ledger:    ledger,
		credits:   credits,
		hooks:     hooks,
		cfg:       cfg,
		locks:     newAttemptLocks(),
		owner:     uuid.New().String(),
	}
}

func (s *orchestratorService) DeployCollectionWithCodes(ctx context.Context, userID, idempotencyKey string, req models.DeploymentRequest) (*DeploymentResult, error) {
	if userID == "" {
		return nil, apperrors.Authorization(apperrors.CodeUnauthenticated, "authentication required")
	}
	req, err := NormalizeDeploymentRequest(req, s.cfg.DefaultKind, s.cfg.MaxCodes)
	if err != nil {
		return nil, err
	}

	key := Fingerprint(userID, req)
	if k := strings.TrimSpace(idempotencyKey); k != "" {
		key = scopedKey(userID, k)
	}

	attempt, created, err := s.findOrCreateAttempt(ctx, userID, key, req)
	if err != nil {
		return nil, err
	}
	if !created && attempt.Request.Data() != req {
		return nil, apperrors.Conflict(apperrors.CodeIdempotencyKeyReused, "idempotency key was already used for a different request")
	}
	if created {
		log.Printf("[orchestrator] attempt %s created for user %s (%s, %d codes)", attempt.ID, userID, req.CollectionType, req.MaxSupply)
		s.notify(ctx, models.StepValidated, *attempt)
	}

	return s.execute(ctx, attempt.ID)
}

func (s *orchestratorService) Resume(ctx context.Context, attemptID string) (*DeploymentResult, error) {
	return s.execute(ctx, attemptID)
}

func (s *orchestratorService) GetAttempt(ctx context.Context, attemptID string) (*models.DeploymentAttempt, error) {
	var attempt models.DeploymentAttempt
	err := s.db.WithContext(ctx).Where("id = ?", attemptID).First(&attempt).Error
	if isNotFound(err) {
		return nil, apperrors.NotFound(apperrors.CodeAttemptNotFound, "deployment attempt not found")
	}
	if err != nil {
		return nil, persistenceError("failed to load deployment attempt", err)
	}
	return &attempt, nil
}

func (s *orchestratorService) ListIncomplete(ctx context.Context) ([]models.DeploymentAttempt, error) {
	query := s.db.WithContext(ctx).
		Where("step <> ? AND failed_step IS NULL", models.StepCompleted).
		Where("lease_until IS NULL OR lease_until < ?", time.Now().UTC())
	if s.cfg.ReconcileGrace > 0 {
		query = query.Where("updated_at < ?", time.Now().Add(-s.cfg.ReconcileGrace))
	}

	var attempts []models.DeploymentAttempt
	if err := query.Order("created_at ASC").Find(&attempts).Error; err != nil {
		return nil, persistenceError("failed to list deployment attempts", err)
	}
	return attempts, nil
}

func (s *orchestratorService) ReconcilePending(ctx context.Context) (int, error) {
	attempts, err := s.ListIncomplete(ctx)
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, attempt := range attempts {
		result, err := s.execute(ctx, attempt.ID)
		if err != nil {
			if !errors.Is(err, apperrors.ErrAttemptInProgress) {
				log.Printf("[reconciler] attempt %s: %v", attempt.ID, err)
			}
			continue
		}
		if result.Status == DeploymentStatusCompleted {
			completed++
		}
	}
	return completed, nil
}

func (s *orchestratorService) RunReconciler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			completed, err := s.ReconcilePending(ctx)
			if err != nil {
				log.Printf("[reconciler] failed: %v", err)
			} else if completed > 0 {
				log.Printf("[reconciler] completed %d attempts", completed)
			}
		}
	}
}

func (s *orchestratorService) findOrCreateAttempt(ctx context.Context, userID, key string, req models.DeploymentRequest) (*models.DeploymentAttempt, bool, error) {
	var attempt models.DeploymentAttempt
	err := s.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&attempt).Error
	if err == nil {
		return &attempt, false, nil
	}
	if !isNotFound(err) {
		return nil, false, persistenceError("failed to load deployment attempt", err)
	}

	attempt = models.DeploymentAttempt{
		ID:             uuid.New().String(),
		IdempotencyKey: key,
		UserID:         userID,
		Request:        datatypes.NewJSONType(req),
		Step:           models.StepValidated,
	}
	if err := s.db.WithContext(ctx).Create(&attempt).Error; err != nil {
		// a concurrent request with the same key may have won the insert
		var existing models.DeploymentAttempt
		if lookupErr := s.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&existing).Error; lookupErr == nil {
			return &existing, false, nil
		}
		return nil, false, persistenceError("failed to create deployment attempt", err)
	}
	return &attempt, true, nil
}

func (s *orchestratorService) execute(ctx context.Context, attemptID string) (*DeploymentResult, error) {
	if !s.locks.TryLock(attemptID) {
		return nil, apperrors.ErrAttemptInProgress
	}
	defer s.locks.Unlock(attemptID)

	attempt, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Step == models.StepCompleted {
		return s.replay(attempt), nil
	}

	claimed, err := s.claim(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, apperrors.ErrAttemptInProgress
	}
	defer s.release(attemptID)

	// another worker may have moved it on before the claim
	attempt, err = s.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Step == models.StepCompleted {
		return s.replay(attempt), nil
	}
	if attempt.Failed() {
		if !attempt.Retryable {
			return nil, storedFailure(attempt)
		}
		log.Printf("[orchestrator] resuming attempt %s after %s failure", attempt.ID, *attempt.FailedStep)
	}
	attempt.FailedStep = nil
	attempt.LastError = ""
	attempt.LastErrorKind = ""
	attempt.LastErrorCode = ""
	attempt.Retryable = false

	return s.run(ctx, attempt)
}

func (s *orchestratorService) replay(attempt *models.DeploymentAttempt) *DeploymentResult {
	result := s.result(attempt)
	result.Replayed = true
	return result
}

// claim takes the attempt lease. It fails while another worker holds an unexpired lease.
func (s *orchestratorService) claim(ctx context.Context, attemptID string) (bool, error) {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&models.DeploymentAttempt{}).
		Where("id = ?", attemptID).
		Where("lease_owner = ? OR lease_until IS NULL OR lease_until < ?", s.owner, now).
		UpdateColumns(map[string]interface{}{
			"lease_owner": s.owner,
			"lease_until": now.Add(s.cfg.LeaseDuration),
		})
	if res.Error != nil {
		return false, persistenceError("failed to claim deployment attempt", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *orchestratorService) release(attemptID string) {
	err := s.db.Model(&models.DeploymentAttempt{}).
		Where("id = ? AND lease_owner = ?", attemptID, s.owner).
		UpdateColumns(map[string]interface{}{"lease_owner": "", "lease_until": nil}).Error
	if err != nil {
		log.Printf("[orchestrator] failed to release attempt %s: %v", attemptID, err)
	}
}

func (s *orchestratorService) run(ctx context.Context, attempt *models.DeploymentAttempt) (*DeploymentResult, error) {
	req := attempt.Request.Data()
	// registration may have been cut short by a crash if the attempt was already past transfer
	resumed := attempt.Step.Reached(models.StepOwnershipTransferred)

	if !attempt.Step.Reached(models.StepContractDeployed) && s.cfg.CreditCost > 0 {
		balance, err := s.credits.GetBalance(ctx, attempt.UserID)
		if err == nil && balance < s.cfg.CreditCost {
			err = fmt.Errorf("balance %d, need %d: %w", balance, s.cfg.CreditCost, apperrors.ErrInsufficientCredit)
		}
		if err != nil {
			return nil, s.fail(ctx, attempt, models.StepValidated, err)
		}
	}

	if !attempt.Step.Reached(models.StepCodesGenerated) {
		generated, err := s.generator.Generate(req.MaxSupply)
		if err != nil {
			return nil, s.fail(ctx, attempt, models.StepCodesGenerated, err)
		}
		plain := make([]string, len(generated))
		commitments := make([]string, len(generated))
		for i, code := range generated {
			plain[i] = code.Plain
			commitments[i] = code.Commitment.Hex()
		}
		attempt.Codes = plain
		attempt.Commitments = commitments
		attempt.Step = models.StepCodesGenerated
		if err := s.save(ctx, attempt); err != nil {
			return nil, err
		}
		s.notify(ctx, models.StepCodesGenerated, *attempt)
	}

	if !attempt.Step.Reached(models.StepContractDeployed) {
		if err := s.deployCollection(ctx, attempt, req); err != nil {
			return nil, err
		}
	}

	if !attempt.Step.Reached(models.StepOwnershipTransferred) {
		if err := s.transferOwnership(ctx, attempt, req); err != nil {
			return nil, err
		}
	}

	if !attempt.Step.Reached(models.StepCommitmentsRegistered) {
		if err := s.registerCommitments(ctx, attempt, resumed); err != nil {
			return nil, err
		}
	}

	if !attempt.Step.Reached(models.StepPersisted) {
		if err := s.persist(ctx, attempt, req); err != nil {
			s.recordLagging(ctx, attempt, err)
			log.Printf("[orchestrator] attempt %s deployed %s but not recorded: %v", attempt.ID, attempt.ContractAddress, err)
			return s.result(attempt), nil
		}
		if err := s.advance(ctx, attempt, models.StepPersisted); err != nil {
			return nil, err
		}
	}

	if !attempt.Step.Reached(models.StepCompleted) {
		if err := s.debit(ctx, attempt); err != nil {
			s.recordLagging(ctx, attempt, err)
			log.Printf("[orchestrator] attempt %s recorded but credits not debited: %v", attempt.ID, err)
			return s.result(attempt), nil
		}
		now := time.Now().UTC()
		attempt.CompletedAt = &now
		if err := s.advance(ctx, attempt, models.StepCompleted); err != nil {
			return nil, err
		}
		log.Printf("[orchestrator] attempt %s completed: collection %s", attempt.ID, attempt.ContractAddress)
	}

	return s.result(attempt), nil
}

func (s *orchestratorService) deployCollection(ctx context.Context, attempt *models.DeploymentAttempt, req models.DeploymentRequest) error {
	if attempt.DeployTxHash == "" {
		params, err := deployParams(req)
		if err != nil {
			return s.fail(ctx, attempt, models.StepContractDeployed, err)
		}
		txHash, err := s.deployer.SubmitDeploy(ctx, params)
		if pending, ok := chain.PendingTxHash(err); ok {
			log.Printf("[orchestrator] attempt %s: createCollection %s not acknowledged, awaiting it", attempt.ID, pending.Hex())
			txHash, err = pending, nil
		}
		if err != nil {
			return s.fail(ctx, attempt, models.StepContractDeployed, err)
		}
		attempt.DeployTxHash = txHash.Hex()
		if err := s.checkpoint(ctx, attempt); err != nil {
			return err
		}
	}

	result, err := s.deployer.ResumeDeploy(ctx, req.CollectionType, common.HexToHash(attempt.DeployTxHash))
	if result != nil {
		attempt.ContractAddress = utils.NormalizeAddress(result.Address.Hex())
	}
	if err != nil {
		if chain.IsDropped(err) {
			attempt.DeployTxHash = ""
		}
		return s.fail(ctx, attempt, models.StepContractDeployed, err)
	}
	return s.advance(ctx, attempt, models.StepContractDeployed)
}

func (s *orchestratorService) transferOwnership(ctx context.Context, attempt *models.DeploymentAttempt, req models.DeploymentRequest) error {
	contract := common.HexToAddress(attempt.ContractAddress)
	owner := common.HexToAddress(req.OwnerAddress)

	if attempt.OwnershipTxHash == "" {
		txHash, err := s.deployer.TransferOwnership(ctx, contract, owner)
		if pending, ok := chain.PendingTxHash(err); ok {
			log.Printf("[orchestrator] attempt %s: transferOwnership %s not acknowledged, awaiting it", attempt.ID, pending.Hex())
			txHash, err = pending, nil
		}
		if err != nil {
			return s.fail(ctx, attempt, models.StepOwnershipTransferred, err)
		}
		if txHash != (common.Hash{}) {
			attempt.OwnershipTxHash = txHash.Hex()
			if err := s.checkpoint(ctx, attempt); err != nil {
				return err
			}
		}
	}

	var txHash common.Hash
	if attempt.OwnershipTxHash != "" {
		txHash = common.HexToHash(attempt.OwnershipTxHash)
	}
	if err := s.deployer.ConfirmOwnership(ctx, contract, txHash, owner); err != nil {
		if chain.IsDropped(err) {
			attempt.OwnershipTxHash = ""
		}
		return s.fail(ctx, attempt, models.StepOwnershipTransferred, err)
	}
	return s.advance(ctx, attempt, models.StepOwnershipTransferred)
}

func (s *orchestratorService) registerCommitments(ctx context.Context, attempt *models.DeploymentAttempt, resumed bool) error {
	contract := common.HexToAddress(attempt.ContractAddress)
	commitments := make([]common.Hash, len(attempt.Commitments))
	for i, c := range attempt.Commitments {
		commitments[i] = common.HexToHash(c)
	}

	if attempt.PendingTxHash != "" {
		err := s.registrar.AwaitPending(ctx, common.HexToHash(attempt.PendingTxHash))
		if err != nil && !chain.IsDropped(err) {
			return s.fail(ctx, attempt, models.StepCommitmentsRegistered, err)
		}
		attempt.PendingTxHash = ""
	}

	_, err := s.registrar.Register(ctx, RegisterRequest{
		Contract:    contract,
		Commitments: commitments,
		Resume:      resumed || len(attempt.RegistrationTxHashes) > 0,
		OnSubmitted: func(txHash common.Hash) error {
			attempt.RegistrationTxHashes = append(attempt.RegistrationTxHashes, txHash.Hex())
			attempt.PendingTxHash = txHash.Hex()
			return s.checkpoint(ctx, attempt)
		},
	})
	if err != nil {
		if chain.IsDropped(err) {
			attempt.PendingTxHash = ""
		}
		return s.fail(ctx, attempt, models.StepCommitmentsRegistered, err)
	}
	return s.advance(ctx, attempt, models.StepCommitmentsRegistered)
}

func (s *orchestratorService) persist(ctx context.Context, attempt *models.DeploymentAttempt, req models.DeploymentRequest) error {
	wei, err := utils.EtherToWei(req.MintPrice)
	if err != nil {
		return err
	}

	return s.retry(ctx, func() error {
		collection := &models.Collection{
			Address:          attempt.ContractAddress,
			UserID:           attempt.UserID,
			OwnerAddress:     req.OwnerAddress,
			CollectionType:   req.CollectionType,
			Name:             req.Name,
			Symbol:           req.Symbol,
			Description:      req.Description,
			BaseURI:          req.MetadataURI,
			ImageURI:         req.ImageURI,
			MaxSupply:        req.MaxSupply,
			MintPrice:        wei,
			RoyaltyRecipient: req.RoyaltyRecipient,
			RoyaltyBps:       req.RoyaltyBps,
			Active:           true,
			DeployTxHash:     attempt.DeployTxHash,
			AttemptID:        attempt.ID,
		}
		if cid, ok := utils.ExtractCID(req.MetadataURI); ok {
			collection.CID = &cid
		}
		return s.ledger.RecordCollection(ctx, collection, NewRedemptionCodes(attempt.ContractAddress, attempt.Codes))
	})
}

func (s *orchestratorService) debit(ctx context.Context, attempt *models.DeploymentAttempt) error {
	if s.cfg.CreditCost <= 0 {
		balance, err := s.credits.GetBalance(ctx, attempt.UserID)
		if err != nil {
			return err
		}
		attempt.NewCreditBalance = &balance
		return nil
	}

	balance, err := s.credits.Debit(ctx, attempt.UserID, s.cfg.CreditCost, CreditReasonDeployment, "deployment:"+attempt.ID)
	if err != nil {
		return err
	}
	attempt.CreditsDeducted = true
	attempt.NewCreditBalance = &balance
	return nil
}

// advance records a completed step. A failed save is logged, not returned.
func (s *orchestratorService) advance(ctx context.Context, attempt *models.DeploymentAttempt, step models.DeploymentStep) error {
	attempt.Step = step
	attempt.PendingTxHash = ""
	if err := s.checkpoint(ctx, attempt); err != nil {
		return err
	}
	s.notify(ctx, step, *attempt)
	return nil
}

// checkpoint saves progress. Only a lost lease stops the run; other save
// failures are logged and the step is redone from chain state on resume.
func (s *orchestratorService) checkpoint(ctx context.Context, attempt *models.DeploymentAttempt) error {
	err := s.save(ctx, attempt)
	if errors.Is(err, errLeaseLost) {
		return err
	}
	if err != nil {
		log.Printf("[orchestrator] INCIDENT attempt %s at %s could not be saved: %v", attempt.ID, attempt.Step, err)
	}
	return nil
}

func (s *orchestratorService) fail(ctx context.Context, attempt *models.DeploymentAttempt, step models.DeploymentStep, err error) error {
	if errors.Is(err, errLeaseLost) {
		return err
	}
	failed := step
	attempt.FailedStep = &failed
	attempt.LastError = err.Error()
	attempt.LastErrorKind = string(apperrors.KindOf(err))
	attempt.LastErrorCode = apperrors.CodeOf(err)
	attempt.Retryable = apperrors.IsRetryable(err) || errors.Is(err, apperrors.ErrInsufficientCredit)
	if txHash, ok := chain.PendingTxHash(err); ok {
		attempt.PendingTxHash = txHash.Hex()
	}

	if apperrors.KindOf(err) == apperrors.KindInvariantViolation {
		log.Printf("[orchestrator] INCIDENT attempt %s failed at %s: %v", attempt.ID, step, err)
	} else {
		log.Printf("[orchestrator] attempt %s failed at %s (retryable=%t): %v", attempt.ID, step, attempt.Retryable, err)
	}

	_ = s.save(ctx, attempt)
	s.notify(ctx, models.StepFailed, *attempt)

	return &DeploymentError{
		AttemptID:         attempt.ID,
		FailedStep:        step,
		CollectionAddress: attempt.ContractAddress,
		Retryable:         attempt.Retryable,
		Err:               err,
	}
}

func (s *orchestratorService) recordLagging(ctx context.Context, attempt *models.DeploymentAttempt, err error) {
	attempt.LastError = err.Error()
	attempt.LastErrorKind = string(apperrors.KindOf(err))
	attempt.LastErrorCode = apperrors.CodeOf(err)
	attempt.Retryable = true
	_ = s.save(ctx, attempt)
}

// save writes the attempt and renews its lease. It fails with a conflict when
// another worker has taken the lease over.
func (s *orchestratorService) save(ctx context.Context, attempt *models.DeploymentAttempt) error {
	err := s.retry(ctx, func() error {
		until := time.Now().UTC().Add(s.cfg.LeaseDuration)
		attempt.LeaseOwner = s.owner
		attempt.LeaseUntil = &until

		res := s.db.WithContext(ctx).Model(attempt).
			Where("lease_owner = ?", s.owner).
			Select("*").
			Updates(attempt)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errLeaseLost
		}
		return nil
	})
	if errors.Is(err, errLeaseLost) {
		log.Printf("[orchestrator] lost the lease on attempt %s", attempt.ID)
		return err
	}
	if err != nil {
		log.Printf("[orchestrator] failed to save attempt %s: %v", attempt.ID, err)
		return persistenceError("failed to save deployment attempt", err)
	}
	return nil
}

// retry runs fn up to PersistRetries times with doubling backoff. Errors that
// repeating cannot fix are returned at once.
func (s *orchestratorService) retry(ctx context.Context, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.PersistBackoff
	policy.RandomizationFactor = 0
	policy.Multiplier = 2
	policy.MaxElapsedTime = 0

	var last error
	err := backoff.Retry(func() error {
		last = fn()
		if last == nil {
			return nil
		}
		kind := apperrors.KindOf(last)
		if kind != apperrors.KindPersistenceTransient && kind != apperrors.KindInternal {
			return backoff.Permanent(last)
		}
		return last
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.cfg.PersistRetries-1)), ctx))

	if err != nil && ctx.Err() != nil && last != nil && !errors.Is(err, last) {
		return errors.Join(last, err)
	}
	return err
}

func (s *orchestratorService) notify(ctx context.Context, step models.DeploymentStep, attempt models.DeploymentAttempt) {
	if s.hooks == nil {
		return
	}
	if err := s.hooks.OnStepCompleted(ctx, step, attempt); err != nil {
		log.Printf("[orchestrator] hook failed for attempt %s at %s: %v", attempt.ID, step, err)
	}
}

func (s *orchestratorService) result(attempt *models.DeploymentAttempt) *DeploymentResult {
	status := DeploymentStatusInProgress
	switch attempt.Step {
	case models.StepCompleted:
		status = DeploymentStatusCompleted
	case models.StepPersisted:
		status = DeploymentStatusRecordedCreditPending
	case models.StepCommitmentsRegistered:
		status = DeploymentStatusDeployedNotRecorded
	}

	result := &DeploymentResult{
		Success:           true,
		AttemptID:         attempt.ID,
		Status:            status,
		CollectionAddress: attempt.ContractAddress,
		Codes:             []string(attempt.Codes),
		TransactionHash:   attempt.DeployTxHash,
		NewCreditBalance:  attempt.NewCreditBalance,
	}
	if attempt.CreditsDeducted {
		result.CreditsDeducted = s.cfg.CreditCost
	}
	return result
}

func storedFailure(attempt *models.DeploymentAttempt) error {
	return &DeploymentError{
		AttemptID:         attempt.ID,
		FailedStep:        *attempt.FailedStep,
		CollectionAddress: attempt.ContractAddress,
		Retryable:         attempt.Retryable,
		Err:               apperrors.New(apperrors.Kind(attempt.LastErrorKind), attempt.LastErrorCode, attempt.LastError),
	}
}
