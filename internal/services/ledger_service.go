package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/rxtech-lab/cardify-mcp/internal/apperrors"
	"github.com/rxtech-lab/cardify-mcp/internal/codes"
	"github.com/rxtech-lab/cardify-mcp/internal/models"
	"github.com/rxtech-lab/cardify-mcp/internal/utils"
	"gorm.io/gorm"
)

const codeInsertBatchSize = 200

// RedemptionResult describes a successful redemption
type RedemptionResult struct {
	CollectionAddress string    `json:"collectionAddress"`
	Code              string    `json:"code"`
	RedeemedBy        *string   `json:"redeemedBy,omitempty"`
	RedeemedAt        time.Time `json:"redeemedAt"`
}

// CodeCounts is the used/total tally of a collection's codes
type CodeCounts struct {
	Total int64 `json:"total"`
	Used  int64 `json:"used"`
}

// LedgerService owns the unused -> used state of redemption codes
type LedgerService interface {
	// RecordCollection stores a collection and its codes in one transaction.
	// Recording the same attempt twice is a no-op.
	RecordCollection(ctx context.Context, collection *models.Collection, codes []models.RedemptionCode) error
	// Redeem marks code as used. It fails with CodeNotFoundOrAlreadyUsed without
	// telling the caller which of the two applies.
	Redeem(ctx context.Context, collectionAddress, code, redeemer string) (*RedemptionResult, error)
	ListCodes(ctx context.Context, collectionAddress string, used *bool) ([]models.RedemptionCode, error)
	CountCodes(ctx context.Context, collectionAddress string) (CodeCounts, error)
	// LookupCode is the owner-facing read that does distinguish missing from used
	LookupCode(ctx context.Context, collectionAddress, code string) (*models.RedemptionCode, error)
}

type ledgerService struct {
	db *gorm.DB
}

func NewLedgerService(db *gorm.DB) LedgerService {
	return &ledgerService{db: db}
}

func (s *ledgerService) RecordCollection(ctx context.Context, collection *models.Collection, redemptionCodes []models.RedemptionCode) error {
	if collection == nil || !utils.IsValidEthereumAddress(collection.Address) {
		return apperrors.Validation(apperrors.CodeInvalidRequest, "collection address is invalid")
	}
	collection.Address = utils.NormalizeAddress(collection.Address)
	if collection.OwnerAddress != "" {
		collection.OwnerAddress = utils.NormalizeAddress(collection.OwnerAddress)
	}
	if collection.RoyaltyRecipient != "" {
		collection.RoyaltyRecipient = utils.NormalizeAddress(collection.RoyaltyRecipient)
	}

	if len(redemptionCodes) > collection.MaxSupply {
		return apperrors.Invariant(apperrors.CodeSupplyExceeded,
			fmt.Sprintf("%d codes exceed max supply %d", len(redemptionCodes), collection.MaxSupply))
	}
	seen := make(map[string]struct{}, len(redemptionCodes))
	for i := range redemptionCodes {
		c := &redemptionCodes[i]
		if c.Hash != codes.Commit(c.Code).Hex() {
			return apperrors.Invariant(apperrors.CodeCommitmentMismatch,
				fmt.Sprintf("stored hash of code %d does not match its commitment", i))
		}
		if _, dup := seen[c.Code]; dup {
			return apperrors.Invariant(apperrors.CodeCommitmentMismatch, fmt.Sprintf("code %d is duplicated", i))
		}
		seen[c.Code] = struct{}{}
		c.CollectionAddress = collection.Address
		c.Used = false
		c.UsedBy = nil
		c.UsedAt = nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Collection
		err := tx.Where("address = ?", collection.Address).First(&existing).Error
		if err == nil {
			if existing.AttemptID != "" && existing.AttemptID == collection.AttemptID {
				return nil
			}
			return apperrors.Conflict(apperrors.CodeCollectionExists, "collection is already recorded by another attempt")
		}
		if !isNotFound(err) {
			return err
		}

		if err := tx.Create(collection).Error; err != nil {
			return err
		}
		if len(redemptionCodes) == 0 {
			return nil
		}
		return tx.CreateInBatches(redemptionCodes, codeInsertBatchSize).Error
	})
	if err != nil {
		return persistenceError("failed to record collection", err)
	}

	log.Printf("[ledger] recorded collection %s with %d codes", collection.Address, len(redemptionCodes))
	return nil
}

func (s *ledgerService) Redeem(ctx context.Context, collectionAddress, code, redeemer string) (*RedemptionResult, error) {
	code = codes.Normalize(code)
	if code == "" || strings.TrimSpace(collectionAddress) == "" {
		return nil, apperrors.Validation(apperrors.CodeInvalidRequest, "collectionAddress and code are required")
	}
	if !utils.IsValidEthereumAddress(collectionAddress) {
		return nil, apperrors.ErrCodeNotFoundOrAlreadyUsed
	}
	address := utils.NormalizeAddress(collectionAddress)

	var usedBy *string
	if redeemer = strings.TrimSpace(redeemer); redeemer != "" {
		usedBy = &redeemer
	}
	now := time.Now().UTC()

	result := s.db.WithContext(ctx).
		Model(&models.RedemptionCode{}).
		Where("collection_address = ? AND code = ? AND used = ?", address, code, false).
		Updates(map[string]interface{}{
			"used":    true,
			"used_by": usedBy,
			"used_at": now,
		})
	if result.Error != nil {
		return nil, persistenceError("failed to redeem code", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, apperrors.ErrCodeNotFoundOrAlreadyUsed
	}

	return &RedemptionResult{
		CollectionAddress: address,
		Code:              code,
		RedeemedBy:        usedBy,
		RedeemedAt:        now,
	}, nil
}

func (s *ledgerService) ListCodes(ctx context.Context, collectionAddress string, used *bool) ([]models.RedemptionCode, error) {
	query := s.db.WithContext(ctx).Where("collection_address = ?", utils.NormalizeAddress(collectionAddress))
	if used != nil {
		query = query.Where("used = ?", *used)
	}

	var result []models.RedemptionCode
	if err := query.Order("created_at DESC, id ASC").Find(&result).Error; err != nil {
		return nil, persistenceError("failed to list codes", err)
	}
	return result, nil
}

func (s *ledgerService) CountCodes(ctx context.Context, collectionAddress string) (CodeCounts, error) {
	var counts CodeCounts
	address := utils.NormalizeAddress(collectionAddress)

	db := s.db.WithContext(ctx).Model(&models.RedemptionCode{})
	if err := db.Where("collection_address = ?", address).Count(&counts.Total).Error; err != nil {
		return CodeCounts{}, persistenceError("failed to count codes", err)
	}
	db = s.db.WithContext(ctx).Model(&models.RedemptionCode{})
	if err := db.Where("collection_address = ? AND used = ?", address, true).Count(&counts.Used).Error; err != nil {
		return CodeCounts{}, persistenceError("failed to count used codes", err)
	}
	return counts, nil
}

func (s *ledgerService) LookupCode(ctx context.Context, collectionAddress, code string) (*models.RedemptionCode, error) {
	var result models.RedemptionCode
	err := s.db.WithContext(ctx).
		Where("collection_address = ? AND code = ?", utils.NormalizeAddress(collectionAddress), codes.Normalize(code)).
		First(&result).Error
	if isNotFound(err) {
		return nil, apperrors.NotFound(apperrors.CodeCodeNotFoundOrAlreadyUsed, "code not found")
	}
	if err != nil {
		return nil, persistenceError("failed to look up code", err)
	}
	return &result, nil
}

// NewRedemptionCodes builds unsaved code rows for generated codes
func NewRedemptionCodes(collectionAddress string, plain []string) []models.RedemptionCode {
	rows := make([]models.RedemptionCode, 0, len(plain))
	for _, code := range plain {
		rows = append(rows, models.RedemptionCode{
			CollectionAddress: collectionAddress,
			Code:              code,
			Hash:              codes.Commit(code).Hex(),
		})
	}
	return rows
}
