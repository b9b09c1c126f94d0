package services

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/rxtech-lab/cardify-mcp/internal/apperrors"
	"github.com/rxtech-lab/cardify-mcp/internal/models"
	"gorm.io/gorm"
)

const (
	CreditReasonGrant      = "grant"
	CreditReasonDeployment = "collection_deployment"
)

type CreditService interface {
	GetBalance(ctx context.Context, userID string) (int64, error)
	// Grant adds amount to the balance. An empty reference generates one.
	Grant(ctx context.Context, userID string, amount int64, reference string) (int64, error)
	// Debit subtracts amount once per reference and returns the balance after the debit.
	// Repeating a reference returns the current balance without charging again.
	Debit(ctx context.Context, userID string, amount int64, reason, reference string) (int64, error)
	ListTransactions(ctx context.Context, userID string) ([]models.CreditTransaction, error)
}

type creditService struct {
	db *gorm.DB
}

func NewCreditService(db *gorm.DB) CreditService {
	return &creditService{db: db}
}

func (s *creditService) GetBalance(ctx context.Context, userID string) (int64, error) {
	return balanceOf(s.db.WithContext(ctx), userID)
}

func balanceOf(db *gorm.DB, userID string) (int64, error) {
	var credit models.UserCredit
	err := db.Where("user_id = ?", userID).First(&credit).Error
	if isNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, persistenceError("failed to read credit balance", err)
	}
	return credit.Balance, nil
}

func (s *creditService) Grant(ctx context.Context, userID string, amount int64, reference string) (int64, error) {
	if userID == "" {
		return 0, apperrors.Validation(apperrors.CodeInvalidRequest, "user id is required")
	}
	if amount <= 0 {
		return 0, apperrors.Validation(apperrors.CodeInvalidRequest, "grant amount must be positive")
	}
	if reference == "" {
		reference = "grant:" + uuid.New().String()
	}

	var balance int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied, err := journalHas(tx, reference)
		if err != nil || applied {
			return err
		}

		credit := models.UserCredit{UserID: userID}
		if err := tx.Where(models.UserCredit{UserID: userID}).FirstOrCreate(&credit).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.UserCredit{}).
			Where("user_id = ?", userID).
			Update("balance", gorm.Expr("balance + ?", amount)).Error; err != nil {
			return err
		}
		return tx.Create(&models.CreditTransaction{
			UserID:    userID,
			Amount:    amount,
			Reason:    CreditReasonGrant,
			Reference: reference,
		}).Error
	})
	if err != nil {
		return 0, persistenceError("failed to grant credits", err)
	}

	if balance, err = s.GetBalance(ctx, userID); err != nil {
		return 0, err
	}
	log.Printf("[credits] granted %d to %s, balance %d", amount, userID, balance)
	return balance, nil
}

func (s *creditService) Debit(ctx context.Context, userID string, amount int64, reason, reference string) (int64, error) {
	if amount <= 0 {
		return 0, apperrors.Validation(apperrors.CodeInvalidRequest, "debit amount must be positive")
	}
	if reference == "" {
		return 0, apperrors.Validation(apperrors.CodeInvalidRequest, "debit reference is required")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied, err := journalHas(tx, reference)
		if err != nil || applied {
			return err
		}

		result := tx.Model(&models.UserCredit{}).
			Where("user_id = ? AND balance >= ?", userID, amount).
			Update("balance", gorm.Expr("balance - ?", amount))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrInsufficientCredit
		}
		return tx.Create(&models.CreditTransaction{
			UserID:    userID,
			Amount:    -amount,
			Reason:    reason,
			Reference: reference,
		}).Error
	})
	if err != nil {
		return 0, persistenceError("failed to debit credits", err)
	}
	return s.GetBalance(ctx, userID)
}

func (s *creditService) ListTransactions(ctx context.Context, userID string) ([]models.CreditTransaction, error) {
	var transactions []models.CreditTransaction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&transactions).Error
	if err != nil {
		return nil, persistenceError("failed to list credit transactions", err)
	}
	return transactions, nil
}

func journalHas(tx *gorm.DB, reference string) (bool, error) {
	var count int64
	if err := tx.Model(&models.CreditTransaction{}).Where("reference = ?", reference).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check credit journal: %w", err)
	}
	return count > 0, nil
}
