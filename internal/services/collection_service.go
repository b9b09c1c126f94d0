package services

import (
	"context"
	"strings"

	"github.com/rxtech-lab/cardify-mcp/internal/apperrors"
	"github.com/rxtech-lab/cardify-mcp/internal/models"
	"github.com/rxtech-lab/cardify-mcp/internal/utils"
	"gorm.io/gorm"
)

// ActivationUpdate changes the mutable fields of a collection. A nil Active
// activates the collection.
type ActivationUpdate struct {
	Active *bool
	CID    *string
}

type CollectionService interface {
	GetCollection(ctx context.Context, address string) (*models.Collection, error)
	ListCollectionsByOwner(ctx context.Context, ownerAddress string) ([]models.Collection, error)
	ListCollectionsByUser(ctx context.Context, userID string) ([]models.Collection, error)
	UpdateActivation(ctx context.Context, address string, update ActivationUpdate) (*models.Collection, error)
}

type collectionService struct {
	db *gorm.DB
}

func NewCollectionService(db *gorm.DB) CollectionService {
	return &collectionService{db: db}
}

// GetCollection returns a collection by its contract address
func (s *collectionService) GetCollection(ctx context.Context, address string) (*models.Collection, error) {
	if !utils.IsValidEthereumAddress(address) {
		return nil, apperrors.NotFound(apperrors.CodeCollectionNotFound, "collection not found")
	}

	var collection models.Collection
	err := s.db.WithContext(ctx).Where("address = ?", utils.NormalizeAddress(address)).First(&collection).Error
	if isNotFound(err) {
		return nil, apperrors.NotFound(apperrors.CodeCollectionNotFound, "collection not found")
	}
	if err != nil {
		return nil, persistenceError("failed to load collection", err)
	}
	return &collection, nil
}

// ListCollectionsByOwner returns the collections owned by a wallet, newest first
func (s *collectionService) ListCollectionsByOwner(ctx context.Context, ownerAddress string) ([]models.Collection, error) {
	if !utils.IsValidEthereumAddress(ownerAddress) {
		return nil, apperrors.Validation(apperrors.CodeInvalidRequest, "owner must be a valid address")
	}

	var collections []models.Collection
	err := s.db.WithContext(ctx).
		Where("owner_address = ?", utils.NormalizeAddress(ownerAddress)).
		Order("created_at DESC").
		Find(&collections).Error
	if err != nil {
		return nil, persistenceError("failed to list collections", err)
	}
	return collections, nil
}

// ListCollectionsByUser returns the collections deployed by a user, newest first
func (s *collectionService) ListCollectionsByUser(ctx context.Context, userID string) ([]models.Collection, error) {
	var collections []models.Collection
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&collections).Error
	if err != nil {
		return nil, persistenceError("failed to list collections", err)
	}
	return collections, nil
}

func (s *collectionService) UpdateActivation(ctx context.Context, address string, update ActivationUpdate) (*models.Collection, error) {
	collection, err := s.GetCollection(ctx, address)
	if err != nil {
		return nil, err
	}

	active := true
	if update.Active != nil {
		active = *update.Active
	}
	updates := map[string]interface{}{"active": active}
	if update.CID != nil {
		cid := strings.TrimSpace(*update.CID)
		if extracted, ok := utils.ExtractCID(cid); ok {
			cid = extracted
		}
		if cid != "" {
			updates["cid"] = cid
		}
	}

	if err := s.db.WithContext(ctx).Model(collection).Updates(updates).Error; err != nil {
		return nil, persistenceError("failed to update collection", err)
	}
	return s.GetCollection(ctx, collection.Address)
}
