package models

import (
	"time"

	"github.com/rxtech-lab/cardify-mcp/internal/chain"
	"github.com/shopspring/decimal"
)

// Collection is a deployed NFT collection whose codes are registered on-chain
type Collection struct {
	Address          string               `gorm:"primaryKey;type:varchar(42)" json:"address"`
	UserID           string               `gorm:"index;type:varchar(255);not null" json:"user_id"`
	OwnerAddress     string               `gorm:"index;type:varchar(42);not null" json:"owner_address"`
	CollectionType   chain.CollectionKind `gorm:"type:varchar(16);not null" json:"collection_type"`
	Name             string               `gorm:"not null" json:"name"`
	Symbol           string               `gorm:"not null" json:"symbol"`
	Description      string               `json:"description"`
	BaseURI          string               `gorm:"not null" json:"base_uri"`
	ImageURI         string               `json:"image_uri,omitempty"`
	CID              *string              `gorm:"column:cid" json:"cid,omitempty"`
	MaxSupply        int                  `gorm:"not null" json:"max_supply"`
	MintPrice        decimal.Decimal      `gorm:"type:decimal(78,0);not null;default:0" json:"mint_price"`
	RoyaltyRecipient string               `gorm:"type:varchar(42)" json:"royalty_recipient"`
	RoyaltyBps       int                  `gorm:"not null;default:0" json:"royalty_bps"`
	Active           bool                 `gorm:"not null;default:true" json:"active"`
	DeployTxHash     string               `gorm:"type:varchar(66)" json:"deploy_tx_hash"`
	AttemptID        string               `gorm:"index;type:varchar(36)" json:"attempt_id"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// RedemptionCode is a one-time code belonging to a collection
type RedemptionCode struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	CollectionAddress string     `gorm:"uniqueIndex:idx_collection_code;type:varchar(42);not null" json:"collection_address"`
	Code              string     `gorm:"uniqueIndex:idx_collection_code;type:varchar(64);not null" json:"code"`
	Hash              string     `gorm:"index;type:varchar(66);not null" json:"hash"`
	Used              bool       `gorm:"not null;default:false" json:"used"`
	UsedBy            *string    `gorm:"type:varchar(255)" json:"used_by,omitempty"`
	UsedAt            *time.Time `json:"used_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (RedemptionCode) TableName() string {
	return "collection_codes"
}

// CodeSummary is the owner-facing view of a code
type CodeSummary struct {
	Code   string     `json:"code"`
	Hash   string     `json:"hash"`
	Used   bool       `json:"used"`
	UsedBy *string    `json:"usedBy,omitempty"`
	UsedAt *time.Time `json:"usedAt,omitempty"`
}

func (c RedemptionCode) Summary() CodeSummary {
	return CodeSummary{
		Code:   c.Code,
		Hash:   c.Hash,
		Used:   c.Used,
		UsedBy: c.UsedBy,
		UsedAt: c.UsedAt,
	}
}
