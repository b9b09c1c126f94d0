package models

import (
	"time"

	"github.com/rxtech-lab/cardify-mcp/internal/chain"
	"gorm.io/datatypes"
)

// DeploymentStep is the last step an attempt completed
type DeploymentStep string

const (
	StepValidated             DeploymentStep = "validated"
	StepCodesGenerated        DeploymentStep = "codes_generated"
	StepContractDeployed      DeploymentStep = "contract_deployed"
	StepOwnershipTransferred  DeploymentStep = "ownership_transferred"
	StepCommitmentsRegistered DeploymentStep = "commitments_registered"
	StepPersisted             DeploymentStep = "persisted"
	StepCompleted             DeploymentStep = "completed"
	StepFailed                DeploymentStep = "failed"
)

var stepOrder = map[DeploymentStep]int{
	StepValidated:             0,
	StepCodesGenerated:        1,
	StepContractDeployed:      2,
	StepOwnershipTransferred:  3,
	StepCommitmentsRegistered: 4,
	StepPersisted:             5,
	StepCompleted:             6,
}

// Reached reports whether s is at or beyond target in the step sequence
func (s DeploymentStep) Reached(target DeploymentStep) bool {
	a, ok := stepOrder[s]
	if !ok {
		return false
	}
	b, ok := stepOrder[target]
	return ok && a >= b
}

// DeploymentRequest is the validated input of a collection deployment
type DeploymentRequest struct {
	Name             string               `json:"name" validate:"required,max=100"`
	Symbol           string               `json:"symbol" validate:"required,max=20"`
	Description      string               `json:"description,omitempty" validate:"max=2000"`
	MetadataURI      string               `json:"metadataUri" validate:"required"`
	ImageURI         string               `json:"imageUri,omitempty"`
	MaxSupply        int                  `json:"maxSupply" validate:"min=5,max=1000"`
	MintPrice        string               `json:"mintPrice,omitempty"`
	RoyaltyBps       int                  `json:"royaltyBps" validate:"min=0,max=10000"`
	RoyaltyRecipient string               `json:"royaltyRecipient,omitempty" validate:"omitempty,eth_addr"`
	OwnerAddress     string               `json:"ownerAddress" validate:"required,eth_addr"`
	CollectionType   chain.CollectionKind `json:"collectionType,omitempty" validate:"omitempty,oneof=erc721 erc1155"`
}

// DeploymentAttempt tracks one orchestration so it can be resumed
type DeploymentAttempt struct {
	ID                   string                                `gorm:"primaryKey;type:varchar(36)" json:"id"`
	IdempotencyKey       string                                `gorm:"uniqueIndex;type:varchar(128);not null" json:"idempotency_key"`
	UserID               string                                `gorm:"index;type:varchar(255);not null" json:"user_id"`
	Request              datatypes.JSONType[DeploymentRequest] `json:"request"`
	Step                 DeploymentStep                        `gorm:"type:varchar(32);not null;default:validated" json:"step"`
	FailedStep           *DeploymentStep                       `gorm:"type:varchar(32)" json:"failed_step,omitempty"`
	Codes                datatypes.JSONSlice[string]           `json:"-"`
	Commitments          datatypes.JSONSlice[string]           `json:"-"`
	ContractAddress      string                                `gorm:"index;type:varchar(42)" json:"contract_address,omitempty"`
	DeployTxHash         string                                `gorm:"type:varchar(66)" json:"deploy_tx_hash,omitempty"`
	OwnershipTxHash      string                                `gorm:"type:varchar(66)" json:"ownership_tx_hash,omitempty"`
	RegistrationTxHashes datatypes.JSONSlice[string]           `json:"registration_tx_hashes,omitempty"`
	PendingTxHash        string                                `gorm:"type:varchar(66)" json:"pending_tx_hash,omitempty"`
	LastError            string                                `json:"last_error,omitempty"`
	LastErrorKind        string                                `gorm:"type:varchar(32)" json:"last_error_kind,omitempty"`
	LastErrorCode        string                                `gorm:"type:varchar(64)" json:"last_error_code,omitempty"`
	Retryable            bool                                  `json:"retryable"`
	CreditsDeducted      bool                                  `gorm:"not null;default:false" json:"credits_deducted"`
	NewCreditBalance     *int64                                `json:"new_credit_balance,omitempty"`
	CompletedAt          *time.Time                            `json:"completed_at,omitempty"`
	LeaseOwner           string                                `gorm:"type:varchar(64);index" json:"-"`
	LeaseUntil           *time.Time                            `gorm:"index" json:"-"`
	CreatedAt            time.Time                             `json:"created_at"`
	UpdatedAt            time.Time                             `json:"updated_at"`
}

// Status reports StepFailed while a failure is recorded. Step itself always holds
// the last completed step so a retry knows where to resume.
func (a *DeploymentAttempt) Status() DeploymentStep {
	if a.FailedStep != nil {
		return StepFailed
	}
	return a.Step
}

func (a *DeploymentAttempt) Failed() bool {
	return a.FailedStep != nil
}
