package services

import (
	"context"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rxtech-lab/cardify-mcp/internal/apperrors"
	"github.com/rxtech-lab/cardify-mcp/internal/codes"
	"github.com/rxtech-lab/cardify-mcp/internal/utils"
)

// Verification issues
const (
	IssueHashMismatch  = "hash_mismatch"
	IssueNotRegistered = "not_registered"
)

// CodeIssue describes a stored code that does not match the chain
type CodeIssue struct {
	Code  string `json:"code"`
	Hash  string `json:"hash"`
	Issue string `json:"issue"`
}

// VerificationReport compares stored codes with the collection's on-chain registry
type VerificationReport struct {
	CollectionAddress string      `json:"collectionAddress"`
	Total             int         `json:"total"`
	Registered        int         `json:"registered"`
	UsedOnChain       int         `json:"usedOnChain"`
	UsedInLedger      int         `json:"usedInLedger"`
	Issues            []CodeIssue `json:"issues"`
}

// OK reports whether every stored code is committed correctly on-chain
func (r *VerificationReport) OK() bool {
	return len(r.Issues) == 0
}

type VerifierService interface {
	VerifyCollection(ctx context.Context, collectionAddress string) (*VerificationReport, error)
}

type verifierService struct {
	ledger    LedgerService
	registrar RegistrarService
}

func NewVerifierService(ledger LedgerService, registrar RegistrarService) VerifierService {
	return &verifierService{
		ledger:    ledger,
		registrar: registrar,
	}
}

func (s *verifierService) VerifyCollection(ctx context.Context, collectionAddress string) (*VerificationReport, error) {
	if !utils.IsValidEthereumAddress(collectionAddress) {
		return nil, apperrors.Validation(apperrors.CodeInvalidRequest, "invalid collection address")
	}

	stored, err := s.ledger.ListCodes(ctx, collectionAddress, nil)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, apperrors.NotFound(apperrors.CodeCollectionNotFound, "collection has no stored codes")
	}

	contract := common.HexToAddress(collectionAddress)
	report := &VerificationReport{
		CollectionAddress: utils.NormalizeAddress(collectionAddress),
		Total:             len(stored),
		Issues:            []CodeIssue{},
	}

	for _, row := range stored {
		if row.Used {
			report.UsedInLedger++
		}

		commitment := common.HexToHash(row.Hash)
		if !codes.Verify(row.Code, commitment) {
			report.Issues = append(report.Issues, CodeIssue{Code: row.Code, Hash: row.Hash, Issue: IssueHashMismatch})
			continue
		}

		valid, used, err := s.registrar.Status(ctx, contract, commitment)
		if err != nil {
			return nil, fmt.Errorf("failed to read code status: %w", err)
		}
		if used {
			report.UsedOnChain++
		}
		if valid || used {
			report.Registered++
			continue
		}
		report.Issues = append(report.Issues, CodeIssue{Code: row.Code, Hash: row.Hash, Issue: IssueNotRegistered})
	}

	if !report.OK() {
		log.Printf("[verifier] %s: %d of %d codes failed verification", report.CollectionAddress, len(report.Issues), report.Total)
	}
	return report, nil
}
