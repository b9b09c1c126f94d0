package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/cardify-mcp/internal/apperrors"
	"github.com/rxtech-lab/cardify-mcp/internal/chain"
	"github.com/rxtech-lab/cardify-mcp/internal/models"
	"github.com/rxtech-lab/cardify-mcp/internal/utils"
)

var requestValidator = validator.New()

// NormalizeDeploymentRequest validates req and returns its canonical form:
// trimmed strings, lower-cased addresses, an ipfs:// base URI, a collection
// type and a royalty recipient.
func NormalizeDeploymentRequest(req models.DeploymentRequest, defaultKind chain.CollectionKind, maxCodes int) (models.DeploymentRequest, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Symbol = strings.TrimSpace(req.Symbol)
	req.Description = strings.TrimSpace(req.Description)
	req.MetadataURI = strings.TrimSpace(req.MetadataURI)
	req.ImageURI = strings.TrimSpace(req.ImageURI)
	req.MintPrice = strings.TrimSpace(req.MintPrice)
	req.OwnerAddress = strings.TrimSpace(req.OwnerAddress)
	req.RoyaltyRecipient = strings.TrimSpace(req.RoyaltyRecipient)

	if err := requestValidator.Struct(req); err != nil {
		return req, apperrors.Wrap(apperrors.KindValidation, apperrors.CodeInvalidRequest, "invalid deployment request", err)
	}
	if maxCodes > 0 && req.MaxSupply > maxCodes {
		return req, apperrors.Validation(apperrors.CodeInvalidCount, fmt.Sprintf("maxSupply must not exceed %d", maxCodes))
	}
	if _, err := utils.EtherToWei(req.MintPrice); err != nil {
		return req, apperrors.Wrap(apperrors.KindValidation, apperrors.CodeInvalidRequest, "invalid mintPrice", err)
	}

	if req.CollectionType == "" {
		req.CollectionType = defaultKind
	}
	if !req.CollectionType.Valid() {
		return req, apperrors.Validation(apperrors.CodeInvalidRequest, fmt.Sprintf("unsupported collectionType %q", req.CollectionType))
	}

	req.OwnerAddress = utils.NormalizeAddress(req.OwnerAddress)
	if req.RoyaltyRecipient == "" {
		req.RoyaltyRecipient = req.OwnerAddress
	} else {
		req.RoyaltyRecipient = utils.NormalizeAddress(req.RoyaltyRecipient)
	}
	req.MetadataURI = utils.ToIpfsBaseURI(req.MetadataURI)

	return req, nil
}

// Fingerprint derives an idempotency key from the caller and the canonical request
func Fingerprint(userID string, req models.DeploymentRequest) string {
	payload, _ := json.Marshal(req)
	sum := sha256.Sum256(append([]byte(userID+"\n"), payload...))
	return "fp:" + hex.EncodeToString(sum[:])
}

// scopedKey keeps caller-supplied keys from colliding across users
func scopedKey(userID, key string) string {
	sum := sha256.Sum256([]byte(userID + "\n" + key))
	return "key:" + hex.EncodeToString(sum[:])
}

func deployParams(req models.DeploymentRequest) (DeployParams, error) {
	wei, err := utils.EtherToWei(req.MintPrice)
	if err != nil {
		return DeployParams{}, apperrors.Wrap(apperrors.KindValidation, apperrors.CodeInvalidRequest, "invalid mintPrice", err)
	}
	return DeployParams{
		Kind:             req.CollectionType,
		Name:             req.Name,
		Symbol:           req.Symbol,
		Description:      req.Description,
		BaseURI:          req.MetadataURI,
		MaxSupply:        req.MaxSupply,
		MintPrice:        utils.WeiToBig(wei),
		RoyaltyRecipient: common.HexToAddress(req.RoyaltyRecipient),
		RoyaltyBps:       uint16(req.RoyaltyBps),
	}, nil
}
