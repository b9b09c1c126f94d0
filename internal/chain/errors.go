package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rxtech-lab/cardify-mcp/internal/apperrors"
)

// PendingError marks a transaction that was submitted but whose outcome is unknown.
// Callers should poll TxHash instead of resubmitting.
type PendingError struct {
	TxHash common.Hash
	Err    error
}

func (e *PendingError) Error() string {
	return fmt.Sprintf("transaction %s pending: %v", e.TxHash.Hex(), e.Err)
}

func (e *PendingError) Unwrap() error {
	return e.Err
}

// PendingTxHash extracts the hash of an unconfirmed transaction from err
func PendingTxHash(err error) (common.Hash, bool) {
	var pe *PendingError
	if errors.As(err, &pe) {
		return pe.TxHash, true
	}
	return common.Hash{}, false
}

func timedOut(hash common.Hash, cause error) error {
	return &PendingError{
		TxHash: hash,
		Err: apperrors.Wrap(apperrors.KindChainTransient, apperrors.CodeTransactionTimedOut,
			fmt.Sprintf("transaction %s not confirmed in time", hash.Hex()), cause),
	}
}

func dropped(hash common.Hash) error {
	return fmt.Errorf("transaction %s: %w", hash.Hex(), apperrors.ErrTransactionDropped)
}

// IsDropped reports whether err says a transaction never reached the node. A
// dropped transaction can be submitted again without risking a duplicate.
func IsDropped(err error) bool {
	return errors.Is(err, apperrors.ErrTransactionDropped)
}

func reverted(hash common.Hash) error {
	return apperrors.Wrap(apperrors.KindChainFatal, apperrors.CodeTransactionReverted,
		fmt.Sprintf("transaction %s reverted", hash.Hex()), nil)
}

// rejectedBySender lists node errors that prove a transaction was not accepted
var rejectedBySender = []string{
	"insufficient funds",
	"nonce too low",
	"nonce too high",
	"underpriced",
	"revert",
	"intrinsic gas",
	"gas limit",
	"fee cap",
	"invalid sender",
}

// sendRejected reports whether a SendTransaction error is a definite refusal.
// Anything else (timeouts, dropped connections) may have left the transaction
// in the pool.
func sendRejected(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range rejectedBySender {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func alreadyKnown(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "already known")
}

// classifyError maps node errors onto the error taxonomy
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return apperrors.Wrap(apperrors.KindChainTransient, apperrors.CodeInsufficientFunds, op+": operator has insufficient funds", err)
	case strings.Contains(msg, "execution reverted"), strings.Contains(msg, "revert"):
		return apperrors.Wrap(apperrors.KindChainFatal, apperrors.CodeTransactionReverted, op+": execution reverted", err)
	case strings.Contains(msg, "nonce too low"),
		strings.Contains(msg, "nonce too high"),
		strings.Contains(msg, "already known"),
		strings.Contains(msg, "underpriced"):
		return apperrors.Wrap(apperrors.KindChainTransient, apperrors.CodeNonceConflict, op+": nonce conflict", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperrors.Wrap(apperrors.KindChainTransient, apperrors.CodeTransactionTimedOut, op+": timed out", err)
	default:
		return apperrors.Wrap(apperrors.KindChainTransient, apperrors.CodeRPCUnavailable, op+": rpc error", err)
	}
}
