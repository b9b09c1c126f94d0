package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for retry decisions and HTTP mapping
type Kind string

const (
	KindValidation           Kind = "validation_error"
	KindAuthorization        Kind = "authorization_error"
	KindNotFound             Kind = "not_found"
	KindConflict             Kind = "conflict"
	KindChainTransient       Kind = "chain_transient"
	KindChainFatal           Kind = "chain_fatal"
	KindPersistenceTransient Kind = "persistence_transient"
	KindInvariantViolation   Kind = "invariant_violation"
	KindInternal             Kind = "internal"
)

// Well-known error codes
const (
	CodeInvalidCount              = "InvalidCount"
	CodeInvalidRequest            = "InvalidRequest"
	CodeUnauthenticated           = "Unauthenticated"
	CodeForbidden                 = "Forbidden"
	CodeInsufficientCredit        = "InsufficientCredit"
	CodeTransactionReverted       = "TransactionReverted"
	CodeTransactionTimedOut       = "TransactionTimedOut"
	CodeTransactionDropped        = "TransactionDropped"
	CodeInsufficientFunds         = "InsufficientFunds"
	CodeNonceConflict             = "NonceConflict"
	CodeRPCUnavailable            = "RPCUnavailable"
	CodeFactoryNotDeployed        = "FactoryNotDeployed"
	CodeEventNotFound             = "EventNotFound"
	CodeOwnerMismatch             = "OwnerMismatch"
	CodeOwnershipTransferMismatch = "OwnershipTransferMismatch"
	CodeCommitmentMismatch        = "CommitmentMismatch"
	CodeSupplyExceeded            = "SupplyExceeded"
	CodeCodeNotFoundOrAlreadyUsed = "CodeNotFoundOrAlreadyUsed"
	CodeCollectionNotFound        = "CollectionNotFound"
	CodeCollectionExists          = "CollectionExists"
	CodeAttemptNotFound           = "AttemptNotFound"
	CodeAttemptInProgress         = "AttemptInProgress"
	CodePersistenceUnavailable    = "PersistenceUnavailable"
	CodeStorageUnavailable        = "StorageUnavailable"
	CodeIdempotencyKeyReused      = "IdempotencyKeyReused"
)

// Error is the error type returned across service boundaries
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Code so sentinel values can be compared with errors.Is
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func Validation(code, message string) *Error {
	return New(KindValidation, code, message)
}

func Authorization(code, message string) *Error {
	return New(KindAuthorization, code, message)
}

func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

func Invariant(code, message string) *Error {
	return New(KindInvariantViolation, code, message)
}

// Sentinels for errors.Is comparisons
var (
	ErrInvalidCount              = Validation(CodeInvalidCount, "invalid code count")
	ErrCodeNotFoundOrAlreadyUsed = NotFound(CodeCodeNotFoundOrAlreadyUsed, "Code not found or already used")
	ErrTransactionReverted       = New(KindChainFatal, CodeTransactionReverted, "transaction reverted")
	ErrTransactionTimedOut       = New(KindChainTransient, CodeTransactionTimedOut, "transaction confirmation timed out")
	ErrTransactionDropped        = New(KindChainTransient, CodeTransactionDropped, "transaction is unknown to the node")
	ErrInsufficientFunds         = New(KindChainTransient, CodeInsufficientFunds, "operator has insufficient funds")
	ErrEventNotFound             = Invariant(CodeEventNotFound, "collection deployed event not found in receipt")
	ErrOwnerMismatch             = Invariant(CodeOwnerMismatch, "deployed collection is not owned by the operator")
	ErrOwnershipTransferMismatch = Invariant(CodeOwnershipTransferMismatch, "collection owner does not match requested owner after transfer")
	ErrInsufficientCredit        = Authorization(CodeInsufficientCredit, "Insufficient credits")
	ErrPersistenceUnavailable    = New(KindPersistenceTransient, CodePersistenceUnavailable, "persistence unavailable")
	ErrAttemptInProgress         = Conflict(CodeAttemptInProgress, "deployment attempt is already in progress")
)

// KindOf returns the kind of the first *Error in the chain, or KindInternal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first *Error in the chain
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether the operation may succeed when repeated
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindChainTransient, KindPersistenceTransient, KindConflict:
		return true
	}
	return false
}

// HTTPStatus maps an error to a response status code
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization:
		if e.Code == CodeUnauthenticated {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindChainTransient, KindPersistenceTransient:
		return http.StatusServiceUnavailable
	case KindChainFatal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
