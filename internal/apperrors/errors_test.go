package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := Wrap(KindChainFatal, CodeTransactionReverted, "deploy collection", errors.New("status 0"))
	wrapped := fmt.Errorf("step contract_deployed: %w", err)

	assert.True(t, errors.Is(wrapped, ErrTransactionReverted))
	assert.False(t, errors.Is(wrapped, ErrTransactionTimedOut))
	assert.Equal(t, KindChainFatal, KindOf(wrapped))
	assert.Equal(t, CodeTransactionReverted, CodeOf(wrapped))
	assert.Contains(t, err.Error(), "status 0")
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, "", CodeOf(errors.New("boom")))
	assert.False(t, IsRetryable(errors.New("boom")))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", ErrTransactionTimedOut, true},
		{"insufficient funds", ErrInsufficientFunds, true},
		{"persistence", ErrPersistenceUnavailable, true},
		{"in progress", ErrAttemptInProgress, true},
		{"reverted", ErrTransactionReverted, false},
		{"validation", ErrInvalidCount, false},
		{"invariant", ErrEventNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrInvalidCount, http.StatusBadRequest},
		{Authorization(CodeUnauthenticated, "missing token"), http.StatusUnauthorized},
		{ErrInsufficientCredit, http.StatusForbidden},
		{ErrCodeNotFoundOrAlreadyUsed, http.StatusNotFound},
		{ErrAttemptInProgress, http.StatusConflict},
		{ErrTransactionTimedOut, http.StatusServiceUnavailable},
		{ErrTransactionReverted, http.StatusBadGateway},
		{ErrEventNotFound, http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
}
