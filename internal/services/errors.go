package services

import (
	"errors"

	"github.com/rxtech-lab/cardify-mcp/internal/apperrors"
	"gorm.io/gorm"
)

// persistenceError tags database failures as transient unless they already carry a kind
func persistenceError(message string, err error) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.Wrap(apperrors.KindPersistenceTransient, apperrors.CodePersistenceUnavailable, message, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
