package services

import (
	"errors"
	"fmt"

	"github.com/loomhouse/api/internal/repositories"
)

var (
	// ErrOrderInvalidInput indicates missing or malformed order fields.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order does not exist.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidStatus indicates a status outside the fulfillment lifecycle.
	ErrOrderInvalidStatus = errors.New("order: invalid status")
	// ErrOrderInvalidState indicates a transition the lifecycle does not allow.
	ErrOrderInvalidState = errors.New("order: invalid state transition")
	// ErrOrderConflict indicates a concurrent write collided with this one.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates the order store could not be reached.
	ErrOrderUnavailable = errors.New("order: store unavailable")
)

func mapOrderRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	return err
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
