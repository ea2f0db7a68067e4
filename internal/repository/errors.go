package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"pushfanout/internal/model"
)

// pqInvalidTextRepresentation is raised when a value does not parse as the
// column type, e.g. a user id that is not a UUID.
const pqInvalidTextRepresentation pq.ErrorCode = "22P02"

// wrapUserQueryError wraps a failed query keyed by user id. A malformed id
// cannot belong to any user, so it is reported as ErrUserNotFound instead of
// a store failure.
func wrapUserQueryError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqInvalidTextRepresentation {
		return fmt.Errorf("%s: %w: %v", op, model.ErrUserNotFound, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
