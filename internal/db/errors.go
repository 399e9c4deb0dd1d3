package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a requested record is not found.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey is returned when a review request for the same CDN
	// URL already exists. This is the sole dedup mechanism for duplicate
	// source events and is benign for callers.
	ErrDuplicateKey = errors.New("duplicate key violation")

	// ErrConflict is returned when a status transition is attempted on a
	// request that is no longer pending.
	ErrConflict = errors.New("request already decided")
)

// ConflictError reports a rejected status transition along with the decision
// that already stands.
type ConflictError struct {
	Status     string
	ReviewedBy string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("request already %s by %s", e.Status, e.ReviewedBy)
}

// Is makes ConflictError match ErrConflict with errors.Is.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// WrapError wraps database errors with operation context and maps them to
// sentinel error types.
func WrapError(err error, operation string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", operation, ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" { // unique_violation
			return fmt.Errorf("%s: %w (constraint: %s)", operation, ErrDuplicateKey, pgErr.ConstraintName)
		}
		return fmt.Errorf("%s: database error [%s]: %w", operation, pgErr.Code, err)
	}

	return fmt.Errorf("%s: %w", operation, err)
}

// IsNotFound returns true if the error is an ErrNotFound error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateKey returns true if the error is an ErrDuplicateKey error.
func IsDuplicateKey(err error) bool {
	return errors.Is(err, ErrDuplicateKey)
}

// IsConflict returns true if the error is an ErrConflict error.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
