package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors returned by the repository layer. Callers branch on
// these with errors.Is instead of inspecting driver errors directly.
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrNotFound            = errors.New("record not found")
	ErrAlreadyExists       = errors.New("record already exists")
	ErrForeignKeyViolation = errors.New("foreign key violation")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrConnectionFailed    = errors.New("database connection failed")
)

// PostgreSQL error codes this package classifies.
const (
	pgCodeUniqueViolation     = "23505"
	pgCodeForeignKeyViolation = "23503"
	pgCodeCheckViolation      = "23514"
	pgCodeNotNullViolation    = "23502"
)

// IsNotFoundError reports whether the error means no matching row,
// covering both the pgx sentinel and the package sentinel.
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, ErrNotFound)
}

// IsConstraintViolationError reports whether the error stems from a
// violated table constraint.
func IsConstraintViolationError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgCodeUniqueViolation, pgCodeForeignKeyViolation, pgCodeCheckViolation, pgCodeNotNullViolation:
			return true
		}
	}

	return errors.Is(err, ErrConstraintViolation) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrForeignKeyViolation)
}

// IsConnectionError reports whether the error stems from a lost or
// failing connection rather than from the statement itself.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		// Class 08 is connection_exception, class 57 covers shutdown
		// and operator cancellation.
		switch pgErr.Code[:2] {
		case "08", "57":
			return true
		}
	}

	return errors.Is(err, ErrConnectionFailed)
}

// sentinelFor maps a classified database error onto the package sentinel
// callers compare against. Unclassified errors map to nil.
func sentinelFor(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgCodeUniqueViolation:
			return ErrAlreadyExists
		case pgCodeForeignKeyViolation:
			return ErrForeignKeyViolation
		case pgCodeCheckViolation, pgCodeNotNullViolation:
			return ErrConstraintViolation
		}
	}

	switch {
	case IsNotFoundError(err):
		return ErrNotFound
	case IsConnectionError(err):
		return ErrConnectionFailed
	case IsConstraintViolationError(err):
		return ErrConstraintViolation
	}
	return nil
}

// WrapError attaches the failed operation to a database error, replacing
// classified causes with the matching package sentinel.
func WrapError(err error, operation string) error {
	if err == nil {
		return nil
	}
	if sentinel := sentinelFor(err); sentinel != nil {
		return fmt.Errorf("%s failed: %w", operation, sentinel)
	}
	return fmt.Errorf("%s failed: %w", operation, err)
}
