package store

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind buckets errors into the taxonomy handlers act on. Task endpoints turn
// Transient into HTTP 500 (queue retries) and everything else into a
// terminal-shaped 200; dashboard endpoints map kinds to status codes.
type Kind int

const (
	KindUnknown Kind = iota
	KindConflict
	KindTransient
	KindInvariant
)

// SQLSTATE classes we care about.
const (
	codeUniqueViolation    = "23505"
	codeExclusionViolation = "23P01"
	codeCheckViolation     = "23514"
	codeSerializationFail  = "40001"
	codeDeadlockDetected   = "40P01"
)

// Classify maps a database error to its taxonomy bucket.
//
// An exclusion or check violation reaching runtime means the application
// layer let a conflicting write through; callers must treat KindInvariant as
// an operational-critical signal, not a user error.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return KindConflict
		case codeExclusionViolation, codeCheckViolation:
			return KindInvariant
		case codeSerializationFail, codeDeadlockDetected:
			return KindTransient
		}
		return KindUnknown
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindUnknown
}

// IsUniqueViolation reports whether err is a unique-constraint hit,
// optionally on a specific named constraint. Replayed writes land here and
// are treated as success, never as a 500.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != codeUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// IsExclusionViolation reports whether err is an exclusion-constraint hit.
func IsExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeExclusionViolation
}
