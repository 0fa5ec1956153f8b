package metrics

import (
	"context"
	"errors"

	billingapidomain "github.com/smallbiznis/revlens/internal/billingapi/domain"
	"github.com/smallbiznis/revlens/pkg/db"
)

const (
	ErrorTypeDeadlineExceeded     = "deadline_exceeded"
	ErrorTypeAuthentication       = "authentication"
	ErrorTypeRateLimited          = "rate_limited"
	ErrorTypeTransport            = "transport"
	ErrorTypeDBLockTimeout        = "db_lock_timeout"
	ErrorTypeSerializationFailure = "serialization_failure"
	ErrorTypeUniqueViolation      = "unique_violation"
	ErrorTypeDB                   = "db"
	ErrorTypeUnknown              = "unknown"
)

// ClassifyError maps a sync or job failure onto a low-cardinality label.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorTypeDeadlineExceeded
	case errors.Is(err, billingapidomain.ErrAuthentication):
		return ErrorTypeAuthentication
	case errors.Is(err, billingapidomain.ErrRateLimited):
		return ErrorTypeRateLimited
	case errors.Is(err, billingapidomain.ErrTransport):
		return ErrorTypeTransport
	case db.IsDuplicateKeyErr(err):
		return ErrorTypeUniqueViolation
	}

	switch db.PgCode(err) {
	case "":
		return ErrorTypeUnknown
	case db.PgLockNotAvailable:
		return ErrorTypeDBLockTimeout
	case db.PgSerializationFailure, db.PgDeadlockDetected:
		return ErrorTypeSerializationFailure
	default:
		return ErrorTypeDB
	}
}

// IsRetryable reports whether the next sweep is likely to succeed where this
// attempt failed.
func IsRetryable(err error) bool {
	switch ClassifyError(err) {
	case ErrorTypeDeadlineExceeded, ErrorTypeRateLimited, ErrorTypeTransport,
		ErrorTypeDBLockTimeout, ErrorTypeSerializationFailure:
		return true
	default:
		return false
	}
}
