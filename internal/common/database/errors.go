package database

import (
	"context"
	"io"
	"net"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/pkg/errors"
)

// IsNetworkError returns true if the error is (or wraps) a network-level
// failure, e.g., a dropped connection to the database.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// IsRetryablePostgresError returns true for postgres errors that are transient
// and may succeed if the statement is simply executed again.
func IsRetryablePostgresError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.DeadlockDetected,
			pgerrcode.SerializationFailure,
			pgerrcode.ConnectionException,
			pgerrcode.ConnectionDoesNotExist,
			pgerrcode.ConnectionFailure,
			pgerrcode.CannotConnectNow,
			pgerrcode.AdminShutdown,
			pgerrcode.CrashShutdown,
			pgerrcode.TooManyConnections:
			return true
		}
	}
	return false
}
