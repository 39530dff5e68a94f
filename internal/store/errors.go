package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Sentinel errors for the store package.
var (
	ErrUnsupportedDriver = errors.New("unsupported database driver")

	// ErrMigrationFailed is returned by Ping when the store is reachable
	// but pending migrations could not be applied.
	ErrMigrationFailed = errors.New("schema migration failed")
)

// SQLSTATE codes used when translating driver and transport failures.
const (
	// CodeConnectionFailure is reported when an established session breaks.
	CodeConnectionFailure = "08006"

	// CodeUnableToConnect is reported when no session could be established.
	CodeUnableToConnect = "08001"

	// CodeConnectionDoesNotExist is reported for use of a closed pool.
	CodeConnectionDoesNotExist = "08003"

	// CodeInternal is reported for driver failures without a SQLSTATE.
	CodeInternal = "XX000"

	connectionClass = "08"
)

// Error is a store failure carrying a SQLSTATE code. Driver errors are
// wrapped so the original cause stays reachable through errors.As.
type Error struct {
	Op   string
	Code string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s failed (sqlstate %s): %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// SQLState returns the five-character SQLSTATE code.
func (e *Error) SQLState() string {
	return e.Code
}

// sqlStater is implemented by errors that expose a SQLSTATE code.
type sqlStater interface {
	SQLState() string
}

// IsConnectionError reports whether any error in err's tree carries a
// SQLSTATE in the connection exception class (08xxx).
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == connectionClass {
		return true
	}
	if s, ok := err.(sqlStater); ok && strings.HasPrefix(s.SQLState(), connectionClass) {
		return true
	}

	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return IsConnectionError(u.Unwrap())
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if IsConnectionError(e) {
				return true
			}
		}
	}
	return false
}

// translate wraps a driver error in an *Error with a SQLSTATE code.
// Transport failures that drivers report without a code are mapped to the
// connection exception class.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}

	var storeErr *Error
	if errors.As(err, &storeErr) {
		return err
	}

	return &Error{Op: op, Code: classify(err), Err: err}
}

func classify(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_CANTOPEN:
			return CodeUnableToConnect
		case sqlite3.SQLITE_IOERR, sqlite3.SQLITE_NOTADB:
			return CodeConnectionFailure
		}
		return CodeInternal
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return CodeUnableToConnect
	}

	switch {
	case errors.Is(err, sql.ErrConnDone):
		return CodeConnectionDoesNotExist
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, context.DeadlineExceeded):
		return CodeConnectionFailure
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return CodeConnectionFailure
	}

	// "sql: database is closed" is not exported as a sentinel.
	if strings.Contains(err.Error(), "database is closed") {
		return CodeConnectionDoesNotExist
	}

	return CodeInternal
}
