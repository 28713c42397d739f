package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/uptrace/bun/driver/pgdriver"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type ErrorKind int

const (
	KindConnection ErrorKind = iota + 1
	KindQuery
	KindRowMapping
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindQuery:
		return "query"
	case KindRowMapping:
		return "row_mapping"
	default:
		return "unknown"
	}
}

// Error is a classified database failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return "database " + e.Kind.String() + " error: " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Classify wraps err in an *Error. Errors that cannot be attributed to a
// query or to row mapping count as connection errors.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Kind: kindOf(err), Err: err}
}

// KindOf returns the kind of a classified error, or 0.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}

func IsConnection(err error) bool { return KindOf(err) == KindConnection }

func kindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return KindQuery
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return KindConnection
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindConnection
	}

	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgKind(pgErr.Field('C'))
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_IOERR:
			return KindConnection
		case sqlite3.SQLITE_MISMATCH:
			return KindRowMapping
		default:
			return KindQuery
		}
	}

	if isMappingError(err) {
		return KindRowMapping
	}
	return KindConnection
}

// pgKind maps a SQLSTATE code.
func pgKind(code string) ErrorKind {
	switch {
	case strings.HasPrefix(code, "08"), // connection exception
		strings.HasPrefix(code, "53"), // insufficient resources
		strings.HasPrefix(code, "57P"),
		strings.HasPrefix(code, "28"): // invalid authorization
		return KindConnection
	case code == "22P02", code == "42804":
		return KindRowMapping
	default:
		return KindQuery
	}
}

func isMappingError(err error) bool {
	var jsonErr *json.UnmarshalTypeError
	if errors.As(err, &jsonErr) {
		return true
	}
	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Scan error") ||
		strings.Contains(msg, "converting") ||
		strings.Contains(msg, "invalid UUID")
}
