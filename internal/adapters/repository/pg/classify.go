package pg

import (
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"botfleet/internal/core/retry"
)

// Classify sorts a database failure into retryable transient infrastructure
// (serialization failure, deadlock, lock timeout, connection reset) versus
// permanent (constraint violation, syntax error). The SQLSTATE allow-list is
// configurable; a "deadlock" substring match catches drivers that wrap the
// code away.
func Classify(err error, retryableStates []string) retry.Class {
	if err == nil {
		return retry.ClassPermanent
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		for _, code := range retryableStates {
			if pgErr.Code == code {
				return retry.ClassRetryable
			}
		}
		if strings.Contains(strings.ToLower(pgErr.Message), "deadlock") {
			return retry.ClassRetryable
		}
		return retry.ClassPermanent
	}

	if errors.Is(err, driver.ErrBadConn) {
		return retry.ClassRetryable
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "unexpected eof"):
		return retry.ClassRetryable
	}
	return retry.ClassPermanent
}
