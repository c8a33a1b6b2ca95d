package postgres

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/threadloom/api/internal/repositories"
)

// wrapError annotates pgx failures with repository semantics. Context
// cancellations pass through untouched so callers can detect them.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repositories.NewNotFound(op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505": // unique_violation
			return repositories.NewConflict(op, err)
		case strings.HasPrefix(pgErr.Code, "23"): // other integrity violations
			return repositories.NewConflict(op, err)
		case strings.HasPrefix(pgErr.Code, "08"): // connection exceptions
			return repositories.NewUnavailable(op, err)
		case pgErr.Code == "57P01" || pgErr.Code == "57P02" || pgErr.Code == "57P03":
			return repositories.NewUnavailable(op, err)
		}
		return repositories.NewInternal(op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return repositories.NewUnavailable(op, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return repositories.NewUnavailable(op, err)
	}

	return repositories.NewInternal(op, err)
}
