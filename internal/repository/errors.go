package repository

import (
	"errors"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// isUniqueConstraintError checks if a DB error is a unique constraint violation on any supported driver.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate key")
}

// violatedKey extracts the index or constraint a unique violation names, lower-cased.
// Postgres reports "idx_users_email", MySQL "users.idx_users_email" (8.0) or
// "idx_users_email" (5.7), SQLite "users.email".
func violatedKey(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.ToLower(pgErr.ConstraintName)
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		msg := myErr.Message
		if i := strings.LastIndex(msg, "for key "); i >= 0 {
			return strings.ToLower(strings.Trim(msg[i+len("for key "):], "'` "))
		}
		return ""
	}
	msg := strings.ToLower(err.Error())
	if i := strings.Index(msg, "unique constraint failed:"); i >= 0 {
		return strings.TrimSpace(msg[i+len("unique constraint failed:"):])
	}
	return ""
}

// uniqueViolationColumn reports which of columns a unique violation hit, matching the
// violated key name rather than the whole message, which also carries the duplicate value.
func uniqueViolationColumn(err error, columns ...string) string {
	key := violatedKey(err)
	if key == "" {
		return ""
	}
	for _, part := range strings.Split(key, ",") {
		part = strings.TrimSpace(part)
		for _, c := range columns {
			if part == c || strings.HasSuffix(part, "_"+c) || strings.HasSuffix(part, "."+c) {
				return c
			}
		}
	}
	return ""
}

// likePattern escapes LIKE metacharacters with '!' so the same pattern works on every driver.
func likePattern(token string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return "%" + r.Replace(strings.ToLower(token)) + "%"
}
