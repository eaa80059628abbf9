package repository

import (
	"errors"
	"fmt"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestUniqueViolationColumn(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"postgres email", &pgconn.PgError{Code: "23505", ConstraintName: "idx_users_email"}, "email"},
		{"postgres account", &pgconn.PgError{Code: "23505", ConstraintName: "idx_users_account"}, ""},
		{
			"mysql 8 account whose value mentions email",
			&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry 'email1' for key 'users.idx_users_account'"},
			"",
		},
		{
			"mysql 8 email",
			&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry 'a@x.com' for key 'users.idx_users_email'"},
			"email",
		},
		{
			"mysql 5.7 email",
			&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry 'a@x.com' for key 'idx_users_email'"},
			"email",
		},
		{"wrapped sqlite email", fmt.Errorf("create: %w", errors.New("UNIQUE constraint failed: users.email")), "email"},
		{"sqlite account", errors.New("UNIQUE constraint failed: users.account"), ""},
		{"unrelated", errors.New("email server down"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, uniqueViolationColumn(tt.err, "email"))
		})
	}

	assert.True(t, isUniqueConstraintError(&mysqldriver.MySQLError{Number: 1062}))
	assert.False(t, isUniqueConstraintError(nil))
}
