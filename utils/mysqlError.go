package utils

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// IsDuplicateKeyErr reports a MySQL 1062 unique constraint violation.
func IsDuplicateKeyErr(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

// IsDeadlockErr reports a MySQL 1213 deadlock. The statement was rolled back
// and is safe to retry.
func IsDeadlockErr(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1213
}

// IsLockWaitTimeoutErr reports a MySQL 1205 lock wait timeout.
func IsLockWaitTimeoutErr(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1205
}

// IsRetryableDBErr covers the transient failures the command retry loop is
// allowed to absorb.
func IsRetryableDBErr(err error) bool {
	return IsDeadlockErr(err) || IsLockWaitTimeoutErr(err)
}
