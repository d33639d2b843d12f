package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// ErrUserNotFound is returned by credit mutations that matched no user row.
var ErrUserNotFound = errors.New("user not found")

// ErrEmailTaken is returned by UserRepository.Create when the email's unique index rejects the row.
var ErrEmailTaken = errors.New("email already registered")

const mysqlDuplicateEntry = 1062

// isDuplicateKey reports a unique-key violation whether or not GORM translated it.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}
