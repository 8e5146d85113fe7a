// Package repository holds the MySQL data access layer. Sentinel errors
// defined here let the service layer tell storage outcomes apart without
// inspecting driver errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrTokenInvalid is returned for a refresh token that is unknown,
// expired or already revoked.
var ErrTokenInvalid = errors.New("refresh token invalid")

// ErrDuplicate wraps a unique key violation (MySQL 1062), e.g. a second
// reservation for the same customer and arrangement.
var ErrDuplicate = errors.New("duplicate entry")

// ErrInUse wraps a foreign key violation (MySQL 1451/1452): the row is
// still referenced, or references a row that does not exist.
var ErrInUse = errors.New("row referenced by other records")

var (
	ErrUserNotFound          = errors.New("user not found")
	ErrArrangementNotFound   = errors.New("arrangement not found")
	ErrReservationNotFound   = errors.New("reservation not found")
	ErrAccountTypeNotFound   = errors.New("account type not found")
	ErrChangeRequestNotFound = errors.New("change request not found")
)

const (
	mysqlDuplicateEntry = 1062
	mysqlRowReferenced  = 1451
	mysqlNoReferenced   = 1452
)

// mapWriteErr converts driver constraint errors into package sentinels.
func mapWriteErr(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlDuplicateEntry:
			return ErrDuplicate
		case mysqlRowReferenced, mysqlNoReferenced:
			return ErrInUse
		}
	}
	return err
}
