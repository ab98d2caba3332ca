// Package repository defines the ledger store used by the reservation
// engine and its MySQL, MongoDB and in-memory implementations.  Sentinel
// values let higher layers tell store contention apart from a broken store.
package repository

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrWriteConflict is returned when the store aborted a transaction because
// a concurrent transaction touched the same rows (deadlock, lock wait
// timeout, write conflict).  The service layer treats it as contention, not
// as an infrastructure failure.
var ErrWriteConflict = errors.New("write conflict")

const (
	mysqlDuplicateEntry   = 1062
	mysqlLockWaitTimeout  = 1205
	mysqlDeadlock         = 1213
	mongoWriteConflict    = 112
	transientTxErrorLabel = "TransientTransactionError"
)

// isDuplicateKey reports whether err is a unique-key violation from either
// backing store.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	return mongo.IsDuplicateKeyError(err)
}

// classifyTxError maps store-level contention onto ErrWriteConflict and
// leaves every other error untouched.  The driver error stays in the chain.
func classifyTxError(err error) error {
	if err == nil {
		return nil
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && (me.Number == mysqlDeadlock || me.Number == mysqlLockWaitTimeout) {
		return fmt.Errorf("%w: %w", ErrWriteConflict, err)
	}
	var se mongo.ServerError
	if errors.As(err, &se) && (se.HasErrorCode(mongoWriteConflict) || se.HasErrorLabel(transientTxErrorLabel)) {
		return fmt.Errorf("%w: %w", ErrWriteConflict, err)
	}
	return err
}
