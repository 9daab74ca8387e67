package common

import "fmt"

// ErrorCode enumerates the typed error surface exposed by the transaction
// protocol and the lock manager. Resource exhaustion (a full buffer pool,
// a hash directory at its depth ceiling) is deliberately NOT part of this
// enum: those cases are reported as a plain `(zero-value, false)` at the
// API boundary and never abort a transaction on their own.
type ErrorCode int

const (
	// ErrLockOnShrinking: a transaction requested a new lock after entering
	// the SHRINKING phase.
	ErrLockOnShrinking ErrorCode = iota
	// ErrLockSharedOnReadUncommitted: a READ_UNCOMMITTED transaction
	// requested a shared lock, which it should never need.
	ErrLockSharedOnReadUncommitted
	// ErrUpgradeConflict: another transaction is already upgrading its
	// lock on this resource.
	ErrUpgradeConflict
	// ErrDeadlock: the wound-wait policy aborted this transaction while it
	// was waiting for a lock.
	ErrDeadlock
	// ErrUnlockOnShrinking: unlock was called for an RID this transaction
	// never locked.
	ErrUnlockOnShrinking
)

func (ec ErrorCode) String() string {
	switch ec {
	case ErrLockOnShrinking:
		return "LOCK_ON_SHRINKING"
	case ErrLockSharedOnReadUncommitted:
		return "LOCKSHARED_ON_READ_UNCOMMITTED"
	case ErrUpgradeConflict:
		return "UPGRADE_CONFLICT"
	case ErrDeadlock:
		return "DEADLOCK"
	case ErrUnlockOnShrinking:
		return "UNLOCK_ON_SHRINKING"
	}
	return "UNKNOWN"
}

// DBError is the typed error returned by transaction-protocol violations.
// Every DBError implies the offending transaction has already been (or is
// about to be) moved to the ABORTED state; the caller's job is to roll back.
type DBError struct {
	Code ErrorCode
	Txn  TransactionID
	Msg  string
}

func (e *DBError) Error() string {
	return fmt.Sprintf("txn %d: %s: %s", e.Txn, e.Code, e.Msg)
}

// NewDBError builds a DBError with a formatted message.
func NewDBError(code ErrorCode, txn TransactionID, format string, args ...any) *DBError {
	return &DBError{Code: code, Txn: txn, Msg: fmt.Sprintf(format, args...)}
}
