package utils

import (
	"errors"
	"fmt"
)

// These errors can occur when a store refuses the request for a known reason.
var (
	ErrLockConflict    = errors.New("row lock held by another transaction")
	ErrRollbacking     = errors.New("transaction locks are rollbacking")
	ErrStoreClosed     = errors.New("lock store closed")
	ErrInvalidBranchID = errors.New("branch id set contains a non-integer element")
)

// StoreError is an infrastructure failure of the lock store: connectivity,
// constraint violation, or a serialization conflict the store could not resolve.
// The outcome of the failed call is unknown.
type StoreError struct {
	Op  string
	Err error
}

func NewStoreError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err}
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("lock store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// DataAccessError is a failure on the read path of the lock store.
type DataAccessError struct {
	Op  string
	Err error
}

func NewDataAccessError(op string, err error) *DataAccessError {
	return &DataAccessError{Op: op, Err: err}
}

func (e *DataAccessError) Error() string {
	return fmt.Sprintf("lock store data access %s: %v", e.Op, e.Err)
}

func (e *DataAccessError) Unwrap() error {
	return e.Err
}

// IsStoreError also holds for a DataAccessError, a read-path failure is a
// store failure too.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se) || IsDataAccessError(err)
}

func IsDataAccessError(err error) bool {
	var de *DataAccessError
	return errors.As(err, &de)
}
