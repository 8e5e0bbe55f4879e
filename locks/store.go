package locks

import "context"

// LockStore persists row lock records. Implementations own every piece of
// shared state: AcquireLock must be atomic for the whole batch, so that either
// all rows are held by the requesting transaction afterwards or none of them
// was written.
type LockStore interface {
	// AcquireLock claims every row for its XID. It returns false when any row
	// is held by another transaction. With autoCommit unset the store may leave
	// finalization to a transaction carried by ctx.
	AcquireLock(ctx context.Context, rows []*RowLock, autoCommit bool) (bool, error)
	// UnLock deletes the records of the given rows owned by each row's XID.
	UnLock(ctx context.Context, rows []*RowLock) (bool, error)
	// UnLockBranch deletes every record of one branch.
	UnLockBranch(ctx context.Context, xid string, branchID int64) (bool, error)
	// UnLockBranches deletes every record of the given branches.
	UnLockBranches(ctx context.Context, xid string, branchIDs []int64) (bool, error)
	// IsLockable reports whether AcquireLock would succeed right now, without writing.
	IsLockable(ctx context.Context, rows []*RowLock) (bool, error)
	// UpdateLockStatus sets the status of every record of a transaction.
	UpdateLockStatus(ctx context.Context, xid string, status LockStatus) error
	Close() error
}
