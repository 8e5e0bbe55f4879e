package locks

import (
	"GLM/configs"
	"GLM/utils"
	"context"
	set "github.com/deckarep/golang-set"
	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"sort"
	"time"
)

// Manager is the global lock manager. It keeps no state of its own: every
// call is decided by the LockStore, so one Manager can serve any number of
// branch coordinators concurrently.
//
// Store faults are returned unchanged. Any other failure, including a panic
// inside the store, is logged and reported as a refused lock.
type Manager struct {
	store LockStore
}

func NewManager(store LockStore) *Manager {
	return &Manager{store: store}
}

// AcquireLock claims rows in an immediately committed store transaction.
func (m *Manager) AcquireLock(ctx context.Context, rows []*RowLock) (bool, error) {
	return m.AcquireLockWithOption(ctx, rows, true)
}

// AcquireLockWithOption claims all rows for their transaction or none of them.
// Rows already held by the same transaction count as claimed.
func (m *Manager) AcquireLockWithOption(ctx context.Context, rows []*RowLock, autoCommit bool) (bool, error) {
	if len(rows) == 0 {
		// no lock
		return true, nil
	}
	defer recordMetrics(metricsAcquireCounter, metricsAcquireTimeSum, metricsAcquireAverageTime, time.Now())
	ok, err := invoke(func() (bool, error) {
		if err := ValidateRows(rows); err != nil {
			return false, err
		}
		return m.store.AcquireLock(ctx, rows, autoCommit)
	})
	ok, err = decide(ok, err, utils.IsStoreError, "AcquireLock error", func(e *zerolog.Event) *zerolog.Event {
		return e.Str("locks", configs.JToString(rows)).Bool("autoCommit", autoCommit)
	})
	if err == nil {
		if ok {
			recordCounterMetrics(metricsAcquireGranted, 1)
		} else {
			recordCounterMetrics(metricsAcquireRefused, 1)
		}
	}
	return ok, err
}

// ReleaseLock deletes the records of rows. Rows that are not locked are ignored.
func (m *Manager) ReleaseLock(ctx context.Context, rows []*RowLock) (bool, error) {
	if len(rows) == 0 {
		// no lock
		return true, nil
	}
	defer recordMetrics(metricsReleaseCounter, metricsReleaseTimeSum, metricsReleaseAverageTime, time.Now())
	ok, err := invoke(func() (bool, error) {
		if err := ValidateRows(rows); err != nil {
			return false, err
		}
		return m.store.UnLock(ctx, rows)
	})
	return decide(ok, err, utils.IsStoreError, "unLock error", func(e *zerolog.Event) *zerolog.Event {
		return e.Str("locks", configs.JToString(rows))
	})
}

// ReleaseBranchLock deletes every lock of one branch transaction.
func (m *Manager) ReleaseBranchLock(ctx context.Context, xid string, branchID int64) (bool, error) {
	defer recordMetrics(metricsReleaseCounter, metricsReleaseTimeSum, metricsReleaseAverageTime, time.Now())
	ok, err := invoke(func() (bool, error) {
		return m.store.UnLockBranch(ctx, xid, branchID)
	})
	return decide(ok, err, utils.IsStoreError, "unLock by branchId error", func(e *zerolog.Event) *zerolog.Event {
		return e.Str("xid", xid).Int64("branchId", branchID)
	})
}

// ReleaseBranchesLock deletes every lock of a set of branches of one global
// transaction. The set holds int64 (or int) branch ids.
func (m *Manager) ReleaseBranchesLock(ctx context.Context, xid string, branchIDs set.Set) (bool, error) {
	if branchIDs == nil || branchIDs.Cardinality() == 0 {
		// no lock
		return true, nil
	}
	defer recordMetrics(metricsReleaseCounter, metricsReleaseTimeSum, metricsReleaseAverageTime, time.Now())
	ok, err := invoke(func() (bool, error) {
		ids, err := toBranchIDs(branchIDs)
		if err != nil {
			return false, err
		}
		return m.store.UnLockBranches(ctx, xid, ids)
	})
	return decide(ok, err, utils.IsStoreError, "unLock by branchIds error", func(e *zerolog.Event) *zerolog.Event {
		return e.Str("xid", xid).Str("branchIds", branchIDs.String())
	})
}

// IsLockable tells whether every row is free or already held by the row's own
// transaction. Nothing is written.
func (m *Manager) IsLockable(ctx context.Context, rows []*RowLock) (bool, error) {
	if len(rows) == 0 {
		// no lock
		return true, nil
	}
	defer recordMetrics(metricsLockableCounter, metricsLockableTimeSum, metricsLockableAverageTime, time.Now())
	ok, err := invoke(func() (bool, error) {
		if err := ValidateRows(rows); err != nil {
			return false, err
		}
		return m.store.IsLockable(ctx, rows)
	})
	return decide(ok, err, utils.IsDataAccessError, "isLockable error", func(e *zerolog.Event) *zerolog.Event {
		return e.Str("locks", configs.JToString(rows))
	})
}

// UpdateLockStatus moves every lock of a transaction to status. Failures are
// always returned.
func (m *Manager) UpdateLockStatus(ctx context.Context, xid string, status LockStatus) error {
	defer recordMetrics(metricsStatusCounter, metricsStatusTimeSum, metricsStatusAverageTime, time.Now())
	return m.store.UpdateLockStatus(ctx, xid, status)
}

// invoke runs a store call, turning a panic into an ordinary error.
func invoke(fn func() (bool, error)) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, errors.Errorf("lock store panic: %v", r)
		}
	}()
	return fn()
}

// decide keeps errors accepted by classified and downgrades the rest to a
// refused lock.
func decide(ok bool, err error, classified func(error) bool, msg string,
	fields func(e *zerolog.Event) *zerolog.Event) (bool, error) {
	if err == nil {
		return ok, nil
	}
	if classified(err) {
		recordCounterMetrics(metricsStoreFault, 1)
		return false, err
	}
	recordCounterMetrics(metricsFailClosed, 1)
	fields(configs.Logger.Error().Err(err)).Msg(msg)
	return false, nil
}

func toBranchIDs(s set.Set) ([]int64, error) {
	res := make([]int64, 0, s.Cardinality())
	for _, v := range s.ToSlice() {
		switch id := v.(type) {
		case int64:
			res = append(res, id)
		case int:
			res = append(res, int64(id))
		default:
			return nil, errors.Annotatef(utils.ErrInvalidBranchID, "%#v", v)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res, nil
}
