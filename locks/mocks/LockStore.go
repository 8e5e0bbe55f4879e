package mocks

import "context"
import "GLM/locks"
import "github.com/stretchr/testify/mock"

type LockStore struct {
	mock.Mock
}

func (_m *LockStore) AcquireLock(ctx context.Context, rows []*locks.RowLock, autoCommit bool) (bool, error) {
	ret := _m.Called(ctx, rows, autoCommit)

	var r0 bool
	if rf, ok := ret.Get(0).(func(context.Context, []*locks.RowLock, bool) bool); ok {
		r0 = rf(ctx, rows, autoCommit)
	} else {
		r0 = ret.Get(0).(bool)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, []*locks.RowLock, bool) error); ok {
		r1 = rf(ctx, rows, autoCommit)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}
func (_m *LockStore) UnLock(ctx context.Context, rows []*locks.RowLock) (bool, error) {
	ret := _m.Called(ctx, rows)

	var r0 bool
	if rf, ok := ret.Get(0).(func(context.Context, []*locks.RowLock) bool); ok {
		r0 = rf(ctx, rows)
	} else {
		r0 = ret.Get(0).(bool)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, []*locks.RowLock) error); ok {
		r1 = rf(ctx, rows)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}
func (_m *LockStore) UnLockBranch(ctx context.Context, xid string, branchID int64) (bool, error) {
	ret := _m.Called(ctx, xid, branchID)

	var r0 bool
	if rf, ok := ret.Get(0).(func(context.Context, string, int64) bool); ok {
		r0 = rf(ctx, xid, branchID)
	} else {
		r0 = ret.Get(0).(bool)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, string, int64) error); ok {
		r1 = rf(ctx, xid, branchID)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}
func (_m *LockStore) UnLockBranches(ctx context.Context, xid string, branchIDs []int64) (bool, error) {
	ret := _m.Called(ctx, xid, branchIDs)

	var r0 bool
	if rf, ok := ret.Get(0).(func(context.Context, string, []int64) bool); ok {
		r0 = rf(ctx, xid, branchIDs)
	} else {
		r0 = ret.Get(0).(bool)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, string, []int64) error); ok {
		r1 = rf(ctx, xid, branchIDs)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}
func (_m *LockStore) IsLockable(ctx context.Context, rows []*locks.RowLock) (bool, error) {
	ret := _m.Called(ctx, rows)

	var r0 bool
	if rf, ok := ret.Get(0).(func(context.Context, []*locks.RowLock) bool); ok {
		r0 = rf(ctx, rows)
	} else {
		r0 = ret.Get(0).(bool)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, []*locks.RowLock) error); ok {
		r1 = rf(ctx, rows)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}
func (_m *LockStore) UpdateLockStatus(ctx context.Context, xid string, status locks.LockStatus) error {
	ret := _m.Called(ctx, xid, status)

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string, locks.LockStatus) error); ok {
		r0 = rf(ctx, xid, status)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}
func (_m *LockStore) Close() error {
	ret := _m.Called()

	var r0 error
	if rf, ok := ret.Get(0).(func() error); ok {
		r0 = rf()
	} else {
		r0 = ret.Error(0)
	}

	return r0
}
