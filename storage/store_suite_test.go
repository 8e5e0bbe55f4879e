package storage

import (
	"GLM/locks"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowsOf(xid string, branch int64, pks ...string) []*locks.RowLock {
	res := make([]*locks.RowLock, len(pks))
	for i, pk := range pks {
		res[i] = &locks.RowLock{
			XID:        xid,
			BranchID:   branch,
			ResourceID: "jdbc:mysql://R1",
			TableName:  "T",
			PK:         locks.PrimaryKey{pk},
		}
	}
	return res
}

func concat(batches ...[]*locks.RowLock) []*locks.RowLock {
	res := make([]*locks.RowLock, 0)
	for _, b := range batches {
		res = append(res, b...)
	}
	return res
}

// runStoreSuite checks the behaviour every lock store shares. newStore returns
// an empty store, the suite closes it.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) locks.LockStore) {
	ctx := context.Background()

	t.Run("ConflictLeavesNoResidue", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ok, err := s.AcquireLock(ctx, rowsOf("T1", 1, "pk1", "pk2"), true)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = s.AcquireLock(ctx, rowsOf("T2", 2, "pk2", "pk3"), true)
		require.NoError(t, err)
		assert.False(t, ok)
		// pk3 must still be free.
		ok, err = s.IsLockable(ctx, rowsOf("T3", 3, "pk3"))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.UnLockBranch(ctx, "T1", 1)
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = s.AcquireLock(ctx, rowsOf("T2", 2, "pk2", "pk3"), true)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("ReacquireBySameTransaction", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ok, err := s.AcquireLock(ctx, rowsOf("T1", 1, "pk1"), true)
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = s.AcquireLock(ctx, rowsOf("T1", 2, "pk1", "pk2"), true)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.IsLockable(ctx, rowsOf("T1", 1, "pk1", "pk2"))
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.IsLockable(ctx, rowsOf("T2", 1, "pk2"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("DuplicateRowsInOneBatch", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ok, err := s.AcquireLock(ctx, rowsOf("T1", 1, "pk1", "pk1", "pk2", "pk1"), true)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.UnLock(ctx, rowsOf("T1", 1, "pk1", "pk1"))
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.IsLockable(ctx, rowsOf("T2", 1, "pk1"))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("ReleaseOnlyFreesOwnRows", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ok, err := s.AcquireLock(ctx, rowsOf("T1", 1, "pk1"), true)
		require.NoError(t, err)
		require.True(t, ok)

		// T2 names T1's row, nothing is released.
		ok, err = s.UnLock(ctx, rowsOf("T2", 1, "pk1"))
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.UnLockBranch(ctx, "T2", 1)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.IsLockable(ctx, rowsOf("T2", 1, "pk1"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ReleaseIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ok, err := s.AcquireLock(ctx, rowsOf("T1", 1, "pk1"), true)
		require.NoError(t, err)
		require.True(t, ok)
		for i := 0; i < 2; i++ {
			ok, err = s.UnLock(ctx, rowsOf("T1", 1, "pk1"))
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = s.UnLockBranches(ctx, "T1", []int64{1, 2})
			require.NoError(t, err)
			assert.True(t, ok)
		}
	})

	t.Run("BranchesReleaseSelectively", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		batch := concat(rowsOf("T1", 1, "pk1"), rowsOf("T1", 2, "pk2"), rowsOf("T1", 3, "pk3"))
		ok, err := s.AcquireLock(ctx, batch, true)
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = s.UnLockBranches(ctx, "T1", []int64{1, 3})
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = s.IsLockable(ctx, rowsOf("T2", 1, "pk1", "pk3"))
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.IsLockable(ctx, rowsOf("T2", 1, "pk2"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("RollbackingRefusesNewRows", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		ok, err := s.AcquireLock(ctx, rowsOf("T1", 1, "pk1"), true)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, s.UpdateLockStatus(ctx, "T1", locks.Rollbacking))
		// an unknown transaction is not an error.
		require.NoError(t, s.UpdateLockStatus(ctx, "T9", locks.Rollbacking))

		ok, err = s.AcquireLock(ctx, rowsOf("T1", 1, "pk2"), true)
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = s.IsLockable(ctx, rowsOf("T1", 1, "pk2"))
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = s.AcquireLock(ctx, rowsOf("T2", 1, "pk1"), true)
		require.NoError(t, err)
		assert.False(t, ok)
		// the rows stay unavailable to everyone else.
		ok, err = s.IsLockable(ctx, rowsOf("T2", 1, "pk1"))
		require.NoError(t, err)
		assert.False(t, ok)
		// rows the transaction already holds stay re-acquirable.
		ok, err = s.AcquireLock(ctx, rowsOf("T1", 1, "pk1"), true)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.UnLockBranch(ctx, "T1", 1)
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = s.AcquireLock(ctx, rowsOf("T2", 1, "pk1", "pk2"), true)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("DisjointConcurrentAcquires", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		const n = 8
		var wg sync.WaitGroup
		results := make([]bool, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				xid := fmt.Sprintf("T%d", i)
				ok, err := s.AcquireLock(ctx, rowsOf(xid, 1, xid+"a", xid+"b"), true)
				assert.NoError(t, err)
				results[i] = ok
			}(i)
		}
		wg.Wait()
		for i, ok := range results {
			assert.True(t, ok, "transaction %d", i)
		}
	})

	t.Run("OverlappingConcurrentAcquires", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		const n = 8
		var wg sync.WaitGroup
		winners := make(chan string, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				xid := fmt.Sprintf("T%d", i)
				ok, err := s.AcquireLock(ctx, rowsOf(xid, 1, "pk1", "pk2", "pk3"), true)
				assert.NoError(t, err)
				if ok {
					winners <- xid
				}
			}(i)
		}
		wg.Wait()
		close(winners)
		var won []string
		for xid := range winners {
			won = append(won, xid)
		}
		require.LessOrEqual(t, len(won), 1)
		if len(won) == 0 {
			ok, err := s.IsLockable(ctx, rowsOf("outsider", 1, "pk1", "pk2", "pk3"))
			require.NoError(t, err)
			assert.True(t, ok)
			return
		}
		for _, pk := range []string{"pk1", "pk2", "pk3"} {
			ok, err := s.IsLockable(ctx, rowsOf(won[0], 1, pk))
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = s.IsLockable(ctx, rowsOf("outsider", 1, pk))
			require.NoError(t, err)
			assert.False(t, ok, pk)
		}
	})
}
