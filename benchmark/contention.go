package benchmark

import (
	"GLM/configs"
	"GLM/locks"
	"GLM/utils"
	"context"
	"fmt"
	set "github.com/deckarep/golang-set"
	"github.com/juju/errors"
	"github.com/pingcap/go-ycsb/pkg/generator"
	"github.com/viney-shih/go-lock"
	"golang.org/x/sync/errgroup"
	"math/rand"
	"strconv"
	"time"
)

const benchTable = "YCSB_MAIN"

// ContentionStmt drives ClientRoutineNumber simulated branch coordinators
// against one lock manager, each acquiring zipfian-distributed rows under a
// fresh transaction and releasing them again.
type ContentionStmt struct {
	stat    *utils.Stat
	manager *locks.Manager
	owners  *ownershipChecker
	address string
}

type ContentionClient struct {
	md   int
	from *ContentionStmt
	r    *rand.Rand
	zip  *generator.Zipfian
}

func NewContentionStmt(address string, store locks.LockStore) *ContentionStmt {
	return &ContentionStmt{
		stat:    utils.NewStat(),
		manager: locks.NewManager(store),
		owners:  newOwnershipChecker(),
		address: address,
	}
}

func (c *ContentionClient) generateRows(xid string, tid uint64) ([]*locks.RowLock, set.Set) {
	rows := make([]*locks.RowLock, 0, configs.TransactionLength)
	branches := set.NewSet()
	for i := 0; i < configs.TransactionLength; i++ {
		key := c.zip.Next(c.r)
		branch := int64(i%configs.Max(configs.BranchesPerTransaction, 1)) + 1
		branches.Add(branch)
		rows = append(rows, &locks.RowLock{
			XID:           xid,
			TransactionID: int64(tid),
			BranchID:      branch,
			ResourceID:    "jdbc:mysql://R" + strconv.Itoa(c.r.Intn(configs.Max(configs.NumberOfResources, 1))),
			TableName:     benchTable,
			PK:            locks.PrimaryKey{strconv.FormatInt(key, 10)},
		})
	}
	return rows, branches
}

// performTransaction runs one acquire and release cycle. Only a broken
// exclusivity guarantee is returned as an error.
func (c *ContentionClient) performTransaction(ctx context.Context, tid uint64) error {
	xid := configs.GetXID(c.from.address, tid)
	defer configs.TimeTrack(time.Now(), "performTransaction", xid)
	m := c.from.manager
	rows, branches := c.generateRows(xid, tid)
	info := utils.NewInfo(len(rows))
	defer c.from.stat.Append(info)

	if c.r.Intn(2) == 0 {
		// check first, as a coordinator does before it registers a branch.
		if _, err := m.IsLockable(ctx, rows); err != nil {
			info.Fault = true
			return nil
		}
	}
	autoCommit := c.r.Intn(100) >= configs.NonAutoCommitPercentage
	start := time.Now()
	ok, err := m.AcquireLockWithOption(ctx, rows, autoCommit)
	info.Latency = time.Since(start)
	if err != nil {
		configs.Warn(false, fmt.Sprintf("%s: acquire fault %v", xid, err))
		info.Fault = true
		return nil
	}
	if !ok {
		configs.TxnPrint(xid, "lock refused on client %v", c.md)
		return nil
	}
	info.Granted = true
	keys := locks.RowKeys(locks.DistinctRows(rows))
	if err := c.from.owners.grant(xid, keys); err != nil {
		return err
	}
	if ok, err := m.IsLockable(ctx, rows); err == nil && !ok {
		return errors.Errorf("%s: rows it holds are reported as not lockable", xid)
	}

	c.from.owners.release(xid, keys)
	// the release must outlive the benchmark deadline.
	ctx = context.Background()
	if c.r.Intn(100) < configs.RollbackPercentage {
		info.Rollback = true
		if err := m.UpdateLockStatus(ctx, xid, locks.Rollbacking); err != nil {
			configs.Warn(false, fmt.Sprintf("%s: mark rollbacking %v", xid, err))
		} else if ok, err := m.AcquireLock(ctx, c.extraRow(xid, tid)); err == nil && ok {
			return errors.Errorf("%s: granted a new row while rollbacking", xid)
		}
		_, err = m.ReleaseBranchesLock(ctx, xid, branches)
		return c.released(xid, err)
	}
	switch c.r.Intn(3) {
	case 0:
		_, err = m.ReleaseLock(ctx, rows)
	case 1:
		for _, b := range branches.ToSlice() {
			if _, err = m.ReleaseBranchLock(ctx, xid, b.(int64)); err != nil {
				break
			}
		}
	default:
		_, err = m.ReleaseBranchesLock(ctx, xid, branches)
	}
	return c.released(xid, err)
}

// extraRow is a row no transaction of the workload ever asks for.
func (c *ContentionClient) extraRow(xid string, tid uint64) []*locks.RowLock {
	return []*locks.RowLock{{
		XID:           xid,
		TransactionID: int64(tid),
		BranchID:      1,
		ResourceID:    "jdbc:mysql://R-extra",
		TableName:     benchTable,
		PK:            locks.PrimaryKey{xid},
	}}
}

func (c *ContentionClient) released(xid string, err error) error {
	if err != nil {
		configs.Warn(false, fmt.Sprintf("%s: release fault %v", xid, err))
	}
	return nil
}

func (stmt *ContentionStmt) startContentionClient(ctx context.Context, seed int, md int) error {
	client := ContentionClient{md: md, from: stmt}
	client.r = rand.New(rand.NewSource(int64(seed)*11 + 31))
	client.zip = generator.NewZipfianWithRange(0, int64(configs.Max(configs.NumberOfRows, 2)-1), configs.YCSBDataSkewness)
	for ctx.Err() == nil {
		if err := client.performTransaction(ctx, configs.GetTxnID()); err != nil {
			return err
		}
	}
	return nil
}

// Run drives the clients for duration and returns the statistics of the
// attempts made after warmUp.
func (stmt *ContentionStmt) Run(ctx context.Context, duration, warmUp time.Duration) (*utils.Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, duration+warmUp)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < configs.ClientRoutineNumber; i++ {
		i := i
		g.Go(func() error {
			return stmt.startContentionClient(gctx, i*11+13, i)
		})
	}
	configs.TPrintf("All clients Started")
	if warmUp > 0 {
		select {
		case <-time.After(warmUp):
			stmt.stat.Clear()
		case <-gctx.Done():
		}
	}
	err := g.Wait()
	stmt.stat.Log()
	return stmt.stat.Summary(), err
}

// ownershipChecker mirrors the grants the manager made and fails as soon as
// one row is granted to two transactions at once.
type ownershipChecker struct {
	latch  lock.Mutex
	owners map[string]string
}

func newOwnershipChecker() *ownershipChecker {
	return &ownershipChecker{latch: lock.NewCASMutex(), owners: make(map[string]string)}
}

func (o *ownershipChecker) grant(xid string, keys []string) error {
	o.latch.Lock()
	defer o.latch.Unlock()
	for _, k := range keys {
		if h, ok := o.owners[k]; ok && h != xid {
			return errors.Errorf("row %s granted to %s while held by %s", k, xid, h)
		}
	}
	for _, k := range keys {
		o.owners[k] = xid
	}
	return nil
}

func (o *ownershipChecker) release(xid string, keys []string) {
	o.latch.Lock()
	defer o.latch.Unlock()
	for _, k := range keys {
		if o.owners[k] == xid {
			delete(o.owners, k)
		}
	}
}

// TestContention runs the benchmark once with the configured workload.
func TestContention(address string, store locks.LockStore) error {
	st := NewContentionStmt(address, store)
	_, err := st.Run(context.Background(), configs.BenchmarkDuration, configs.WarmUpTime)
	return err
}
