package storage

import (
	"GLM/configs"
	"GLM/locks"
	"GLM/utils"
	"context"
	"github.com/juju/errors"
	"github.com/viney-shih/go-lock"
	"time"
)

// MemoryStore keeps the lock table in process. A single latch serializes
// every call, which makes each batch check-and-set atomic. With a LogManager
// attached, every mutation is journaled before it is applied.
type MemoryStore struct {
	latch  lock.Mutex
	rows   map[string]*LockDO            // row key -> record
	byXID  map[string]map[string]*LockDO // xid -> row key -> record
	log    *LogManager
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		latch: lock.NewCASMutex(),
		rows:  make(map[string]*LockDO),
		byXID: make(map[string]map[string]*LockDO),
		log:   &LogManager{},
	}
}

// NewFileStore opens a memory store journaled into dir, replaying what the
// journal already holds.
func NewFileStore(dir string, batchInterval time.Duration) (*MemoryStore, error) {
	c := NewMemoryStore()
	log, err := NewLogManager(dir, batchInterval)
	if err != nil {
		return nil, utils.NewStoreError("open", err)
	}
	if err := log.Replay(c.apply); err != nil {
		_ = log.Close()
		return nil, utils.NewStoreError("replay", err)
	}
	c.log = log
	c.log.Start()
	return c, nil
}

func (c *MemoryStore) AcquireLock(ctx context.Context, rows []*locks.RowLock, autoCommit bool) (bool, error) {
	c.latch.Lock()
	defer c.latch.Unlock()
	if c.closed {
		return false, utils.NewStoreError("acquire", utils.ErrStoreClosed)
	}
	missing, ok := c.check(convertToLockDO(rows))
	if !ok {
		return false, nil
	}
	if len(missing) == 0 {
		// every row is held by its own transaction already.
		return true, nil
	}
	e := &LogEntry{Op: opLock, Locks: missing}
	if err := c.log.Append(e, autoCommit); err != nil {
		return false, utils.NewStoreError("acquire", errors.Annotatef(err, "journal %d row locks", len(missing)))
	}
	return true, c.apply(e)
}

func (c *MemoryStore) UnLock(ctx context.Context, rows []*locks.RowLock) (bool, error) {
	c.latch.Lock()
	defer c.latch.Unlock()
	keys := make([]string, 0, len(rows))
	for _, d := range convertToLockDO(rows) {
		if h, ok := c.rows[d.RowKey]; ok && h.XID == d.XID {
			keys = append(keys, d.RowKey)
		}
	}
	return c.unlockKeys("unLock", keys)
}

func (c *MemoryStore) UnLockBranch(ctx context.Context, xid string, branchID int64) (bool, error) {
	return c.UnLockBranches(ctx, xid, []int64{branchID})
}

func (c *MemoryStore) UnLockBranches(ctx context.Context, xid string, branchIDs []int64) (bool, error) {
	c.latch.Lock()
	defer c.latch.Unlock()
	branches := make(map[int64]bool, len(branchIDs))
	for _, b := range branchIDs {
		branches[b] = true
	}
	keys := make([]string, 0)
	for k, d := range c.byXID[xid] {
		if branches[d.BranchID] {
			keys = append(keys, k)
		}
	}
	return c.unlockKeys("unLockBranch", keys)
}

// unlockKeys journals and deletes records, the caller holds the latch.
func (c *MemoryStore) unlockKeys(op string, keys []string) (bool, error) {
	if c.closed {
		return false, utils.NewStoreError(op, utils.ErrStoreClosed)
	}
	if len(keys) == 0 {
		return true, nil
	}
	e := &LogEntry{Op: opUnlock, Keys: keys}
	if err := c.log.Append(e, true); err != nil {
		return false, utils.NewStoreError(op, errors.Annotatef(err, "journal %d row keys", len(keys)))
	}
	return true, c.apply(e)
}

func (c *MemoryStore) IsLockable(ctx context.Context, rows []*locks.RowLock) (bool, error) {
	c.latch.Lock()
	defer c.latch.Unlock()
	if c.closed {
		return false, utils.NewDataAccessError("isLockable", utils.ErrStoreClosed)
	}
	_, ok := c.check(convertToLockDO(rows))
	return ok, nil
}

func (c *MemoryStore) UpdateLockStatus(ctx context.Context, xid string, status locks.LockStatus) error {
	c.latch.Lock()
	defer c.latch.Unlock()
	if c.closed {
		return utils.NewStoreError("updateLockStatus", utils.ErrStoreClosed)
	}
	if len(c.byXID[xid]) == 0 {
		return nil
	}
	e := &LogEntry{Op: opStatus, XID: xid, Status: status}
	if err := c.log.Append(e, true); err != nil {
		return utils.NewStoreError("updateLockStatus", errors.Annotatef(err, "journal status of %s", xid))
	}
	return c.apply(e)
}

// Close flushes the journal. Later calls fail with ErrStoreClosed.
func (c *MemoryStore) Close() error {
	c.latch.Lock()
	defer c.latch.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.log.Close()
}

// Len reports the number of locked rows.
func (c *MemoryStore) Len() int {
	c.latch.Lock()
	defer c.latch.Unlock()
	return len(c.rows)
}

// Holder returns a copy of the record locking a row.
func (c *MemoryStore) Holder(rowKey string) (*LockDO, bool) {
	c.latch.Lock()
	defer c.latch.Unlock()
	d, ok := c.rows[rowKey]
	if !ok {
		return nil, false
	}
	cp := *d
	return &cp, true
}

func (c *MemoryStore) check(batch []*LockDO) ([]*LockDO, bool) {
	held := make(map[string]*LockDO, len(batch))
	rollbacking := make(map[string]bool)
	for _, d := range batch {
		if h, ok := c.rows[d.RowKey]; ok {
			held[d.RowKey] = h
		}
	}
	for _, xid := range xidsOf(batch) {
		for _, h := range c.byXID[xid] {
			if h.Status == locks.Rollbacking {
				rollbacking[xid] = true
				break
			}
		}
	}
	return checkLockable(batch, held, rollbacking)
}

// apply mutates the table, it is shared by live calls and journal replay.
func (c *MemoryStore) apply(e *LogEntry) error {
	switch e.Op {
	case opLock:
		for _, d := range e.Locks {
			if h, ok := c.rows[d.RowKey]; ok && h.XID != d.XID {
				return errors.Errorf("row %s of %s is held by %s", d.RowKey, d.XID, h.XID)
			}
			c.rows[d.RowKey] = d
			if c.byXID[d.XID] == nil {
				c.byXID[d.XID] = make(map[string]*LockDO)
			}
			c.byXID[d.XID][d.RowKey] = d
		}
	case opUnlock:
		for _, k := range e.Keys {
			d, ok := c.rows[k]
			if !ok {
				continue
			}
			delete(c.rows, k)
			delete(c.byXID[d.XID], k)
			if len(c.byXID[d.XID]) == 0 {
				delete(c.byXID, d.XID)
			}
		}
	case opStatus:
		now := time.Now()
		for _, d := range c.byXID[e.XID] {
			d.Status = e.Status
			d.GmtModified = now
		}
	default:
		configs.Assert(false, "unknown journal op "+e.Op)
	}
	return nil
}
