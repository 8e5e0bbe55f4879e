package storage

import (
	"GLM/configs"
	"GLM/locks"
	"context"
	"github.com/juju/errors"
	"time"
)

// LockDO is the persisted form of a row lock, one record per locked row.
type LockDO struct {
	RowKey        string           `json:"rowKey" bson:"_id"`
	XID           string           `json:"xid" bson:"xid"`
	TransactionID int64            `json:"transactionId" bson:"transactionId"`
	BranchID      int64            `json:"branchId" bson:"branchId"`
	ResourceID    string           `json:"resourceId" bson:"resourceId"`
	TableName     string           `json:"tableName" bson:"tableName"`
	PK            string           `json:"pk" bson:"pk"`
	Status        locks.LockStatus `json:"status" bson:"status"`
	GmtCreate     time.Time        `json:"gmtCreate" bson:"gmtCreate"`
	GmtModified   time.Time        `json:"gmtModified" bson:"gmtModified"`
}

func (d *LockDO) ToRowLock() *locks.RowLock {
	return &locks.RowLock{
		XID:           d.XID,
		TransactionID: d.TransactionID,
		BranchID:      d.BranchID,
		ResourceID:    d.ResourceID,
		TableName:     d.TableName,
		PK:            locks.ParsePrimaryKey(d.PK),
		Status:        d.Status,
	}
}

// convertToLockDO turns a batch into distinct records in lock order.
func convertToLockDO(rows []*locks.RowLock) []*LockDO {
	rows = locks.SortRows(locks.DistinctRows(rows))
	now := time.Now()
	res := make([]*LockDO, len(rows))
	for i, r := range rows {
		res[i] = &LockDO{
			RowKey:        r.RowKey(),
			XID:           r.XID,
			TransactionID: r.TransactionID,
			BranchID:      r.BranchID,
			ResourceID:    r.ResourceID,
			TableName:     r.TableName,
			PK:            r.PK.String(),
			Status:        locks.Locked,
			GmtCreate:     now,
			GmtModified:   now,
		}
	}
	return res
}

// checkLockable decides a batch against the records currently holding its
// rows. It returns the records that still have to be written. A row held by
// another transaction refuses the batch, and so does a transaction whose locks
// are rollbacking when it asks for a row it does not hold yet.
func checkLockable(batch []*LockDO, held map[string]*LockDO, rollbacking map[string]bool) ([]*LockDO, bool) {
	missing := make([]*LockDO, 0, len(batch))
	for _, d := range batch {
		if h, ok := held[d.RowKey]; ok {
			if h.XID != d.XID {
				configs.TxnPrint(d.XID, "row %s is held by %s", d.RowKey, h.XID)
				return nil, false
			}
			continue
		}
		if rollbacking[d.XID] {
			configs.TxnPrint(d.XID, "locks are rollbacking, refuse row %s", d.RowKey)
			return nil, false
		}
		missing = append(missing, d)
	}
	return missing, true
}

func rowKeysOf(batch []*LockDO) []string {
	res := make([]string, len(batch))
	for i, d := range batch {
		res[i] = d.RowKey
	}
	return res
}

func xidsOf(batch []*LockDO) []string {
	seen := make(map[string]bool)
	res := make([]string, 0, 1)
	for _, d := range batch {
		if !seen[d.XID] {
			seen[d.XID] = true
			res = append(res, d.XID)
		}
	}
	return res
}

// NewLockStore opens the store selected by cfg.Mode.
func NewLockStore(ctx context.Context, cfg *configs.StoreConfig) (locks.LockStore, error) {
	switch cfg.Mode {
	case configs.MemoryStore:
		return NewMemoryStore(), nil
	case configs.FileStore:
		return NewFileStore(cfg.LogDir, cfg.LogBatchInterval)
	case configs.DBStore:
		return NewPostgresStore(ctx, cfg)
	case configs.MongoDBStore:
		return NewMongoStore(ctx, cfg)
	default:
		return nil, errors.NotSupportedf("store mode %q", cfg.Mode)
	}
}
