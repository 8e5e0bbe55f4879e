package storage

import (
	"GLM/configs"
	"GLM/locks"
	"GLM/utils"
	"context"
	"fmt"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/juju/errors"
	"sort"
	"time"
)

type txKey struct{}

// WithTx attaches the caller's transaction to ctx. A non-auto-commit acquire
// under such a context runs inside a savepoint of tx and becomes durable when
// the caller commits.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func txFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok && tx != nil
}

// PostgresStore keeps the lock table in a relational table keyed by row key.
// The primary key arbitrates concurrent acquirers.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

const lockColumns = "row_key, xid, transaction_id, branch_id, resource_id, table_name, pk, status, gmt_create, gmt_modified"

func NewPostgresStore(ctx context.Context, cfg *configs.StoreConfig) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(cfg.DBURL)
	if err != nil {
		return nil, utils.NewStoreError("open", errors.Annotate(err, "parse db url"))
	}
	if cfg.DBMaxConn > 0 {
		config.MaxConns = int32(cfg.DBMaxConn)
	}
	pool, err := pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return nil, utils.NewStoreError("open", errors.Annotate(err, "connect lock db"))
	}
	table := cfg.LockTable
	if table == "" {
		table = configs.DefaultLockTable
	}
	c := &PostgresStore{pool: pool, table: table}
	if err := c.init(ctx); err != nil {
		pool.Close()
		return nil, utils.NewStoreError("open", err)
	}
	return c, nil
}

func (c *PostgresStore) tableName() string {
	return pgx.Identifier{c.table}.Sanitize()
}

func (c *PostgresStore) init(ctx context.Context) error {
	ddl := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			row_key VARCHAR(%d) PRIMARY KEY,
			xid VARCHAR(128) NOT NULL,
			transaction_id BIGINT,
			branch_id BIGINT NOT NULL,
			resource_id VARCHAR(256),
			table_name VARCHAR(64),
			pk VARCHAR(%d),
			status SMALLINT NOT NULL DEFAULT 0,
			gmt_create TIMESTAMP,
			gmt_modified TIMESTAMP)`, c.tableName(), configs.MaxRowKeyLength, configs.MaxRowKeyLength),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (xid, branch_id)",
			pgx.Identifier{"idx_" + c.table + "_branch"}.Sanitize(), c.tableName()),
	}
	for _, sql := range ddl {
		if _, err := c.pool.Exec(ctx, sql); err != nil {
			return errors.Annotatef(err, "init lock table %s", c.table)
		}
	}
	return nil
}

// begin opens a savepoint of the caller's transaction for deferred acquires
// and a fresh transaction otherwise.
func (c *PostgresStore) begin(ctx context.Context, autoCommit bool) (pgx.Tx, error) {
	if !autoCommit {
		if outer, ok := txFromContext(ctx); ok {
			return outer.Begin(ctx)
		}
	}
	return c.pool.Begin(ctx)
}

func (c *PostgresStore) AcquireLock(ctx context.Context, rows []*locks.RowLock, autoCommit bool) (bool, error) {
	batch := convertToLockDO(rows)
	if len(batch) == 0 {
		return true, nil
	}
	tx, err := c.begin(ctx, autoCommit)
	if err != nil {
		return false, utils.NewStoreError("acquire", errors.Annotate(err, "begin"))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// the status of every acquiring xid stays put until tx ends.
	xids := xidsOf(batch)
	sort.Strings(xids)
	for _, xid := range xids {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock_shared(hashtext($1))", c.statusLockKey(xid)); err != nil {
			return false, utils.NewStoreError("acquire", errors.Annotatef(err, "share status lock of %s", xid))
		}
	}
	held, err := c.queryHeld(ctx, tx, rowKeysOf(batch), true)
	if err != nil {
		return false, utils.NewStoreError("acquire", err)
	}
	rollbacking, err := c.queryRollbacking(ctx, tx, xids)
	if err != nil {
		return false, utils.NewStoreError("acquire", err)
	}
	missing, ok := checkLockable(batch, held, rollbacking)
	if !ok {
		return false, nil
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) "+
		"ON CONFLICT (row_key) DO NOTHING", c.tableName(), lockColumns)
	for _, d := range missing {
		tag, err := tx.Exec(ctx, insert, d.RowKey, d.XID, d.TransactionID, d.BranchID, d.ResourceID,
			d.TableName, d.PK, int16(d.Status), d.GmtCreate, d.GmtModified)
		if err != nil {
			return false, utils.NewStoreError("acquire", errors.Annotatef(err, "insert %s", d.RowKey))
		}
		if tag.RowsAffected() == 0 {
			// a concurrent acquirer committed the row after our read.
			configs.TxnPrint(d.XID, "lost row %s to a concurrent acquirer", d.RowKey)
			return false, nil
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, utils.NewStoreError("acquire", errors.Annotate(err, "commit"))
	}
	return true, nil
}

func (c *PostgresStore) queryHeld(ctx context.Context, q pgx.Tx, keys []string, forUpdate bool) (map[string]*LockDO, error) {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE row_key = ANY($1) ORDER BY row_key", lockColumns, c.tableName())
	if forUpdate {
		sql += " FOR UPDATE"
	}
	var (
		rows pgx.Rows
		err  error
	)
	if q != nil {
		rows, err = q.Query(ctx, sql, keys)
	} else {
		rows, err = c.pool.Query(ctx, sql, keys)
	}
	if err != nil {
		return nil, errors.Annotate(err, "query held rows")
	}
	defer rows.Close()
	res := make(map[string]*LockDO, len(keys))
	for rows.Next() {
		d := &LockDO{}
		var status int16
		if err := rows.Scan(&d.RowKey, &d.XID, &d.TransactionID, &d.BranchID, &d.ResourceID,
			&d.TableName, &d.PK, &status, &d.GmtCreate, &d.GmtModified); err != nil {
			return nil, errors.Annotate(err, "scan held row")
		}
		d.Status = locks.LockStatus(status)
		res[d.RowKey] = d
	}
	return res, errors.Trace(rows.Err())
}

func (c *PostgresStore) queryRollbacking(ctx context.Context, q pgx.Tx, xids []string) (map[string]bool, error) {
	sql := fmt.Sprintf("SELECT DISTINCT xid FROM %s WHERE xid = ANY($1) AND status = $2", c.tableName())
	var (
		rows pgx.Rows
		err  error
	)
	if q != nil {
		rows, err = q.Query(ctx, sql, xids, int16(locks.Rollbacking))
	} else {
		rows, err = c.pool.Query(ctx, sql, xids, int16(locks.Rollbacking))
	}
	if err != nil {
		return nil, errors.Annotate(err, "query rollbacking xids")
	}
	defer rows.Close()
	res := make(map[string]bool)
	for rows.Next() {
		var xid string
		if err := rows.Scan(&xid); err != nil {
			return nil, errors.Annotate(err, "scan rollbacking xid")
		}
		res[xid] = true
	}
	return res, errors.Trace(rows.Err())
}

func (c *PostgresStore) UnLock(ctx context.Context, rows []*locks.RowLock) (bool, error) {
	groups := locks.GroupByXID(locks.DistinctRows(rows))
	if len(groups) == 0 {
		return true, nil
	}
	sql := fmt.Sprintf("DELETE FROM %s WHERE xid = $1 AND row_key = ANY($2)", c.tableName())
	err := c.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		for xid, group := range groups {
			if _, err := tx.Exec(ctx, sql, xid, locks.RowKeys(group)); err != nil {
				return errors.Annotatef(err, "delete rows of %s", xid)
			}
		}
		return nil
	})
	if err != nil {
		return false, utils.NewStoreError("unLock", err)
	}
	return true, nil
}

func (c *PostgresStore) UnLockBranch(ctx context.Context, xid string, branchID int64) (bool, error) {
	return c.UnLockBranches(ctx, xid, []int64{branchID})
}

func (c *PostgresStore) UnLockBranches(ctx context.Context, xid string, branchIDs []int64) (bool, error) {
	sql := fmt.Sprintf("DELETE FROM %s WHERE xid = $1 AND branch_id = ANY($2)", c.tableName())
	if _, err := c.pool.Exec(ctx, sql, xid, branchIDs); err != nil {
		return false, utils.NewStoreError("unLockBranch", errors.Annotatef(err, "delete branches %v of %s", branchIDs, xid))
	}
	return true, nil
}

func (c *PostgresStore) IsLockable(ctx context.Context, rows []*locks.RowLock) (bool, error) {
	batch := convertToLockDO(rows)
	if len(batch) == 0 {
		return true, nil
	}
	held, err := c.queryHeld(ctx, nil, rowKeysOf(batch), false)
	if err != nil {
		return false, utils.NewDataAccessError("isLockable", err)
	}
	rollbacking, err := c.queryRollbacking(ctx, nil, xidsOf(batch))
	if err != nil {
		return false, utils.NewDataAccessError("isLockable", err)
	}
	_, ok := checkLockable(batch, held, rollbacking)
	return ok, nil
}

// statusLockKey names the advisory lock guarding the status of xid's rows.
func (c *PostgresStore) statusLockKey(xid string) string {
	return c.table + configs.RowKeySplitter + xid
}

// UpdateLockStatus waits for in-flight acquires of xid to end, a deferred
// acquire holds them off until its caller's transaction ends.
func (c *PostgresStore) UpdateLockStatus(ctx context.Context, xid string, status locks.LockStatus) error {
	sql := fmt.Sprintf("UPDATE %s SET status = $2, gmt_modified = $3 WHERE xid = $1", c.tableName())
	err := c.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", c.statusLockKey(xid)); err != nil {
			return errors.Annotatef(err, "take status lock of %s", xid)
		}
		_, err := tx.Exec(ctx, sql, xid, int16(status), time.Now())
		return errors.Annotatef(err, "set %s to %v", xid, status)
	})
	if err != nil {
		return utils.NewStoreError("updateLockStatus", err)
	}
	return nil
}

func (c *PostgresStore) Close() error {
	c.pool.Close()
	return nil
}
