package storage

import (
	"GLM/configs"
	"GLM/locks"
	"GLM/utils"
	"context"
	"github.com/juju/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"time"
)

// MongoStore keeps one document per locked row, with the row key as _id.
// Batches run in a multi-document transaction, so the server has to be a
// replica set.
type MongoStore struct {
	client *mongo.Client
	main   *mongo.Collection
}

func NewMongoStore(ctx context.Context, cfg *configs.StoreConfig) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, utils.NewStoreError("open", errors.Annotate(err, "connect lock db"))
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, utils.NewStoreError("open", errors.Annotate(err, "ping lock db"))
	}
	collection := cfg.MongoCollection
	if collection == "" {
		collection = configs.DefaultLockTable
	}
	c := &MongoStore{client: client, main: client.Database(cfg.MongoDatabase).Collection(collection)}
	_, err = c.main.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "xid", Value: 1}, {Key: "branchId", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, utils.NewStoreError("open", errors.Annotatef(err, "index %s", collection))
	}
	return c, nil
}

// inTxn runs fn in a transaction. A deferred call made under a session whose
// transaction is running joins that transaction instead.
func (c *MongoStore) inTxn(ctx context.Context, autoCommit bool, fn func(ctx context.Context) (bool, error)) (bool, error) {
	if !autoCommit && transactionRunning(ctx) {
		return fn(ctx)
	}
	sess, err := c.client.StartSession()
	if err != nil {
		return false, errors.Annotate(err, "start session")
	}
	defer sess.EndSession(ctx)
	res, err := sess.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return fn(sessCtx)
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

func transactionRunning(ctx context.Context) bool {
	sess, ok := mongo.SessionFromContext(ctx).(mongo.XSession)
	return ok && sess.ClientSession() != nil && sess.ClientSession().TransactionRunning()
}

func (c *MongoStore) AcquireLock(ctx context.Context, rows []*locks.RowLock, autoCommit bool) (bool, error) {
	batch := convertToLockDO(rows)
	if len(batch) == 0 {
		return true, nil
	}
	ok, err := c.inTxn(ctx, autoCommit, func(ctx context.Context) (bool, error) {
		held, err := c.findHeld(ctx, rowKeysOf(batch))
		if err != nil {
			return false, err
		}
		rollbacking, err := c.findRollbacking(ctx, xidsOf(batch))
		if err != nil {
			return false, err
		}
		missing, ok := checkLockable(batch, held, rollbacking)
		if !ok || len(missing) == 0 {
			return ok, nil
		}
		docs := make([]interface{}, len(missing))
		for i, d := range missing {
			docs[i] = d
		}
		if _, err := c.main.InsertMany(ctx, docs); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return false, utils.ErrLockConflict
			}
			return false, errors.Annotatef(err, "insert %d row locks", len(docs))
		}
		return true, nil
	})
	if err == utils.ErrLockConflict {
		return false, nil
	}
	if err != nil {
		return false, utils.NewStoreError("acquire", err)
	}
	return ok, nil
}

func (c *MongoStore) findHeld(ctx context.Context, keys []string) (map[string]*LockDO, error) {
	cursor, err := c.main.Find(ctx, bson.M{"_id": bson.M{"$in": keys}})
	if err != nil {
		return nil, errors.Annotate(err, "find held rows")
	}
	var docs []*LockDO
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Annotate(err, "decode held rows")
	}
	res := make(map[string]*LockDO, len(docs))
	for _, d := range docs {
		res[d.RowKey] = d
	}
	return res, nil
}

func (c *MongoStore) findRollbacking(ctx context.Context, xids []string) (map[string]bool, error) {
	values, err := c.main.Distinct(ctx, "xid", bson.M{"xid": bson.M{"$in": xids}, "status": locks.Rollbacking})
	if err != nil {
		return nil, errors.Annotate(err, "find rollbacking xids")
	}
	res := make(map[string]bool, len(values))
	for _, v := range values {
		if xid, ok := v.(string); ok {
			res[xid] = true
		}
	}
	return res, nil
}

func (c *MongoStore) UnLock(ctx context.Context, rows []*locks.RowLock) (bool, error) {
	groups := locks.GroupByXID(locks.DistinctRows(rows))
	if len(groups) == 0 {
		return true, nil
	}
	_, err := c.inTxn(ctx, true, func(ctx context.Context) (bool, error) {
		for xid, group := range groups {
			_, err := c.main.DeleteMany(ctx, bson.M{"xid": xid, "_id": bson.M{"$in": locks.RowKeys(group)}})
			if err != nil {
				return false, errors.Annotatef(err, "delete rows of %s", xid)
			}
		}
		return true, nil
	})
	if err != nil {
		return false, utils.NewStoreError("unLock", err)
	}
	return true, nil
}

func (c *MongoStore) UnLockBranch(ctx context.Context, xid string, branchID int64) (bool, error) {
	return c.UnLockBranches(ctx, xid, []int64{branchID})
}

func (c *MongoStore) UnLockBranches(ctx context.Context, xid string, branchIDs []int64) (bool, error) {
	_, err := c.main.DeleteMany(ctx, bson.M{"xid": xid, "branchId": bson.M{"$in": branchIDs}})
	if err != nil {
		return false, utils.NewStoreError("unLockBranch", errors.Annotatef(err, "delete branches %v of %s", branchIDs, xid))
	}
	return true, nil
}

func (c *MongoStore) IsLockable(ctx context.Context, rows []*locks.RowLock) (bool, error) {
	batch := convertToLockDO(rows)
	if len(batch) == 0 {
		return true, nil
	}
	held, err := c.findHeld(ctx, rowKeysOf(batch))
	if err != nil {
		return false, utils.NewDataAccessError("isLockable", err)
	}
	rollbacking, err := c.findRollbacking(ctx, xidsOf(batch))
	if err != nil {
		return false, utils.NewDataAccessError("isLockable", err)
	}
	_, ok := checkLockable(batch, held, rollbacking)
	return ok, nil
}

func (c *MongoStore) UpdateLockStatus(ctx context.Context, xid string, status locks.LockStatus) error {
	_, err := c.main.UpdateMany(ctx, bson.M{"xid": xid},
		bson.M{"$set": bson.M{"status": status, "gmtModified": time.Now()}})
	if err != nil {
		return utils.NewStoreError("updateLockStatus", errors.Annotatef(err, "set %s to %v", xid, status))
	}
	return nil
}

func (c *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), configs.DefaultStoreOpTimeout)
	defer cancel()
	return c.client.Disconnect(ctx)
}
