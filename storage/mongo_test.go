package storage

import (
	"GLM/configs"
	"GLM/locks"
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var mongoCollectionSeq int64

// newTestMongoStore connects to GLM_TEST_MONGO_URI, which must point at a
// replica set, with a collection of its own.
func newTestMongoStore(t *testing.T) *MongoStore {
	uri := os.Getenv("GLM_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("GLM_TEST_MONGO_URI is not set")
	}
	ctx := context.Background()
	cfg := configs.DefaultStoreConfig()
	cfg.Mode = configs.MongoDBStore
	cfg.MongoURI = uri
	cfg.MongoDatabase = "glm_test"
	cfg.MongoCollection = fmt.Sprintf("lock_table_%d_%d", time.Now().UnixNano(), atomic.AddInt64(&mongoCollectionSeq, 1))
	s, err := NewMongoStore(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		// the store may be closed by now.
		ctx := context.Background()
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err != nil {
			return
		}
		defer client.Disconnect(ctx)
		_ = client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection).Drop(ctx)
	})
	return s
}

func TestMongoStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) locks.LockStore {
		return newTestMongoStore(t)
	})
}

func TestMongoDeferredAcquireWithoutTransaction(t *testing.T) {
	s := newTestMongoStore(t)
	defer s.Close()
	ctx := context.Background()
	ok, err := s.AcquireLock(ctx, rowsOf("T1", 1, "pk2"), true)
	require.NoError(t, err)
	require.True(t, ok)

	sess, err := s.client.StartSession()
	require.NoError(t, err)
	defer sess.EndSession(ctx)
	// the session runs no transaction, so the batch gets one of its own.
	sessCtx := mongo.NewSessionContext(ctx, sess)
	require.False(t, transactionRunning(sessCtx))
	ok, err = s.AcquireLock(sessCtx, rowsOf("T2", 1, "pk1", "pk2"), false)
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = s.IsLockable(ctx, rowsOf("T3", 1, "pk1"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMongoDeferredAcquireJoinsTransaction(t *testing.T) {
	s := newTestMongoStore(t)
	defer s.Close()
	ctx := context.Background()

	sess, err := s.client.StartSession()
	require.NoError(t, err)
	defer sess.EndSession(ctx)
	require.NoError(t, sess.StartTransaction())
	sessCtx := mongo.NewSessionContext(ctx, sess)
	require.True(t, transactionRunning(sessCtx))
	ok, err := s.AcquireLock(sessCtx, rowsOf("T1", 1, "pk1"), false)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, sess.AbortTransaction(ctx))

	ok, err = s.IsLockable(ctx, rowsOf("T3", 1, "pk1"))
	require.NoError(t, err)
	require.True(t, ok)
}
