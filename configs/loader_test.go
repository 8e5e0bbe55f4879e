package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStoreConfig(t *testing.T) {
	cfg, err := ParseStoreConfig(`
# lock store
store.mode = db
store.db.url = postgres://u:p@db:5432/seata
store.db.maxConn = 32
store.db.lockTable = global_lock
store.log.batchInterval = 50ms
`)
	require.NoError(t, err)
	assert.Equal(t, DBStore, cfg.Mode)
	assert.Equal(t, "postgres://u:p@db:5432/seata", cfg.DBURL)
	assert.Equal(t, 32, cfg.DBMaxConn)
	assert.Equal(t, "global_lock", cfg.LockTable)
	// the mongo collection follows the lock table unless set explicitly.
	assert.Equal(t, "global_lock", cfg.MongoCollection)
	assert.Equal(t, 50*time.Millisecond, cfg.LogBatchInterval)
	assert.Equal(t, DefaultLogDir, cfg.LogDir)
}

func TestLoadStoreConfigMissingFile(t *testing.T) {
	cfg, err := LoadStoreConfig(filepath.Join(t.TempDir(), "absent.properties"))
	require.NoError(t, err)
	assert.Equal(t, DefaultStoreConfig(), cfg)
}

func TestLoadStoreConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.properties")
	require.NoError(t, os.WriteFile(path, []byte("store.mode=file\nstore.file.dir=/var/lib/glm\n"), 0644))
	cfg, err := LoadStoreConfig(path)
	require.NoError(t, err)
	assert.Equal(t, FileStore, cfg.Mode)
	assert.Equal(t, "/var/lib/glm", cfg.LogDir)
	assert.Equal(t, DefaultLockTable, cfg.MongoCollection)
}

func TestSetStoreMode(t *testing.T) {
	defer SetStoreMode(StoreMode)
	SetStoreMode(MongoDBStore)
	assert.Equal(t, MongoDBStore, StoreMode)
	assert.Panics(t, func() { SetStoreMode("redis") })
}
