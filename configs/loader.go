package configs

import (
	"github.com/magiconair/properties"
	"os"
	"time"
)

// StoreConfig describes which lock store backs the manager and how to reach it.
type StoreConfig struct {
	Mode             string
	LogDir           string
	LogBatchInterval time.Duration
	DBURL            string
	DBMaxConn        int
	LockTable        string
	MongoURI         string
	MongoDatabase    string
	MongoCollection  string
}

// DefaultStoreConfig is an in-memory store with the default table names.
func DefaultStoreConfig() *StoreConfig {
	return &StoreConfig{
		Mode:             StoreMode,
		LogDir:           DefaultLogDir,
		LogBatchInterval: LogBatchInterval,
		DBURL:            DefaultDBLink,
		DBMaxConn:        DefaultDBMaxConn,
		LockTable:        DefaultLockTable,
		MongoURI:         MongoDBLink,
		MongoDatabase:    DefaultMongoDatabase,
		MongoCollection:  DefaultLockTable,
	}
}

// LoadStoreConfig reads the store section of a properties file. A missing file
// yields the defaults, so a bare binary still runs against the memory store.
func LoadStoreConfig(path string) (*StoreConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		Warn(false, "config file "+path+" not found, using the default store config")
		return DefaultStoreConfig(), nil
	}
	p, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		return nil, err
	}
	return StoreConfigFromProperties(p), nil
}

// ParseStoreConfig is LoadStoreConfig for an in-memory properties document.
func ParseStoreConfig(s string) (*StoreConfig, error) {
	p, err := properties.LoadString(s)
	if err != nil {
		return nil, err
	}
	return StoreConfigFromProperties(p), nil
}

func StoreConfigFromProperties(p *properties.Properties) *StoreConfig {
	def := DefaultStoreConfig()
	table := p.GetString("store.db.lockTable", def.LockTable)
	return &StoreConfig{
		Mode:             p.GetString("store.mode", def.Mode),
		LogDir:           p.GetString("store.file.dir", def.LogDir),
		LogBatchInterval: p.GetParsedDuration("store.log.batchInterval", def.LogBatchInterval),
		DBURL:            p.GetString("store.db.url", def.DBURL),
		DBMaxConn:        p.GetInt("store.db.maxConn", def.DBMaxConn),
		LockTable:        table,
		MongoURI:         p.GetString("store.mongo.uri", def.MongoURI),
		MongoDatabase:    p.GetString("store.mongo.database", def.MongoDatabase),
		MongoCollection:  p.GetString("store.mongo.collection", table),
	}
}
