package storage

import (
	"GLM/configs"
	"GLM/locks"
	"context"
	"github.com/goccy/go-json"
	"github.com/juju/errors"
	"github.com/tidwall/wal"
	"sync"
	"time"
)

const (
	opLock   = "lock"
	opUnlock = "unlock"
	opStatus = "status"
)

// LogEntry is one journaled mutation of the lock table.
type LogEntry struct {
	Op     string           `json:"op"`
	Locks  []*LockDO        `json:"locks,omitempty"`
	Keys   []string         `json:"keys,omitempty"`
	XID    string           `json:"xid,omitempty"`
	Status locks.LockStatus `json:"status,omitempty"`
}

type walRecord struct {
	index uint64
	data  []byte
}

// LogManager journals lock table mutations into a write-ahead log. Durable
// entries go to disk before Append returns; the others wait in a
// batch that the background logger flushes every interval. A zero LogManager
// journals nothing.
type LogManager struct {
	latch    sync.Mutex
	lsn      uint64
	logs     *wal.Log
	pending  []walRecord
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewLogManager(dir string, interval time.Duration) (*LogManager, error) {
	res := &LogManager{}
	if dir == "" {
		return res, nil
	}
	log, err := wal.Open(dir, nil)
	if err != nil {
		return nil, errors.Annotatef(err, "open lock journal %s", dir)
	}
	res.logs = log
	res.lsn, err = log.LastIndex()
	if err != nil {
		_ = log.Close()
		return nil, errors.Trace(err)
	}
	if interval <= 0 {
		interval = configs.LogBatchInterval
	}
	res.interval = interval
	return res, nil
}

// Start runs the batch logger until Close.
func (c *LogManager) Start() {
	if c.logs == nil || c.done != nil {
		return
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.done = make(chan struct{})
	go c.localBatchSyncLogger()
}

func (c *LogManager) Append(e *LogEntry, durable bool) error {
	if c.logs == nil {
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Trace(err)
	}
	c.latch.Lock()
	defer c.latch.Unlock()
	c.lsn++
	c.pending = append(c.pending, walRecord{index: c.lsn, data: data})
	if !durable {
		return nil
	}
	if err := c.flush(); err != nil {
		// drop the failed entry, earlier deferred entries stay pending.
		c.pending = c.pending[:len(c.pending)-1]
		c.lsn--
		return err
	}
	return nil
}

// flush writes the pending batch, the caller holds the latch.
func (c *LogManager) flush() error {
	if len(c.pending) == 0 {
		return nil
	}
	batch := &wal.Batch{}
	for _, r := range c.pending {
		batch.Write(r.index, r.data)
	}
	if err := c.logs.WriteBatch(batch); err != nil {
		return errors.Annotatef(err, "write %d journal entries", len(c.pending))
	}
	c.pending = c.pending[:0]
	return nil
}

// Flush forces the pending batch to disk.
func (c *LogManager) Flush() error {
	if c.logs == nil {
		return nil
	}
	c.latch.Lock()
	defer c.latch.Unlock()
	return c.flush()
}

// Replay feeds every journaled entry to apply, oldest first.
// TODO: snapshot the table and TruncateFront once the journal outgrows it.
func (c *LogManager) Replay(apply func(e *LogEntry) error) error {
	if c.logs == nil {
		return nil
	}
	first, err := c.logs.FirstIndex()
	if err != nil {
		return errors.Trace(err)
	}
	last, err := c.logs.LastIndex()
	if err != nil {
		return errors.Trace(err)
	}
	if first == 0 {
		return nil
	}
	for i := first; i <= last; i++ {
		data, err := c.logs.Read(i)
		if err != nil {
			return errors.Annotatef(err, "read journal entry %d", i)
		}
		e := &LogEntry{}
		if err := json.Unmarshal(data, e); err != nil {
			return errors.Annotatef(err, "decode journal entry %d", i)
		}
		if err := apply(e); err != nil {
			return errors.Annotatef(err, "replay journal entry %d", i)
		}
	}
	configs.TPrintf("replayed lock journal entries [%v, %v]", first, last)
	return nil
}

func (c *LogManager) localBatchSyncLogger() {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.Flush(); err != nil {
				configs.Logger.Error().Err(err).Msg("lock journal batch sync failed")
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Close stops the batch logger, flushes what is pending and closes the log.
func (c *LogManager) Close() error {
	if c.logs == nil {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	if err := c.Flush(); err != nil {
		_ = c.logs.Close()
		return err
	}
	return c.logs.Close()
}
