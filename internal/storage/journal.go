package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	// journalQueueSize is the buffer size for the record queue.
	// If full, records are dropped (non-blocking).
	journalQueueSize = 1000

	// journalBatchSize is the number of records that triggers an immediate flush.
	journalBatchSize = 10

	// journalFlushInterval is how often pending records are flushed.
	journalFlushInterval = 50 * time.Millisecond
)

// RecordWriter is the part of Storage the journal needs.
type RecordWriter interface {
	Init() error
	Write(ctx context.Context, records []Record) error
}

// Journal writes records to storage in the background with non-blocking
// appends.
type Journal struct {
	store    RecordWriter
	logger   *zap.Logger
	queue    chan Record
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	enabled  bool
	stopped  bool
	mu       sync.RWMutex

	written atomic.Int64
	dropped atomic.Int64
}

// NewJournal initializes store and starts the background writer. If
// initialization fails the journal stays disabled and appends are ignored.
func NewJournal(store RecordWriter, logger *zap.Logger) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	j := &Journal{
		store:    store,
		logger:   logger,
		queue:    make(chan Record, journalQueueSize),
		stopChan: make(chan struct{}),
		enabled:  store != nil,
	}

	if store != nil {
		if err := store.Init(); err != nil {
			logger.Warn("journal storage initialization failed", zap.Error(err))
			j.enabled = false
		}
	}

	j.wg.Add(1)
	go j.process()

	return j
}

// Append queues records for writing (non-blocking).
// If the queue is full, the record is dropped and a warning is logged.
// Records appended after Stop are counted as dropped.
func (j *Journal) Append(records ...Record) {
	// The read lock keeps Stop from draining the queue while a send is in
	// flight.
	j.mu.RLock()
	defer j.mu.RUnlock()

	if !j.enabled {
		return
	}
	if j.stopped {
		j.dropped.Add(int64(len(records)))
		return
	}

	for _, r := range records {
		select {
		case j.queue <- r:
		default:
			j.dropped.Add(1)
			j.logger.Warn("journal queue full, dropping record", zap.String("kind", string(r.Kind)))
		}
	}
}

// Stop gracefully shuts down the journal, flushing remaining records.
func (j *Journal) Stop() {
	j.stopOnce.Do(func() {
		j.mu.Lock()
		j.stopped = true
		j.mu.Unlock()

		close(j.stopChan)
		j.wg.Wait()
	})
}

// Disable disables the journal (records are ignored).
func (j *Journal) Disable() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.enabled = false
}

// Enable enables the journal.
func (j *Journal) Enable() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.enabled = j.store != nil
}

// IsEnabled returns whether records are accepted.
func (j *Journal) IsEnabled() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.enabled
}

// QueueSize returns the current number of queued records.
func (j *Journal) QueueSize() int {
	return len(j.queue)
}

// Written returns the number of records handed to storage without error.
func (j *Journal) Written() int64 {
	return j.written.Load()
}

// Dropped returns the number of records lost to a full queue or a stopped
// journal.
func (j *Journal) Dropped() int64 {
	return j.dropped.Load()
}

// process runs in the background, batching and flushing records.
func (j *Journal) process() {
	defer j.wg.Done()

	ticker := time.NewTicker(journalFlushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, journalBatchSize)

	for {
		select {
		case r := <-j.queue:
			batch = append(batch, r)
			if len(batch) >= journalBatchSize {
				j.flush(batch)
				batch = make([]Record, 0, journalBatchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				j.flush(batch)
				batch = make([]Record, 0, journalBatchSize)
			}

		case <-j.stopChan:
			// Drain what is queued, flush and exit.
			for {
				select {
				case r := <-j.queue:
					batch = append(batch, r)
					if len(batch) >= journalBatchSize {
						j.flush(batch)
						batch = make([]Record, 0, journalBatchSize)
					}
				default:
					j.flush(batch)
					return
				}
			}
		}
	}
}

// flush writes a batch of records to storage.
func (j *Journal) flush(batch []Record) {
	if len(batch) == 0 || j.store == nil {
		return
	}
	if err := j.store.Write(context.Background(), batch); err != nil {
		j.logger.Warn("failed to write journal batch", zap.Int("records", len(batch)), zap.Error(err))
		return
	}
	j.written.Add(int64(len(batch)))
}
