package duckdb

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinytelemetry/journalscope/internal/model"
)

// RecordWriter stores batches of record rows.
type RecordWriter interface {
	InsertRecordBatch(rows []*model.RecordRow) error
}

// Spool durably holds rows until their batch is stored.
type Spool interface {
	Append(row *model.RecordRow) (uint64, error)
	Commit(seq uint64) error
	Close() error
}

type spooledRow struct {
	seq uint64
	row *model.RecordRow
}

// InsertBufferConfig holds tunable parameters for the insert buffer.
type InsertBufferConfig struct {
	BatchSize      int
	FlushInterval  time.Duration
	FlushQueueSize int
	Spool          Spool
}

// InsertBuffer batches record rows and flushes them to storage from a
// background goroutine. Add never waits on a database write unless the
// flush queue is full.
type InsertBuffer struct {
	writer        RecordWriter
	mu            sync.Mutex
	pending       []spooledRow
	flushChan     chan []spooledRow
	maxBatch      int
	flushInterval time.Duration
	done          chan struct{}
	wg            sync.WaitGroup
	tickWg        sync.WaitGroup
	stopOnce      sync.Once
	spool         Spool

	flushed           atomic.Int64
	backpressureCount atomic.Int64
	lastBPLog         atomic.Int64 // unix seconds
}

// NewInsertBuffer starts a buffer that flushes to writer.
func NewInsertBuffer(writer RecordWriter, conf ...InsertBufferConfig) *InsertBuffer {
	batchSize := model.DefaultInsertBatch
	flushInterval := model.DefaultFlushInterval
	flushQueueSize := model.DefaultFlushQueueSize
	var sp Spool
	if len(conf) > 0 {
		if conf[0].BatchSize > 0 {
			batchSize = conf[0].BatchSize
		}
		if conf[0].FlushInterval > 0 {
			flushInterval = conf[0].FlushInterval
		}
		if conf[0].FlushQueueSize > 0 {
			flushQueueSize = conf[0].FlushQueueSize
		}
		sp = conf[0].Spool
	}

	b := &InsertBuffer{
		writer:        writer,
		pending:       make([]spooledRow, 0, batchSize),
		flushChan:     make(chan []spooledRow, flushQueueSize),
		maxBatch:      batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
		spool:         sp,
	}

	b.wg.Add(1)
	go b.flushWorker()

	b.wg.Add(1)
	b.tickWg.Add(1)
	go b.tickLoop()

	return b
}

func (b *InsertBuffer) tickLoop() {
	defer b.wg.Done()
	defer b.tickWg.Done()
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.drainPending()
		case <-b.done:
			b.drainPending()
			return
		}
	}
}

// logBackpressure logs at most once every 10 seconds.
func (b *InsertBuffer) logBackpressure() {
	count := b.backpressureCount.Add(1)
	now := time.Now().Unix()
	last := b.lastBPLog.Load()
	if now-last >= 10 && b.lastBPLog.CompareAndSwap(last, now) {
		log.Printf("duckdb: backpressure: %d inline flushes, flush queue full", count)
	}
}

func (b *InsertBuffer) drainPending() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	b.pending = make([]spooledRow, 0, b.maxBatch)
	b.mu.Unlock()

	b.enqueue(batch)
}

// enqueue hands a batch to the flush worker, or flushes it inline when
// the queue is full.
func (b *InsertBuffer) enqueue(batch []spooledRow) {
	select {
	case b.flushChan <- batch:
	default:
		b.logBackpressure()
		if err := b.flushBatch(batch); err != nil {
			log.Printf("duckdb: inline flush error: %v", err)
		}
	}
}

func (b *InsertBuffer) flushWorker() {
	defer b.wg.Done()
	for batch := range b.flushChan {
		if err := b.flushBatch(batch); err != nil {
			log.Printf("duckdb: flush error: %v", err)
		}
	}
}

// Add queues a row for insertion. With a spool configured the row is
// persisted first; failed spool writes are retried until Stop.
func (b *InsertBuffer) Add(row *model.RecordRow) {
	var seq uint64
	if b.spool != nil {
		for {
			var err error
			if seq, err = b.spool.Append(row); err == nil {
				break
			}
			log.Printf("duckdb: spool append failed, retrying: %v", err)
			select {
			case <-b.done:
				return
			case <-time.After(200 * time.Millisecond):
			}
		}
	}

	b.mu.Lock()
	b.pending = append(b.pending, spooledRow{seq: seq, row: row})
	var batch []spooledRow
	if len(b.pending) >= b.maxBatch {
		batch = b.pending
		b.pending = make([]spooledRow, 0, b.maxBatch)
	}
	b.mu.Unlock()

	if batch != nil {
		b.enqueue(batch)
	}
}

// Flushed returns the number of rows written so far.
func (b *InsertBuffer) Flushed() int64 {
	return b.flushed.Load()
}

// Stop flushes remaining rows, waits for in-flight writes and closes the
// spool. It is safe to call more than once.
func (b *InsertBuffer) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		// The tick loop's final drain must land before the queue closes.
		b.tickWg.Wait()
		close(b.flushChan)
		b.wg.Wait()
		if b.spool != nil {
			if err := b.spool.Close(); err != nil {
				log.Printf("duckdb: spool close error: %v", err)
			}
		}
	})
}

func (b *InsertBuffer) flushBatch(batch []spooledRow) error {
	if len(batch) == 0 {
		return nil
	}

	rows := make([]*model.RecordRow, 0, len(batch))
	var maxSeq uint64
	for _, item := range batch {
		rows = append(rows, item.row)
		maxSeq = max(maxSeq, item.seq)
	}

	if err := b.writer.InsertRecordBatch(rows); err != nil {
		return err
	}
	b.flushed.Add(int64(len(rows)))

	if b.spool != nil && maxSeq > 0 {
		if err := b.spool.Commit(maxSeq); err != nil {
			return fmt.Errorf("spool commit seq=%d: %w", maxSeq, err)
		}
	}
	return nil
}

// InsertRecordBatch writes rows in one transaction. When the batch fails
// it is retried row by row and rows that still fail are dropped and
// logged.
func (s *Store) InsertRecordBatch(rows []*model.RecordRow) error {
	if len(rows) == 0 {
		return nil
	}

	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertRecordsTx(ctx, rows); err == nil {
		return nil
	}

	var failed int
	for _, r := range rows {
		if err := s.insertRecordsTx(ctx, []*model.RecordRow{r}); err != nil {
			failed++
			log.Printf("duckdb: dropping record (journal=%s line=%d): %v", r.JournalID, r.Line, err)
		}
	}
	if failed > 0 {
		log.Printf("duckdb: batch partially failed, %d/%d records dropped", failed, len(rows))
	}
	return nil
}

func (s *Store) insertRecordsTx(ctx context.Context, rows []*model.RecordRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO records
		(journal_id, line_no, block_no, kind, severity, raw, block_time, fields)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		var blockTime, fields any
		if !r.BlockTime.IsZero() {
			blockTime = r.BlockTime
		}
		if len(r.Fields) > 0 {
			fields = string(r.Fields)
		}
		severity := r.Severity
		if severity == "" {
			severity = "INFO"
		}
		if _, err := stmt.ExecContext(ctx,
			r.JournalID, r.Line, r.Block, r.Kind, severity, r.Raw, blockTime, fields,
		); err != nil {
			return fmt.Errorf("record insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
